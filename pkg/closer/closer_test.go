package closer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloser_LIFO(t *testing.T) {
	c := NewCloser(0)

	var order []string
	for _, name := range []string{"db", "cache", "http"} {
		c.Add(name, func(context.Context) error {
			order = append(order, name)
			return nil
		})
	}

	require.NoError(t, c.Close(context.Background()))
	assert.Equal(t, []string{"http", "cache", "db"}, order)

	// повторный Close ничего не закрывает
	require.NoError(t, c.Close(context.Background()))
	assert.Len(t, order, 3)
}

func TestCloser_CollectsNamedErrors(t *testing.T) {
	c := NewCloser(0)
	c.AddFunc("redis", func() error { return errors.New("conn reset") })
	c.AddFunc("qdrant", func() error { return nil })

	err := c.Close(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis: conn reset")
	assert.NotContains(t, err.Error(), "qdrant")
}

func TestCloser_ForcesRemainingOnTimeout(t *testing.T) {
	c := NewCloser(50 * time.Millisecond)

	var (
		mu     sync.Mutex
		closed []string
	)
	mark := func(name string) {
		mu.Lock()
		closed = append(closed, name)
		mu.Unlock()
	}

	c.Add("first", func(context.Context) error {
		mark("first")
		return nil
	})
	c.Add("stuck", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := c.Close(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "interrupted after 0/2")
	assert.Contains(t, err.Error(), "[FORCED] stuck")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"first"}, closed)
}
