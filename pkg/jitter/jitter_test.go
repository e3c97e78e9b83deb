package jitter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExponentialBackoff_Bounds(t *testing.T) {
	base, maxDelay := 100*time.Millisecond, time.Second

	for attempt := 0; attempt < 10; attempt++ {
		want := base << attempt
		if want > maxDelay {
			want = maxDelay
		}

		got := ExponentialBackoff(base, maxDelay, attempt, DefaultJitter)
		assert.GreaterOrEqual(t, got, want)
		assert.LessOrEqual(t, got, want+want/2)
	}
}

func TestBackoff_Delay(t *testing.T) {
	b := NewBackoff(10*time.Millisecond, 40*time.Millisecond)

	assert.GreaterOrEqual(t, b.Delay(0), 10*time.Millisecond)
	assert.LessOrEqual(t, b.Delay(5), 60*time.Millisecond)

	// Max меньше Base не обрезает задержку ниже Base.
	short := Backoff{Base: 50 * time.Millisecond, Max: time.Millisecond}
	assert.GreaterOrEqual(t, short.Delay(3), 50*time.Millisecond)
}

func TestWait(t *testing.T) {
	assert.NoError(t, Wait(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Wait(ctx, time.Hour), context.Canceled)
}
