package snapshot

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DRSN-tech/visual-search/internal/domain"
	"github.com/DRSN-tech/visual-search/internal/usecase"
	"github.com/DRSN-tech/visual-search/pkg/e"
	"github.com/DRSN-tech/visual-search/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubIndex struct{ n int }

func (s stubIndex) Search(context.Context, domain.EmbeddingVector, int) ([]domain.Hit, error) {
	return nil, nil
}
func (s stubIndex) Dimension() int { return 2 }
func (s stubIndex) Len() int       { return s.n }

type fakeLoader struct {
	calls atomic.Int32
	gate  chan struct{} // если не nil, Load ждёт закрытия
	fail  atomic.Int32  // сколько первых вызовов завершить ошибкой
}

func (f *fakeLoader) Load(ctx context.Context, ref usecase.SnapshotRef) (*usecase.Snapshot, error) {
	n := f.calls.Add(1)
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if n <= f.fail.Load() {
		return nil, errors.New("storage down")
	}

	return &usecase.Snapshot{
		Version:    ref.Version,
		Index:      stubIndex{n: 3},
		Embeddings: domain.NewEmbeddingMap(nil),
		Catalog:    domain.NewCatalog(nil),
		LoadedAt:   time.Now(),
	}, nil
}

func newHolder(loader usecase.SnapshotUC, lazy bool) *Holder {
	return NewHolder(loader, HolderOpts{
		Initial:     usecase.SnapshotRef{Version: "v1"},
		LazyLoad:    lazy,
		LoadTimeout: time.Second,
	}, logger.Nop())
}

func TestHolder_NotLoaded(t *testing.T) {
	loader := &fakeLoader{}
	h := newHolder(loader, false)

	_, err := h.Current(context.Background())
	assert.ErrorIs(t, err, e.ErrIndexNotLoaded)
	assert.Equal(t, int32(0), loader.calls.Load())
	assert.False(t, h.Status().Loaded)
}

func TestHolder_LazySingleLoader(t *testing.T) {
	loader := &fakeLoader{gate: make(chan struct{})}
	h := newHolder(loader, true)

	const callers = 16
	var wg sync.WaitGroup
	snaps := make([]*usecase.Snapshot, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			snap, err := h.Current(context.Background())
			assert.NoError(t, err)
			snaps[i] = snap
		}(i)
	}

	// Все вызовы успевают встать в ожидание одной загрузки
	require.Eventually(t, func() bool { return loader.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(loader.gate)
	wg.Wait()

	assert.Equal(t, int32(1), loader.calls.Load())
	for _, snap := range snaps {
		assert.Same(t, snaps[0], snap)
	}

	// Дальше снапшот отдаётся без загрузки
	_, err := h.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), loader.calls.Load())
}

func TestHolder_LoadFailureIsRetriedOnNextCall(t *testing.T) {
	loader := &fakeLoader{}
	loader.fail.Store(1)
	h := newHolder(loader, true)

	_, err := h.Current(context.Background())
	assert.ErrorIs(t, err, e.ErrIndexLoad)

	snap, err := h.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "v1", snap.Version)
}

func TestHolder_ReloadSwapsAtomically(t *testing.T) {
	loader := &fakeLoader{}
	h := newHolder(loader, false)
	require.NoError(t, h.Load(context.Background()))

	before, err := h.Current(context.Background())
	require.NoError(t, err)

	require.NoError(t, h.Reload(context.Background(), usecase.SnapshotRef{Version: "v2"}))

	after, err := h.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "v2", after.Version)
	assert.Equal(t, "v1", before.Version, "readers keep the snapshot they already hold")

	st := h.Status()
	assert.True(t, st.Loaded)
	assert.Equal(t, "v2", st.Version)
	assert.Equal(t, 3, st.Vectors)
}

func TestHolder_ReloadSameVersionIsSkipped(t *testing.T) {
	loader := &fakeLoader{}
	h := newHolder(loader, false)
	require.NoError(t, h.Load(context.Background()))

	require.NoError(t, h.Reload(context.Background(), usecase.SnapshotRef{Version: "v1"}))
	assert.Equal(t, int32(1), loader.calls.Load())
}

func TestHolder_FailedReloadKeepsCurrent(t *testing.T) {
	loader := &fakeLoader{}
	h := newHolder(loader, false)
	require.NoError(t, h.Load(context.Background()))

	loader.fail.Store(loader.calls.Load() + 1)
	err := h.Reload(context.Background(), usecase.SnapshotRef{Version: "v2"})
	assert.ErrorIs(t, err, e.ErrIndexLoad)

	snap, err := h.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "v1", snap.Version)
}

func TestHolder_CallerCancelDoesNotAbortLoad(t *testing.T) {
	loader := &fakeLoader{gate: make(chan struct{})}
	h := newHolder(loader, true)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := h.Current(ctx)
		done <- err
	}()

	require.Eventually(t, func() bool { return loader.calls.Load() == 1 }, time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	close(loader.gate)
	require.Eventually(t, func() bool { return h.Status().Loaded }, time.Second, time.Millisecond)
	assert.Equal(t, int32(1), loader.calls.Load())
}

func TestHolder_Warmup(t *testing.T) {
	loader := &fakeLoader{}
	loader.fail.Store(2)
	h := newHolder(loader, false)

	err := h.Warmup(context.Background(), time.Millisecond, 2*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, int32(3), loader.calls.Load())
	assert.True(t, h.Status().Loaded)
}

func TestHolder_WarmupStopsOnCancel(t *testing.T) {
	loader := &fakeLoader{}
	loader.fail.Store(1 << 20)
	h := newHolder(loader, false)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := h.Warmup(ctx, time.Millisecond, 2*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
