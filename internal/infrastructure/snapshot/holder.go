package snapshot

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/DRSN-tech/visual-search/internal/usecase"
	"github.com/DRSN-tech/visual-search/pkg/e"
	"github.com/DRSN-tech/visual-search/pkg/jitter"
	"github.com/DRSN-tech/visual-search/pkg/logger"
	"golang.org/x/sync/singleflight"
)

// Holder хранит текущий снапшот. Читатели получают его без блокировок,
// загрузка одной версии выполняется не более чем одним загрузчиком одновременно.
type Holder struct {
	loader  usecase.SnapshotUC
	initial usecase.SnapshotRef
	lazy    bool
	timeout time.Duration

	current atomic.Pointer[usecase.Snapshot]
	group   singleflight.Group
	logger  logger.Logger
}

// HolderOpts: параметры Holder.
type HolderOpts struct {
	Initial     usecase.SnapshotRef
	LazyLoad    bool
	LoadTimeout time.Duration
}

func NewHolder(loader usecase.SnapshotUC, opts HolderOpts, logger logger.Logger) *Holder {
	return &Holder{
		loader:  loader,
		initial: opts.Initial,
		lazy:    opts.LazyLoad,
		timeout: opts.LoadTimeout,
		logger:  logger,
	}
}

// Current возвращает загруженный снапшот. В ленивом режиме первый вызов
// запускает загрузку начальной версии, остальные ждут её результата.
func (h *Holder) Current(ctx context.Context) (*usecase.Snapshot, error) {
	const op = "Holder.Current"

	if snap := h.current.Load(); snap != nil {
		return snap, nil
	}
	if !h.lazy {
		return nil, e.Wrap(op, e.ErrIndexNotLoaded)
	}

	snap, err := h.load(ctx, h.initial, false)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	return snap, nil
}

// Load загружает начальную версию, если снапшот ещё не загружен.
func (h *Holder) Load(ctx context.Context) error {
	if h.current.Load() != nil {
		return nil
	}

	_, err := h.load(ctx, h.initial, false)
	return err
}

// Reload загружает версию ref и атомарно подменяет текущий снапшот.
// При ошибке продолжает обслуживаться прежняя версия. Уже загруженная версия не перечитывается.
func (h *Holder) Reload(ctx context.Context, ref usecase.SnapshotRef) error {
	const op = "Holder.Reload"

	if snap := h.current.Load(); snap != nil && snap.Version == ref.Version {
		h.logger.Debugf("Snapshot version %s is already loaded, reload skipped", ref.Version)
		return nil
	}

	if _, err := h.load(ctx, ref, true); err != nil {
		return e.Wrap(op, err)
	}

	return nil
}

// Warmup повторяет загрузку начальной версии с экспоненциальной задержкой до успеха или отмены ctx.
func (h *Holder) Warmup(ctx context.Context, base, maxDelay time.Duration) error {
	backoff := jitter.NewBackoff(base, maxDelay)
	for attempt := 0; ; attempt++ {
		err := h.Load(ctx)
		if err == nil {
			return nil
		}

		sleepTime := backoff.Delay(attempt)
		h.logger.Errorf(err, "snapshot load failed, retrying in %v (attempt %d)", sleepTime, attempt+1)

		if err := jitter.Wait(ctx, sleepTime); err != nil {
			return err
		}
	}
}

// Status описывает текущий снапшот для проверок готовности.
type Status struct {
	Loaded   bool      `json:"loaded"`
	Version  string    `json:"version,omitempty"`
	Vectors  int       `json:"vectors,omitempty"`
	Products int       `json:"products,omitempty"`
	LoadedAt time.Time `json:"loaded_at,omitempty"`
}

func (h *Holder) Status() Status {
	snap := h.current.Load()
	if snap == nil {
		return Status{}
	}

	return Status{
		Loaded:   true,
		Version:  snap.Version,
		Vectors:  snap.Index.Len(),
		Products: snap.Catalog.Len(),
		LoadedAt: snap.LoadedAt,
	}
}

// load выполняет загрузку через singleflight. Загрузка не отменяется вместе с ctx
// вызывающего: она общая для всех ожидающих и ограничена только таймаутом.
func (h *Holder) load(ctx context.Context, ref usecase.SnapshotRef, replace bool) (*usecase.Snapshot, error) {
	key := "load:" + ref.Version
	if replace {
		key = "reload:" + ref.Version
	}

	ch := h.group.DoChan(key, func() (any, error) {
		if !replace {
			if snap := h.current.Load(); snap != nil {
				return snap, nil
			}
		}

		loadCtx := context.WithoutCancel(ctx)
		if h.timeout > 0 {
			var cancel context.CancelFunc
			loadCtx, cancel = context.WithTimeout(loadCtx, h.timeout)
			defer cancel()
		}

		snap, err := h.loader.Load(loadCtx, ref)
		if err != nil {
			return nil, err
		}

		if replace {
			prev := h.current.Swap(snap)
			if prev != nil {
				h.logger.Infof("Snapshot replaced. from: %s, to: %s", prev.Version, snap.Version)
			}
			return snap, nil
		}

		// Первая загрузка не должна затирать уже подменённую через Reload версию
		if !h.current.CompareAndSwap(nil, snap) {
			return h.current.Load(), nil
		}
		return snap, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			if !errors.Is(res.Err, e.ErrIndexLoad) {
				return nil, errors.Join(e.ErrIndexLoad, res.Err)
			}
			return nil, res.Err
		}
		return res.Val.(*usecase.Snapshot), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
