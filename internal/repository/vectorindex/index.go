// Package vectorindex содержит in-memory реализации векторного индекса,
// загружаемые целиком из бинарного артефакта.
package vectorindex

import (
	"bytes"
	"container/heap"
	"fmt"
	"io"
	"slices"

	"github.com/DRSN-tech/visual-search/internal/domain"
	"github.com/DRSN-tech/visual-search/internal/usecase"
	"github.com/DRSN-tech/visual-search/pkg/e"
)

const (
	// KindFlat: точный перебор.
	KindFlat = "flat"
	// KindHNSW: приближённый поиск по графу HNSW.
	KindHNSW = "hnsw"
)

var (
	flatMagic = [4]byte{'F', 'L', 'A', 'T'}
	hnswMagic = [4]byte{'H', 'N', 'S', 'W'}
)

// Load разбирает артефакт индекса, определяя формат по magic-байтам.
// Любая ошибка разбора оборачивает e.ErrIndexLoad.
func Load(data []byte) (usecase.VectorIndex, error) {
	if len(data) < len(flatMagic) {
		return nil, e.Wrap("artifact too short", e.ErrIndexLoad)
	}

	var magic [4]byte
	copy(magic[:], data)

	switch magic {
	case flatMagic:
		return LoadFlat(bytes.NewReader(data))
	case hnswMagic:
		return LoadHNSW(bytes.NewReader(data))
	default:
		return nil, e.Wrap(fmt.Sprintf("unknown magic %q", magic[:]), e.ErrIndexLoad)
	}
}

// loadErr оборачивает ошибку разбора в e.ErrIndexLoad.
func loadErr(format string, args ...any) error {
	return e.Wrap(fmt.Sprintf(format, args...), e.ErrIndexLoad)
}

// topHits: ограниченная куча, в корне которой худший из сохранённых хитов.
type topHits struct {
	items []domain.Hit
	limit int
}

func newTopHits(limit int) *topHits {
	return &topHits{items: make([]domain.Hit, 0, limit), limit: limit}
}

func (h *topHits) Len() int           { return len(h.items) }
func (h *topHits) Less(i, j int) bool { return domain.HitLess(h.items[j], h.items[i]) }
func (h *topHits) Swap(i, j int)      { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *topHits) Push(x any)         { h.items = append(h.items, x.(domain.Hit)) }
func (h *topHits) Pop() any {
	old := h.items
	n := len(old)
	x := old[n-1]
	h.items = old[:n-1]
	return x
}

// offer добавляет хит, если он лучше худшего из сохранённых.
func (h *topHits) offer(hit domain.Hit) {
	if h.limit <= 0 {
		return
	}
	if len(h.items) < h.limit {
		heap.Push(h, hit)
		return
	}
	if domain.HitLess(hit, h.items[0]) {
		h.items[0] = hit
		heap.Fix(h, 0)
	}
}

// sorted возвращает хиты в порядке выдачи.
func (h *topHits) sorted() []domain.Hit {
	out := slices.Clone(h.items)
	sortHits(out)
	return out
}

func sortHits(hits []domain.Hit) {
	slices.SortFunc(hits, func(a, b domain.Hit) int {
		switch {
		case domain.HitLess(a, b):
			return -1
		case domain.HitLess(b, a):
			return 1
		default:
			return 0
		}
	})
}

func fmtRow(i, got, want int) string {
	return fmt.Sprintf("row %d has %d components, want %d", i, got, want)
}

// Artifact: индекс, который можно сохранить в артефакт.
type Artifact interface {
	usecase.VectorIndex
	Save(w io.Writer) error
}

// Build собирает индекс указанного типа; i-й вектор получает EmbeddingID i.
func Build(kind string, dim int, vectors []domain.EmbeddingVector, cfg HNSWConfig, seed uint64) (Artifact, error) {
	switch kind {
	case KindFlat:
		return NewFlat(dim, vectors)
	case KindHNSW:
		cfg.Dim = dim
		h, err := NewHNSW(cfg, seed)
		if err != nil {
			return nil, err
		}
		for i, v := range vectors {
			if _, err := h.Add(v); err != nil {
				return nil, e.Wrap(fmt.Sprintf("row %d", i), err)
			}
		}
		return h, nil
	default:
		return nil, fmt.Errorf("unknown index kind %q", kind)
	}
}
