package vectorindex

import (
	"container/heap"
	"context"
	"math"
	"math/rand/v2"
	"slices"
	"sync"

	"github.com/DRSN-tech/visual-search/internal/domain"
	"github.com/DRSN-tech/visual-search/pkg/e"
)

// maxHNSWLevel ограничивает высоту графа.
const maxHNSWLevel = 31

// HNSWConfig: параметры графа HNSW.
type HNSWConfig struct {
	Dim int

	// M: максимальное число связей узла на слое (на слое 0: 2*M). По умолчанию 16.
	M int

	// EfConstruction: ширина луча при вставке. По умолчанию 200.
	EfConstruction int

	// EfSearch: ширина луча при поиске, не меньше запрошенного n. По умолчанию 64.
	EfSearch int
}

func (c *HNSWConfig) setDefaults() {
	if c.M < 2 {
		c.M = 16
	}
	if c.EfConstruction <= 0 {
		c.EfConstruction = 200
	}
	if c.EfSearch <= 0 {
		c.EfSearch = 64
	}
}

func (c *HNSWConfig) maxConns(layer int) int {
	if layer == 0 {
		return c.M * 2
	}
	return c.M
}

// candidate: узел графа и его расстояние до запроса (1 - cos).
type candidate struct {
	id   uint32
	dist float32
}

// closer задаёт порядок по расстоянию с разрешением равенства по id.
func closer(a, b candidate) bool {
	if a.dist != b.dist {
		return a.dist < b.dist
	}
	return a.id < b.id
}

type nearHeap []candidate

func (h nearHeap) Len() int           { return len(h) }
func (h nearHeap) Less(i, j int) bool { return closer(h[i], h[j]) }
func (h nearHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *nearHeap) Push(x any)        { *h = append(*h, x.(candidate)) }
func (h *nearHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

type farHeap []candidate

func (h farHeap) Len() int           { return len(h) }
func (h farHeap) Less(i, j int) bool { return closer(h[j], h[i]) }
func (h farHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *farHeap) Push(x any)        { *h = append(*h, x.(candidate)) }
func (h *farHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

type hnswNode struct {
	vector  []float32
	level   int
	friends [][]uint32 // friends[layer]: соседи на слое
}

// HNSW: приближённый индекс на иерархическом графе.
// Внутренний номер узла совпадает с EmbeddingID: узлы добавляются строго по порядку.
// Все методы потокобезопасны.
type HNSW struct {
	mu       sync.RWMutex
	cfg      HNSWConfig
	nodes    []*hnswNode
	entryID  int32 // -1 для пустого графа
	maxLevel int
	levelMul float64
	rng      *rand.Rand
}

// NewHNSW создаёт пустой граф. seed делает построение воспроизводимым.
func NewHNSW(cfg HNSWConfig, seed uint64) (*HNSW, error) {
	if cfg.Dim <= 0 {
		return nil, e.Wrap("hnsw: dimension must be positive", e.ErrDimensionMismatch)
	}
	cfg.setDefaults()

	return &HNSW{
		cfg:      cfg,
		entryID:  -1,
		levelMul: 1.0 / math.Log(float64(cfg.M)),
		rng:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}, nil
}

func (h *HNSW) Dimension() int { return h.cfg.Dim }

func (h *HNSW) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.nodes)
}

// Add вставляет следующий вектор и возвращает присвоенный ему EmbeddingID.
func (h *HNSW) Add(vector domain.EmbeddingVector) (domain.EmbeddingID, error) {
	if len(vector) != h.cfg.Dim {
		return 0, e.Wrap("HNSW.Add", e.ErrDimensionMismatch)
	}

	vec := slices.Clone([]float32(vector))

	h.mu.Lock()
	defer h.mu.Unlock()

	idx := uint32(len(h.nodes))
	level := h.randomLevel()
	nd := &hnswNode{vector: vec, level: level, friends: make([][]uint32, level+1)}
	h.nodes = append(h.nodes, nd)

	if h.entryID < 0 {
		h.entryID = int32(idx)
		h.maxLevel = level
		return domain.EmbeddingID(idx), nil
	}

	cur := h.greedyDescent(vec, uint32(h.entryID), h.maxLevel, level)

	ep := []uint32{cur}
	for lev := min(level, h.maxLevel); lev >= 0; lev-- {
		found := h.searchLayer(vec, ep, h.cfg.EfConstruction, lev)

		maxC := h.cfg.maxConns(lev)
		neighbors := h.selectClosest(vec, found, maxC)
		nd.friends[lev] = neighbors

		for _, nID := range neighbors {
			nn := h.nodes[nID]
			if lev >= len(nn.friends) {
				continue
			}
			nn.friends[lev] = append(nn.friends[lev], idx)
			if len(nn.friends[lev]) > maxC {
				nn.friends[lev] = h.selectClosest(nn.vector, nn.friends[lev], maxC)
			}
		}

		ep = found
	}

	if level > h.maxLevel {
		h.entryID = int32(idx)
		h.maxLevel = level
	}

	return domain.EmbeddingID(idx), nil
}

// Search возвращает до n ближайших векторов по убыванию score, при равенстве: по возрастанию id.
func (h *HNSW) Search(ctx context.Context, query domain.EmbeddingVector, n int) ([]domain.Hit, error) {
	const op = "HNSW.Search"

	if len(query) != h.cfg.Dim {
		return nil, e.Wrap(op, e.ErrDimensionMismatch)
	}
	if err := ctx.Err(); err != nil {
		return nil, e.Wrap(op, err)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.nodes) == 0 || n <= 0 {
		return nil, nil
	}

	ef := max(h.cfg.EfSearch, n)
	cur := h.greedyDescent(query, uint32(h.entryID), h.maxLevel, 0)
	found := h.searchLayer(query, []uint32{cur}, ef, 0)

	hits := make([]domain.Hit, 0, len(found))
	for _, id := range found {
		hits = append(hits, domain.Hit{
			ID:    domain.EmbeddingID(id),
			Score: domain.Dot(query, h.nodes[id].vector),
		})
	}
	sortHits(hits)
	if len(hits) > n {
		hits = hits[:n]
	}

	return hits, nil
}

// greedyDescent спускается от верхнего слоя до слоя stopAbove+1, выбирая ближайшего соседа.
func (h *HNSW) greedyDescent(query []float32, cur uint32, top, stopAbove int) uint32 {
	curDist := distance(query, h.nodes[cur].vector)

	for lev := top; lev > stopAbove; lev-- {
		changed := true
		for changed {
			changed = false
			nd := h.nodes[cur]
			if lev >= len(nd.friends) {
				break
			}
			for _, fID := range nd.friends[lev] {
				d := distance(query, h.nodes[fID].vector)
				if closer(candidate{fID, d}, candidate{cur, curDist}) {
					cur, curDist = fID, d
					changed = true
				}
			}
		}
	}

	return cur
}

// searchLayer: лучевой поиск на одном слое. Возвращает до ef ближайших узлов.
func (h *HNSW) searchLayer(query []float32, entryPoints []uint32, ef int, layer int) []uint32 {
	visited := make(map[uint32]struct{}, ef*2)

	var (
		frontier nearHeap
		results  farHeap
	)

	for _, ep := range entryPoints {
		if _, seen := visited[ep]; seen {
			continue
		}
		visited[ep] = struct{}{}
		c := candidate{id: ep, dist: distance(query, h.nodes[ep].vector)}
		heap.Push(&frontier, c)
		heap.Push(&results, c)
		if results.Len() > ef {
			heap.Pop(&results)
		}
	}

	for frontier.Len() > 0 {
		next := heap.Pop(&frontier).(candidate)
		if results.Len() >= ef && closer(results[0], next) {
			break
		}

		nd := h.nodes[next.id]
		if layer >= len(nd.friends) {
			continue
		}

		for _, fID := range nd.friends[layer] {
			if _, seen := visited[fID]; seen {
				continue
			}
			visited[fID] = struct{}{}

			c := candidate{id: fID, dist: distance(query, h.nodes[fID].vector)}
			if results.Len() < ef || closer(c, results[0]) {
				heap.Push(&frontier, c)
				heap.Push(&results, c)
				if results.Len() > ef {
					heap.Pop(&results)
				}
			}
		}
	}

	out := make([]uint32, results.Len())
	for i := range out {
		out[i] = results[i].id
	}
	return out
}

func (h *HNSW) selectClosest(query []float32, ids []uint32, maxN int) []uint32 {
	if len(ids) <= maxN {
		return slices.Clone(ids)
	}

	items := make([]candidate, len(ids))
	for i, id := range ids {
		items[i] = candidate{id: id, dist: distance(query, h.nodes[id].vector)}
	}
	slices.SortFunc(items, func(a, b candidate) int {
		if closer(a, b) {
			return -1
		}
		if closer(b, a) {
			return 1
		}
		return 0
	})

	out := make([]uint32, maxN)
	for i := range out {
		out[i] = items[i].id
	}
	return out
}

// randomLevel: P(level >= l) = M^-l.
func (h *HNSW) randomLevel() int {
	r := max(h.rng.Float64(), math.SmallestNonzeroFloat64)
	return min(int(-math.Log(r)*h.levelMul), maxHNSWLevel)
}

// distance: косинусное расстояние для нормированных векторов.
func distance(a, b []float32) float32 {
	return 1 - domain.Dot(a, b)
}
