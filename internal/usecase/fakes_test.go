package usecase

import (
	"context"
	"errors"
	"math"
	"slices"
	"sync"

	"github.com/DRSN-tech/visual-search/internal/domain"
	"github.com/DRSN-tech/visual-search/pkg/e"
)

// bruteIndex: точный индекс для тестов оркестратора.
type bruteIndex struct {
	dim     int
	vectors []domain.EmbeddingVector
	extra   []domain.Hit // хиты, которых нет среди векторов (устаревшие id)

	mu    sync.Mutex
	asked []int
	err   error
}

func (b *bruteIndex) Dimension() int { return b.dim }
func (b *bruteIndex) Len() int       { return len(b.vectors) }

func (b *bruteIndex) Search(_ context.Context, q domain.EmbeddingVector, n int) ([]domain.Hit, error) {
	b.mu.Lock()
	b.asked = append(b.asked, n)
	b.mu.Unlock()

	if b.err != nil {
		return nil, b.err
	}
	if len(q) != b.dim {
		return nil, e.ErrDimensionMismatch
	}

	hits := slices.Clone(b.extra)
	for i, v := range b.vectors {
		hits = append(hits, domain.Hit{ID: domain.EmbeddingID(i), Score: domain.Dot(q, v)})
	}
	slices.SortFunc(hits, func(x, y domain.Hit) int {
		if domain.HitLess(x, y) {
			return -1
		}
		if domain.HitLess(y, x) {
			return 1
		}
		return 0
	})
	if len(hits) > n {
		hits = hits[:n]
	}
	return hits, nil
}

type fakeSnapshots struct {
	snap *Snapshot
	err  error
}

func (f *fakeSnapshots) Current(context.Context) (*Snapshot, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.snap, nil
}

type fakeEncoder struct {
	vector  []float32
	err     error
	lastImg *EncodeImageReq
	lastTxt string
}

func (f *fakeEncoder) EncodeImage(_ context.Context, req *EncodeImageReq) ([]float32, error) {
	f.lastImg = req
	return f.vector, f.err
}

func (f *fakeEncoder) EncodeText(_ context.Context, text string) ([]float32, error) {
	f.lastTxt = text
	return f.vector, f.err
}

type fakeCache struct {
	mu     sync.Mutex
	stored map[string][]domain.SearchResult
	getErr error
	sets   int
}

func newFakeCache() *fakeCache {
	return &fakeCache{stored: map[string][]domain.SearchResult{}}
}

func cacheKeyString(k *ResultCacheKey) string {
	b := make([]byte, 0, 16+len(k.Query)*4)
	b = append(b, k.SnapshotVersion...)
	b = append(b, byte(k.TopK), byte(k.Oversample))
	for _, x := range k.Query {
		u := math.Float32bits(x)
		b = append(b, byte(u), byte(u>>8), byte(u>>16), byte(u>>24))
	}
	return string(b)
}

func (f *fakeCache) GetResults(_ context.Context, key *ResultCacheKey) ([]domain.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.stored[cacheKeyString(key)], nil
}

func (f *fakeCache) SetResults(_ context.Context, key *ResultCacheKey, results []domain.SearchResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets++
	f.stored[cacheKeyString(key)] = results
	return nil
}

var errEncoderDown = errors.New("encoder down")
