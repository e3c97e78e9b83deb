package usecase

import (
	"context"
	"math"
	"sync"
	"testing"

	"github.com/DRSN-tech/visual-search/internal/cfg"
	"github.com/DRSN-tech/visual-search/internal/domain"
	"github.com/DRSN-tech/visual-search/pkg/e"
	"github.com/DRSN-tech/visual-search/pkg/logger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDim = 4

var query = []float32{1, 0, 0, 0}

// withCos возвращает единичный вектор с косинусом s к query; axis (1..3) задаёт ортогональную часть.
func withCos(s float64, axis int) domain.EmbeddingVector {
	v := make(domain.EmbeddingVector, testDim)
	v[0] = float32(s)
	v[axis] = float32(math.Sqrt(1 - s*s))
	return v
}

func product(id string, images int) *domain.Product {
	urls := make([]string, images)
	for i := range urls {
		urls[i] = id + "/" + string(rune('0'+i)) + ".jpg"
	}
	return domain.NewProduct(domain.ProductID(id), "name-"+id, decimal.NewNullDecimal(decimal.NewFromInt(10)),
		"https://shop/"+id, "tops", urls)
}

type fixture struct {
	index    *bruteIndex
	mappings []domain.EmbeddingMapping
	products []*domain.Product
}

func (f *fixture) add(v domain.EmbeddingVector, productID string, slot int) {
	id := domain.EmbeddingID(len(f.index.vectors))
	f.index.vectors = append(f.index.vectors, v)
	f.mappings = append(f.mappings, domain.EmbeddingMapping{
		EmbeddingID: id,
		ProductID:   domain.ProductID(productID),
		ImageSlot:   domain.ImageSlot(slot),
	})
}

func (f *fixture) snapshot() *Snapshot {
	return &Snapshot{
		Version:    "v1",
		Index:      f.index,
		Embeddings: domain.NewEmbeddingMap(f.mappings),
		Catalog:    domain.NewCatalog(f.products),
	}
}

func newFixture() *fixture {
	return &fixture{index: &bruteIndex{dim: testDim}}
}

// tenEmbeddingsFourProducts: A: 3 изображения, B: 2, C: 1, D: 4 далёких.
func tenEmbeddingsFourProducts() *fixture {
	f := newFixture()
	f.add(withCos(0.95, 1), "A", 0)
	f.add(withCos(0.90, 2), "A", 1)
	f.add(withCos(0.85, 3), "A", 2)
	f.add(withCos(0.80, 1), "B", 0)
	f.add(withCos(0.75, 2), "B", 1)
	f.add(withCos(0.70, 3), "C", 0)
	f.add(withCos(0.10, 1), "D", 0)
	f.add(withCos(0.05, 2), "D", 1)
	f.add(withCos(0.02, 3), "D", 2)
	f.add(withCos(0.01, 1), "D", 3)
	f.products = []*domain.Product{product("A", 3), product("B", 2), product("C", 1), product("D", 4)}
	return f
}

func newUC(snap *Snapshot, enc EncoderInfra, cache CacheRepository) *RetrievalUseCase {
	return NewRetrievalUC(
		&fakeSnapshots{snap: snap},
		enc,
		cache,
		&cfg.RetrievalCfg{Oversample: 2, DefaultTopK: 5, MaxTopK: 50},
		logger.Nop(),
	)
}

func ids(results []domain.SearchResult) []domain.ProductID {
	out := make([]domain.ProductID, len(results))
	for i, r := range results {
		out[i] = r.ProductID
	}
	return out
}

func TestRetrieve_DedupKeepsBestImage(t *testing.T) {
	f := tenEmbeddingsFourProducts()
	uc := newUC(f.snapshot(), nil, nil)

	res, err := uc.Retrieve(context.Background(), NewRetrieveReq(query, 2))
	require.NoError(t, err)

	require.Equal(t, []domain.ProductID{"A", "B"}, ids(res.Results))
	assert.InDelta(t, 0.95, res.Results[0].SimilarityScore, 1e-6)
	assert.InDelta(t, 0.80, res.Results[1].SimilarityScore, 1e-6)
	assert.Equal(t, "A/0.jpg", res.Results[0].PrimaryImage)
	assert.Equal(t, []string{"A/0.jpg", "A/1.jpg", "A/2.jpg"}, res.Results[0].AllImages)
	assert.Equal(t, "v1", res.SnapshotVersion)
	assert.False(t, res.Cached)

	// Индекс опрошен с запасом k*F.
	assert.Equal(t, []int{4}, f.index.asked)
}

func TestRetrieve_DimensionMismatch(t *testing.T) {
	uc := newUC(tenEmbeddingsFourProducts().snapshot(), nil, nil)

	_, err := uc.Retrieve(context.Background(), NewRetrieveReq([]float32{1, 0, 0}, 2))
	require.ErrorIs(t, err, e.ErrDimensionMismatch)
}

func TestRetrieve_FewerProductsThanK(t *testing.T) {
	f := newFixture()
	f.add(withCos(0.9, 1), "A", 0)
	f.add(withCos(0.8, 2), "A", 1)
	f.add(withCos(0.7, 3), "B", 0)
	f.products = []*domain.Product{product("A", 2), product("B", 1)}

	res, err := newUC(f.snapshot(), nil, nil).Retrieve(context.Background(), NewRetrieveReq(query, 5))
	require.NoError(t, err)
	assert.Equal(t, []domain.ProductID{"A", "B"}, ids(res.Results))
}

func TestRetrieve_ZeroVector(t *testing.T) {
	uc := newUC(tenEmbeddingsFourProducts().snapshot(), nil, nil)

	_, err := uc.Retrieve(context.Background(), NewRetrieveReq([]float32{0, 0, 0, 0}, 2))
	require.ErrorIs(t, err, e.ErrInvalidEmbedding)
}

func TestRetrieve_StaleEmbeddingSkipped(t *testing.T) {
	f := tenEmbeddingsFourProducts()
	// id 9999 отсутствует в маппинге и имеет лучший score.
	f.index.extra = []domain.Hit{{ID: 9999, Score: 0.99}}

	res, err := newUC(f.snapshot(), nil, nil).Retrieve(context.Background(), NewRetrieveReq(query, 3))
	require.NoError(t, err)
	assert.Equal(t, []domain.ProductID{"A", "B", "C"}, ids(res.Results))
}

func TestRetrieve_ProductMissingFromCatalog(t *testing.T) {
	f := tenEmbeddingsFourProducts()
	f.products = []*domain.Product{product("B", 2), product("C", 1), product("D", 4)}

	res, err := newUC(f.snapshot(), nil, nil).Retrieve(context.Background(), NewRetrieveReq(query, 2))
	require.NoError(t, err)
	// A пропущен; с F=2 в 4 хитах остался только B.
	assert.Equal(t, []domain.ProductID{"B"}, ids(res.Results))

	res, err = newUC(f.snapshot(), nil, nil).Retrieve(context.Background(), NewRetrieveReq(query, 3))
	require.NoError(t, err)
	assert.Equal(t, []domain.ProductID{"B", "C"}, ids(res.Results))
}

func TestRetrieve_MissingImageSlotFallsThroughToNextHit(t *testing.T) {
	f := newFixture()
	f.add(withCos(0.9, 1), "A", 5) // слота 5 нет
	f.add(withCos(0.8, 2), "A", 0)
	f.add(withCos(0.7, 3), "B", 0)
	f.products = []*domain.Product{product("A", 1), product("B", 1)}

	res, err := newUC(f.snapshot(), nil, nil).Retrieve(context.Background(), NewRetrieveReq(query, 2))
	require.NoError(t, err)
	require.Equal(t, []domain.ProductID{"A", "B"}, ids(res.Results))
	assert.InDelta(t, 0.8, res.Results[0].SimilarityScore, 1e-6)
	assert.Equal(t, "A/0.jpg", res.Results[0].PrimaryImage)
}

func TestRetrieve_TiesOrderedByProductID(t *testing.T) {
	f := newFixture()
	f.add(withCos(0.5, 1), "zeta", 0)
	f.add(withCos(0.5, 2), "alpha", 0)
	f.add(withCos(0.5, 3), "mid", 0)
	f.products = []*domain.Product{product("zeta", 1), product("alpha", 1), product("mid", 1)}

	res, err := newUC(f.snapshot(), nil, nil).Retrieve(context.Background(), NewRetrieveReq(query, 3))
	require.NoError(t, err)
	assert.Equal(t, []domain.ProductID{"alpha", "mid", "zeta"}, ids(res.Results))
}

func TestRetrieve_TiesOrderedByNumericProductID(t *testing.T) {
	f := newFixture()
	f.add(withCos(0.5, 1), "10", 0)
	f.add(withCos(0.5, 2), "9", 0)
	f.add(withCos(0.5, 3), "2", 0)
	f.products = []*domain.Product{product("10", 1), product("9", 1), product("2", 1)}

	res, err := newUC(f.snapshot(), nil, nil).Retrieve(context.Background(), NewRetrieveReq(query, 3))
	require.NoError(t, err)
	assert.Equal(t, []domain.ProductID{"2", "9", "10"}, ids(res.Results))
}

func TestRetrieve_UnnormalizedQuery(t *testing.T) {
	f := tenEmbeddingsFourProducts()

	res, err := newUC(f.snapshot(), nil, nil).Retrieve(context.Background(), NewRetrieveReq([]float32{7, 0, 0, 0}, 1))
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.InDelta(t, 0.95, res.Results[0].SimilarityScore, 1e-6)
}

func TestRetrieve_TopK(t *testing.T) {
	f := tenEmbeddingsFourProducts()
	uc := newUC(f.snapshot(), nil, nil)

	res, err := uc.Retrieve(context.Background(), NewRetrieveReq(query, 0))
	require.NoError(t, err)
	assert.Len(t, res.Results, 4) // по умолчанию 5, продуктов всего 4
	assert.Equal(t, []int{10}, f.index.asked)

	for _, k := range []int{-1, 51} {
		_, err := uc.Retrieve(context.Background(), NewRetrieveReq(query, k))
		require.ErrorIs(t, err, e.ErrInvalidTopK)
	}
}

func TestRetrieve_OversampleConfigured(t *testing.T) {
	f := tenEmbeddingsFourProducts()
	uc := NewRetrievalUC(&fakeSnapshots{snap: f.snapshot()}, nil, nil,
		&cfg.RetrievalCfg{Oversample: 3, DefaultTopK: 5, MaxTopK: 50}, logger.Nop())

	_, err := uc.Retrieve(context.Background(), NewRetrieveReq(query, 2))
	require.NoError(t, err)
	assert.Equal(t, []int{6}, f.index.asked)

	uc.cfg.Oversample = 1
	_, err = uc.Retrieve(context.Background(), NewRetrieveReq(query, 2))
	require.NoError(t, err)
	assert.Equal(t, []int{6, 4}, f.index.asked)
}

func TestRetrieve_Concurrent(t *testing.T) {
	tests := []struct {
		name  string
		cache CacheRepository
	}{
		{"without cache", nil},
		{"with cache", newFakeCache()},
	}

	queries := [][]float32{
		query,
		{0, 1, 0, 0},
		{0.5, 0.5, 0, 0},
		{0.2, 0, 0.9, 0.1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := tenEmbeddingsFourProducts()
			uc := newUC(f.snapshot(), nil, tt.cache)

			want := make([][]domain.SearchResult, len(queries))
			for i, q := range queries {
				res, err := newUC(f.snapshot(), nil, nil).Retrieve(context.Background(), NewRetrieveReq(q, 3))
				require.NoError(t, err)
				want[i] = res.Results
			}

			var wg sync.WaitGroup
			for g := range 16 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for r := range 20 {
						i := (g + r) % len(queries)
						res, err := uc.Retrieve(context.Background(), NewRetrieveReq(queries[i], 3))
						if assert.NoError(t, err) {
							assert.Equal(t, want[i], res.Results)
						}
					}
				}()
			}
			wg.Wait()
		})
	}
}

func TestRetrieve_CacheKeyedByOversample(t *testing.T) {
	f := tenEmbeddingsFourProducts()
	cache := newFakeCache()
	snaps := &fakeSnapshots{snap: f.snapshot()}

	narrow := NewRetrievalUC(snaps, nil, cache, &cfg.RetrievalCfg{Oversample: 2, DefaultTopK: 5, MaxTopK: 50}, logger.Nop())
	wide := NewRetrievalUC(snaps, nil, cache, &cfg.RetrievalCfg{Oversample: 4, DefaultTopK: 5, MaxTopK: 50}, logger.Nop())

	_, err := narrow.Retrieve(context.Background(), NewRetrieveReq(query, 2))
	require.NoError(t, err)

	res, err := wide.Retrieve(context.Background(), NewRetrieveReq(query, 2))
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Equal(t, 2, cache.sets)
}

func TestRetrieve_NotLoaded(t *testing.T) {
	uc := NewRetrievalUC(&fakeSnapshots{err: e.ErrIndexNotLoaded}, nil, nil,
		&cfg.RetrievalCfg{Oversample: 2, DefaultTopK: 5, MaxTopK: 50}, logger.Nop())

	_, err := uc.Retrieve(context.Background(), NewRetrieveReq(query, 2))
	require.ErrorIs(t, err, e.ErrIndexNotLoaded)
}

func TestRetrieve_Cache(t *testing.T) {
	f := tenEmbeddingsFourProducts()
	cache := newFakeCache()
	uc := newUC(f.snapshot(), nil, cache)

	first, err := uc.Retrieve(context.Background(), NewRetrieveReq(query, 2))
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Equal(t, 1, cache.sets)

	// Ненормированный запрос того же направления попадает в тот же ключ.
	second, err := uc.Retrieve(context.Background(), NewRetrieveReq([]float32{3, 0, 0, 0}, 2))
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Results, second.Results)
	assert.Len(t, f.index.asked, 1)

	cache.getErr = errEncoderDown
	third, err := uc.Retrieve(context.Background(), NewRetrieveReq(query, 2))
	require.NoError(t, err)
	assert.False(t, third.Cached)
}

func TestRetrieveByText(t *testing.T) {
	f := tenEmbeddingsFourProducts()
	enc := &fakeEncoder{vector: []float32{2, 0, 0, 0}}
	uc := newUC(f.snapshot(), enc, nil)

	res, err := uc.RetrieveByText(context.Background(), NewTextQueryReq("  blue linen shirt ", 2))
	require.NoError(t, err)
	assert.Equal(t, "blue linen shirt", enc.lastTxt)
	assert.Equal(t, []domain.ProductID{"A", "B"}, ids(res.Results))

	_, err = uc.RetrieveByText(context.Background(), NewTextQueryReq("   ", 2))
	require.ErrorIs(t, err, e.ErrEmptyQuery)

	_, err = uc.RetrieveByText(context.Background(), NewTextQueryReq("shirt", 100))
	require.ErrorIs(t, err, e.ErrInvalidTopK)

	enc.err = e.Wrap("dial", e.ErrEncoderUnavailable)
	_, err = uc.RetrieveByText(context.Background(), NewTextQueryReq("shirt", 2))
	require.ErrorIs(t, err, e.ErrEncoderUnavailable)
}

func TestRetrieveByImage(t *testing.T) {
	f := tenEmbeddingsFourProducts()
	enc := &fakeEncoder{vector: []float32{1, 0, 0, 0}}
	uc := newUC(f.snapshot(), enc, nil)

	res, err := uc.RetrieveByImage(context.Background(), NewImageQueryReq([]byte{0xff, 0xd8}, "image/jpeg", 1))
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", enc.lastImg.MimeType)
	assert.Equal(t, []domain.ProductID{"A"}, ids(res.Results))

	_, err = uc.RetrieveByImage(context.Background(), NewImageQueryReq(nil, "image/jpeg", 1))
	require.ErrorIs(t, err, e.ErrNoImage)

	enc.vector = []float32{0, 0, 0, 0}
	_, err = uc.RetrieveByImage(context.Background(), NewImageQueryReq([]byte{1}, "image/png", 1))
	require.ErrorIs(t, err, e.ErrInvalidEmbedding)
}

func TestRankHits_Properties(t *testing.T) {
	f := tenEmbeddingsFourProducts()
	snap := f.snapshot()

	for k := 1; k <= 6; k++ {
		hits, err := f.index.Search(context.Background(), query, len(f.index.vectors))
		require.NoError(t, err)

		results, _ := rankHits(snap, hits, k)
		assert.LessOrEqual(t, len(results), k)
		assert.Equal(t, min(k, 4), len(results))

		seen := map[domain.ProductID]bool{}
		for i, r := range results {
			assert.False(t, seen[r.ProductID], "duplicate %s", r.ProductID)
			seen[r.ProductID] = true
			if i > 0 {
				prev := results[i-1]
				assert.True(t, prev.SimilarityScore > r.SimilarityScore ||
					(prev.SimilarityScore == r.SimilarityScore && prev.ProductID.Compare(r.ProductID) < 0))
			}
		}
	}
}
