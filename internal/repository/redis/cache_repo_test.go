package redis

import (
	"strings"
	"testing"

	"github.com/DRSN-tech/visual-search/internal/domain"
	"github.com/DRSN-tech/visual-search/internal/repository/redis/converter"
	"github.com/DRSN-tech/visual-search/internal/usecase"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResultsKey(t *testing.T) {
	q := domain.EmbeddingVector{0.6, 0.8}

	key := resultsKey(usecase.NewResultCacheKey("v1", 5, 2, q))
	assert.True(t, strings.HasPrefix(key, "retrieval:v1:5x2:"))
	assert.Len(t, strings.TrimPrefix(key, "retrieval:v1:5x2:"), 64)

	assert.Equal(t, key, resultsKey(usecase.NewResultCacheKey("v1", 5, 2, domain.EmbeddingVector{0.6, 0.8})))
	assert.NotEqual(t, key, resultsKey(usecase.NewResultCacheKey("v2", 5, 2, q)))
	assert.NotEqual(t, key, resultsKey(usecase.NewResultCacheKey("v1", 6, 2, q)))
	assert.NotEqual(t, key, resultsKey(usecase.NewResultCacheKey("v1", 5, 3, q)))
	assert.NotEqual(t, key, resultsKey(usecase.NewResultCacheKey("v1", 5, 2, domain.EmbeddingVector{0.8, 0.6})))
}

func TestSearchResultConverter(t *testing.T) {
	conv := converter.NewSearchResultConverter()

	results := []domain.SearchResult{
		{
			ProductID:       "P1",
			Name:            "Desk",
			Price:           decimal.NewNullDecimal(decimal.RequireFromString("19.99")),
			URL:             "https://shop/p1",
			Category:        "Furniture",
			PrimaryImage:    "b.jpg",
			AllImages:       []string{"a.jpg", "b.jpg"},
			SimilarityScore: 0.93,
		},
		{ProductID: "P2", Name: "Lamp", AllImages: []string{}},
	}

	back := conv.ToArrEntity(conv.ToArrRedisModel(results))
	require.Len(t, back, 2)

	assert.Equal(t, results[0].ProductID, back[0].ProductID)
	assert.True(t, back[0].Price.Valid)
	assert.True(t, results[0].Price.Decimal.Equal(back[0].Price.Decimal))
	assert.Equal(t, results[0].AllImages, back[0].AllImages)
	assert.Equal(t, results[0].SimilarityScore, back[0].SimilarityScore)

	assert.False(t, back[1].Price.Valid)
}
