package qdrant

import (
	"testing"

	"github.com/DRSN-tech/visual-search/internal/domain"
	"github.com/DRSN-tech/visual-search/pkg/e"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPointID_Deterministic(t *testing.T) {
	assert.Equal(t, pointID("v1", 3), pointID("v1", 3))
	assert.NotEqual(t, pointID("v1", 3), pointID("v2", 3))
	assert.NotEqual(t, pointID("v1", 3), pointID("v1", 4))
}

func TestToPoints(t *testing.T) {
	m := domain.EmbeddingMapping{EmbeddingID: 5, ProductID: "P1", ImageSlot: 1}
	vectors := []domain.IndexedVector{
		*domain.NewIndexedVector(5, domain.EmbeddingVector{1, 0}, NewPointPayload("v1", m)),
	}

	points, err := toPoints(vectors)
	require.NoError(t, err)
	require.Len(t, points, 1)

	p := points[0]
	assert.Equal(t, pointID("v1", 5), p.GetId().GetUuid())
	assert.Equal(t, int64(5), p.GetPayload()[PayloadEmbeddingID].GetIntegerValue())
	assert.Equal(t, "P1", p.GetPayload()[PayloadProductID].GetStringValue())
	assert.Equal(t, "v1", p.GetPayload()[PayloadIndexVersion].GetStringValue())
}

func TestToPoints_NoVersion(t *testing.T) {
	vectors := []domain.IndexedVector{
		*domain.NewIndexedVector(1, domain.EmbeddingVector{1, 0}, map[string]any{}),
	}

	_, err := toPoints(vectors)
	assert.ErrorIs(t, err, e.ErrStatusBadRequest)
}
