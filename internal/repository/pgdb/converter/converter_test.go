package converter

import (
	"testing"

	"github.com/DRSN-tech/visual-search/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProductConverter_RoundTrip(t *testing.T) {
	conv := NewProductConverter()

	product := domain.NewProduct("P1", "Desk", decimal.NewNullDecimal(decimal.RequireFromString("12.5")),
		"https://shop/p1", "Furniture", []string{"a.jpg", "b.jpg"})

	model := conv.ToModel(product)
	require.NotNil(t, model.Price)
	assert.Equal(t, "12.50", *model.Price)
	require.NotNil(t, model.Category)
	assert.Equal(t, "Furniture", *model.Category)

	back := conv.ToEntity(model)
	assert.Equal(t, product.ID, back.ID)
	assert.True(t, back.Price.Valid)
	assert.True(t, product.Price.Decimal.Equal(back.Price.Decimal))
	assert.Equal(t, product.ImageURLs, back.ImageURLs)
}

func TestProductConverter_NullFields(t *testing.T) {
	conv := NewProductConverter()

	model := conv.ToModel(domain.NewProduct("P2", "Lamp", decimal.NullDecimal{}, "", "", nil))
	assert.Nil(t, model.Price)
	assert.Nil(t, model.Category)

	bad := "n/a"
	entity := conv.ToEntity(&ProductModel{ID: "P3", Price: &bad})
	assert.False(t, entity.Price.Valid)
	assert.Equal(t, "", entity.Category)
}

func TestProductEmbeddingConverter(t *testing.T) {
	conv := NewProductEmbeddingConverter()

	m := domain.EmbeddingMapping{EmbeddingID: 7, ProductID: "P1", ImageSlot: 2}
	model := conv.ToModel("v1", m)
	assert.Equal(t, "v1", model.IndexVersion)
	assert.Equal(t, m, conv.ToEntity(model))
}
