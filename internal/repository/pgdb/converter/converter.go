package converter

import (
	"github.com/DRSN-tech/visual-search/internal/domain"
	"github.com/shopspring/decimal"
)

// ProductConverter преобразует продукты между domain и моделью PostgreSQL.
type ProductConverter interface {
	ToModel(entity *domain.Product) *ProductModel
	ToEntity(model *ProductModel) *domain.Product
}

// ProductEmbeddingConverter преобразует маппинг эмбеддингов между domain и моделью PostgreSQL.
type ProductEmbeddingConverter interface {
	ToModel(version string, entity domain.EmbeddingMapping) *ProductEmbeddingModel
	ToEntity(model *ProductEmbeddingModel) domain.EmbeddingMapping
}

type productConverter struct{}

func NewProductConverter() ProductConverter {
	return productConverter{}
}

func (productConverter) ToModel(entity *domain.Product) *ProductModel {
	if entity == nil {
		return nil
	}

	var category *string
	if entity.Category != "" {
		c := entity.Category
		category = &c
	}

	var price *string
	if entity.Price.Valid {
		p := entity.Price.Decimal.StringFixed(2)
		price = &p
	}

	return &ProductModel{
		ID:        string(entity.ID),
		Name:      entity.Name,
		Price:     price,
		URL:       entity.URL,
		Category:  category,
		ImageURLs: append([]string(nil), entity.ImageURLs...),
	}
}

func (productConverter) ToEntity(model *ProductModel) *domain.Product {
	if model == nil {
		return nil
	}

	var category string
	if model.Category != nil {
		category = *model.Category
	}

	var price decimal.NullDecimal
	if model.Price != nil {
		if d, err := decimal.NewFromString(*model.Price); err == nil {
			price = decimal.NewNullDecimal(d)
		}
	}

	return domain.NewProduct(domain.ProductID(model.ID), model.Name, price, model.URL, category, model.ImageURLs)
}

type productEmbeddingConverter struct{}

func NewProductEmbeddingConverter() ProductEmbeddingConverter {
	return productEmbeddingConverter{}
}

func (productEmbeddingConverter) ToModel(version string, entity domain.EmbeddingMapping) *ProductEmbeddingModel {
	return &ProductEmbeddingModel{
		IndexVersion: version,
		EmbeddingID:  int64(entity.EmbeddingID),
		ProductID:    string(entity.ProductID),
		ImageSlot:    int32(entity.ImageSlot),
	}
}

func (productEmbeddingConverter) ToEntity(model *ProductEmbeddingModel) domain.EmbeddingMapping {
	return domain.EmbeddingMapping{
		EmbeddingID: domain.EmbeddingID(model.EmbeddingID),
		ProductID:   domain.ProductID(model.ProductID),
		ImageSlot:   domain.ImageSlot(model.ImageSlot),
	}
}
