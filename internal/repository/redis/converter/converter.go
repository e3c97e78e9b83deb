package converter

import (
	"github.com/DRSN-tech/visual-search/internal/domain"
	"github.com/shopspring/decimal"
)

// SearchResultConverter преобразует выдачу между domain и моделью Redis.
type SearchResultConverter interface {
	ToRedisModel(entity *domain.SearchResult) *SearchResultRedisModel
	ToEntity(model *SearchResultRedisModel) *domain.SearchResult
	ToArrRedisModel(entities []domain.SearchResult) []SearchResultRedisModel
	ToArrEntity(models []SearchResultRedisModel) []domain.SearchResult
}

type searchResultConverter struct{}

func NewSearchResultConverter() SearchResultConverter {
	return searchResultConverter{}
}

func (searchResultConverter) ToRedisModel(entity *domain.SearchResult) *SearchResultRedisModel {
	var price *string
	if entity.Price.Valid {
		p := entity.Price.Decimal.String()
		price = &p
	}

	return &SearchResultRedisModel{
		ProductID:       string(entity.ProductID),
		Name:            entity.Name,
		Price:           price,
		URL:             entity.URL,
		Category:        entity.Category,
		PrimaryImage:    entity.PrimaryImage,
		AllImages:       append([]string(nil), entity.AllImages...),
		SimilarityScore: entity.SimilarityScore,
	}
}

func (searchResultConverter) ToEntity(model *SearchResultRedisModel) *domain.SearchResult {
	var price decimal.NullDecimal
	if model.Price != nil {
		if d, err := decimal.NewFromString(*model.Price); err == nil {
			price = decimal.NewNullDecimal(d)
		}
	}

	return &domain.SearchResult{
		ProductID:       domain.ProductID(model.ProductID),
		Name:            model.Name,
		Price:           price,
		URL:             model.URL,
		Category:        model.Category,
		PrimaryImage:    model.PrimaryImage,
		AllImages:       append([]string(nil), model.AllImages...),
		SimilarityScore: model.SimilarityScore,
	}
}

func (c searchResultConverter) ToArrRedisModel(entities []domain.SearchResult) []SearchResultRedisModel {
	models := make([]SearchResultRedisModel, 0, len(entities))
	for i := range entities {
		models = append(models, *c.ToRedisModel(&entities[i]))
	}
	return models
}

func (c searchResultConverter) ToArrEntity(models []SearchResultRedisModel) []domain.SearchResult {
	entities := make([]domain.SearchResult, 0, len(models))
	for i := range models {
		entities = append(entities, *c.ToEntity(&models[i]))
	}
	return entities
}
