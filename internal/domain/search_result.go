package domain

import (
	"cmp"
	"slices"

	"github.com/shopspring/decimal"
)

// SearchResult: один продукт в выдаче поиска.
type SearchResult struct {
	ProductID       ProductID           `json:"product_id"`
	Name            string              `json:"name"`
	Price           decimal.NullDecimal `json:"price"`
	URL             string              `json:"url"`
	Category        string              `json:"category"`
	PrimaryImage    string              `json:"primary_image"`
	AllImages       []string            `json:"all_images"`
	SimilarityScore float32             `json:"similarity_score"`
}

// NewSearchResult собирает результат из продукта, изображения-совпадения и score.
func NewSearchResult(p *Product, primaryImage string, score float32) SearchResult {
	images := make([]string, len(p.ImageURLs))
	copy(images, p.ImageURLs)

	return SearchResult{
		ProductID:       p.ID,
		Name:            p.Name,
		Price:           p.Price,
		URL:             p.URL,
		Category:        p.Category,
		PrimaryImage:    primaryImage,
		AllImages:       images,
		SimilarityScore: score,
	}
}

// SortResults упорядочивает выдачу: score по убыванию, затем ProductID по возрастанию.
func SortResults(results []SearchResult) {
	slices.SortStableFunc(results, func(a, b SearchResult) int {
		if c := cmp.Compare(b.SimilarityScore, a.SimilarityScore); c != 0 {
			return c
		}
		return a.ProductID.Compare(b.ProductID)
	})
}
