package artifact

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/DRSN-tech/visual-search/internal/domain"
	"github.com/DRSN-tech/visual-search/pkg/e"
)

// jsonProduct: запись каталога: {"<product id>": {name, price, url, category, image_urls}}.
// Цена хранится витринным текстом ("$98.00", "Price not found").
type jsonProduct struct {
	Name      string          `json:"name"`
	Price     json.RawMessage `json:"price"`
	URL       string          `json:"url"`
	Category  string          `json:"category"`
	ImageURLs []string        `json:"image_urls"`
}

// CatalogStats дополняет DecodeStats числом продуктов с нераспознанной ценой.
type CatalogStats struct {
	DecodeStats
	UnknownPrice int
}

// DecodeCatalog разбирает JSON-каталог. Продукты без id отбрасываются,
// нераспознанная цена сохраняется как неизвестная.
func DecodeCatalog(data []byte) ([]*domain.Product, CatalogStats, error) {
	var raw map[string]jsonProduct
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, CatalogStats{}, e.Wrap(fmt.Sprintf("catalog json: %v", err), e.ErrMalformedArtifact)
	}

	stats := CatalogStats{DecodeStats: DecodeStats{Total: len(raw)}}
	out := make([]*domain.Product, 0, len(raw))
	for id, rec := range raw {
		if strings.TrimSpace(id) == "" {
			stats.Dropped++
			continue
		}

		price := domain.ParsePrice(rawPriceText(rec.Price))
		if !price.Valid {
			stats.UnknownPrice++
		}

		out = append(out, domain.NewProduct(domain.ProductID(id), rec.Name, price, rec.URL, rec.Category,
			slices.Clone(rec.ImageURLs)))
	}

	slices.SortFunc(out, func(a, b *domain.Product) int {
		return strings.Compare(string(a.ID), string(b.ID))
	})

	return out, stats, nil
}

// EncodeCatalog сериализует продукты в тот же JSON-формат.
func EncodeCatalog(products []*domain.Product) ([]byte, error) {
	raw := make(map[string]jsonProduct, len(products))
	for _, p := range products {
		price := json.RawMessage(`"Price not found"`)
		if p.Price.Valid {
			price, _ = json.Marshal("$" + p.Price.Decimal.StringFixed(2))
		}
		raw[string(p.ID)] = jsonProduct{
			Name:      p.Name,
			Price:     price,
			URL:       p.URL,
			Category:  p.Category,
			ImageURLs: p.ImageURLs,
		}
	}

	return json.MarshalIndent(raw, "", "  ")
}

// rawPriceText принимает цену строкой или числом.
func rawPriceText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}

	return ""
}
