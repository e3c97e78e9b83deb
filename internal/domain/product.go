package domain

import (
	"cmp"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ProductID: идентификатор продукта в каталоге. В артефактах приходит строкой
// или целым числом, целые хранятся в десятичной записи.
type ProductID string

// Compare задаёт порядок на ProductID: целые идут первыми и сравниваются как
// числа, остальные после них в лексикографическом порядке.
func (id ProductID) Compare(other ProductID) int {
	a, errA := strconv.ParseInt(string(id), 10, 64)
	b, errB := strconv.ParseInt(string(other), 10, 64)

	switch {
	case errA == nil && errB == nil:
		if c := cmp.Compare(a, b); c != 0 {
			return c
		}
	case errA == nil:
		return -1
	case errB == nil:
		return 1
	}

	return cmp.Compare(id, other)
}

// Product описывает продукт каталога
type Product struct {
	ID        ProductID
	Name      string
	Price     decimal.NullDecimal // Valid=false, если цена неизвестна
	URL       string
	Category  string
	ImageURLs []string
}

func NewProduct(id ProductID, name string, price decimal.NullDecimal, url, category string, imageURLs []string) *Product {
	return &Product{
		ID:        id,
		Name:      name,
		Price:     price,
		URL:       url,
		Category:  category,
		ImageURLs: imageURLs,
	}
}

// ImageURL возвращает URL изображения в слоте или false, если слота нет.
func (p *Product) ImageURL(slot ImageSlot) (string, bool) {
	if slot < 0 || int(slot) >= len(p.ImageURLs) {
		return "", false
	}
	return p.ImageURLs[slot], true
}

// Catalog: неизменяемое хранилище метаданных продуктов.
type Catalog struct {
	products map[ProductID]*Product
}

func NewCatalog(products []*Product) *Catalog {
	m := make(map[ProductID]*Product, len(products))
	for _, p := range products {
		m[p.ID] = p
	}

	return &Catalog{products: m}
}

// Lookup возвращает продукт по id или false, если его нет.
func (c *Catalog) Lookup(id ProductID) (*Product, bool) {
	if c == nil {
		return nil, false
	}
	p, ok := c.products[id]
	return p, ok
}

func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.products)
}

var (
	priceToken = regexp.MustCompile(`\d[\d.,]*`)
	// 1299, 1299.50, 1,299.50; запятая только как разделитель тысяч.
	priceFormat = regexp.MustCompile(`^(\d{1,3}(,\d{3})+|\d+)(\.\d+)?$`)
)

// ParsePrice разбирает цену из витринного текста вида "$1,299.00" или "89.95 USD".
// Нераспознанный текст ("Price not found", "Error"), диапазоны, отрицательные
// значения и европейская запись ("1.299,00 €") дают Valid=false.
func ParsePrice(s string) decimal.NullDecimal {
	if strings.ContainsRune(s, '-') {
		return decimal.NullDecimal{}
	}

	tokens := priceToken.FindAllString(s, -1)
	if len(tokens) != 1 {
		return decimal.NullDecimal{}
	}

	num := strings.TrimRight(tokens[0], ".,")
	if !priceFormat.MatchString(num) {
		return decimal.NullDecimal{}
	}

	d, err := decimal.NewFromString(strings.ReplaceAll(num, ",", ""))
	if err != nil {
		return decimal.NullDecimal{}
	}

	return decimal.NewNullDecimal(d)
}
