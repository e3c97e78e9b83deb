package qdrant

import (
	"fmt"

	"github.com/DRSN-tech/visual-search/internal/domain"
	"github.com/google/uuid"
)

// Поля payload точки в коллекции
const (
	PayloadIndexVersion = "index_version"
	PayloadEmbeddingID  = "embedding_id"
	PayloadProductID    = "product_id"
	PayloadImageSlot    = "image_slot"
)

var pointNamespace = uuid.MustParse("6f0f1c3e-93a4-4c55-9a43-2b0c3c7d52a1")

// NewPointPayload собирает payload точки для версии индекса.
func NewPointPayload(version string, m domain.EmbeddingMapping) map[string]any {
	return map[string]any{
		PayloadIndexVersion: version,
		PayloadEmbeddingID:  int64(m.EmbeddingID),
		PayloadProductID:    string(m.ProductID),
		PayloadImageSlot:    int64(m.ImageSlot),
	}
}

// pointID детерминированно выводит UUID точки из версии и id эмбеддинга,
// поэтому версии в одной коллекции не пересекаются, а повторная выгрузка идемпотентна.
func pointID(version string, id domain.EmbeddingID) string {
	return uuid.NewSHA1(pointNamespace, fmt.Appendf(nil, "%s/%d", version, id)).String()
}
