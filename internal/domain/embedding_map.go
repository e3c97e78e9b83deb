package domain

// ImageSlot: индекс изображения в списке изображений продукта (с нуля).
type ImageSlot int

// EmbeddingMapping связывает вектор индекса с продуктом и его изображением.
type EmbeddingMapping struct {
	EmbeddingID EmbeddingID
	ProductID   ProductID
	ImageSlot   ImageSlot
}

// EmbeddingMap: неизменяемое отображение EmbeddingID -> EmbeddingMapping.
type EmbeddingMap struct {
	entries map[EmbeddingID]EmbeddingMapping
}

func NewEmbeddingMap(mappings []EmbeddingMapping) *EmbeddingMap {
	entries := make(map[EmbeddingID]EmbeddingMapping, len(mappings))
	for _, m := range mappings {
		entries[m.EmbeddingID] = m
	}

	return &EmbeddingMap{entries: entries}
}

// Resolve возвращает запись для id. Неизвестный id: (zero, false), не ошибка.
func (m *EmbeddingMap) Resolve(id EmbeddingID) (EmbeddingMapping, bool) {
	if m == nil {
		return EmbeddingMapping{}, false
	}
	mapping, ok := m.entries[id]
	return mapping, ok
}

func (m *EmbeddingMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.entries)
}
