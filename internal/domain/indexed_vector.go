package domain

// IndexedVector: вектор с его идентификатором в индексе.
// Используется при сборке артефактов индекса и выгрузке во внешнее векторное хранилище.
type IndexedVector struct {
	ID      EmbeddingID
	Vector  EmbeddingVector
	Payload map[string]any
}

func NewIndexedVector(id EmbeddingID, vector EmbeddingVector, payload map[string]any) *IndexedVector {
	return &IndexedVector{
		ID:      id,
		Vector:  vector,
		Payload: payload,
	}
}
