package domain

import (
	"math"

	"github.com/DRSN-tech/visual-search/pkg/e"
)

// normTolerance: допуск, при котором вектор считается уже нормированным.
const normTolerance = 1e-6

// EmbeddingVector: вектор признаков с единичной L2-нормой.
type EmbeddingVector []float32

// EmbeddingID: плотный идентификатор вектора в индексе, начиная с 0.
type EmbeddingID int64

// Hit: сырой результат поиска по индексу.
type Hit struct {
	ID    EmbeddingID
	Score float32
}

// Normalize делит каждую компоненту на L2-норму и возвращает новый вектор.
// Входной срез не изменяется. Пустой вектор, нулевая норма и NaN/Inf
// компоненты дают e.ErrInvalidEmbedding.
func Normalize(v []float32) (EmbeddingVector, error) {
	if len(v) == 0 {
		return nil, e.Wrap("empty vector", e.ErrInvalidEmbedding)
	}

	var sum float64
	for _, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, e.Wrap("non-finite component", e.ErrInvalidEmbedding)
		}
		sum += f * f
	}

	norm := math.Sqrt(sum)
	if norm == 0 || math.IsInf(norm, 0) {
		return nil, e.Wrap("zero norm", e.ErrInvalidEmbedding)
	}

	out := make(EmbeddingVector, len(v))
	// Уже нормированный вектор возвращается копией.
	if math.Abs(norm-1) <= normTolerance {
		copy(out, v)
		return out, nil
	}

	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}

	return out, nil
}

// Dim возвращает размерность вектора.
func (v EmbeddingVector) Dim() int {
	return len(v)
}

// Dot: скалярное произведение. Для единичных векторов равно косинусному сходству.
func Dot(a, b []float32) float32 {
	var s float32
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

// HitLess задаёт порядок выдачи индекса: score по убыванию, затем id по возрастанию.
func HitLess(a, b Hit) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.ID < b.ID
}
