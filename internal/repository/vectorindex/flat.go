package vectorindex

import (
	"bufio"
	"context"
	"encoding/binary"
	"io"
	"runtime"
	"sync"

	"github.com/DRSN-tech/visual-search/internal/domain"
	"github.com/DRSN-tech/visual-search/pkg/e"
)

const (
	flatVersion uint32 = 1

	// minParallelScan: ниже этого размера перебор идёт в одной горутине.
	minParallelScan = 4096
)

// Flat: точный индекс: скалярное произведение запроса со всеми векторами.
// Потокобезопасен, после загрузки не изменяется.
type Flat struct {
	dim     int
	count   int
	vectors []float32 // count*dim, строка i: вектор с EmbeddingID i
}

// NewFlat собирает индекс из векторов; i-й вектор получает EmbeddingID i.
// Векторы копируются и должны быть нормированы.
func NewFlat(dim int, vectors []domain.EmbeddingVector) (*Flat, error) {
	if dim <= 0 {
		return nil, e.Wrap("flat index: dimension must be positive", e.ErrDimensionMismatch)
	}

	data := make([]float32, 0, len(vectors)*dim)
	for i, v := range vectors {
		if len(v) != dim {
			return nil, e.Wrap(fmtRow(i, len(v), dim), e.ErrDimensionMismatch)
		}
		data = append(data, v...)
	}

	return &Flat{dim: dim, count: len(vectors), vectors: data}, nil
}

func (f *Flat) Dimension() int { return f.dim }

func (f *Flat) Len() int { return f.count }

// Search возвращает до n ближайших векторов по убыванию score, при равенстве: по возрастанию id.
func (f *Flat) Search(ctx context.Context, query domain.EmbeddingVector, n int) ([]domain.Hit, error) {
	const op = "Flat.Search"

	if len(query) != f.dim {
		return nil, e.Wrap(op, e.ErrDimensionMismatch)
	}
	if n <= 0 || f.count == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, e.Wrap(op, err)
	}

	workers := 1
	if f.count >= minParallelScan {
		workers = min(runtime.NumCPU(), f.count/(minParallelScan/4))
	}

	if workers <= 1 {
		top := newTopHits(n)
		f.scan(query, 0, f.count, top)
		return top.sorted(), nil
	}

	parts := make([]*topHits, workers)
	chunk := (f.count + workers - 1) / workers

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		start := w * chunk
		end := min(start+chunk, f.count)
		parts[w] = newTopHits(n)
		if start >= end {
			continue
		}

		wg.Add(1)
		go func(top *topHits) {
			defer wg.Done()
			f.scan(query, start, end, top)
		}(parts[w])
	}
	wg.Wait()

	merged := newTopHits(n)
	for _, p := range parts {
		for _, h := range p.items {
			merged.offer(h)
		}
	}

	return merged.sorted(), nil
}

func (f *Flat) scan(query []float32, start, end int, top *topHits) {
	for i := start; i < end; i++ {
		row := f.vectors[i*f.dim : (i+1)*f.dim]
		top.offer(domain.Hit{ID: domain.EmbeddingID(i), Score: domain.Dot(query, row)})
	}
}

// Save сериализует индекс:
//
//	[4B "FLAT"] [4B version] [4B dim] [4B count] [count × dim × 4B float32]
func (f *Flat) Save(w io.Writer) error {
	const op = "Flat.Save"

	bw := bufio.NewWriter(w)
	le := binary.LittleEndian

	if _, err := bw.Write(flatMagic[:]); err != nil {
		return e.Wrap(op, err)
	}
	for _, v := range []uint32{flatVersion, uint32(f.dim), uint32(f.count)} {
		if err := binary.Write(bw, le, v); err != nil {
			return e.Wrap(op, err)
		}
	}
	if err := binary.Write(bw, le, f.vectors); err != nil {
		return e.Wrap(op, err)
	}

	return bw.Flush()
}

// LoadFlat читает индекс в формате FLAT. Требует, чтобы после данных не осталось лишних байт.
func LoadFlat(r lenReader) (*Flat, error) {
	le := binary.LittleEndian

	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, loadErr("flat: read magic: %v", err)
	}
	if magic != flatMagic {
		return nil, loadErr("flat: invalid magic %q", magic[:])
	}

	var hdr [3]uint32
	if err := binary.Read(r, le, &hdr); err != nil {
		return nil, loadErr("flat: read header: %v", err)
	}
	version, dim, count := hdr[0], hdr[1], hdr[2]

	if version != flatVersion {
		return nil, loadErr("flat: unsupported version %d", version)
	}
	if dim == 0 {
		return nil, loadErr("flat: zero dimension")
	}

	need := uint64(count) * uint64(dim) * 4
	if need != uint64(r.Len()) {
		return nil, loadErr("flat: payload is %d bytes, header declares %d", r.Len(), need)
	}

	vectors := make([]float32, int(count)*int(dim))
	if err := binary.Read(r, le, vectors); err != nil {
		return nil, loadErr("flat: read vectors: %v", err)
	}

	return &Flat{dim: int(dim), count: int(count), vectors: vectors}, nil
}

// lenReader: io.Reader, знающий число непрочитанных байт (bytes.Reader).
type lenReader interface {
	io.Reader
	Len() int
}
