package main

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/DRSN-tech/visual-search/internal/domain"
	"github.com/DRSN-tech/visual-search/internal/repository/artifact"
	"github.com/DRSN-tech/visual-search/pkg/e"
	"github.com/DRSN-tech/visual-search/pkg/logger"
)

// readVectors читает подряд идущие float32 little-endian строками по dim и нормирует каждую строку.
func readVectors(r io.Reader, dim int) ([]domain.EmbeddingVector, error) {
	if dim <= 0 {
		return nil, e.Wrap("dimension must be positive", e.ErrDimensionMismatch)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	rowSize := dim * 4
	if len(data)%rowSize != 0 {
		return nil, e.Wrap(fmt.Sprintf("%d bytes is not a multiple of %d-dim rows", len(data), dim), e.ErrDimensionMismatch)
	}

	vectors := make([]domain.EmbeddingVector, len(data)/rowSize)
	for i := range vectors {
		row := make([]float32, dim)
		for j := range row {
			off := i*rowSize + j*4
			row[j] = math.Float32frombits(binary.LittleEndian.Uint32(data[off : off+4]))
		}

		v, err := domain.Normalize(row)
		if err != nil {
			return nil, e.Wrap(fmt.Sprintf("row %d", i), err)
		}
		vectors[i] = v
	}

	return vectors, nil
}

func readVectorsFile(path string, dim int) ([]domain.EmbeddingVector, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return readVectors(f, dim)
}

// readMappingsFile читает маппинг в JSON или msgpack, формат: по расширению.
func readMappingsFile(path string) ([]domain.EmbeddingMapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	mappings, stats, err := artifact.DecodeMappings(path, data)
	if err != nil {
		return nil, err
	}
	if stats.Dropped > 0 {
		return nil, fmt.Errorf("%s: %d of %d mapping entries are malformed", path, stats.Dropped, stats.Total)
	}

	return mappings, nil
}

// readCatalogFile читает JSON-каталог. Продукты без id отбрасываются с предупреждением.
func readCatalogFile(path string, log logger.Logger) ([]*domain.Product, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	products, stats, err := artifact.DecodeCatalog(data)
	if err != nil {
		return nil, err
	}
	if stats.Dropped > 0 || stats.UnknownPrice > 0 {
		log.Warnf("%s: %d of %d products dropped, %d without price", path, stats.Dropped, stats.Total, stats.UnknownPrice)
	}

	return products, nil
}
