package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/DRSN-tech/visual-search/internal/domain"
	"github.com/DRSN-tech/visual-search/internal/repository/artifact"
	qdrantRepo "github.com/DRSN-tech/visual-search/internal/repository/qdrant"
	"github.com/DRSN-tech/visual-search/internal/repository/vectorindex"
	"github.com/DRSN-tech/visual-search/internal/usecase"
	"github.com/DRSN-tech/visual-search/pkg/e"
	"github.com/DRSN-tech/visual-search/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawVectors(t *testing.T, rows ...[]float32) []byte {
	t.Helper()

	var buf bytes.Buffer
	for _, row := range rows {
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, row))
	}
	return buf.Bytes()
}

func TestReadVectors(t *testing.T) {
	data := rawVectors(t, []float32{3, 4}, []float32{0, 2})

	vectors, err := readVectors(bytes.NewReader(data), 2)
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.InDeltaSlice(t, []float32{0.6, 0.8}, []float32(vectors[0]), 1e-6)
	assert.InDeltaSlice(t, []float32{0, 1}, []float32(vectors[1]), 1e-6)
}

func TestReadVectors_Errors(t *testing.T) {
	_, err := readVectors(bytes.NewReader(rawVectors(t, []float32{1, 2, 3})), 2)
	assert.ErrorIs(t, err, e.ErrDimensionMismatch)

	_, err = readVectors(bytes.NewReader(rawVectors(t, []float32{0, 0})), 2)
	assert.ErrorIs(t, err, e.ErrInvalidEmbedding)

	_, err = readVectors(bytes.NewReader(nil), 0)
	assert.ErrorIs(t, err, e.ErrDimensionMismatch)
}

func writeBuildInputs(t *testing.T, dir string) buildOpts {
	t.Helper()

	vectorsPath := filepath.Join(dir, "vectors.f32")
	require.NoError(t, os.WriteFile(vectorsPath,
		rawVectors(t, []float32{1, 0}, []float32{0, 1}, []float32{0.6, 0.8}), 0o644))

	mappingPath := filepath.Join(dir, "mapping.json")
	require.NoError(t, os.WriteFile(mappingPath, []byte(`{
		"0": {"product_id": "A", "image_idx": 0},
		"1": {"product_id": "A", "image_idx": 1},
		"2": {"product_id": "B", "image_idx": 0}
	}`), 0o644))

	catalogPath := filepath.Join(dir, "catalog.json")
	require.NoError(t, os.WriteFile(catalogPath, []byte(`{
		"A": {"name": "Chair", "price": "$10.00", "url": "https://shop/a", "category": "Furniture", "image_urls": ["a0.jpg", "a1.jpg"]},
		"B": {"name": "Lamp", "price": "Price not found", "url": "https://shop/b", "category": "Lighting", "image_urls": ["b0.jpg"]}
	}`), 0o644))

	return buildOpts{
		vectorsPath: vectorsPath,
		mappingPath: mappingPath,
		catalogPath: catalogPath,
		outDir:      filepath.Join(dir, "out"),
		dim:         2,
		seed:        7,
	}
}

func TestRunBuild(t *testing.T) {
	for _, kind := range []string{vectorindex.KindFlat, vectorindex.KindHNSW} {
		t.Run(kind, func(t *testing.T) {
			opts := writeBuildInputs(t, t.TempDir())
			opts.kind = kind

			require.NoError(t, runBuild(&opts, logger.Nop()))

			indexData, err := os.ReadFile(filepath.Join(opts.outDir, indexFile))
			require.NoError(t, err)
			index, err := vectorindex.Load(indexData)
			require.NoError(t, err)
			assert.Equal(t, 3, index.Len())
			assert.Equal(t, 2, index.Dimension())

			hits, err := index.Search(context.Background(), domain.EmbeddingVector{1, 0}, 1)
			require.NoError(t, err)
			require.Len(t, hits, 1)
			assert.Equal(t, domain.EmbeddingID(0), hits[0].ID)

			mappingData, err := os.ReadFile(filepath.Join(opts.outDir, mappingFile))
			require.NoError(t, err)
			mappings, stats, err := artifact.DecodeMappings(mappingFile, mappingData)
			require.NoError(t, err)
			assert.Zero(t, stats.Dropped)
			assert.Len(t, mappings, 3)

			catalogData, err := os.ReadFile(filepath.Join(opts.outDir, catalogFile))
			require.NoError(t, err)
			products, _, err := artifact.DecodeCatalog(catalogData)
			require.NoError(t, err)
			require.Len(t, products, 2)
			assert.True(t, products[0].Price.Valid)
			assert.False(t, products[1].Price.Valid)
		})
	}
}

func TestRunBuild_MappingOutOfRange(t *testing.T) {
	dir := t.TempDir()
	opts := writeBuildInputs(t, dir)
	opts.kind = vectorindex.KindFlat
	require.NoError(t, os.WriteFile(opts.mappingPath, []byte(`{"5": {"product_id": "A", "image_idx": 0}}`), 0o644))

	err := runBuild(&opts, logger.Nop())
	assert.ErrorContains(t, err, "embedding 5")
}

func TestToIndexedVectors(t *testing.T) {
	vectors := []domain.EmbeddingVector{{1, 0}, {0, 1}, {0.6, 0.8}}
	mappings := []domain.EmbeddingMapping{
		{EmbeddingID: 0, ProductID: "A", ImageSlot: 0},
		{EmbeddingID: 2, ProductID: "B", ImageSlot: 1},
		{EmbeddingID: 2, ProductID: "C", ImageSlot: 0},
		{EmbeddingID: 9, ProductID: "D", ImageSlot: 0},
	}

	points, skipped := toIndexedVectors("v1", vectors, mappings)
	require.Len(t, points, 2)
	assert.Equal(t, 1, skipped)

	assert.Equal(t, domain.EmbeddingID(2), points[1].ID)
	assert.Equal(t, "v1", points[1].Payload[qdrantRepo.PayloadIndexVersion])
	assert.Equal(t, "B", points[1].Payload[qdrantRepo.PayloadProductID])
}

func TestPutArtifacts(t *testing.T) {
	src := t.TempDir()
	for _, name := range []string{indexFile, mappingFile, catalogFile} {
		require.NoError(t, os.WriteFile(filepath.Join(src, name), []byte(name), 0o644))
	}

	store := artifact.NewFileRepo(t.TempDir())
	ref := snapshotRef("v7")
	require.NoError(t, putArtifacts(context.Background(), store, src, ref, logger.Nop()))

	assert.Equal(t, "v7/index.bin", ref.IndexKey)
	data, err := store.Fetch(context.Background(), ref.MappingKey)
	require.NoError(t, err)
	assert.Equal(t, []byte(mappingFile), data)
}

type recordingProducer struct {
	events []*usecase.SnapshotPublishedEvent
}

func (p *recordingProducer) PublishSnapshot(_ context.Context, event *usecase.SnapshotPublishedEvent) error {
	p.events = append(p.events, event)
	return nil
}

func TestPublishEvent(t *testing.T) {
	producer := &recordingProducer{}
	ref := snapshotRef("v8")

	require.NoError(t, publishEvent(context.Background(), producer, ref))
	require.Len(t, producer.events, 1)
	assert.Equal(t, ref, producer.events[0].Ref)
	assert.NotEmpty(t, producer.events[0].EventID)
}

func TestRootCmdHasSubcommands(t *testing.T) {
	root := NewRootCmd(logger.Nop())

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"build", "publish", "pg-import", "qdrant-sync"}, names)
}
