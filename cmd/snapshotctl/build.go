package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/DRSN-tech/visual-search/internal/domain"
	"github.com/DRSN-tech/visual-search/internal/repository/artifact"
	"github.com/DRSN-tech/visual-search/internal/repository/vectorindex"
	"github.com/DRSN-tech/visual-search/pkg/logger"
	"github.com/spf13/cobra"
)

type buildOpts struct {
	vectorsPath string
	mappingPath string
	catalogPath string
	outDir      string
	kind        string
	dim         int
	seed        uint64
	hnsw        vectorindex.HNSWConfig
}

func NewBuildCmd(log logger.Logger) *cobra.Command {
	var opts buildOpts

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build a snapshot version directory",
		Long: `Builds the vector index from raw little-endian float32 rows and writes it
together with the msgpack mapping and the catalog into the output directory.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBuild(&opts, log)
		},
	}

	cmd.Flags().StringVar(&opts.vectorsPath, "vectors", "", "Raw float32 vectors file")
	cmd.Flags().StringVar(&opts.mappingPath, "mapping", "", "Embedding mapping (JSON or msgpack)")
	cmd.Flags().StringVar(&opts.catalogPath, "catalog", "", "Product catalog JSON")
	cmd.Flags().StringVarP(&opts.outDir, "out", "o", "snapshot", "Output directory")
	cmd.Flags().StringVar(&opts.kind, "kind", vectorindex.KindHNSW, "Index kind (flat|hnsw)")
	cmd.Flags().IntVar(&opts.dim, "dim", 512, "Vector dimension")
	cmd.Flags().Uint64Var(&opts.seed, "seed", 42, "HNSW level generator seed")
	cmd.Flags().IntVar(&opts.hnsw.M, "m", 0, "HNSW max connections per layer")
	cmd.Flags().IntVar(&opts.hnsw.EfConstruction, "ef-construction", 0, "HNSW build beam width")
	cmd.Flags().IntVar(&opts.hnsw.EfSearch, "ef-search", 0, "HNSW search beam width")
	_ = cmd.MarkFlagRequired("vectors")
	_ = cmd.MarkFlagRequired("mapping")
	_ = cmd.MarkFlagRequired("catalog")

	return cmd
}

func runBuild(opts *buildOpts, log logger.Logger) error {
	vectors, err := readVectorsFile(opts.vectorsPath, opts.dim)
	if err != nil {
		return fmt.Errorf("read vectors: %w", err)
	}

	mappings, err := readMappingsFile(opts.mappingPath)
	if err != nil {
		return fmt.Errorf("read mapping: %w", err)
	}
	if err := checkMappingRange(mappings, len(vectors)); err != nil {
		return err
	}

	products, err := readCatalogFile(opts.catalogPath, log)
	if err != nil {
		return fmt.Errorf("read catalog: %w", err)
	}

	index, err := vectorindex.Build(opts.kind, opts.dim, vectors, opts.hnsw, opts.seed)
	if err != nil {
		return fmt.Errorf("build %s index: %w", opts.kind, err)
	}

	if err := os.MkdirAll(opts.outDir, 0o755); err != nil {
		return err
	}

	if err := writeIndex(filepath.Join(opts.outDir, indexFile), index); err != nil {
		return fmt.Errorf("write index: %w", err)
	}

	mappingData, err := artifact.EncodeMappingsMsgpack(mappings)
	if err != nil {
		return fmt.Errorf("encode mapping: %w", err)
	}
	if err := os.WriteFile(filepath.Join(opts.outDir, mappingFile), mappingData, 0o644); err != nil {
		return err
	}

	catalogData, err := artifact.EncodeCatalog(products)
	if err != nil {
		return fmt.Errorf("encode catalog: %w", err)
	}
	if err := os.WriteFile(filepath.Join(opts.outDir, catalogFile), catalogData, 0o644); err != nil {
		return err
	}

	log.Infof("Snapshot built: %s index, %d vectors, %d mappings, %d products -> %s",
		opts.kind, index.Len(), len(mappings), len(products), opts.outDir)
	return nil
}

// checkMappingRange проверяет, что маппинг ссылается только на существующие векторы.
func checkMappingRange(mappings []domain.EmbeddingMapping, count int) error {
	for _, m := range mappings {
		if m.EmbeddingID < 0 || int(m.EmbeddingID) >= count {
			return fmt.Errorf("mapping references embedding %d, index has %d vectors", m.EmbeddingID, count)
		}
	}
	return nil
}

func writeIndex(path string, index vectorindex.Artifact) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	w := bufio.NewWriter(f)
	if err := index.Save(w); err != nil {
		f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}

	return f.Close()
}
