package main

import (
	"fmt"

	config "github.com/DRSN-tech/visual-search/internal/cfg"
	"github.com/DRSN-tech/visual-search/internal/domain"
	qdrantRepo "github.com/DRSN-tech/visual-search/internal/repository/qdrant"
	"github.com/DRSN-tech/visual-search/pkg/clients"
	"github.com/DRSN-tech/visual-search/pkg/logger"
	"github.com/spf13/cobra"
)

func NewQdrantSyncCmd(log logger.Logger) *cobra.Command {
	var (
		vectorsPath string
		mappingPath string
		version     string
		dim         int
	)

	cmd := &cobra.Command{
		Use:   "qdrant-sync",
		Short: "Upload a snapshot's vectors into the Qdrant collection",
		Long: `Upserts every mapped vector as a point tagged with the snapshot version. Point ids
are derived from the version and embedding id, so re-running the sync is idempotent.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			vectors, err := readVectorsFile(vectorsPath, dim)
			if err != nil {
				return fmt.Errorf("read vectors: %w", err)
			}
			mappings, err := readMappingsFile(mappingPath)
			if err != nil {
				return fmt.Errorf("read mapping: %w", err)
			}

			points, skipped := toIndexedVectors(version, vectors, mappings)
			if skipped > 0 {
				log.Warnf("%d vectors have no mapping and are not uploaded", skipped)
			}

			qdrantCfg, err := config.LoadQdrant(log)
			if err != nil {
				return err
			}
			if qdrantCfg.VectorSize != uint64(dim) {
				return fmt.Errorf("collection vector size %d does not match --dim %d", qdrantCfg.VectorSize, dim)
			}

			client, err := clients.NewQdrantClient(qdrantCfg)
			if err != nil {
				return fmt.Errorf("qdrant client: %w", err)
			}
			defer client.Client.Close()

			if err := clients.EnsureCollection(cmd.Context(), client, qdrantRepo.PayloadIndexVersion); err != nil {
				return fmt.Errorf("qdrant collection: %w", err)
			}

			if err := qdrantRepo.NewVectorStoreRepo(client.Client, qdrantCfg).Upsert(cmd.Context(), points); err != nil {
				return err
			}

			log.Infof("Synced %d points of version %s to %s", len(points), version, qdrantCfg.QdrantCollectionName)
			return nil
		},
	}

	cmd.Flags().StringVar(&vectorsPath, "vectors", "", "Raw float32 vectors file")
	cmd.Flags().StringVar(&mappingPath, "mapping", "", "Embedding mapping (JSON or msgpack)")
	cmd.Flags().StringVar(&version, "version", "", "Snapshot version")
	cmd.Flags().IntVar(&dim, "dim", 512, "Vector dimension")
	_ = cmd.MarkFlagRequired("vectors")
	_ = cmd.MarkFlagRequired("mapping")
	_ = cmd.MarkFlagRequired("version")

	return cmd
}

// toIndexedVectors сопоставляет векторы с маппингом; векторы без маппинга пропускаются.
func toIndexedVectors(version string, vectors []domain.EmbeddingVector, mappings []domain.EmbeddingMapping) ([]domain.IndexedVector, int) {
	out := make([]domain.IndexedVector, 0, len(mappings))
	mapped := make(map[domain.EmbeddingID]struct{}, len(mappings))

	for _, m := range mappings {
		if m.EmbeddingID < 0 || int(m.EmbeddingID) >= len(vectors) {
			continue
		}
		if _, dup := mapped[m.EmbeddingID]; dup {
			continue
		}
		mapped[m.EmbeddingID] = struct{}{}
		out = append(out, *domain.NewIndexedVector(m.EmbeddingID, vectors[m.EmbeddingID], qdrantRepo.NewPointPayload(version, m)))
	}

	return out, len(vectors) - len(mapped)
}
