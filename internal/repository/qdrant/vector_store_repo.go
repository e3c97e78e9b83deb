package qdrant

import (
	"context"
	"fmt"

	"github.com/DRSN-tech/visual-search/internal/cfg"
	"github.com/DRSN-tech/visual-search/internal/domain"
	"github.com/DRSN-tech/visual-search/pkg/e"
	"github.com/jimlawless/whereami"
	"github.com/qdrant/go-client/qdrant"
)

const upsertBatchSize = 256

// VectorStoreRepo выгружает векторы индекса в коллекцию Qdrant.
type VectorStoreRepo struct {
	client *qdrant.Client
	cfg    *cfg.QdrantCfg
}

func NewVectorStoreRepo(client *qdrant.Client, cfg *cfg.QdrantCfg) *VectorStoreRepo {
	return &VectorStoreRepo{
		client: client,
		cfg:    cfg,
	}
}

// Upsert сохраняет или обновляет векторы пачками. Payload каждого вектора обязан содержать index_version.
func (q *VectorStoreRepo) Upsert(ctx context.Context, vectors []domain.IndexedVector) error {
	for start := 0; start < len(vectors); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(vectors))

		points, err := toPoints(vectors[start:end])
		if err != nil {
			return e.Wrap(whereami.WhereAmI(), err)
		}

		_, err = q.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: q.cfg.QdrantCollectionName,
			Wait:           qdrant.PtrOf(true),
			Points:         points,
		})
		if err != nil {
			return e.Wrap(whereami.WhereAmI(), err)
		}
	}

	return nil
}

func toPoints(vectors []domain.IndexedVector) ([]*qdrant.PointStruct, error) {
	points := make([]*qdrant.PointStruct, 0, len(vectors))
	for _, v := range vectors {
		version, ok := v.Payload[PayloadIndexVersion].(string)
		if !ok || version == "" {
			return nil, fmt.Errorf("%w: vector %d has no %s in payload", e.ErrStatusBadRequest, v.ID, PayloadIndexVersion)
		}

		payload := make(map[string]any, len(v.Payload)+1)
		for k, val := range v.Payload {
			payload[k] = val
		}
		payload[PayloadEmbeddingID] = int64(v.ID)

		values, err := qdrant.TryValueMap(payload)
		if err != nil {
			return nil, err
		}

		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(pointID(version, v.ID)),
			Vectors: qdrant.NewVectorsDense(v.Vector),
			Payload: values,
		})
	}

	return points, nil
}
