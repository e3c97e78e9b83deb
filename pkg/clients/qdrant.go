package clients

import (
	"context"
	"fmt"

	config "github.com/DRSN-tech/visual-search/internal/cfg"
	"github.com/DRSN-tech/visual-search/pkg/e"
	"github.com/jimlawless/whereami"
	"github.com/qdrant/go-client/qdrant"
)

type QdrantClient struct {
	Client *qdrant.Client
	cfg    *config.QdrantCfg
}

func NewQdrantClient(cfg *config.QdrantCfg) (*QdrantClient, error) {
	qdrantClient, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.ApiKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return &QdrantClient{
		Client: qdrantClient,
		cfg:    cfg,
	}, nil
}

// EnsureCollection создаёт косинусную коллекцию и keyword-индекс по версии
// снапшота. У существующей коллекции проверяется размерность векторов.
func EnsureCollection(ctx context.Context, client *QdrantClient, versionField string) error {
	const op = "clients.EnsureCollection"
	name := client.cfg.QdrantCollectionName

	exists, err := client.Client.CollectionExists(ctx, name)
	if err != nil {
		return e.Wrap(op, fmt.Errorf("check collection %s: %w", name, err))
	}

	if exists {
		info, err := client.Client.GetCollectionInfo(ctx, name)
		if err != nil {
			return e.Wrap(op, fmt.Errorf("get collection %s: %w", name, err))
		}
		if err := checkVectorSize(info, client.cfg.VectorSize); err != nil {
			return e.Wrap(op, fmt.Errorf("collection %s: %w", name, err))
		}
	} else {
		if err := client.Client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: name,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     client.cfg.VectorSize,
				Distance: qdrant.Distance_Cosine,
			}),
		}); err != nil {
			return e.Wrap(op, fmt.Errorf("create collection %s: %w", name, err))
		}
	}

	if _, err := client.Client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: name,
		Wait:           qdrant.PtrOf(true),
		FieldName:      versionField,
		FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
	}); err != nil {
		return e.Wrap(op, fmt.Errorf("create payload index %s: %w", versionField, err))
	}

	return nil
}

// checkVectorSize сверяет размерность безымянного вектора коллекции.
// Коллекции с именованными векторами не поддерживаются.
func checkVectorSize(info *qdrant.CollectionInfo, want uint64) error {
	params := info.GetConfig().GetParams().GetVectorsConfig().GetParams()
	if params == nil {
		return fmt.Errorf("%w: collection has no single unnamed vector", e.ErrDimensionMismatch)
	}
	if params.GetSize() != want {
		return fmt.Errorf("%w: collection size %d, configured %d", e.ErrDimensionMismatch, params.GetSize(), want)
	}
	return nil
}
