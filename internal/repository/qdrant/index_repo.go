package qdrant

import (
	"context"
	"fmt"
	"slices"

	"github.com/DRSN-tech/visual-search/internal/cfg"
	"github.com/DRSN-tech/visual-search/internal/domain"
	"github.com/DRSN-tech/visual-search/internal/usecase"
	"github.com/DRSN-tech/visual-search/pkg/e"
	"github.com/jimlawless/whereami"
	"github.com/qdrant/go-client/qdrant"
)

// IndexRepo отдаёт индекс версии, хранящийся в коллекции Qdrant.
type IndexRepo struct {
	client *qdrant.Client
	cfg    *cfg.QdrantCfg
}

func NewIndexRepo(client *qdrant.Client, cfg *cfg.QdrantCfg) *IndexRepo {
	return &IndexRepo{
		client: client,
		cfg:    cfg,
	}
}

// LoadIndex проверяет коллекцию (косинусная метрика, размерность) и число точек версии.
func (r *IndexRepo) LoadIndex(ctx context.Context, ref usecase.SnapshotRef) (usecase.VectorIndex, error) {
	info, err := r.client.GetCollectionInfo(ctx, r.cfg.QdrantCollectionName)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), fmt.Errorf("%w: %w", e.ErrIndexLoad, err))
	}

	params := info.GetConfig().GetParams().GetVectorsConfig().GetParams()
	if params == nil {
		return nil, e.Wrap(whereami.WhereAmI(), fmt.Errorf("%w: collection %s has no default dense vector",
			e.ErrIndexLoad, r.cfg.QdrantCollectionName))
	}
	if params.GetDistance() != qdrant.Distance_Cosine {
		return nil, e.Wrap(whereami.WhereAmI(), fmt.Errorf("%w: collection %s uses %s distance, cosine required",
			e.ErrIndexLoad, r.cfg.QdrantCollectionName, params.GetDistance()))
	}

	filter := versionFilter(ref.Version)
	count, err := r.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: r.cfg.QdrantCollectionName,
		Filter:         filter,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), fmt.Errorf("%w: %w", e.ErrIndexLoad, err))
	}
	if count == 0 {
		return nil, e.Wrap(whereami.WhereAmI(), fmt.Errorf("%w: no points for version %s", e.ErrIndexLoad, ref.Version))
	}

	return &Index{
		client:     r.client,
		collection: r.cfg.QdrantCollectionName,
		filter:     filter,
		dim:        int(params.GetSize()),
		count:      int(count),
	}, nil
}

// Index: удалённый индекс одной версии в коллекции Qdrant.
type Index struct {
	client     *qdrant.Client
	collection string
	filter     *qdrant.Filter
	dim        int
	count      int
}

func (i *Index) Dimension() int { return i.dim }

func (i *Index) Len() int { return i.count }

// Search запрашивает n ближайших точек версии. Qdrant не гарантирует порядок
// при равных score, поэтому выдача пересортировывается по id.
func (i *Index) Search(ctx context.Context, query domain.EmbeddingVector, n int) ([]domain.Hit, error) {
	if query.Dim() != i.dim {
		return nil, e.Wrap(whereami.WhereAmI(), fmt.Errorf("%w: query has %d components, index has %d",
			e.ErrDimensionMismatch, query.Dim(), i.dim))
	}
	if n <= 0 {
		return nil, nil
	}

	points, err := i.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: i.collection,
		Query:          qdrant.NewQueryDense(query),
		Filter:         i.filter,
		Limit:          qdrant.PtrOf(uint64(n)),
		WithPayload:    qdrant.NewWithPayloadInclude(PayloadEmbeddingID),
	})
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	hits := make([]domain.Hit, 0, len(points))
	for _, p := range points {
		v, ok := p.GetPayload()[PayloadEmbeddingID]
		if !ok {
			continue
		}
		hits = append(hits, domain.Hit{
			ID:    domain.EmbeddingID(v.GetIntegerValue()),
			Score: p.GetScore(),
		})
	}

	slices.SortStableFunc(hits, func(a, b domain.Hit) int {
		if domain.HitLess(a, b) {
			return -1
		}
		if domain.HitLess(b, a) {
			return 1
		}
		return 0
	})

	return hits, nil
}

func versionFilter(version string) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatchKeyword(PayloadIndexVersion, version)},
	}
}
