package artifact

import (
	"context"
	"fmt"

	"github.com/DRSN-tech/visual-search/internal/domain"
	"github.com/DRSN-tech/visual-search/internal/repository/vectorindex"
	"github.com/DRSN-tech/visual-search/internal/usecase"
	"github.com/DRSN-tech/visual-search/pkg/e"
	"github.com/DRSN-tech/visual-search/pkg/logger"
	"github.com/jimlawless/whereami"
)

// SnapshotRepo читает части снапшота из хранилища артефактов по ключам SnapshotRef.
type SnapshotRepo struct {
	store  usecase.ArtifactRepository
	logger logger.Logger
}

func NewSnapshotRepo(store usecase.ArtifactRepository, logger logger.Logger) *SnapshotRepo {
	return &SnapshotRepo{
		store:  store,
		logger: logger,
	}
}

// LoadIndex читает и декодирует бинарный индекс (FLAT или HNSW).
func (s *SnapshotRepo) LoadIndex(ctx context.Context, ref usecase.SnapshotRef) (usecase.VectorIndex, error) {
	data, err := s.fetch(ctx, ref.IndexKey)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	index, err := vectorindex.Load(data)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), fmt.Errorf("%s: %w", ref.IndexKey, err))
	}

	return index, nil
}

// LoadMappings читает маппинг эмбеддингов; невалидные записи отбрасываются с предупреждением.
func (s *SnapshotRepo) LoadMappings(ctx context.Context, ref usecase.SnapshotRef) ([]domain.EmbeddingMapping, error) {
	data, err := s.fetch(ctx, ref.MappingKey)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	mappings, stats, err := DecodeMappings(ref.MappingKey, data)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), fmt.Errorf("%w: %s: %w", e.ErrIndexLoad, ref.MappingKey, err))
	}

	if stats.Dropped > 0 {
		s.logger.Warnf("Dropped invalid mapping entries. key: %s, total: %d, dropped: %d", ref.MappingKey, stats.Total, stats.Dropped)
	}

	return mappings, nil
}

// LoadProducts читает каталог продуктов.
func (s *SnapshotRepo) LoadProducts(ctx context.Context, ref usecase.SnapshotRef) ([]*domain.Product, error) {
	data, err := s.fetch(ctx, ref.CatalogKey)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	products, stats, err := DecodeCatalog(data)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), fmt.Errorf("%w: %s: %w", e.ErrIndexLoad, ref.CatalogKey, err))
	}

	if stats.Dropped > 0 || stats.UnknownPrice > 0 {
		s.logger.Warnf("Catalog has incomplete entries. key: %s, total: %d, dropped: %d, unknown_price: %d",
			ref.CatalogKey, stats.Total, stats.Dropped, stats.UnknownPrice)
	}

	return products, nil
}

func (s *SnapshotRepo) fetch(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, fmt.Errorf("%w: empty artifact key", e.ErrIndexLoad)
	}

	data, err := s.store.Fetch(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", e.ErrIndexLoad, err)
	}

	return data, nil
}
