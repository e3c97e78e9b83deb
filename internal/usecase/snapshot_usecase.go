package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/DRSN-tech/visual-search/internal/domain"
	"github.com/DRSN-tech/visual-search/pkg/e"
	"github.com/DRSN-tech/visual-search/pkg/logger"
	"github.com/DRSN-tech/visual-search/pkg/tr"
	transaction "github.com/avito-tech/go-transaction-manager/drivers/pgxv5/v2"
	"github.com/jackc/pgx/v5"
)

// SnapshotUseCase собирает снапшот: индекс, маппинг эмбеддингов и каталог одной версии.
type SnapshotUseCase struct {
	indexRepo   IndexRepository
	mappingRepo EmbeddingMapRepository
	catalogRepo CatalogRepository
	dbPool      transaction.Transactional // nil: метаданные читаются без транзакции
	logger      logger.Logger
}

func NewSnapshotUC(
	indexRepo IndexRepository,
	mappingRepo EmbeddingMapRepository,
	catalogRepo CatalogRepository,
	dbPool transaction.Transactional,
	logger logger.Logger,
) *SnapshotUseCase {
	return &SnapshotUseCase{
		indexRepo:   indexRepo,
		mappingRepo: mappingRepo,
		catalogRepo: catalogRepo,
		dbPool:      dbPool,
		logger:      logger,
	}
}

// Load загружает все части снапшота. Любая ошибка загрузки оборачивается в ErrIndexLoad.
func (s *SnapshotUseCase) Load(ctx context.Context, ref SnapshotRef) (*Snapshot, error) {
	const op = "SnapshotUseCase.Load"

	if strings.TrimSpace(ref.Version) == "" {
		return nil, e.Wrap(op, fmt.Errorf("%w: empty snapshot version", e.ErrIndexLoad))
	}

	start := time.Now()

	index, err := s.indexRepo.LoadIndex(ctx, ref)
	if err != nil {
		return nil, e.Wrap(op, asLoadErr(err))
	}

	mappings, products, err := s.loadMetadata(ctx, ref)
	if err != nil {
		return nil, e.Wrap(op, asLoadErr(err))
	}

	embeddings := domain.NewEmbeddingMap(mappings)
	catalog := domain.NewCatalog(products)

	s.checkConsistency(ref.Version, index, mappings, catalog)

	s.logger.Infof(
		"Snapshot loaded. version: %s, vectors: %d, dim: %d, mappings: %d, products: %d, took: %s",
		ref.Version, index.Len(), index.Dimension(), embeddings.Len(), catalog.Len(), time.Since(start),
	)

	return &Snapshot{
		Version:    ref.Version,
		Index:      index,
		Embeddings: embeddings,
		Catalog:    catalog,
		LoadedAt:   time.Now().UTC(),
	}, nil
}

// loadMetadata читает маппинг и каталог. Для БД оба чтения идут в одной
// read-only транзакции.
func (s *SnapshotUseCase) loadMetadata(ctx context.Context, ref SnapshotRef) (mappings []domain.EmbeddingMapping, products []*domain.Product, err error) {
	if s.dbPool == nil {
		mappings, err = s.mappingRepo.LoadMappings(ctx, ref)
		if err != nil {
			return nil, nil, err
		}
		products, err = s.catalogRepo.LoadProducts(ctx, ref)
		if err != nil {
			return nil, nil, err
		}
		return mappings, products, nil
	}

	ctx, tx, err := transaction.NewTransaction(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	}, s.dbPool)
	if err != nil {
		return nil, nil, err
	}
	defer func() {
		if err != nil && tx.IsActive() {
			tx.Rollback(ctx)
		}
	}()
	ctx = tr.WithTx(ctx, tx.Transaction().(pgx.Tx))

	mappings, err = s.mappingRepo.LoadMappings(ctx, ref)
	if err != nil {
		return nil, nil, err
	}

	products, err = s.catalogRepo.LoadProducts(ctx, ref)
	if err != nil {
		return nil, nil, err
	}

	err = tx.Commit(ctx)
	if err != nil {
		return nil, nil, err
	}

	return mappings, products, nil
}

// checkConsistency только предупреждает: такие записи при поиске пропускаются.
func (s *SnapshotUseCase) checkConsistency(version string, index VectorIndex, mappings []domain.EmbeddingMapping, catalog *domain.Catalog) {
	var outOfIndex, noProduct int
	for _, m := range mappings {
		if m.EmbeddingID < 0 || int(m.EmbeddingID) >= index.Len() {
			outOfIndex++
		}
		if _, ok := catalog.Lookup(m.ProductID); !ok {
			noProduct++
		}
	}

	if outOfIndex > 0 || noProduct > 0 {
		s.logger.Warnf(
			"Snapshot metadata is not fully consistent. version: %s, mappings_out_of_index: %d, mappings_without_product: %d",
			version, outOfIndex, noProduct,
		)
	}
	if len(mappings) < index.Len() {
		s.logger.Warnf("Index has unmapped vectors. version: %s, vectors: %d, mappings: %d", version, index.Len(), len(mappings))
	}
}

func asLoadErr(err error) error {
	if errors.Is(err, e.ErrIndexLoad) {
		return err
	}
	return fmt.Errorf("%w: %w", e.ErrIndexLoad, err)
}
