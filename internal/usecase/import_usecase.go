package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/DRSN-tech/visual-search/pkg/e"
	"github.com/DRSN-tech/visual-search/pkg/logger"
	"github.com/DRSN-tech/visual-search/pkg/tr"
	transaction "github.com/avito-tech/go-transaction-manager/drivers/pgxv5/v2"
	"github.com/jackc/pgx/v5"
)

// CatalogImportUseCase переносит каталог и маппинг эмбеддингов в Postgres.
type CatalogImportUseCase struct {
	categoryRepo CategoryRepository
	productRepo  ProductWriteRepository
	mappingRepo  EmbeddingMapWriteRepository
	dbPool       transaction.Transactional
	logger       logger.Logger
}

func NewCatalogImportUC(
	categoryRepo CategoryRepository,
	productRepo ProductWriteRepository,
	mappingRepo EmbeddingMapWriteRepository,
	dbPool transaction.Transactional,
	logger logger.Logger,
) *CatalogImportUseCase {
	return &CatalogImportUseCase{
		categoryRepo: categoryRepo,
		productRepo:  productRepo,
		mappingRepo:  mappingRepo,
		dbPool:       dbPool,
		logger:       logger,
	}
}

// Import идемпотентно записывает категории, продукты с изображениями и маппинг версии.
// Маппинг версии заменяется целиком.
func (c *CatalogImportUseCase) Import(ctx context.Context, req *ImportCatalogReq) (*ImportCatalogRes, error) {
	const op = "CatalogImportUseCase.Import"

	var err error
	if strings.TrimSpace(req.Version) == "" {
		return nil, e.Wrap(op, fmt.Errorf("%w: empty index version", e.ErrStatusBadRequest))
	}

	ctx, tx, err := transaction.NewTransaction(ctx, pgx.TxOptions{}, c.dbPool)
	if err != nil {
		return nil, e.Wrap(op, err)
	}
	defer func() {
		if err != nil && tx.IsActive() {
			tx.Rollback(ctx)
		}
	}()
	ctx = tr.WithTx(ctx, tx.Transaction().(pgx.Tx))

	// идемпотентное создание категорий
	categories := make(map[string]int64)
	for _, p := range req.Products {
		if p.Category == "" {
			continue
		}
		if _, ok := categories[p.Category]; ok {
			continue
		}
		var id int64
		id, err = c.categoryRepo.Create(ctx, p.Category)
		if err != nil {
			return nil, e.Wrap(op, err)
		}
		categories[p.Category] = id
	}

	for _, p := range req.Products {
		var categoryID *int64
		if id, ok := categories[p.Category]; ok {
			categoryID = &id
		}

		err = c.productRepo.Upsert(ctx, p, categoryID)
		if err != nil {
			return nil, e.Wrap(op, err)
		}

		err = c.productRepo.ReplaceImages(ctx, p.ID, p.ImageURLs)
		if err != nil {
			return nil, e.Wrap(op, err)
		}
	}

	mapped, err := c.mappingRepo.ReplaceMappings(ctx, req.Version, req.Mappings)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	err = tx.Commit(ctx)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	c.logger.Infof("Catalog imported. version: %s, products: %d, categories: %d, mappings: %d",
		req.Version, len(req.Products), len(categories), mapped)

	return &ImportCatalogRes{
		Products:   len(req.Products),
		Categories: len(categories),
		Mappings:   mapped,
	}, nil
}
