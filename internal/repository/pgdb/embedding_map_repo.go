package pgdb

import (
	"context"

	"github.com/DRSN-tech/visual-search/internal/domain"
	"github.com/DRSN-tech/visual-search/internal/repository/pgdb/converter"
	"github.com/DRSN-tech/visual-search/internal/usecase"
	"github.com/DRSN-tech/visual-search/pkg/e"
	"github.com/DRSN-tech/visual-search/pkg/tr"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jimlawless/whereami"
)

// EmbeddingMapRepo хранит маппинг эмбеддингов на продукты по версиям индекса.
type EmbeddingMapRepo struct {
	pool *pgxpool.Pool
	conv converter.ProductEmbeddingConverter
}

func NewEmbeddingMapRepo(pool *pgxpool.Pool, conv converter.ProductEmbeddingConverter) *EmbeddingMapRepo {
	return &EmbeddingMapRepo{
		pool: pool,
		conv: conv,
	}
}

// LoadMappings возвращает маппинг версии ref.Version, упорядоченный по embedding_id.
func (r *EmbeddingMapRepo) LoadMappings(ctx context.Context, ref usecase.SnapshotRef) ([]domain.EmbeddingMapping, error) {
	tx, err := tr.TxFromCtx(ctx)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	query := `
		SELECT index_version, embedding_id, product_id, image_slot
		FROM product_embeddings
		WHERE index_version = $1
		ORDER BY embedding_id
	`

	rows, err := tx.Query(ctx, query, ref.Version)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}
	defer rows.Close()

	result := make([]domain.EmbeddingMapping, 0)
	for rows.Next() {
		var model converter.ProductEmbeddingModel
		if err := rows.Scan(&model.IndexVersion, &model.EmbeddingID, &model.ProductID, &model.ImageSlot); err != nil {
			return nil, e.Wrap(whereami.WhereAmI(), err)
		}

		result = append(result, r.conv.ToEntity(&model))
	}
	if err := rows.Err(); err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return result, nil
}

// ReplaceMappings удаляет маппинг версии и записывает новый через COPY.
func (r *EmbeddingMapRepo) ReplaceMappings(ctx context.Context, version string, mappings []domain.EmbeddingMapping) (int64, error) {
	tx, err := tr.TxFromCtx(ctx)
	if err != nil {
		return 0, e.Wrap(whereami.WhereAmI(), err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM product_embeddings WHERE index_version = $1`, version); err != nil {
		return 0, e.Wrap(whereami.WhereAmI(), err)
	}

	rows := make([][]any, 0, len(mappings))
	for _, m := range mappings {
		model := r.conv.ToModel(version, m)
		rows = append(rows, []any{model.IndexVersion, model.EmbeddingID, model.ProductID, model.ImageSlot})
	}

	n, err := tx.CopyFrom(
		ctx,
		pgx.Identifier{"product_embeddings"},
		[]string{"index_version", "embedding_id", "product_id", "image_slot"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return 0, e.Wrap(whereami.WhereAmI(), err)
	}

	return n, nil
}
