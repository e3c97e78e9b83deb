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

// ProductRepo реализует репозиторий продуктов поверх PostgreSQL.
type ProductRepo struct {
	pool *pgxpool.Pool
	conv converter.ProductConverter
}

func NewProductRepo(pool *pgxpool.Pool, conv converter.ProductConverter) *ProductRepo {
	return &ProductRepo{
		pool: pool,
		conv: conv,
	}
}

// LoadProducts читает весь неархивный каталог с изображениями, упорядоченными по слоту.
// Каталог в БД не версионируется, поэтому ref не используется.
func (p *ProductRepo) LoadProducts(ctx context.Context, _ usecase.SnapshotRef) ([]*domain.Product, error) {
	tx, err := tr.TxFromCtx(ctx)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	query := `
		SELECT
			pr.id, pr.name, pr.price::text, pr.url, cat.name,
			COALESCE(
				(SELECT array_agg(img.url ORDER BY img.slot)
				 FROM product_images img
				 WHERE img.product_id = pr.id),
				'{}'
			) AS image_urls
		FROM products pr
		LEFT JOIN categories cat ON pr.category_id = cat.id
		WHERE NOT pr.is_archived
		ORDER BY pr.id
	`

	rows, err := tx.Query(ctx, query)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}
	defer rows.Close()

	result := make([]*domain.Product, 0)
	for rows.Next() {
		var model converter.ProductModel
		if err := rows.Scan(
			&model.ID, &model.Name, &model.Price, &model.URL, &model.Category, &model.ImageURLs,
		); err != nil {
			return nil, e.Wrap(whereami.WhereAmI(), err)
		}

		result = append(result, p.conv.ToEntity(&model))
	}
	if err := rows.Err(); err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return result, nil
}

// Upsert идемпотентно создаёт или обновляет продукт по id.
// Запись обновляется только при изменении полей.
func (p *ProductRepo) Upsert(ctx context.Context, product *domain.Product, categoryID *int64) error {
	tx, err := tr.TxFromCtx(ctx)
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	model := p.conv.ToModel(product)

	// VALUES ($1, $2, $3, $4, $5) id, name, price, url, category_id
	query := `
		INSERT INTO products (id, name, price, url, category_id)
		VALUES ($1, $2, $3::numeric, $4, $5)
		ON CONFLICT (id)
		DO UPDATE SET
			name = EXCLUDED.name,
			price = EXCLUDED.price,
			url = EXCLUDED.url,
			category_id = EXCLUDED.category_id,
			is_archived = FALSE,
			updated_at = NOW()
		WHERE
			products.name IS DISTINCT FROM EXCLUDED.name OR
			products.price IS DISTINCT FROM EXCLUDED.price OR
			products.url IS DISTINCT FROM EXCLUDED.url OR
			products.category_id IS DISTINCT FROM EXCLUDED.category_id OR
			products.is_archived
	`

	if _, err := tx.Exec(ctx, query, model.ID, model.Name, model.Price, model.URL, categoryID); err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	return nil
}

// ReplaceImages заменяет изображения продукта; слот равен позиции URL в списке.
func (p *ProductRepo) ReplaceImages(ctx context.Context, productID domain.ProductID, urls []string) error {
	tx, err := tr.TxFromCtx(ctx)
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM product_images WHERE product_id = $1`, string(productID)); err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	if len(urls) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for slot, url := range urls {
		batch.Queue(`INSERT INTO product_images (product_id, slot, url) VALUES ($1, $2, $3)`, string(productID), slot, url)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	return nil
}
