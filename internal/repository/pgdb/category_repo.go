package pgdb

import (
	"context"
	"errors"

	"github.com/DRSN-tech/visual-search/pkg/e"
	"github.com/DRSN-tech/visual-search/pkg/tr"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jimlawless/whereami"
)

// CategoryRepo реализует репозиторий категорий поверх PostgreSQL.
type CategoryRepo struct {
	pool *pgxpool.Pool
}

func NewCategoryRepo(pool *pgxpool.Pool) *CategoryRepo {
	return &CategoryRepo{pool: pool}
}

// Create идемпотентно создаёт категорию по имени и возвращает её id.
// Архивная категория с тем же именем возвращается из архива.
func (c *CategoryRepo) Create(ctx context.Context, name string) (int64, error) {
	tx, err := tr.TxFromCtx(ctx)
	if err != nil {
		return 0, e.Wrap(whereami.WhereAmI(), err)
	}

	query := `
		INSERT INTO categories(name) VALUES ($1)
		ON CONFLICT (name) DO UPDATE SET
			is_archived = FALSE,
			updated_at = NOW()
		WHERE categories.is_archived
		RETURNING id;
	`

	var id int64
	err = tx.QueryRow(ctx, query, name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, e.Wrap(whereami.WhereAmI(), err)
	}

	// Категория уже есть и не архивная: RETURNING ничего не вернул
	if err := tx.QueryRow(ctx, `SELECT id FROM categories WHERE name = $1`, name).Scan(&id); err != nil {
		return 0, e.Wrap(whereami.WhereAmI(), err)
	}

	return id, nil
}
