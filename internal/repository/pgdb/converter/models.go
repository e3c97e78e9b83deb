package converter

import "time"

// CategoryModel представляет запись таблицы categories в PostgreSQL.
type CategoryModel struct {
	ID         int64      `db:"id"`
	Name       string     `db:"name"`
	CreatedAt  time.Time  `db:"created_at"`
	UpdatedAt  *time.Time `db:"updated_at"`
	IsArchived bool       `db:"is_archived"`
}

// ProductModel: продукт вместе с названием категории и URL изображений по слотам.
type ProductModel struct {
	ID        string   `db:"id"`
	Name      string   `db:"name"`
	Price     *string  `db:"price"`
	URL       string   `db:"url"`
	Category  *string  `db:"category"`
	ImageURLs []string `db:"image_urls"`
}

// ProductEmbeddingModel представляет запись таблицы product_embeddings.
type ProductEmbeddingModel struct {
	IndexVersion string `db:"index_version"`
	EmbeddingID  int64  `db:"embedding_id"`
	ProductID    string `db:"product_id"`
	ImageSlot    int32  `db:"image_slot"`
}
