package usecase

import (
	"context"

	"github.com/DRSN-tech/visual-search/internal/domain"
)

// VectorIndex: индекс ближайших соседей по косинусному сходству.
// Search возвращает до n хитов по убыванию score, при равенстве: по возрастанию id.
type VectorIndex interface {
	Search(ctx context.Context, query domain.EmbeddingVector, n int) ([]domain.Hit, error)
	Dimension() int
	Len() int
}

// ArtifactRepository хранит бинарные артефакты снапшота (индекс, маппинг, каталог).
type ArtifactRepository interface {
	Fetch(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
}

// IndexRepository отдаёт индекс, соответствующий версии снапшота.
type IndexRepository interface {
	LoadIndex(ctx context.Context, ref SnapshotRef) (VectorIndex, error)
}

type CatalogRepository interface {
	LoadProducts(ctx context.Context, ref SnapshotRef) ([]*domain.Product, error)
}

type EmbeddingMapRepository interface {
	LoadMappings(ctx context.Context, ref SnapshotRef) ([]domain.EmbeddingMapping, error)
}

// CategoryRepository идемпотентно создаёт категории по имени.
type CategoryRepository interface {
	Create(ctx context.Context, name string) (int64, error)
}

// ProductWriteRepository записывает продукты каталога в БД.
type ProductWriteRepository interface {
	Upsert(ctx context.Context, product *domain.Product, categoryID *int64) error
	ReplaceImages(ctx context.Context, productID domain.ProductID, urls []string) error
}

// EmbeddingMapWriteRepository заменяет маппинг одной версии индекса.
type EmbeddingMapWriteRepository interface {
	ReplaceMappings(ctx context.Context, version string, mappings []domain.EmbeddingMapping) (int64, error)
}

// CacheRepository кэширует готовую выдачу. Промах: (nil, nil).
type CacheRepository interface {
	GetResults(ctx context.Context, key *ResultCacheKey) ([]domain.SearchResult, error)
	SetResults(ctx context.Context, key *ResultCacheKey, results []domain.SearchResult) error
}

// VectorStoreRepository выгружает векторы во внешнее векторное хранилище.
type VectorStoreRepository interface {
	Upsert(ctx context.Context, vectors []domain.IndexedVector) error
}
