package usecase

import (
	"time"

	"github.com/DRSN-tech/visual-search/internal/domain"
	"github.com/google/uuid"
)

// RETRIEVAL USECASE

// RetrieveReq: поиск по готовому вектору. TopK == 0 означает значение по умолчанию.
type RetrieveReq struct {
	Vector []float32
	TopK   int
}

// ImageQueryReq: поиск по изображению.
type ImageQueryReq struct {
	Data     []byte
	MimeType string
	TopK     int
}

// TextQueryReq: поиск по текстовому описанию.
type TextQueryReq struct {
	Query string
	TopK  int
}

// RetrieveRes: выдача поиска.
type RetrieveRes struct {
	SnapshotVersion string
	Cached          bool
	Results         []domain.SearchResult
}

// SNAPSHOT

// Snapshot: неизменяемый набор индекса, маппинга и каталога одной версии.
type Snapshot struct {
	Version    string
	Index      VectorIndex
	Embeddings *domain.EmbeddingMap
	Catalog    *domain.Catalog
	LoadedAt   time.Time
}

// SnapshotRef: ключи артефактов одной версии снапшота.
type SnapshotRef struct {
	Version    string `json:"version"`
	IndexKey   string `json:"index_key"`
	MappingKey string `json:"mapping_key"`
	CatalogKey string `json:"catalog_key"`
}

// SnapshotPublishedEvent: сообщение о готовности новой версии снапшота.
type SnapshotPublishedEvent struct {
	EventID     string      `json:"event_id"`
	Ref         SnapshotRef `json:"ref"`
	PublishedAt time.Time   `json:"published_at"`
}

// CATALOG IMPORT

// ImportCatalogReq: каталог и маппинг версии индекса для записи в БД.
type ImportCatalogReq struct {
	Version  string
	Products []*domain.Product
	Mappings []domain.EmbeddingMapping
}

// ImportCatalogRes: итог импорта.
type ImportCatalogRes struct {
	Products   int
	Categories int
	Mappings   int64
}

// INFRASTUCTURE

// EncodeImageReq: запрос на векторизацию изображения.
type EncodeImageReq struct {
	Data     []byte
	MimeType string
}

// REPOSITORIES

// ResultCacheKey однозначно задаёт выдачу: версия снапшота, k, коэффициент
// запаса поиска и нормированный запрос.
type ResultCacheKey struct {
	SnapshotVersion string
	TopK            int
	Oversample      int
	Query           domain.EmbeddingVector
}

// MAPPERS

func NewRetrieveReq(vector []float32, topK int) *RetrieveReq {
	return &RetrieveReq{
		Vector: vector,
		TopK:   topK,
	}
}

func NewImageQueryReq(data []byte, mimeType string, topK int) *ImageQueryReq {
	return &ImageQueryReq{
		Data:     data,
		MimeType: mimeType,
		TopK:     topK,
	}
}

func NewTextQueryReq(query string, topK int) *TextQueryReq {
	return &TextQueryReq{
		Query: query,
		TopK:  topK,
	}
}

func NewRetrieveRes(version string, cached bool, results []domain.SearchResult) *RetrieveRes {
	return &RetrieveRes{
		SnapshotVersion: version,
		Cached:          cached,
		Results:         results,
	}
}

func NewEncodeImageReq(data []byte, mimeType string) *EncodeImageReq {
	return &EncodeImageReq{
		Data:     data,
		MimeType: mimeType,
	}
}

func NewSnapshotRef(version, indexKey, mappingKey, catalogKey string) SnapshotRef {
	return SnapshotRef{
		Version:    version,
		IndexKey:   indexKey,
		MappingKey: mappingKey,
		CatalogKey: catalogKey,
	}
}

func NewSnapshotPublishedEvent(ref SnapshotRef) *SnapshotPublishedEvent {
	return &SnapshotPublishedEvent{
		EventID:     uuid.NewString(),
		Ref:         ref,
		PublishedAt: time.Now().UTC(),
	}
}

func NewImportCatalogReq(version string, products []*domain.Product, mappings []domain.EmbeddingMapping) *ImportCatalogReq {
	return &ImportCatalogReq{
		Version:  version,
		Products: products,
		Mappings: mappings,
	}
}

func NewResultCacheKey(version string, topK, oversample int, query domain.EmbeddingVector) *ResultCacheKey {
	return &ResultCacheKey{
		SnapshotVersion: version,
		TopK:            topK,
		Oversample:      oversample,
		Query:           query,
	}
}
