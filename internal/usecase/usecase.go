package usecase

import "context"

// RetrievalUC: поиск похожих продуктов по вектору, изображению или тексту.
type RetrievalUC interface {
	Retrieve(ctx context.Context, req *RetrieveReq) (*RetrieveRes, error)
	RetrieveByImage(ctx context.Context, req *ImageQueryReq) (*RetrieveRes, error)
	RetrieveByText(ctx context.Context, req *TextQueryReq) (*RetrieveRes, error)
}

// SnapshotUC собирает снапшот из индекса, маппинга и каталога одной версии.
type SnapshotUC interface {
	Load(ctx context.Context, ref SnapshotRef) (*Snapshot, error)
}

// CatalogImportUC переносит каталог и маппинг версии в БД одной транзакцией.
type CatalogImportUC interface {
	Import(ctx context.Context, req *ImportCatalogReq) (*ImportCatalogRes, error)
}
