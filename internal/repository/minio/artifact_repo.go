package minio

import (
	"bytes"
	"context"
	"io"

	"github.com/DRSN-tech/visual-search/internal/cfg"
	"github.com/DRSN-tech/visual-search/pkg/e"
	"github.com/jimlawless/whereami"
	"github.com/minio/minio-go/v7"
)

const artifactContentType = "application/octet-stream"

// ArtifactRepo хранит артефакты снапшотов в бакете MinIO.
type ArtifactRepo struct {
	mc  *minio.Client
	cfg *cfg.MinIOCfg
}

func NewArtifactRepo(mc *minio.Client, cfg *cfg.MinIOCfg) *ArtifactRepo {
	return &ArtifactRepo{
		mc:  mc,
		cfg: cfg,
	}
}

// Fetch скачивает объект целиком. Отсутствующий ключ: e.ErrArtifactNotFound.
func (a *ArtifactRepo) Fetch(ctx context.Context, key string) ([]byte, error) {
	obj, err := a.mc.GetObject(ctx, a.cfg.BucketName, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, a.wrapErr(key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, a.wrapErr(key, err)
	}

	return data, nil
}

// Put загружает артефакт в бакет под указанным ключом.
func (a *ArtifactRepo) Put(ctx context.Context, key string, data []byte) error {
	_, err := a.mc.PutObject(ctx, a.cfg.BucketName, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: artifactContentType,
	})
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	return nil
}

func (a *ArtifactRepo) wrapErr(key string, err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return e.Wrap(key, e.ErrArtifactNotFound)
	}
	return e.Wrap(whereami.WhereAmI(), err)
}
