package clients

import (
	"context"

	"github.com/DRSN-tech/visual-search/internal/cfg"
	"github.com/DRSN-tech/visual-search/pkg/e"
	"github.com/jimlawless/whereami"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

func NewMinIOClient(cfg *cfg.MinIOCfg) (*minio.Client, error) {
	minioClient, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioRootUser, cfg.MinioRootPassword, ""),
		Secure: cfg.MinioUseSSL,
	})
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return minioClient, nil
}

// EnsureBucket создаёт бакет снапшотов, если его нет. Бакет, созданный
// параллельно другим процессом, не ошибка.
func EnsureBucket(ctx context.Context, client *minio.Client, bucketName string) error {
	const op = "clients.EnsureBucket"

	exists, err := client.BucketExists(ctx, bucketName)
	if err != nil {
		return e.Wrap(op, err)
	}
	if exists {
		return nil
	}

	err = client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{})
	if err != nil && !bucketOwned(err) {
		return e.Wrap(op, err)
	}

	return nil
}

func bucketOwned(err error) bool {
	return minio.ToErrorResponse(err).Code == minio.BucketAlreadyOwnedByYou
}
