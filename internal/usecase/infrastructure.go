package usecase

import "context"

// EncoderInfra переводит изображение или текст в вектор признаков.
type EncoderInfra interface {
	EncodeImage(ctx context.Context, req *EncodeImageReq) ([]float32, error)
	EncodeText(ctx context.Context, text string) ([]float32, error)
}

// SnapshotProvider отдаёт текущий загруженный снапшот.
type SnapshotProvider interface {
	Current(ctx context.Context) (*Snapshot, error)
}

// SnapshotReloader подменяет текущий снапшот новой версией.
type SnapshotReloader interface {
	Reload(ctx context.Context, ref SnapshotRef) error
}

// MessageProducer публикует события о новых снапшотах.
type MessageProducer interface {
	PublishSnapshot(ctx context.Context, event *SnapshotPublishedEvent) error
}
