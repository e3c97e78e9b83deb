package main

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	config "github.com/DRSN-tech/visual-search/internal/cfg"
	"github.com/DRSN-tech/visual-search/internal/infrastructure/kafka"
	s3Repo "github.com/DRSN-tech/visual-search/internal/repository/minio"
	"github.com/DRSN-tech/visual-search/internal/usecase"
	"github.com/DRSN-tech/visual-search/pkg/clients"
	"github.com/DRSN-tech/visual-search/pkg/logger"
	"github.com/spf13/cobra"
)

const topicTimeout = 10 * time.Second

func NewPublishCmd(log logger.Logger) *cobra.Command {
	var (
		dir     string
		version string
		notify  bool
	)

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Upload a snapshot version to MinIO and announce it",
		Long: `Uploads index, mapping and catalog from a build directory under <version>/ in the
artifact bucket, then publishes a snapshot event so running instances reload it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ref := snapshotRef(version)
			if err := uploadSnapshot(cmd.Context(), dir, ref, log); err != nil {
				return err
			}
			if !notify {
				return nil
			}
			return announceSnapshot(cmd.Context(), ref, log)
		},
	}

	cmd.Flags().StringVarP(&dir, "dir", "d", "snapshot", "Build directory")
	cmd.Flags().StringVar(&version, "version", "", "Snapshot version")
	cmd.Flags().BoolVar(&notify, "notify", true, "Publish a snapshot event to Kafka")
	_ = cmd.MarkFlagRequired("version")

	return cmd
}

// snapshotRef раскладывает артефакты версии по ключам <version>/<file>.
func snapshotRef(version string) usecase.SnapshotRef {
	return usecase.NewSnapshotRef(
		version,
		path.Join(version, indexFile),
		path.Join(version, mappingFile),
		path.Join(version, catalogFile),
	)
}

func uploadSnapshot(ctx context.Context, dir string, ref usecase.SnapshotRef, log logger.Logger) error {
	minioCfg, err := config.LoadMinIO(log)
	if err != nil {
		return err
	}

	minioClient, err := clients.NewMinIOClient(minioCfg)
	if err != nil {
		return fmt.Errorf("minio client: %w", err)
	}
	if err := clients.EnsureBucket(ctx, minioClient, minioCfg.BucketName); err != nil {
		return fmt.Errorf("minio bucket: %w", err)
	}

	return putArtifacts(ctx, s3Repo.NewArtifactRepo(minioClient, minioCfg), dir, ref, log)
}

func putArtifacts(ctx context.Context, store usecase.ArtifactRepository, dir string, ref usecase.SnapshotRef, log logger.Logger) error {
	files := []struct {
		name string
		key  string
	}{
		{indexFile, ref.IndexKey},
		{mappingFile, ref.MappingKey},
		{catalogFile, ref.CatalogKey},
	}

	for _, f := range files {
		data, err := os.ReadFile(filepath.Join(dir, f.name))
		if err != nil {
			return err
		}
		if err := store.Put(ctx, f.key, data); err != nil {
			return fmt.Errorf("upload %s: %w", f.key, err)
		}
		log.Infof("Uploaded %s (%d bytes)", f.key, len(data))
	}

	return nil
}

func announceSnapshot(ctx context.Context, ref usecase.SnapshotRef, log logger.Logger) error {
	kafkaCfg, err := config.LoadKafka()
	if err != nil {
		return err
	}
	if !kafkaCfg.Enabled {
		log.Warnf("KAFKA_BROKERS is not set, snapshot %s uploaded without an event", ref.Version)
		return nil
	}

	producer := kafka.NewProducer(log, kafkaCfg)
	defer producer.Close()

	topicCtx, cancel := context.WithTimeout(ctx, topicTimeout)
	defer cancel()
	if err := producer.EnsureTopic(topicCtx); err != nil {
		return fmt.Errorf("kafka topic: %w", err)
	}

	return publishEvent(ctx, producer, ref)
}

func publishEvent(ctx context.Context, producer usecase.MessageProducer, ref usecase.SnapshotRef) error {
	if err := producer.PublishSnapshot(ctx, usecase.NewSnapshotPublishedEvent(ref)); err != nil {
		return fmt.Errorf("publish snapshot event: %w", err)
	}
	return nil
}
