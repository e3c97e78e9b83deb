package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/DRSN-tech/visual-search/internal/cfg"
	"github.com/DRSN-tech/visual-search/internal/usecase"
	"github.com/DRSN-tech/visual-search/pkg/e"
	"github.com/DRSN-tech/visual-search/pkg/jitter"
	"github.com/DRSN-tech/visual-search/pkg/logger"
	"github.com/segmentio/kafka-go"
)

const reloadAttempts = 3

// messageReader: часть kafka.Reader, нужная консьюмеру.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// SnapshotConsumer слушает события о новых снапшотах и перезагружает текущий.
// Каждый инстанс читает топик своей consumer group, поэтому событие получают все реплики.
type SnapshotConsumer struct {
	reader   messageReader
	reloader usecase.SnapshotReloader
	logger   logger.Logger
	backoff  jitter.Backoff
	wg       sync.WaitGroup
}

func NewSnapshotConsumer(cfg *cfg.KafkaCfg, reloader usecase.SnapshotReloader, logger logger.Logger) *SnapshotConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     instanceGroupID(cfg.GroupID),
		Topic:       cfg.Topic,
		MinBytes:    1,
		MaxBytes:    1 << 20,
		MaxWait:     time.Second,
		StartOffset: kafka.LastOffset,
	})

	return newSnapshotConsumer(reader, reloader, logger)
}

func newSnapshotConsumer(reader messageReader, reloader usecase.SnapshotReloader, logger logger.Logger) *SnapshotConsumer {
	return &SnapshotConsumer{
		reader:   reader,
		reloader: reloader,
		logger:   logger,
		backoff:  jitter.NewBackoff(time.Second, 30*time.Second),
	}
}

func (c *SnapshotConsumer) Start(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(ctx)
	}()
}

// Stop ждёт завершения цикла (ctx из Start должен быть отменён) и закрывает reader.
func (c *SnapshotConsumer) Stop() error {
	c.wg.Wait()
	return c.reader.Close()
}

func (c *SnapshotConsumer) run(ctx context.Context) {
	c.logger.Infof("Snapshot consumer started")

	for attempt := 0; ; {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				c.logger.Infof("Snapshot consumer stopped")
				return
			}

			sleepTime := c.backoff.Delay(attempt)
			attempt++
			c.logger.Warnf("Kafka fetch failed, retrying in %v: %v", sleepTime, err)
			if jitter.Wait(ctx, sleepTime) != nil {
				return
			}
			continue
		}
		attempt = 0

		c.handle(ctx, msg)

		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Warnf("Kafka commit failed: offset: %d, %v", msg.Offset, err)
		}
	}
}

// handle перезагружает снапшот по событию. Битое событие и исчерпанные попытки
// только логируются, сообщение коммитится в любом случае.
func (c *SnapshotConsumer) handle(ctx context.Context, msg kafka.Message) {
	event, err := decodeEvent(msg.Value)
	if err != nil {
		c.logger.Errorf(err, "skipping malformed snapshot event at offset %d", msg.Offset)
		return
	}

	for attempt := 0; attempt < reloadAttempts; attempt++ {
		err = c.reloader.Reload(ctx, event.Ref)
		if err == nil {
			c.logger.Infof("Snapshot reloaded from event. event_id: %s, version: %s", event.EventID, event.Ref.Version)
			return
		}
		if ctx.Err() != nil {
			return
		}

		sleepTime := c.backoff.Delay(attempt)
		c.logger.Warnf("snapshot reload failed, retrying in %v (attempt %d): %v", sleepTime, attempt+1, err)
		if jitter.Wait(ctx, sleepTime) != nil {
			return
		}
	}

	c.logger.Errorf(err, "giving up on snapshot version %s after %d attempts", event.Ref.Version, reloadAttempts)
}

func decodeEvent(data []byte) (*usecase.SnapshotPublishedEvent, error) {
	var event usecase.SnapshotPublishedEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("%w: %w", e.ErrStatusBadRequest, err)
	}

	if strings.TrimSpace(event.Ref.Version) == "" {
		return nil, fmt.Errorf("%w: event has no snapshot version", e.ErrStatusBadRequest)
	}

	return &event, nil
}

func instanceGroupID(base string) string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = fmt.Sprintf("pid-%d", os.Getpid())
	}
	return base + "-" + host
}
