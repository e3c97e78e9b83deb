package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/DRSN-tech/visual-search/internal/cfg"
	"github.com/DRSN-tech/visual-search/internal/usecase"
	"github.com/DRSN-tech/visual-search/pkg/e"
	"github.com/DRSN-tech/visual-search/pkg/logger"
	"github.com/jimlawless/whereami"
	"github.com/segmentio/kafka-go"
)

// Producer публикует события о новых снапшотах.
type Producer struct {
	writer *kafka.Writer
	logger logger.Logger
	cfg    *cfg.KafkaCfg
}

func NewProducer(logger logger.Logger, cfg *cfg.KafkaCfg) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchSize:    1,
		WriteTimeout: 10 * time.Second,
	}

	return &Producer{
		writer: writer,
		logger: logger,
		cfg:    cfg,
	}
}

// PublishSnapshot пишет событие с ключом-версией: события одной версии попадают в одну партицию.
func (p *Producer) PublishSnapshot(ctx context.Context, event *usecase.SnapshotPublishedEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.Ref.Version),
		Value: value,
	})
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	p.logger.Infof("Snapshot event published. event_id: %s, version: %s, topic: %s", event.EventID, event.Ref.Version, p.cfg.Topic)
	return nil
}

// EnsureTopic создаёт топик снапшотов, если его нет. Создание идёт через
// контроллер кластера, сроки берутся из ctx.
func (p *Producer) EnsureTopic(ctx context.Context) error {
	const op = "Producer.EnsureTopic"

	conn, err := p.dialAny(ctx)
	if err != nil {
		return e.Wrap(op, err)
	}
	defer conn.Close()
	withDeadline(ctx, conn)

	partitions, err := conn.ReadPartitions(p.cfg.Topic)
	if err == nil && len(partitions) > 0 {
		return nil
	}

	controller, err := conn.Controller()
	if err != nil {
		return e.Wrap(op, fmt.Errorf("find controller: %w", err))
	}

	ctrl, err := kafka.DialContext(ctx, p.cfg.NetworkMode, net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return e.Wrap(op, fmt.Errorf("dial controller: %w", err))
	}
	defer ctrl.Close()
	withDeadline(ctx, ctrl)

	err = ctrl.CreateTopics(kafka.TopicConfig{
		Topic:             p.cfg.Topic,
		NumPartitions:     p.cfg.Partitions,
		ReplicationFactor: p.cfg.ReplicationFactor,
	})
	if err != nil && !errors.Is(err, kafka.TopicAlreadyExists) {
		return e.Wrap(op, fmt.Errorf("create topic %s: %w", p.cfg.Topic, err))
	}

	p.logger.Infof("Kafka topic ready. topic: %s, partitions: %d", p.cfg.Topic, p.cfg.Partitions)
	return nil
}

// dialAny подключается к первому доступному брокеру из списка.
func (p *Producer) dialAny(ctx context.Context) (*kafka.Conn, error) {
	var errs []error
	for _, broker := range p.cfg.Brokers {
		conn, err := kafka.DialContext(ctx, p.cfg.NetworkMode, broker)
		if err == nil {
			return conn, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", broker, err))
	}
	if len(errs) == 0 {
		return nil, fmt.Errorf("no kafka brokers configured")
	}
	return nil, errors.Join(errs...)
}

func withDeadline(ctx context.Context, conn *kafka.Conn) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
