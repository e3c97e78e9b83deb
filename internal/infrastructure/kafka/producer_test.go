package kafka

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/DRSN-tech/visual-search/internal/cfg"
	"github.com/DRSN-tech/visual-search/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// closedAddr возвращает адрес, на котором гарантированно никто не слушает.
func closedAddr(t *testing.T) string {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	require.NoError(t, lis.Close())
	return addr
}

func TestProducer_EnsureTopic_NoBrokers(t *testing.T) {
	p := NewProducer(logger.Nop(), &cfg.KafkaCfg{Topic: "snapshots", NetworkMode: "tcp"})
	defer p.Close()

	err := p.EnsureTopic(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no kafka brokers")
}

func TestProducer_EnsureTopic_Unreachable(t *testing.T) {
	a, b := closedAddr(t), closedAddr(t)
	p := NewProducer(logger.Nop(), &cfg.KafkaCfg{
		Topic:       "snapshots",
		NetworkMode: "tcp",
		Brokers:     []string{a, b},
	})
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := p.EnsureTopic(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), a)
	assert.Contains(t, err.Error(), b)
}
