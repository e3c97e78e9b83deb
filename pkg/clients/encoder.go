package clients

import (
	"github.com/DRSN-tech/visual-search/internal/cfg"
	"github.com/DRSN-tech/visual-search/pkg/e"
	"github.com/jimlawless/whereami"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// NewEncoderConn создаёт ленивое gRPC-соединение с сервисом векторизации.
func NewEncoderConn(cfg *cfg.EncoderCfg) (*grpc.ClientConn, error) {
	conn, err := grpc.NewClient(
		cfg.Addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return conn, nil
}
