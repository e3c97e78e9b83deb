package grpc

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/DRSN-tech/visual-search/internal/cfg"
	"github.com/DRSN-tech/visual-search/internal/usecase"
	"github.com/DRSN-tech/visual-search/pkg/logger"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// запас над лимитом изображения на обёртку сообщения
const maxRecvMsgSize = maxImageSize + 1<<20

type GRPCServer struct {
	server *grpc.Server
	cfg    *cfg.GRPCConfig
	logger logger.Logger
}

func NewGRPCServer(cfg *cfg.GRPCConfig, logger logger.Logger) *GRPCServer {
	return &GRPCServer{
		server: grpc.NewServer(
			grpc.MaxRecvMsgSize(maxRecvMsgSize),
			grpc.UnaryInterceptor(unaryInterceptor(logger)),
		),
		cfg:    cfg,
		logger: logger,
	}
}

// unaryInterceptor переводит панику обработчика в codes.Internal и пишет
// метод, код ответа и длительность вызова.
func unaryInterceptor(log logger.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		start := time.Now()
		defer func() {
			if r := recover(); r != nil {
				err = status.Error(codes.Internal, "internal server error")
				log.Errorf(fmt.Errorf("panic: %v", r), "gRPC handler panicked. method: %s", info.FullMethod)
			}
			log.Debugf("gRPC call. method: %s, code: %s, duration: %s",
				info.FullMethod, status.Code(err), time.Since(start))
		}()

		return handler(ctx, req)
	}
}

func (s *GRPCServer) RegisterServices(retrievalUC usecase.RetrievalUC) {
	s.server.RegisterService(&RetrievalService_ServiceDesc, NewRetrievalService(retrievalUC, s.logger))
}

func (s *GRPCServer) Start() error {
	addr := fmt.Sprintf(":%s", s.cfg.Port)
	lis, err := net.Listen(s.cfg.NetworkMode, addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	return s.Serve(lis)
}

func (s *GRPCServer) Serve(lis net.Listener) error {
	return s.server.Serve(lis)
}

func (s *GRPCServer) Stop(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Infof("gRPC server stopped gracefully")
		return nil
	case <-ctx.Done():
		s.server.Stop()
		s.logger.Warnf("gRPC server forced to stop after timeout")
		return ctx.Err()
	}
}
