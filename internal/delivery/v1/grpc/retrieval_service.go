package grpc

import (
	"context"
	"strconv"

	"github.com/DRSN-tech/visual-search/internal/infrastructure"
	"github.com/DRSN-tech/visual-search/internal/usecase"
	"github.com/DRSN-tech/visual-search/pkg/e"
	"github.com/DRSN-tech/visual-search/pkg/logger"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	RetrievalServiceName = "retrieval.v1.RetrievalService"

	// TopKHeader: top_k для SearchByImage, тело которого содержит только байты изображения.
	TopKHeader = "x-top-k"

	maxImageSize = 15 << 20
)

// RetrievalServer: поиск похожих товаров: запросы и ответы передаются как google.protobuf.Struct
// с теми же полями, что и в HTTP API.
type RetrievalServer interface {
	SearchByVector(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	SearchByText(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	SearchByImage(ctx context.Context, req *wrapperspb.BytesValue) (*structpb.Struct, error)
}

type RetrievalService struct {
	retrievalUC usecase.RetrievalUC
	logger      logger.Logger
}

func NewRetrievalService(retrievalUC usecase.RetrievalUC, logger logger.Logger) *RetrievalService {
	return &RetrievalService{retrievalUC: retrievalUC, logger: logger}
}

func (g *RetrievalService) SearchByVector(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	const op = "grpc.SearchByVector"

	vector, err := vectorField(req)
	if err != nil {
		return nil, g.fail(op, err)
	}
	topK, err := topKField(req)
	if err != nil {
		return nil, g.fail(op, err)
	}

	res, err := g.retrievalUC.Retrieve(ctx, usecase.NewRetrieveReq(vector, topK))
	if err != nil {
		return nil, g.fail(op, err)
	}

	return g.respond(op, res)
}

func (g *RetrievalService) SearchByText(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	const op = "grpc.SearchByText"

	topK, err := topKField(req)
	if err != nil {
		return nil, g.fail(op, err)
	}

	query := req.GetFields()["query"].GetStringValue()
	res, err := g.retrievalUC.RetrieveByText(ctx, usecase.NewTextQueryReq(query, topK))
	if err != nil {
		return nil, g.fail(op, err)
	}

	return g.respond(op, res)
}

func (g *RetrievalService) SearchByImage(ctx context.Context, req *wrapperspb.BytesValue) (*structpb.Struct, error) {
	const op = "grpc.SearchByImage"

	data := req.GetValue()
	if len(data) > maxImageSize {
		return nil, g.fail(op, e.ErrFileTooLarge)
	}

	mimeType, err := infrastructure.DetectImageMIME(data)
	if err != nil {
		return nil, g.fail(op, err)
	}

	topK := 0
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get(TopKHeader); len(v) > 0 {
			k, err := strconv.Atoi(v[0])
			if err != nil {
				return nil, g.fail(op, e.ErrInvalidTopK)
			}
			topK = k
		}
	}

	res, err := g.retrievalUC.RetrieveByImage(ctx, usecase.NewImageQueryReq(data, mimeType, topK))
	if err != nil {
		return nil, g.fail(op, err)
	}

	return g.respond(op, res)
}

func (g *RetrievalService) fail(op string, err error) error {
	resp := GRPCErrorResponse(err)
	switch status.Code(resp) {
	case codes.Internal, codes.Unavailable:
		g.logger.Errorf(e.Wrap(op, err), "%s", op)
	default:
		g.logger.Warnf("%s: %v", op, err)
	}
	return resp
}

func (g *RetrievalService) respond(op string, res *usecase.RetrieveRes) (*structpb.Struct, error) {
	out, err := toGRPCResponse(res)
	if err != nil {
		g.logger.Errorf(e.Wrap(op, err), "%s", op)
		return nil, GRPCErrorResponse(e.Wrap(op, err))
	}
	return out, nil
}

func _RetrievalService_SearchByVector_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RetrievalServer).SearchByVector(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/" + RetrievalServiceName + "/SearchByVector",
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(RetrievalServer).SearchByVector(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func _RetrievalService_SearchByText_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RetrievalServer).SearchByText(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/" + RetrievalServiceName + "/SearchByText",
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(RetrievalServer).SearchByText(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func _RetrievalService_SearchByImage_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RetrievalServer).SearchByImage(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/" + RetrievalServiceName + "/SearchByImage",
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(RetrievalServer).SearchByImage(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

var RetrievalService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: RetrievalServiceName,
	HandlerType: (*RetrievalServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SearchByVector", Handler: _RetrievalService_SearchByVector_Handler},
		{MethodName: "SearchByText", Handler: _RetrievalService_SearchByText_Handler},
		{MethodName: "SearchByImage", Handler: _RetrievalService_SearchByImage_Handler},
	},
	Streams: []grpc.StreamDesc{},
}
