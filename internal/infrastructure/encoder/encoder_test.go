package encoder

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DRSN-tech/visual-search/internal/cfg"
	"github.com/DRSN-tech/visual-search/internal/usecase"
	"github.com/DRSN-tech/visual-search/pkg/e"
	"github.com/DRSN-tech/visual-search/pkg/jitter"
	"github.com/DRSN-tech/visual-search/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type encoderServer interface {
	encodeImage(ctx context.Context, in *wrapperspb.BytesValue) (*structpb.ListValue, error)
	encodeText(ctx context.Context, in *wrapperspb.StringValue) (*structpb.ListValue, error)
}

type fakeServer struct {
	failFirst int32 // сколько первых вызовов вернуть Unavailable
	calls     atomic.Int32
	lastMime  atomic.Value
	code      codes.Code
	reply     *structpb.ListValue
}

func (f *fakeServer) answer() (*structpb.ListValue, error) {
	n := f.calls.Add(1)
	if n <= f.failFirst {
		return nil, status.Error(codes.Unavailable, "warming up")
	}
	if f.code != codes.OK {
		return nil, status.Error(f.code, "rejected")
	}
	return f.reply, nil
}

func (f *fakeServer) encodeImage(ctx context.Context, in *wrapperspb.BytesValue) (*structpb.ListValue, error) {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get(MimeTypeHeader); len(v) > 0 {
			f.lastMime.Store(v[0])
		}
	}
	return f.answer()
}

func (f *fakeServer) encodeText(_ context.Context, in *wrapperspb.StringValue) (*structpb.ListValue, error) {
	return f.answer()
}

var fakeDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*encoderServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "EncodeImage",
			Handler: func(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
				in := new(wrapperspb.BytesValue)
				if err := dec(in); err != nil {
					return nil, err
				}
				return srv.(encoderServer).encodeImage(ctx, in)
			},
		},
		{
			MethodName: "EncodeText",
			Handler: func(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
				in := new(wrapperspb.StringValue)
				if err := dec(in); err != nil {
					return nil, err
				}
				return srv.(encoderServer).encodeText(ctx, in)
			},
		},
	},
}

func newTestEncoder(t *testing.T, srv *fakeServer, retries int) *Encoder {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	s := grpc.NewServer()
	s.RegisterService(&fakeDesc, srv)
	go s.Serve(lis)
	t.Cleanup(s.Stop)

	conn, err := grpc.NewClient(
		"passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	enc := NewEncoder(conn, &cfg.EncoderCfg{MaxConcurrent: 2, MaxRetries: retries, Timeout: 5 * time.Second}, logger.Nop())
	enc.backoff = jitter.NewBackoff(time.Millisecond, 5*time.Millisecond)
	return enc
}

func listOf(values ...float64) *structpb.ListValue {
	list := &structpb.ListValue{}
	for _, v := range values {
		list.Values = append(list.Values, structpb.NewNumberValue(v))
	}
	return list
}

func TestEncoder_EncodeImage(t *testing.T) {
	srv := &fakeServer{reply: listOf(0.5, -0.25, 1)}
	enc := newTestEncoder(t, srv, 3)

	vector, err := enc.EncodeImage(context.Background(), usecase.NewEncodeImageReq([]byte{1, 2, 3}, "image/png"))
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, -0.25, 1}, vector)
	assert.Equal(t, "image/png", srv.lastMime.Load())
}

func TestEncoder_EncodeText(t *testing.T) {
	enc := newTestEncoder(t, &fakeServer{reply: listOf(1, 0)}, 3)

	vector, err := enc.EncodeText(context.Background(), "red chair")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, vector)
}

func TestEncoder_RetriesTransientErrors(t *testing.T) {
	srv := &fakeServer{failFirst: 2, reply: listOf(1)}
	enc := newTestEncoder(t, srv, 3)

	vector, err := enc.EncodeText(context.Background(), "lamp")
	require.NoError(t, err)
	assert.Equal(t, []float32{1}, vector)
	assert.Equal(t, int32(3), srv.calls.Load())
}

func TestEncoder_GivesUp(t *testing.T) {
	srv := &fakeServer{failFirst: 10, reply: listOf(1)}
	enc := newTestEncoder(t, srv, 2)

	_, err := enc.EncodeText(context.Background(), "lamp")
	assert.ErrorIs(t, err, e.ErrEncoderUnavailable)
	assert.Equal(t, int32(2), srv.calls.Load())
}

func TestEncoder_InvalidArgumentNotRetried(t *testing.T) {
	srv := &fakeServer{code: codes.InvalidArgument}
	enc := newTestEncoder(t, srv, 3)

	_, err := enc.EncodeImage(context.Background(), usecase.NewEncodeImageReq([]byte{1}, "image/jpeg"))
	assert.ErrorIs(t, err, e.ErrStatusBadRequest)
	assert.Equal(t, int32(1), srv.calls.Load())
}

func TestEncoder_MalformedResponse(t *testing.T) {
	reply := &structpb.ListValue{Values: []*structpb.Value{structpb.NewStringValue("x")}}
	enc := newTestEncoder(t, &fakeServer{reply: reply}, 3)

	_, err := enc.EncodeText(context.Background(), "lamp")
	assert.ErrorIs(t, err, e.ErrEncoderUnavailable)

	enc = newTestEncoder(t, &fakeServer{reply: listOf()}, 3)
	_, err = enc.EncodeText(context.Background(), "lamp")
	assert.ErrorIs(t, err, e.ErrEncoderUnavailable)
}
