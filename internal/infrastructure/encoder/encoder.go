package encoder

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/DRSN-tech/visual-search/internal/cfg"
	"github.com/DRSN-tech/visual-search/internal/usecase"
	"github.com/DRSN-tech/visual-search/pkg/e"
	"github.com/DRSN-tech/visual-search/pkg/jitter"
	"github.com/DRSN-tech/visual-search/pkg/logger"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Методы сервиса векторизации encoder.v1.EncoderService.
const (
	ServiceName       = "encoder.v1.EncoderService"
	EncodeImageMethod = "/" + ServiceName + "/EncodeImage"
	EncodeTextMethod  = "/" + ServiceName + "/EncodeText"

	// MimeTypeHeader: MIME-тип изображения в метаданных запроса EncodeImage.
	MimeTypeHeader = "x-image-mime-type"
)

// Encoder: клиент сервиса векторизации изображений и текста.
type Encoder struct {
	conn       grpc.ClientConnInterface
	sem        chan struct{}
	maxRetries int
	timeout    time.Duration
	backoff    jitter.Backoff
	logger     logger.Logger
}

func NewEncoder(conn grpc.ClientConnInterface, cfg *cfg.EncoderCfg, logger logger.Logger) *Encoder {
	return &Encoder{
		conn:       conn,
		sem:        make(chan struct{}, max(cfg.MaxConcurrent, 1)),
		maxRetries: max(cfg.MaxRetries, 1),
		timeout:    cfg.Timeout,
		backoff:    jitter.NewBackoff(100*time.Millisecond, 2*time.Second),
		logger:     logger,
	}
}

// EncodeImage возвращает вектор признаков изображения.
func (c *Encoder) EncodeImage(ctx context.Context, req *usecase.EncodeImageReq) ([]float32, error) {
	const op = "Encoder.EncodeImage"

	if req.MimeType != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, MimeTypeHeader, req.MimeType)
	}

	vector, err := c.invokeWithRetry(ctx, EncodeImageMethod, wrapperspb.Bytes(req.Data))
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	return vector, nil
}

// EncodeText возвращает вектор признаков текстового описания.
func (c *Encoder) EncodeText(ctx context.Context, text string) ([]float32, error) {
	const op = "Encoder.EncodeText"

	vector, err := c.invokeWithRetry(ctx, EncodeTextMethod, wrapperspb.String(text))
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	return vector, nil
}

// invokeWithRetry повторяет временные ошибки с экспоненциальной задержкой и джиттером.
func (c *Encoder) invokeWithRetry(ctx context.Context, method string, in any) ([]float32, error) {
	select {
	case c.sem <- struct{}{}:
		defer func() { <-c.sem }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		vector, err := c.invoke(ctx, method, in)
		if err == nil {
			return vector, nil
		}
		if !retryable(err) {
			return nil, classify(err)
		}
		lastErr = err

		if attempt == c.maxRetries-1 {
			break
		}

		sleepTime := c.backoff.Delay(attempt)
		c.logger.Warnf("encoding failed, retrying in %v (attempt %d): %v", sleepTime, attempt+1, err)
		if err := jitter.Wait(ctx, sleepTime); err != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("%w: all %d attempts failed: %w", e.ErrEncoderUnavailable, c.maxRetries, lastErr)
}

func (c *Encoder) invoke(ctx context.Context, method string, in any) ([]float32, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	out := &structpb.ListValue{}
	if err := c.conn.Invoke(ctx, method, in, out); err != nil {
		return nil, err
	}

	return toVector(out)
}

// toVector переводит ответ encoder-а в []float32; нечисловые и бесконечные значения: ошибка ответа.
func toVector(list *structpb.ListValue) ([]float32, error) {
	values := list.GetValues()
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: empty vector in response", e.ErrEncoderUnavailable)
	}

	vector := make([]float32, len(values))
	for i, v := range values {
		n, ok := v.GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return nil, fmt.Errorf("%w: component %d is not a number", e.ErrEncoderUnavailable, i)
		}
		f := float32(n.NumberValue)
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			return nil, fmt.Errorf("%w: component %d is not finite", e.ErrEncoderUnavailable, i)
		}
		vector[i] = f
	}

	return vector, nil
}

func retryable(err error) bool {
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
		return true
	default:
		return false
	}
}

// classify сводит ошибку вызова к доменной: отказ во входных данных: 400, остальное: недоступность encoder-а.
func classify(err error) error {
	if errors.Is(err, e.ErrEncoderUnavailable) {
		return err
	}

	switch status.Code(err) {
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", e.ErrStatusBadRequest, status.Convert(err).Message())
	case codes.Canceled:
		return fmt.Errorf("%w: %w", context.Canceled, err)
	default:
		return fmt.Errorf("%w: %w", e.ErrEncoderUnavailable, err)
	}
}
