package grpc

import (
	"errors"
	"math"

	"github.com/DRSN-tech/visual-search/internal/domain"
	"github.com/DRSN-tech/visual-search/internal/usecase"
	"github.com/DRSN-tech/visual-search/pkg/e"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

func GRPCErrorResponse(err error) error {
	switch {
	case errors.Is(err, e.ErrInvalidEmbedding):
		return status.Error(codes.InvalidArgument, e.ErrInvalidEmbedding.Error())
	case errors.Is(err, e.ErrDimensionMismatch):
		return status.Error(codes.InvalidArgument, e.ErrDimensionMismatch.Error())
	case errors.Is(err, e.ErrInvalidTopK):
		return status.Error(codes.InvalidArgument, e.ErrInvalidTopK.Error())
	case errors.Is(err, e.ErrEmptyQuery):
		return status.Error(codes.InvalidArgument, e.ErrEmptyQuery.Error())
	case errors.Is(err, e.ErrNoImage):
		return status.Error(codes.InvalidArgument, e.ErrNoImage.Error())
	case errors.Is(err, e.ErrUnsupportedMediaType):
		return status.Error(codes.InvalidArgument, e.ErrUnsupportedMediaType.Error())
	case errors.Is(err, e.ErrFileTooLarge):
		return status.Error(codes.ResourceExhausted, e.ErrFileTooLarge.Error())
	case errors.Is(err, e.ErrStatusBadRequest):
		return status.Error(codes.InvalidArgument, e.ErrStatusBadRequest.Error())
	case errors.Is(err, e.ErrEncoderUnavailable):
		return status.Error(codes.Unavailable, e.ErrEncoderUnavailable.Error())
	case errors.Is(err, e.ErrIndexNotLoaded):
		return status.Error(codes.FailedPrecondition, e.ErrIndexNotLoaded.Error())
	case errors.Is(err, e.ErrIndexLoad):
		return status.Error(codes.Unavailable, e.ErrIndexLoad.Error())
	default:
		return status.Error(codes.Internal, e.ErrInternalServerError.Error())
	}
}

// topKField читает необязательное целое поле top_k; отсутствие: 0 (значение по умолчанию).
func topKField(s *structpb.Struct) (int, error) {
	v, ok := s.GetFields()["top_k"]
	if !ok {
		return 0, nil
	}

	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok || n.NumberValue != math.Trunc(n.NumberValue) || math.Abs(n.NumberValue) > math.MaxInt32 {
		return 0, e.ErrInvalidTopK
	}

	return int(n.NumberValue), nil
}

// vectorField читает поле vector как список чисел; проверка конечности: на стороне нормализации.
func vectorField(s *structpb.Struct) ([]float32, error) {
	list := s.GetFields()["vector"].GetListValue()
	if list == nil {
		return nil, e.Wrap("vector must be a list of numbers", e.ErrInvalidEmbedding)
	}

	vector := make([]float32, len(list.GetValues()))
	for i, v := range list.GetValues() {
		n, ok := v.GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return nil, e.Wrap("vector must be a list of numbers", e.ErrInvalidEmbedding)
		}
		vector[i] = float32(n.NumberValue)
	}

	return vector, nil
}

func toGRPCResult(r *domain.SearchResult) map[string]any {
	var price any
	if r.Price.Valid {
		price = r.Price.Decimal.String()
	}

	images := make([]any, len(r.AllImages))
	for i, img := range r.AllImages {
		images[i] = img
	}

	return map[string]any{
		"product_id":       string(r.ProductID),
		"name":             r.Name,
		"price":            price,
		"url":              r.URL,
		"category":         r.Category,
		"primary_image":    r.PrimaryImage,
		"all_images":       images,
		"similarity_score": float64(r.SimilarityScore),
	}
}

func toGRPCResponse(res *usecase.RetrieveRes) (*structpb.Struct, error) {
	results := make([]any, len(res.Results))
	for i := range res.Results {
		results[i] = toGRPCResult(&res.Results[i])
	}

	return structpb.NewStruct(map[string]any{
		"snapshot_version": res.SnapshotVersion,
		"cached":           res.Cached,
		"results":          results,
	})
}
