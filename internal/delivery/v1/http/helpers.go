package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/DRSN-tech/visual-search/internal/infrastructure"
	"github.com/DRSN-tech/visual-search/pkg/e"
	"github.com/jimlawless/whereami"
)

type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func NewErrorResponse(code int, message string) *ErrorResponse {
	return &ErrorResponse{
		Code:    code,
		Message: message,
	}
}

func ToHTTPResponse(err error) (int, string) {
	switch {
	case errors.Is(err, e.ErrInvalidEmbedding):
		return http.StatusBadRequest, e.ErrInvalidEmbedding.Error()
	case errors.Is(err, e.ErrDimensionMismatch):
		return http.StatusBadRequest, e.ErrDimensionMismatch.Error()
	case errors.Is(err, e.ErrInvalidTopK):
		return http.StatusBadRequest, e.ErrInvalidTopK.Error()
	case errors.Is(err, e.ErrEmptyQuery):
		return http.StatusBadRequest, e.ErrEmptyQuery.Error()
	case errors.Is(err, e.ErrNoImage):
		return http.StatusBadRequest, e.ErrNoImage.Error()
	case errors.Is(err, e.ErrExpectedMultipart):
		return http.StatusBadRequest, e.ErrExpectedMultipart.Error()
	case errors.Is(err, e.ErrStatusBadRequest):
		return http.StatusBadRequest, e.ErrStatusBadRequest.Error()
	case errors.Is(err, e.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge, e.ErrFileTooLarge.Error()
	case errors.Is(err, e.ErrUnsupportedMediaType):
		return http.StatusUnsupportedMediaType, e.ErrUnsupportedMediaType.Error()
	case errors.Is(err, e.ErrEncoderUnavailable):
		return http.StatusBadGateway, e.ErrEncoderUnavailable.Error()
	case errors.Is(err, e.ErrIndexNotLoaded):
		return http.StatusServiceUnavailable, e.ErrIndexNotLoaded.Error()
	case errors.Is(err, e.ErrIndexLoad):
		return http.StatusServiceUnavailable, e.ErrIndexLoad.Error()
	default:
		return http.StatusInternalServerError, e.ErrInternalServerError.Error()
	}
}

func WriteError(w http.ResponseWriter, err error) {
	code, msg := ToHTTPResponse(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(NewErrorResponse(code, msg))
}

func WriteSuccess(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func ensureMultipartForm(r *http.Request, maxMemory int64) error {
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		return e.Wrap(whereami.WhereAmI(), e.ErrExpectedMultipart)
	}

	if err := r.ParseMultipartForm(maxMemory); err != nil {
		return bodyErr(err)
	}

	return nil
}

// bodyErr отличает превышение лимита тела запроса от прочих ошибок разбора.
func bodyErr(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return e.Wrap(whereami.WhereAmI(), e.ErrFileTooLarge)
	}
	return e.Wrap(whereami.WhereAmI(), fmt.Errorf("%w: %w", e.ErrStatusBadRequest, err))
}

// parseTopK разбирает необязательный top_k; пустое значение: 0 (значение по умолчанию).
func parseTopK(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}

	k, err := strconv.Atoi(raw)
	if err != nil {
		return 0, e.Wrap(fmt.Sprintf("top_k %q", raw), e.ErrInvalidTopK)
	}

	return k, nil
}

// readImage читает загруженное изображение и определяет его MIME-тип по содержимому.
func readImage(fh *multipart.FileHeader, maxSize int64) ([]byte, string, error) {
	if fh.Size > maxSize {
		return nil, "", e.Wrap(fh.Filename, e.ErrFileTooLarge)
	}

	src, err := fh.Open()
	if err != nil {
		return nil, "", e.ErrInternalServerError
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, maxSize+1))
	if err != nil {
		return nil, "", e.ErrInternalServerError
	}
	if int64(len(data)) > maxSize {
		return nil, "", e.Wrap(fh.Filename, e.ErrFileTooLarge)
	}

	mimeType, err := infrastructure.DetectImageMIME(data)
	if err != nil {
		return nil, "", e.Wrap(fh.Filename, err)
	}

	return data, mimeType, nil
}
