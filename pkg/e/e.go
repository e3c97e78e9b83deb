package e

import "fmt"

var (
	// Внутренние ошибки с транзакциями
	ErrTransactionNotFound = fmt.Errorf("transaction not found")

	// Ошибки конфигурации
	ErrIncorrectEnvVariable = fmt.Errorf("incorrect environment variable")

	// Ошибки индекса и снапшота
	ErrIndexLoad         = fmt.Errorf("index load failed")
	ErrIndexNotLoaded    = fmt.Errorf("index not loaded")
	ErrArtifactNotFound  = fmt.Errorf("artifact not found")
	ErrMalformedArtifact = fmt.Errorf("malformed artifact")

	// 400 Bad Request
	ErrStatusBadRequest     = fmt.Errorf("bad request")
	ErrInvalidEmbedding     = fmt.Errorf("invalid embedding")
	ErrDimensionMismatch    = fmt.Errorf("dimension mismatch")
	ErrInvalidTopK          = fmt.Errorf("invalid top_k")
	ErrEmptyQuery           = fmt.Errorf("query is empty")
	ErrNoImage              = fmt.Errorf("no image provided")
	ErrExpectedMultipart    = fmt.Errorf("expected multipart/form-data")
	ErrUnsupportedMediaType = fmt.Errorf("unsupported media type")
	ErrFileTooLarge         = fmt.Errorf("file too large")

	// 502 / 500
	ErrEncoderUnavailable  = fmt.Errorf("encoder unavailable")
	ErrInternalServerError = fmt.Errorf("internal server error")
)

// Wrap оборачивает ошибку
func Wrap(msg string, err error) error {
	return fmt.Errorf("%s: %w", msg, err)
}
