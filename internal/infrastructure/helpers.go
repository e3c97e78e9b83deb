package infrastructure

import (
	"fmt"
	"net/http"

	"github.com/DRSN-tech/visual-search/pkg/e"
)

// sniffLen: сколько байт смотрит http.DetectContentType.
const sniffLen = 512

// DetectImageMIME определяет MIME-тип изображения по содержимому.
// Поддерживаются jpeg, png и webp; остальное: e.ErrUnsupportedMediaType, пустые данные: e.ErrNoImage.
func DetectImageMIME(data []byte) (string, error) {
	if len(data) == 0 {
		return "", e.ErrNoImage
	}

	mime := http.DetectContentType(data[:min(len(data), sniffLen)])
	switch mime {
	case "image/jpeg", "image/png", "image/webp":
		return mime, nil
	default:
		return "", fmt.Errorf("%w: %s", e.ErrUnsupportedMediaType, mime)
	}
}
