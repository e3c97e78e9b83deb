package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/DRSN-tech/visual-search/internal/usecase"
	"github.com/DRSN-tech/visual-search/pkg/e"
	"github.com/DRSN-tech/visual-search/pkg/logger"
)

const (
	maxImageSize    = 15 << 20
	maxImageRequest = maxImageSize + 1<<20
	maxFormRequest  = 1 << 20
	maxVectorBody   = 4 << 20
	multipartMemory = 16 << 20
)

type SearchHandler struct {
	retrievalUC usecase.RetrievalUC
	logger      logger.Logger
}

func NewSearchHandler(retrievalUC usecase.RetrievalUC, logger logger.Logger) *SearchHandler {
	return &SearchHandler{retrievalUC: retrievalUC, logger: logger}
}

// searchByImage
//
//	@Summary		Поиск похожих товаров по изображению
//	@Description	Векторизует изображение и возвращает до top_k уникальных товаров по убыванию сходства
//	@Tags			search
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			image	formData	file			true	"Изображение (jpeg, png, webp, до 15 MiB)"
//	@Param			top_k	formData	int				false	"Количество товаров (по умолчанию 5)"
//	@Success		200		{object}	SearchResponse	"Выдача"
//	@Failure		400		{object}	ErrorResponse	"Ошибка валидации"
//	@Failure		413		{object}	ErrorResponse	"Файл слишком большой"
//	@Failure		415		{object}	ErrorResponse	"Неподдерживаемый формат"
//	@Failure		502		{object}	ErrorResponse	"Сервис векторизации недоступен"
//	@Failure		503		{object}	ErrorResponse	"Индекс не загружен"
//	@Router			/search/image [post]
func (h *SearchHandler) searchByImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImageRequest)

	if err := ensureMultipartForm(r, multipartMemory); err != nil {
		h.writeError(w, r, err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	topK, err := parseTopK(r.FormValue("top_k"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	files := r.MultipartForm.File["image"]
	if len(files) == 0 {
		h.writeError(w, r, e.ErrNoImage)
		return
	}
	if len(files) > 1 {
		h.writeError(w, r, e.Wrap("expected a single image", e.ErrStatusBadRequest))
		return
	}

	data, mimeType, err := readImage(files[0], maxImageSize)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.retrievalUC.RetrieveByImage(r.Context(), usecase.NewImageQueryReq(data, mimeType, topK))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	WriteSuccess(w, http.StatusOK, NewSearchResponse(res))
}

// searchByText
//
//	@Summary		Поиск похожих товаров по текстовому описанию
//	@Tags			search
//	@Accept			x-www-form-urlencoded
//	@Produce		json
//	@Param			query	formData	string			true	"Описание товара"
//	@Param			top_k	formData	int				false	"Количество товаров (по умолчанию 5)"
//	@Success		200		{object}	SearchResponse	"Выдача"
//	@Failure		400		{object}	ErrorResponse	"Ошибка валидации"
//	@Failure		502		{object}	ErrorResponse	"Сервис векторизации недоступен"
//	@Failure		503		{object}	ErrorResponse	"Индекс не загружен"
//	@Router			/search/text [post]
func (h *SearchHandler) searchByText(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormRequest)

	var err error
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		err = r.ParseMultipartForm(maxFormRequest)
	} else {
		err = r.ParseForm()
	}
	if err != nil {
		h.writeError(w, r, bodyErr(err))
		return
	}

	topK, err := parseTopK(r.FormValue("top_k"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.retrievalUC.RetrieveByText(r.Context(), usecase.NewTextQueryReq(r.FormValue("query"), topK))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	WriteSuccess(w, http.StatusOK, NewSearchResponse(res))
}

// searchByVector
//
//	@Summary		Поиск похожих товаров по вектору признаков
//	@Tags			search
//	@Accept			json
//	@Produce		json
//	@Param			request	body		VectorSearchRequest	true	"Вектор и top_k"
//	@Success		200		{object}	SearchResponse		"Выдача"
//	@Failure		400		{object}	ErrorResponse		"Ошибка валидации"
//	@Failure		503		{object}	ErrorResponse		"Индекс не загружен"
//	@Router			/search/vector [post]
func (h *SearchHandler) searchByVector(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxVectorBody)

	var req VectorSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, bodyErr(err))
		return
	}

	res, err := h.retrievalUC.Retrieve(r.Context(), usecase.NewRetrieveReq(req.Vector, req.TopK))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	WriteSuccess(w, http.StatusOK, NewSearchResponse(res))
}

func (h *SearchHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code, _ := ToHTTPResponse(err)
	if code >= http.StatusInternalServerError {
		h.logger.Errorf(err, "%d %s", code, r.URL.Path)
	} else {
		h.logger.Warnf("%d %s: %s", code, r.URL.Path, err.Error())
	}
	WriteError(w, err)
}
