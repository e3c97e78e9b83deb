package http

import (
	_ "github.com/DRSN-tech/visual-search/docs" // регистрация swagger-спецификации
	"github.com/DRSN-tech/visual-search/internal/cfg"
	"github.com/DRSN-tech/visual-search/internal/usecase"
	"github.com/DRSN-tech/visual-search/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger/v2"
)

type Router struct {
	router *chi.Mux
	cfg    *cfg.HTTPConfig
	logger logger.Logger
}

func NewRouter(router *chi.Mux, cfg *cfg.HTTPConfig, logger logger.Logger) *Router {
	return &Router{router: router, cfg: cfg, logger: logger}
}

func (r *Router) Init(retrievalUC usecase.RetrievalUC, snapshots SnapshotStatus) {
	r.router.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)

	r.router.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL(r.cfg.SwaggerURL), // ссылка на JSON
	))

	r.router.Route("/api/v1", func(v1 chi.Router) {
		healthHandler := NewHealthHandler(snapshots)
		v1.Get("/healthz", healthHandler.healthz)
		v1.Get("/readyz", healthHandler.readyz)

		searchHandler := NewSearchHandler(retrievalUC, r.logger)
		registerSearchRoutes(v1, searchHandler)
	})
}

func registerSearchRoutes(router chi.Router, h *SearchHandler) {
	router.Route("/search", func(sr chi.Router) {
		sr.Post("/image", h.searchByImage)
		sr.Post("/text", h.searchByText)
		sr.Post("/vector", h.searchByVector)
	})
}
