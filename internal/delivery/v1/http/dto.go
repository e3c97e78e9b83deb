package http

import (
	"github.com/DRSN-tech/visual-search/internal/domain"
	"github.com/DRSN-tech/visual-search/internal/usecase"
)

// SearchResponse: выдача поиска.
type SearchResponse struct {
	SnapshotVersion string                `json:"snapshot_version"`
	Cached          bool                  `json:"cached"`
	Results         []domain.SearchResult `json:"results"`
}

// VectorSearchRequest: поиск по готовому вектору признаков.
type VectorSearchRequest struct {
	Vector []float32 `json:"vector"`
	TopK   int       `json:"top_k"`
}

func NewSearchResponse(res *usecase.RetrieveRes) *SearchResponse {
	results := res.Results
	if results == nil {
		results = []domain.SearchResult{}
	}

	return &SearchResponse{
		SnapshotVersion: res.SnapshotVersion,
		Cached:          res.Cached,
		Results:         results,
	}
}
