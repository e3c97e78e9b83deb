package converter

// SearchResultRedisModel: одна позиция выдачи в кэше.
type SearchResultRedisModel struct {
	ProductID       string   `json:"product_id"`
	Name            string   `json:"name"`
	Price           *string  `json:"price"`
	URL             string   `json:"url"`
	Category        string   `json:"category"`
	PrimaryImage    string   `json:"primary_image"`
	AllImages       []string `json:"all_images"`
	SimilarityScore float32  `json:"similarity_score"`
}

// ResultsRedisModel: закэшированная выдача вместе с версией снапшота и k.
type ResultsRedisModel struct {
	SnapshotVersion string                   `json:"snapshot_version"`
	TopK            int                      `json:"top_k"`
	Results         []SearchResultRedisModel `json:"results"`
}
