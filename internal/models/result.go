package models

// SearchResult is a single semantic search hit.
type SearchResult struct {
	Item  *Item   `json:"item"`
	Score float32 `json:"score"`
}

// SearchResponse is the response for a search request.
type SearchResponse struct {
	Query   string          `json:"query"`
	Results []*SearchResult `json:"results"`
	Total   int             `json:"total"`
	TookMs  int64           `json:"took_ms"`
}
