package models

import (
	"fmt"
	"strings"
)

// SearchQuery is a semantic search request.
type SearchQuery struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"` // 0 selects the configured default
}

// Validate trims the query and rejects blank queries and negative limits.
func (q *SearchQuery) Validate() error {
	q.Query = strings.TrimSpace(q.Query)
	if q.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	if q.Limit < 0 {
		return fmt.Errorf("limit cannot be negative")
	}
	return nil
}
