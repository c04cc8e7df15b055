package search

import (
	"context"

	"folio/api/internal/policy"
)

// Result is a single search hit returned to the caller.
type Result struct {
	ID      string       `json:"id"`
	Title   string       `json:"title"`
	Snippet string       `json:"snippet"`
	State   policy.State `json:"state"`
}

// Query describes a search request.
type Query struct {
	Text   string
	Limit  int
	Offset int
}

// Response is the envelope returned by the search endpoint. Total counts
// index hits; callers that filter results must recompute it.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// ContentRecord is the data we index for a content item.
type ContentRecord struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Body  string `json:"body"`
	State string `json:"state"`
}

const (
	DefaultLimit = 20
	// MaxWindow caps how many hits a filtered search examines.
	MaxWindow = 1000
)

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return limit
}
