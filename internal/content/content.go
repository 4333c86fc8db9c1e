package content

import (
	"context"
	"time"
)

// Item represents a unit of retrieved community content. Immutable once
// retrieved; the permalink is the canonical dedup key across the system.
type Item struct {
	ID             string    `json:"id"`
	Platform       string    `json:"platform"`
	Author         string    `json:"author"`
	Text           string    `json:"text"`
	Permalink      string    `json:"permalink"`
	Timestamp      time.Time `json:"timestamp"`
	IsReply        bool      `json:"is_reply"`
	RelevanceScore float64   `json:"relevance_score"`
}

// DateRange bounds a retrieval window.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Filters constrains a semantic search.
type Filters struct {
	Platforms []string   `json:"platforms,omitempty"`
	DateRange *DateRange `json:"date_range,omitempty"`
	IsReply   *bool      `json:"is_reply,omitempty"`
}

// Store is the semantic retrieval boundary. The vector-similarity search
// itself is a black box behind this interface.
type Store interface {
	// SemanticSearch returns the items most relevant to the query.
	SemanticSearch(ctx context.Context, query string, limit int, filters Filters) ([]Item, error)

	// TimeRangeSearch returns all items within [start, end]; limit <= 0
	// means unbounded.
	TimeRangeSearch(ctx context.Context, start, end time.Time, limit int) ([]Item, error)
}

// BoolPtr is a convenience for building IsReply filters.
func BoolPtr(b bool) *bool { return &b }
