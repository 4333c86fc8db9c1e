package content

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/communitysignals/scout/config"
)

// HTTPStore talks to the remote semantic retrieval service.
type HTTPStore struct {
	baseURL string
	apiKey  string
	http    *httpClient
}

// NewHTTPStore creates a store backed by the remote search service.
func NewHTTPStore(cfg config.ContentStoreConfig) *HTTPStore {
	return &HTTPStore{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		http:    newHTTPClient(cfg.Timeout, 2, 300*time.Millisecond),
	}
}

type searchRequest struct {
	Query   string  `json:"query"`
	Limit   int     `json:"limit"`
	Filters Filters `json:"filters"`
}

type rangeRequest struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Limit int       `json:"limit,omitempty"`
}

type searchResponse struct {
	Items []Item `json:"items"`
}

func (s *HTTPStore) headers() map[string]string {
	h := map[string]string{}
	if s.apiKey != "" {
		h["Authorization"] = "Bearer " + s.apiKey
	}
	return h
}

// SemanticSearch returns the items most relevant to the query.
func (s *HTTPStore) SemanticSearch(ctx context.Context, query string, limit int, filters Filters) ([]Item, error) {
	var resp searchResponse
	err := s.http.doJSON(ctx, http.MethodPost, s.baseURL+"/v1/search", s.headers(), searchRequest{
		Query:   query,
		Limit:   limit,
		Filters: filters,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("semantic search: %w", err)
	}
	return resp.Items, nil
}

// TimeRangeSearch returns all items within [start, end].
func (s *HTTPStore) TimeRangeSearch(ctx context.Context, start, end time.Time, limit int) ([]Item, error) {
	var resp searchResponse
	err := s.http.doJSON(ctx, http.MethodPost, s.baseURL+"/v1/range", s.headers(), rangeRequest{
		Start: start,
		End:   end,
		Limit: limit,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("time range search: %w", err)
	}
	return resp.Items, nil
}
