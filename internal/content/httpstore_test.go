package content

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/communitysignals/scout/config"
)

func TestHTTPStoreSemanticSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/search" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer key-123" {
			t.Errorf("auth header = %q", got)
		}
		var req searchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req.Query != "deployment problems" || req.Limit != 5 {
			t.Errorf("request = %+v", req)
		}
		_ = json.NewEncoder(w).Encode(searchResponse{Items: []Item{
			{Permalink: "https://x/1", Platform: "reddit", Text: "post", RelevanceScore: 0.92},
		}})
	}))
	defer srv.Close()

	s := NewHTTPStore(config.ContentStoreConfig{BaseURL: srv.URL, APIKey: "key-123"})
	items, err := s.SemanticSearch(context.Background(), "deployment problems", 5, Filters{Platforms: []string{"reddit"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].Permalink != "https://x/1" {
		t.Fatalf("items = %+v", items)
	}
}

func TestHTTPStoreTimeRangeSearch(t *testing.T) {
	start := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	end := start.Add(4 * time.Hour)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/range" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req rangeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if !req.Start.Equal(start) || !req.End.Equal(end) {
			t.Errorf("window = %v..%v", req.Start, req.End)
		}
		_ = json.NewEncoder(w).Encode(searchResponse{Items: []Item{{Permalink: "https://x/2"}}})
	}))
	defer srv.Close()

	s := NewHTTPStore(config.ContentStoreConfig{BaseURL: srv.URL})
	items, err := s.TimeRangeSearch(context.Background(), start, end, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 {
		t.Fatalf("items = %+v", items)
	}
}

func TestHTTPStoreSurfacesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "index rebuilding", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s := NewHTTPStore(config.ContentStoreConfig{BaseURL: srv.URL})
	if _, err := s.SemanticSearch(context.Background(), "q", 5, Filters{}); err == nil {
		t.Fatal("expected an error for a 503 response")
	}
}
