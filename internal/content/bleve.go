package content

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/blevesearch/bleve"
)

// BleveStore is a local full-text fallback for the remote semantic service,
// used in development and tests. Matching is delegated to a bleve index;
// item hydration and metadata filtering happen against an in-memory map.
type BleveStore struct {
	mu    sync.RWMutex
	idx   bleve.Index
	items map[string]Item // keyed by permalink
}

// NewBleveStore opens (or creates) an index at path. An empty path builds a
// memory-only index.
func NewBleveStore(path string) (*BleveStore, error) {
	var (
		idx bleve.Index
		err error
	)
	if path == "" {
		idx, err = bleve.NewMemOnly(bleve.NewIndexMapping())
	} else if _, statErr := os.Stat(path); statErr == nil {
		idx, err = bleve.Open(path)
	} else {
		idx, err = bleve.New(path, bleve.NewIndexMapping())
	}
	if err != nil {
		return nil, fmt.Errorf("opening bleve index: %w", err)
	}
	return &BleveStore{idx: idx, items: make(map[string]Item)}, nil
}

// Add indexes items, replacing any previous entry with the same permalink.
func (s *BleveStore) Add(items ...Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch := s.idx.NewBatch()
	for _, it := range items {
		if it.Permalink == "" {
			continue
		}
		if err := batch.Index(it.Permalink, map[string]interface{}{
			"text":     it.Text,
			"platform": it.Platform,
			"author":   it.Author,
		}); err != nil {
			return err
		}
		s.items[it.Permalink] = it
	}
	if err := s.idx.Batch(batch); err != nil {
		return fmt.Errorf("indexing batch: %w", err)
	}
	return nil
}

// SemanticSearch runs a full-text match query and applies metadata filters.
func (s *BleveStore) SemanticSearch(ctx context.Context, query string, limit int, filters Filters) ([]Item, error) {
	if limit <= 0 {
		limit = 10
	}
	q := bleve.NewMatchQuery(query)
	q.SetField("text")
	// over-fetch so post-filtering can still fill the limit
	req := bleve.NewSearchRequestOptions(q, limit*4, 0, false)
	res, err := s.idx.Search(req)
	if err != nil {
		return nil, fmt.Errorf("bleve search: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Item
	for _, hit := range res.Hits {
		it, ok := s.items[hit.ID]
		if !ok || !matchesFilters(it, filters) {
			continue
		}
		it.RelevanceScore = hit.Score
		out = append(out, it)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// TimeRangeSearch returns all items within [start, end], newest first.
func (s *BleveStore) TimeRangeSearch(ctx context.Context, start, end time.Time, limit int) ([]Item, error) {
	s.mu.RLock()
	var out []Item
	for _, it := range s.items {
		if it.Timestamp.Before(start) || it.Timestamp.After(end) {
			continue
		}
		out = append(out, it)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Close releases the underlying index.
func (s *BleveStore) Close() error { return s.idx.Close() }

func matchesFilters(it Item, f Filters) bool {
	if f.IsReply != nil && it.IsReply != *f.IsReply {
		return false
	}
	if f.DateRange != nil {
		if it.Timestamp.Before(f.DateRange.Start) || it.Timestamp.After(f.DateRange.End) {
			return false
		}
	}
	if len(f.Platforms) > 0 {
		found := false
		for _, p := range f.Platforms {
			if p == it.Platform {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
