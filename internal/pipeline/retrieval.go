package pipeline

import (
	"context"
	"log"
	"sync"

	"github.com/communitysignals/scout/config"
	"github.com/communitysignals/scout/internal/content"
)

// Retriever executes planned queries against the content store with tiered
// fetching, quality filtering, and run-wide permalink dedup. One Retriever is
// created per pipeline run; its seen set spans every query of every iteration.
type Retriever struct {
	store   content.Store
	filter  QualityFilter
	limit   int
	logger  *log.Logger
	mu      sync.Mutex
	seen    map[string]struct{}
	skipped int
}

// NewRetriever creates a retriever for a single pipeline run.
func NewRetriever(store content.Store, cfg config.RetrievalConfig) *Retriever {
	limit := cfg.PerQueryLimit
	if limit <= 0 {
		limit = 15
	}
	return &Retriever{
		store:  store,
		filter: NewQualityFilter(cfg.MinPrimaryLength, cfg.MinReplyLength),
		limit:  limit,
		logger: log.New(log.Writer(), "[RETRIEVAL] ", log.LstdFlags),
		seen:   make(map[string]struct{}),
	}
}

// ExecuteQuery runs one query: primary-tier content first, reply-tier backfill
// if the budget is unfilled. Primary items always rank ahead of replies in the
// returned slice. Items whose permalink was already seen this run are dropped.
func (r *Retriever) ExecuteQuery(ctx context.Context, q Query, window *content.DateRange) ([]content.Item, error) {
	filters := content.Filters{DateRange: window, IsReply: content.BoolPtr(false)}
	if q.Platform != "" {
		filters.Platforms = []string{q.Platform}
	}

	primary, err := r.store.SemanticSearch(ctx, q.Text, r.limit, filters)
	if err != nil {
		return nil, err
	}
	out := r.admit(r.filter.Apply(primary))

	if len(out) < r.limit {
		filters.IsReply = content.BoolPtr(true)
		replies, err := r.store.SemanticSearch(ctx, q.Text, r.limit-len(out), filters)
		if err != nil {
			// primary results still stand; reply backfill is best effort
			r.logger.Printf("reply-tier backfill failed for %q: %v", q.Text, err)
			return out, nil
		}
		out = append(out, r.admit(r.filter.Apply(replies))...)
	}
	return out, nil
}

// ExecuteAll runs every query in the set, skipping individual failures.
func (r *Retriever) ExecuteAll(ctx context.Context, queries []Query, window *content.DateRange) []content.Item {
	var out []content.Item
	for _, q := range queries {
		items, err := r.ExecuteQuery(ctx, q, window)
		if err != nil {
			r.logger.Printf("query %q failed, skipping: %v", q.Text, err)
			continue
		}
		out = append(out, items...)
	}
	return out
}

// admit records unseen permalinks and returns only first-time items.
func (r *Retriever) admit(items []content.Item) []content.Item {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []content.Item
	for _, it := range items {
		if it.Permalink == "" {
			continue
		}
		if _, dup := r.seen[it.Permalink]; dup {
			r.skipped++
			continue
		}
		r.seen[it.Permalink] = struct{}{}
		out = append(out, it)
	}
	return out
}

// SeenCount returns the number of unique permalinks admitted so far.
func (r *Retriever) SeenCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seen)
}

// DuplicatesSkipped returns how many duplicate permalinks were rejected.
func (r *Retriever) DuplicatesSkipped() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.skipped
}
