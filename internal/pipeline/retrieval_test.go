package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/communitysignals/scout/config"
	"github.com/communitysignals/scout/internal/content"
)

// stubContentStore serves canned items keyed by query text and reply tier.
type stubContentStore struct {
	primary map[string][]content.Item
	replies map[string][]content.Item
	failOn  map[string]bool
	calls   int
}

func (s *stubContentStore) SemanticSearch(ctx context.Context, query string, limit int, f content.Filters) ([]content.Item, error) {
	s.calls++
	if s.failOn[query] {
		return nil, errors.New("search backend unavailable")
	}
	var items []content.Item
	if f.IsReply != nil && *f.IsReply {
		items = s.replies[query]
	} else {
		items = s.primary[query]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *stubContentStore) TimeRangeSearch(ctx context.Context, start, end time.Time, limit int) ([]content.Item, error) {
	return nil, nil
}

func longText(tag string) string {
	return fmt.Sprintf("%s: %s", tag, strings.Repeat("detailed discussion of the problem ", 5))
}

func item(permalink string, reply bool) content.Item {
	return content.Item{Permalink: permalink, Text: longText(permalink), IsReply: reply, Platform: "forum"}
}

var retrievalCfg = config.RetrievalConfig{PerQueryLimit: 5, MinPrimaryLength: 40, MinReplyLength: 80}

func TestRetrieverDedupAcrossQueries(t *testing.T) {
	cs := &stubContentStore{
		primary: map[string][]content.Item{
			"q1": {item("p1", false), item("p2", false)},
			"q2": {item("p2", false), item("p3", false)},
		},
	}
	r := NewRetriever(cs, retrievalCfg)
	out := r.ExecuteAll(context.Background(), []Query{{Text: "q1"}, {Text: "q2"}}, nil)

	seen := map[string]int{}
	for _, it := range out {
		seen[it.Permalink]++
	}
	if len(out) != 3 {
		t.Fatalf("got %d items, want 3 unique", len(out))
	}
	for link, n := range seen {
		if n != 1 {
			t.Errorf("permalink %s appeared %d times", link, n)
		}
	}
	if r.DuplicatesSkipped() != 1 {
		t.Errorf("DuplicatesSkipped = %d, want 1", r.DuplicatesSkipped())
	}
}

func TestRetrieverPrimaryRanksAheadOfReplies(t *testing.T) {
	cs := &stubContentStore{
		primary: map[string][]content.Item{"q": {item("p1", false), item("p2", false)}},
		replies: map[string][]content.Item{"q": {item("r1", true), item("r2", true)}},
	}
	r := NewRetriever(cs, retrievalCfg)
	out, err := r.ExecuteQuery(context.Background(), Query{Text: "q"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 4 {
		t.Fatalf("got %d items, want 4", len(out))
	}
	sawReply := false
	for _, it := range out {
		if it.IsReply {
			sawReply = true
		} else if sawReply {
			t.Fatal("primary item ranked after a reply")
		}
	}
}

func TestRetrieverNoBackfillWhenBudgetFilled(t *testing.T) {
	var primary []content.Item
	for i := 0; i < 5; i++ {
		primary = append(primary, item(fmt.Sprintf("p%d", i), false))
	}
	cs := &stubContentStore{
		primary: map[string][]content.Item{"q": primary},
		replies: map[string][]content.Item{"q": {item("r1", true)}},
	}
	r := NewRetriever(cs, retrievalCfg)
	out, err := r.ExecuteQuery(context.Background(), Query{Text: "q"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 5 {
		t.Fatalf("got %d items, want 5", len(out))
	}
	for _, it := range out {
		if it.IsReply {
			t.Error("reply tier fetched although primary filled the budget")
		}
	}
	if cs.calls != 1 {
		t.Errorf("store calls = %d, want 1 (no backfill)", cs.calls)
	}
}

func TestRetrieverSkipsFailedQuery(t *testing.T) {
	cs := &stubContentStore{
		primary: map[string][]content.Item{"ok": {item("p1", false)}},
		failOn:  map[string]bool{"bad": true},
	}
	r := NewRetriever(cs, retrievalCfg)
	out := r.ExecuteAll(context.Background(), []Query{{Text: "bad"}, {Text: "ok"}}, nil)
	if len(out) != 1 || out[0].Permalink != "p1" {
		t.Fatalf("got %+v, want the single item from the surviving query", out)
	}
}

func TestRetrieverRejectsLowQuality(t *testing.T) {
	cs := &stubContentStore{
		primary: map[string][]content.Item{"q": {
			{Permalink: "short", Text: "too short"},
			item("good", false),
		}},
	}
	r := NewRetriever(cs, retrievalCfg)
	out, err := r.ExecuteQuery(context.Background(), Query{Text: "q"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 || out[0].Permalink != "good" {
		t.Fatalf("got %+v, want only the substantive item", out)
	}
}
