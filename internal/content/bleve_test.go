package content

import (
	"context"
	"testing"
	"time"
)

func newMemStore(t *testing.T) *BleveStore {
	t.Helper()
	s, err := NewBleveStore("")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBleveSemanticSearch(t *testing.T) {
	s := newMemStore(t)
	err := s.Add(
		Item{Permalink: "p1", Platform: "reddit", Text: "kubernetes deployment keeps crashing on upgrade"},
		Item{Permalink: "p2", Platform: "discord", Text: "favorite pizza toppings thread"},
	)
	if err != nil {
		t.Fatal(err)
	}

	items, err := s.SemanticSearch(context.Background(), "deployment crashing", 10, Filters{})
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].Permalink != "p1" {
		t.Fatalf("items = %+v, want only p1", items)
	}
	if items[0].RelevanceScore <= 0 {
		t.Error("relevance score not populated")
	}
}

func TestBlevePlatformFilter(t *testing.T) {
	s := newMemStore(t)
	_ = s.Add(
		Item{Permalink: "p1", Platform: "reddit", Text: "deployment failed after the upgrade"},
		Item{Permalink: "p2", Platform: "discord", Text: "deployment failed after the upgrade"},
	)

	items, err := s.SemanticSearch(context.Background(), "deployment failed", 10, Filters{Platforms: []string{"discord"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].Platform != "discord" {
		t.Fatalf("items = %+v, want only the discord item", items)
	}
}

func TestBleveTimeRangeSearch(t *testing.T) {
	s := newMemStore(t)
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	_ = s.Add(
		Item{Permalink: "old", Text: "x", Timestamp: base.Add(-48 * time.Hour)},
		Item{Permalink: "mid", Text: "x", Timestamp: base.Add(-2 * time.Hour)},
		Item{Permalink: "new", Text: "x", Timestamp: base.Add(-time.Hour)},
	)

	items, err := s.TimeRangeSearch(context.Background(), base.Add(-4*time.Hour), base, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Fatalf("items = %d, want 2 in window", len(items))
	}
	if items[0].Permalink != "new" || items[1].Permalink != "mid" {
		t.Errorf("order = %s, %s, want newest first", items[0].Permalink, items[1].Permalink)
	}
}

func TestBleveReplaceByPermalink(t *testing.T) {
	s := newMemStore(t)
	_ = s.Add(Item{Permalink: "p1", Text: "original text about databases"})
	_ = s.Add(Item{Permalink: "p1", Text: "revised text about databases"})

	items, err := s.SemanticSearch(context.Background(), "databases", 10, Filters{})
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 {
		t.Fatalf("items = %d, want 1 after replacement", len(items))
	}
	if items[0].Text != "revised text about databases" {
		t.Errorf("text = %q, want the revised version", items[0].Text)
	}
}
