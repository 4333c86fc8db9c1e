package pipeline

import (
	"context"
	"fmt"
	"testing"

	"github.com/communitysignals/scout/config"
	"github.com/communitysignals/scout/internal/content"
)

// Scenario: the planner emits 3 queries, the store returns 40 raw items of
// which quality filtering keeps 28 and dedup leaves 25 unique, the evaluator
// reports confidence 85, and the loop stops after iteration 1.
func TestResearchStopsAfterConfidentFirstIteration(t *testing.T) {
	mk := func(prefix string, n int, dupOf []string, lowQuality int) []content.Item {
		var items []content.Item
		for _, link := range dupOf {
			items = append(items, item(link, false))
		}
		for i := 0; i < lowQuality; i++ {
			items = append(items, content.Item{Permalink: fmt.Sprintf("%s-low%d", prefix, i), Text: "+1"})
		}
		for i := 0; i < n; i++ {
			items = append(items, item(fmt.Sprintf("%s-%d", prefix, i), false))
		}
		return items
	}

	cs := &stubContentStore{primary: map[string][]content.Item{
		// 14 raw: 4 low-quality, 10 unique survivors
		"q1": mk("q1", 10, nil, 4),
		// 13 raw: 2 dups of q1, 4 low-quality, 7 new
		"q2": mk("q2", 7, []string{"q1-0", "q1-1"}, 4),
		// 13 raw: 1 dup, 4 low-quality, 8 new
		"q3": mk("q3", 8, []string{"q2-0"}, 4),
	}}

	provider := &stubProvider{responses: []string{
		`{"complexity": "moderate", "queries": [
			{"text": "q1", "type": "broad"},
			{"text": "q2", "type": "specific"},
			{"text": "q3", "type": "sentiment"}
		], "reasoning": "three angles", "expected_iterations": 2,
		"coverage_goals": {"min_results": 20, "platform_breadth": 1}}`,
		`{"is_complete": false, "confidence": 85, "coverage_gaps": [], "reasoning": "good spread",
		"recommended_queries": [{"text": "unused follow-up"}]}`,
		`Deployment problems cluster around upgrades.`,
	}}

	r := NewResearch(provider, cs, testRouting, config.RetrievalConfig{
		PerQueryLimit: 15, MinPrimaryLength: 40, MinReplyLength: 80,
		MaxIterations: 4, ConfidenceThreshold: 80,
	})
	run, err := r.Run(context.Background(), "most common deployment problem", nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if run.IterationsExecuted != 1 {
		t.Errorf("iterations = %d, want 1", run.IterationsExecuted)
	}
	if len(run.Sources) != 25 {
		t.Errorf("sources = %d, want 25 unique", len(run.Sources))
	}
	if run.Answer == "" {
		t.Error("answer missing")
	}
}

// Even an evaluator that always demands more iterations is cut off at the cap.
func TestResearchIterationCap(t *testing.T) {
	cs := &stubContentStore{primary: map[string][]content.Item{
		"cap question": {item("only", false)},
	}}
	provider := &stubProvider{responses: []string{
		"planner returns no json, forcing the single-query fallback",
		`{"is_complete": false, "confidence": 10, "coverage_gaps": ["more"], "reasoning": "never satisfied",
		"recommended_queries": [{"text": "cap question"}]}`,
	}}

	r := NewResearch(provider, cs, testRouting, config.RetrievalConfig{
		PerQueryLimit: 5, MinPrimaryLength: 40, MinReplyLength: 80,
		MaxIterations: 4, ConfidenceThreshold: 80,
	})
	run, err := r.Run(context.Background(), "cap question", nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if run.IterationsExecuted != 4 {
		t.Errorf("iterations = %d, want the hard cap of 4", run.IterationsExecuted)
	}
	if len(run.Sources) != 1 {
		t.Errorf("sources = %d, want 1 (dedup across iterations)", len(run.Sources))
	}
}

// Events are best-effort: a full observer channel must never block the run.
func TestResearchObserverNeverBlocks(t *testing.T) {
	cs := &stubContentStore{primary: map[string][]content.Item{"q": {item("p", false)}}}
	provider := &stubProvider{responses: []string{
		`{"complexity": "simple", "queries": [{"text": "q"}], "expected_iterations": 1}`,
		`{"is_complete": true, "confidence": 90}`,
		"summary",
	}}
	r := NewResearch(provider, cs, testRouting, config.RetrievalConfig{PerQueryLimit: 5, MaxIterations: 4, ConfidenceThreshold: 80})

	full := make(chan Event) // unbuffered with no reader
	if _, err := r.Run(context.Background(), "q", nil, nil, full); err != nil {
		t.Fatal(err)
	}
}
