package pipeline

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/communitysignals/scout/config"
	"github.com/communitysignals/scout/internal/content"
	"github.com/communitysignals/scout/internal/llm"
)

// Research runs the full plan-retrieve-evaluate loop for one question and
// synthesizes an answer from the accumulated sources.
type Research struct {
	provider llm.Provider
	store    content.Store
	routing  config.LLMRoutingConfig
	cfg      config.RetrievalConfig
	planner  *Planner
	eval     *Evaluator
	logger   *log.Logger
}

// NewResearch wires the pipeline stages together.
func NewResearch(provider llm.Provider, store content.Store, routing config.LLMRoutingConfig, cfg config.RetrievalConfig) *Research {
	return &Research{
		provider: provider,
		store:    store,
		routing:  routing,
		cfg:      cfg,
		planner:  NewPlanner(provider, routing),
		eval:     NewEvaluator(provider, routing),
		logger:   log.New(log.Writer(), "[RESEARCH] ", log.LstdFlags),
	}
}

// Run executes the adaptive retrieval loop: plan, execute queries, evaluate
// coverage, iterate with the evaluator's follow-up queries until the
// termination rule fires, then synthesize an answer. Progress events go to obs
// best-effort; a nil observer is fine.
func (r *Research) Run(ctx context.Context, question string, platforms []string, window *content.DateRange, obs Observer) (AnalysisRun, error) {
	started := time.Now()
	emit(obs, EventPlanning, "planning search strategy", 0, 0)

	plan := r.planner.Plan(ctx, question, platforms)
	r.logger.Printf("plan: complexity=%s queries=%d", plan.Complexity, len(plan.Queries))

	maxIterations := r.cfg.MaxIterations
	if maxIterations <= 0 {
		maxIterations = 4
	}
	threshold := r.cfg.ConfidenceThreshold
	if threshold <= 0 {
		threshold = 80
	}

	retriever := NewRetriever(r.store, r.cfg)
	var accumulated []content.Item
	queries := plan.Queries
	iteration := 0

	for {
		iteration++
		emit(obs, EventSearching, fmt.Sprintf("executing %d queries", len(queries)), iteration, len(accumulated))

		items := retriever.ExecuteAll(ctx, queries, window)
		accumulated = append(accumulated, items...)
		r.logger.Printf("iteration %d: +%d items (%d total, %d dups skipped)",
			iteration, len(items), len(accumulated), retriever.DuplicatesSkipped())

		if err := ctx.Err(); err != nil {
			return AnalysisRun{}, err
		}

		emit(obs, EventEvaluating, "evaluating coverage", iteration, len(accumulated))
		report := r.eval.Evaluate(ctx, question, plan, accumulated, iteration)
		r.logger.Printf("iteration %d: complete=%t confidence=%.0f gaps=%d",
			iteration, report.IsComplete, report.Confidence, len(report.CoverageGaps))

		if ShouldStop(report, iteration, maxIterations, threshold) {
			break
		}
		queries = report.RecommendedQueries
	}

	emit(obs, EventSynthesizing, "synthesizing answer", iteration, len(accumulated))
	answer := r.Synthesize(ctx, question, accumulated)

	run := AnalysisRun{
		ID:                 uuid.NewString(),
		Question:           question,
		Answer:             answer,
		Sources:            accumulated,
		IterationsExecuted: iteration,
		CreatedAt:          time.Now().UTC(),
	}
	emit(obs, EventDone, "research complete", iteration, len(accumulated))
	r.logger.Printf("done: %d sources in %d iterations (%s)", len(accumulated), iteration, time.Since(started).Round(time.Millisecond))
	return run, nil
}

// Synthesize produces a free-text summary of the sources. Synthesis exists for
// audit and reporting only, so failures degrade to a counting summary instead
// of failing the run. The scheduler also calls this directly for its coarse
// per-window analysis pass.
func (r *Research) Synthesize(ctx context.Context, question string, items []content.Item) string {
	if len(items) == 0 {
		return "No relevant community content found."
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Question: %s\n\nSources (%d):\n", question, len(items))
	for i, it := range items {
		if i >= 50 {
			fmt.Fprintf(&sb, "... and %d more\n", len(items)-i)
			break
		}
		fmt.Fprintf(&sb, "- [%s] %s\n", it.Platform, truncate(it.Text, 300))
	}
	sb.WriteString("\nSummarize the common themes and answer the question in a few paragraphs.")

	answer, err := r.provider.Complete(ctx, "You summarize community content findings concisely.", sb.String(), r.routing.Model("synthesis"), 1500)
	if err != nil {
		r.logger.Printf("synthesis failed, recording placeholder: %v", err)
		return fmt.Sprintf("Synthesis unavailable; %d sources retrieved.", len(items))
	}
	return strings.TrimSpace(answer)
}
