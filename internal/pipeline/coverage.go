package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/communitysignals/scout/config"
	"github.com/communitysignals/scout/internal/content"
	"github.com/communitysignals/scout/internal/llm"
)

// Evaluator decides whether accumulated retrieval results answer the question
// well enough to stop iterating.
type Evaluator struct {
	provider llm.Provider
	routing  config.LLMRoutingConfig
	logger   *log.Logger
}

// NewEvaluator creates a coverage evaluator.
func NewEvaluator(provider llm.Provider, routing config.LLMRoutingConfig) *Evaluator {
	return &Evaluator{
		provider: provider,
		routing:  routing,
		logger:   log.New(log.Writer(), "[COVERAGE] ", log.LstdFlags),
	}
}

const evaluatorSystemPrompt = `You assess whether retrieved community content sufficiently answers a research question. Respond with ONLY a JSON object, no prose.`

func evaluatorUserPrompt(question string, plan SearchPlan, items []content.Item, iteration int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Question: %s\nIteration: %d\nPlanned coverage goals: at least %d results across %d platform(s).\n\nAccumulated results (%d):\n",
		question, iteration, plan.CoverageGoals.MinResults, plan.CoverageGoals.PlatformBreadth, len(items))
	for i, it := range items {
		if i >= 40 {
			fmt.Fprintf(&sb, "... and %d more\n", len(items)-i)
			break
		}
		fmt.Fprintf(&sb, "- [%s] %s\n", it.Platform, truncate(it.Text, 240))
	}
	sb.WriteString(`
Return JSON:
{
  "is_complete": true,
  "confidence": 85,
  "coverage_gaps": ["aspect not yet covered"],
  "reasoning": "why",
  "recommended_queries": [{"text": "follow-up query", "platform": "", "rationale": "", "type": "specific"}]
}

Leave recommended_queries empty when coverage is sufficient.`)
	return sb.String()
}

// Evaluate asks the oracle whether the results are good enough. Evaluator
// failure fails open: the loop stops rather than iterating indefinitely.
func (e *Evaluator) Evaluate(ctx context.Context, question string, plan SearchPlan, items []content.Item, iteration int) CoverageReport {
	raw, err := e.provider.Complete(ctx, evaluatorSystemPrompt, evaluatorUserPrompt(question, plan, items, iteration), e.routing.Model("evaluation"), 1200)
	if err != nil {
		e.logger.Printf("evaluation call failed, stopping iteration: %v", err)
		return failOpenReport()
	}
	var report CoverageReport
	if err := json.Unmarshal([]byte(extractFirstJSON(raw)), &report); err != nil {
		e.logger.Printf("unparsable coverage report, stopping iteration: %v", err)
		return failOpenReport()
	}
	if report.Confidence < 0 {
		report.Confidence = 0
	}
	if report.Confidence > 100 {
		report.Confidence = 100
	}
	return report
}

// ShouldStop applies the termination rule to a report.
func ShouldStop(report CoverageReport, iteration, maxIterations int, confidenceThreshold float64) bool {
	if report.IsComplete {
		return true
	}
	if report.Confidence >= confidenceThreshold {
		return true
	}
	if iteration >= maxIterations {
		return true
	}
	return len(report.RecommendedQueries) == 0
}

func failOpenReport() CoverageReport {
	return CoverageReport{
		IsComplete: true,
		Confidence: 50,
		Reasoning:  "coverage evaluation unavailable; stopping with accumulated results",
	}
}
