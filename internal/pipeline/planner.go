package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/communitysignals/scout/config"
	"github.com/communitysignals/scout/internal/llm"
)

// Planner turns a free-text question into a multi-query search plan.
type Planner struct {
	provider llm.Provider
	routing  config.LLMRoutingConfig
	logger   *log.Logger
}

// NewPlanner creates a query planner.
func NewPlanner(provider llm.Provider, routing config.LLMRoutingConfig) *Planner {
	return &Planner{
		provider: provider,
		routing:  routing,
		logger:   log.New(log.Writer(), "[PLANNER] ", log.LstdFlags),
	}
}

const plannerSystemPrompt = `You are a search strategist for community content (forum threads, chat messages, social posts). Given a question, produce a retrieval plan as JSON. Respond with ONLY a JSON object, no prose.`

func plannerUserPrompt(question string, platforms []string) string {
	platformBlock := ""
	if len(platforms) > 0 {
		platformBlock = fmt.Sprintf("\nKnown platforms: %s. A query may optionally target one of them.", strings.Join(platforms, ", "))
	}
	return fmt.Sprintf(`Question: %s%s

Return JSON with this exact structure:
{
  "complexity": "simple|moderate|complex|very_complex",
  "queries": [
    {"text": "search query", "platform": "", "rationale": "why this query", "type": "broad|specific|comparative|sentiment"}
  ],
  "reasoning": "overall strategy",
  "expected_iterations": 1,
  "coverage_goals": {"min_results": 10, "platform_breadth": 1}
}

Use 1 query for simple questions, up to 5 for very complex ones. Vary query types so broad discovery and specific follow-ups are both covered.`, question, platformBlock)
}

// Plan produces a search plan for the question. It never fails: any oracle
// error or unparsable output degrades to a deterministic single-query plan
// using the question verbatim.
func (p *Planner) Plan(ctx context.Context, question string, platforms []string) SearchPlan {
	raw, err := p.provider.Complete(ctx, plannerSystemPrompt, plannerUserPrompt(question, platforms), p.routing.Model("planning"), 1200)
	if err != nil {
		p.logger.Printf("planning call failed, falling back to single query: %v", err)
		return fallbackPlan(question)
	}

	var plan SearchPlan
	if err := json.Unmarshal([]byte(extractFirstJSON(raw)), &plan); err != nil {
		p.logger.Printf("unparsable plan, falling back to single query: %v", err)
		return fallbackPlan(question)
	}
	if len(plan.Queries) == 0 {
		p.logger.Printf("plan contained no queries, falling back to single query")
		return fallbackPlan(question)
	}
	if plan.ExpectedIterations <= 0 {
		plan.ExpectedIterations = 1
	}
	switch plan.Complexity {
	case ComplexitySimple, ComplexityModerate, ComplexityComplex, ComplexityVeryComplex:
	default:
		plan.Complexity = ComplexityModerate
	}
	return plan
}

func fallbackPlan(question string) SearchPlan {
	return SearchPlan{
		Complexity:         ComplexitySimple,
		Queries:            []Query{{Text: question, Type: QueryBroad, Rationale: "direct search for the original question"}},
		Reasoning:          "fallback plan: planner unavailable",
		ExpectedIterations: 1,
		CoverageGoals:      CoverageGoals{MinResults: 5, PlatformBreadth: 1},
	}
}

// extractFirstJSON finds the first top-level JSON object in a string using
// balanced brace scanning. Returns the input unchanged when no object is found
// so the caller's Unmarshal produces the error.
func extractFirstJSON(s string) string {
	start := -1
	depth := 0
	for i, ch := range s {
		if ch == '{' {
			if depth == 0 {
				start = i
			}
			depth++
		} else if ch == '}' {
			if depth > 0 {
				depth--
			}
			if depth == 0 && start != -1 {
				return s[start : i+1]
			}
		}
	}
	return s
}
