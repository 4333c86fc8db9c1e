package pipeline

import (
	"time"

	"github.com/communitysignals/scout/internal/content"
)

// truncate shortens s to max runes, so prompt excerpts never split a
// multi-byte character into invalid UTF-8.
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}

// Complexity classifies how much retrieval effort a question needs.
type Complexity string

const (
	ComplexitySimple      Complexity = "simple"
	ComplexityModerate    Complexity = "moderate"
	ComplexityComplex     Complexity = "complex"
	ComplexityVeryComplex Complexity = "very_complex"
)

// QueryType classifies the intent of a planned query.
type QueryType string

const (
	QueryBroad       QueryType = "broad"
	QuerySpecific    QueryType = "specific"
	QueryComparative QueryType = "comparative"
	QuerySentiment   QueryType = "sentiment"
)

// Query is one planned search against the content store.
type Query struct {
	Text      string    `json:"text"`
	Platform  string    `json:"platform,omitempty"`
	Rationale string    `json:"rationale,omitempty"`
	Type      QueryType `json:"type,omitempty"`
}

// CoverageGoals are the planner's own success criteria for the search.
type CoverageGoals struct {
	MinResults      int `json:"min_results"`
	PlatformBreadth int `json:"platform_breadth"`
}

// SearchPlan is the planner's output: a set of queries plus the reasoning
// behind them. Superseded each iteration by the coverage evaluator's
// recommended follow-up queries.
type SearchPlan struct {
	Complexity         Complexity    `json:"complexity"`
	Queries            []Query       `json:"queries"`
	Reasoning          string        `json:"reasoning"`
	ExpectedIterations int           `json:"expected_iterations"`
	CoverageGoals      CoverageGoals `json:"coverage_goals"`
}

// CoverageReport is the evaluator's verdict on accumulated results.
type CoverageReport struct {
	IsComplete         bool     `json:"is_complete"`
	Confidence         float64  `json:"confidence"` // 0-100
	CoverageGaps       []string `json:"coverage_gaps"`
	Reasoning          string   `json:"reasoning"`
	RecommendedQueries []Query  `json:"recommended_queries"`
}

// Tier bands a scored candidate into a response style.
type Tier string

const (
	TierSkip      Tier = "skip"
	TierPureHelp  Tier = "pure-help"
	TierSprinkle  Tier = "sprinkle"
	TierStrongFit Tier = "strong-fit"
)

// TierForScore maps a 0-12 rubric score onto its tier band.
func TierForScore(score int) Tier {
	switch {
	case score < 4:
		return TierSkip
	case score <= 5:
		return TierPureHelp
	case score <= 8:
		return TierSprinkle
	default:
		return TierStrongFit
	}
}

// ScoredCandidate is the scoring engine's output for one content item.
// engagementDecision is always (score >= 4) and tier is a pure function of
// score; both are derived, never oracle-supplied.
type ScoredCandidate struct {
	ContentRef         string `json:"content_ref"` // permalink
	Score              int    `json:"score"`       // 0-12
	Tier               Tier   `json:"tier"`
	Reasoning          string `json:"reasoning"`
	SuggestedAction    string `json:"suggested_action,omitempty"`
	EngagementDecision bool   `json:"engagement_decision"`
}

// AnalysisRun is the aggregate result of one pipeline invocation, kept for
// audit and reporting.
type AnalysisRun struct {
	ID                 string         `json:"id"`
	Question           string         `json:"question"`
	Answer             string         `json:"answer"`
	Sources            []content.Item `json:"sources"`
	IterationsExecuted int            `json:"iterations_executed"`
	CreatedAt          time.Time      `json:"created_at"`
}
