package server

import (
	"encoding/json"

	"github.com/communitysignals/scout/internal/pipeline"
)

// HTTPError is the unified JSON error body.
type HTTPError struct {
	Error string `json:"error"`
}

type AuthSignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type TokenResponse struct {
	Token string `json:"token"`
}

type CreateTaskRequest struct {
	Title             string          `json:"title"`
	Snippet           string          `json:"snippet"`
	SourceURL         string          `json:"source_url"`
	Platform          string          `json:"platform"`
	Priority          int             `json:"priority"`
	SuggestedResponse string          `json:"suggested_response"`
	Metadata          json.RawMessage `json:"metadata,omitempty"`
}

type UpdateTaskRequest struct {
	IsCompleted *bool `json:"is_completed"`
}

type ResearchRequest struct {
	Question  string   `json:"question"`
	Platforms []string `json:"platforms,omitempty"`
	// ScoreResults additionally runs the scoring engine over the retrieved
	// sources, with the question/answer as situational context.
	ScoreResults bool `json:"score_results,omitempty"`
}

type ResearchResponse struct {
	pipeline.AnalysisRun
	Scored []pipeline.ScoredCandidate `json:"scored,omitempty"`
}

type TriggerResponse struct {
	Processed    int    `json:"processed"`
	Analyzed     int    `json:"analyzed"`
	TasksCreated int    `json:"tasks_created"`
	DurationMs   int64  `json:"duration_ms"`
	Status       string `json:"status"`
}
