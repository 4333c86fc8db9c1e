package store

import (
	"encoding/json"
	"time"
)

// Task is a durable, user-facing action item. source_url carries a UNIQUE
// constraint and is the cross-run dedup key.
type Task struct {
	ID                string          `json:"id"`
	Title             string          `json:"title"`
	Snippet           string          `json:"snippet"`
	SourceURL         string          `json:"source_url"`
	Platform          string          `json:"platform"`
	Priority          int             `json:"priority"`
	SuggestedResponse string          `json:"suggested_response"`
	Metadata          json.RawMessage `json:"metadata,omitempty"`
	IsCompleted       bool            `json:"is_completed"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// TaskFilter narrows a task listing.
type TaskFilter struct {
	Platform  string
	Completed *bool
	Limit     int
	Offset    int
}

// AnalyzedRecord is the dedup/cooldown ledger entry for one permalink.
type AnalyzedRecord struct {
	Permalink       string    `json:"permalink"`
	LastAnalyzedAt  time.Time `json:"last_analyzed_at"`
	LastScore       int       `json:"last_score"`
	LastTier        string    `json:"last_tier"`
	AnalyzedCount   int       `json:"analyzed_count"`
	FirstAnalyzedAt time.Time `json:"first_analyzed_at"`
}

// RunResult aggregates the counters of one scheduler execution.
type RunResult struct {
	Processed    int   `json:"processed"`
	Analyzed     int   `json:"analyzed"`
	TasksCreated int   `json:"tasks_created"`
	DurationMs   int64 `json:"duration_ms"`
}

// RunHistoryEntry is one append-only scheduler execution record.
type RunHistoryEntry struct {
	ID        int64     `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Success   bool      `json:"success"`
	Result    RunResult `json:"result"`
	Error     string    `json:"error,omitempty"`
}

// RunStats are aggregate counters over the whole run history.
type RunStats struct {
	TotalRuns         int64 `json:"total_runs"`
	SuccessfulRuns    int64 `json:"successful_runs"`
	FailedRuns        int64 `json:"failed_runs"`
	TotalTasksCreated int64 `json:"total_tasks_created"`
}

// AnalysisRunRecord is the persisted audit record of one pipeline invocation.
type AnalysisRunRecord struct {
	ID                 string          `json:"id"`
	Question           string          `json:"question"`
	Answer             string          `json:"answer"`
	Sources            json.RawMessage `json:"sources"`
	IterationsExecuted int             `json:"iterations_executed"`
	CreatedAt          time.Time       `json:"created_at"`
}

// User is an operator account for the HTTP API.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}
