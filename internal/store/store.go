package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Store wraps the Postgres connection and all durable state: tasks, the
// analyzed-item ledger, run history, analysis runs, scheduler state, and users.
type Store struct {
	DB *sql.DB
}

// NewWithDSN constructs the Store using an explicit Postgres DSN.
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

// NewWithDB wraps an existing connection, used by tests.
func NewWithDB(db *sql.DB) *Store { return &Store{DB: db} }

func (s *Store) Close() error { return s.DB.Close() }

// ---- tasks ----

// CreateTask inserts a task, generating an ID when absent. A duplicate
// source_url is the expected cross-run race and reports created=false with a
// nil error; the existing task is left untouched.
func (s *Store) CreateTask(ctx context.Context, t *Task) (bool, error) {
	if strings.TrimSpace(t.SourceURL) == "" {
		return false, fmt.Errorf("task source_url required")
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	meta := t.Metadata
	if len(meta) == 0 {
		meta = json.RawMessage(`{}`)
	}
	res, err := s.DB.ExecContext(ctx, `
INSERT INTO tasks (id, title, snippet, source_url, platform, priority, suggested_response, metadata)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (source_url) DO NOTHING
`, t.ID, t.Title, t.Snippet, t.SourceURL, t.Platform, t.Priority, t.SuggestedResponse, []byte(meta))
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return false, nil
		}
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetTask fetches a task by id; found=false when absent.
func (s *Store) GetTask(ctx context.Context, id string) (Task, bool, error) {
	row := s.DB.QueryRowContext(ctx, `
SELECT id, title, snippet, source_url, platform, priority, suggested_response, metadata, is_completed, created_at, updated_at
FROM tasks WHERE id=$1
`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Task{}, false, nil
	}
	if err != nil {
		return Task{}, false, err
	}
	return t, true, nil
}

// ListTasks returns tasks matching the filter, newest first.
func (s *Store) ListTasks(ctx context.Context, f TaskFilter) ([]Task, error) {
	b := sq.Select("id", "title", "snippet", "source_url", "platform", "priority", "suggested_response", "metadata", "is_completed", "created_at", "updated_at").
		From("tasks").
		OrderBy("created_at DESC").
		PlaceholderFormat(sq.Dollar)
	if f.Platform != "" {
		b = b.Where(sq.Eq{"platform": f.Platform})
	}
	if f.Completed != nil {
		b = b.Where(sq.Eq{"is_completed": *f.Completed})
	}
	if f.Limit > 0 {
		b = b.Limit(uint64(f.Limit))
	}
	if f.Offset > 0 {
		b = b.Offset(uint64(f.Offset))
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// SetTaskCompleted flips completion state; found=false when the id is unknown.
func (s *Store) SetTaskCompleted(ctx context.Context, id string, completed bool) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `UPDATE tasks SET is_completed=$2, updated_at=now() WHERE id=$1`, id, completed)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// DeleteTask removes a task; found=false when the id is unknown.
func (s *Store) DeleteTask(ctx context.Context, id string) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM tasks WHERE id=$1`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ExistingSourceURLs returns the subset of urls already present as task
// source_urls. Called before any oracle scoring to avoid spending API calls on
// content already actioned.
func (s *Store) ExistingSourceURLs(ctx context.Context, urls []string) (map[string]struct{}, error) {
	out := make(map[string]struct{})
	if len(urls) == 0 {
		return out, nil
	}
	rows, err := s.DB.QueryContext(ctx, `SELECT source_url FROM tasks WHERE source_url = ANY($1)`, pq.Array(urls))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		out[u] = struct{}{}
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(r rowScanner) (Task, error) {
	var t Task
	var meta []byte
	if err := r.Scan(&t.ID, &t.Title, &t.Snippet, &t.SourceURL, &t.Platform, &t.Priority, &t.SuggestedResponse, &meta, &t.IsCompleted, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return Task{}, err
	}
	if len(meta) > 0 {
		t.Metadata = json.RawMessage(meta)
	}
	return t, nil
}

// ---- analyzed-item ledger ----

// UpsertAnalyzed records a scoring attempt for a permalink, success or benign
// skip alike. Repeat analyses bump the counter and the last-* columns.
func (s *Store) UpsertAnalyzed(ctx context.Context, permalink string, score int, tier string, at time.Time) error {
	if strings.TrimSpace(permalink) == "" {
		return fmt.Errorf("permalink required")
	}
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO analyzed_items (permalink, last_analyzed_at, last_score, last_tier, analyzed_count, first_analyzed_at)
VALUES ($1,$2,$3,$4,1,$2)
ON CONFLICT (permalink) DO UPDATE SET
    last_analyzed_at = EXCLUDED.last_analyzed_at,
    last_score = EXCLUDED.last_score,
    last_tier = EXCLUDED.last_tier,
    analyzed_count = analyzed_items.analyzed_count + 1
`, permalink, at.UTC(), score, tier)
	return err
}

// GetAnalyzed fetches a ledger entry; found=false when never analyzed.
func (s *Store) GetAnalyzed(ctx context.Context, permalink string) (AnalyzedRecord, bool, error) {
	row := s.DB.QueryRowContext(ctx, `
SELECT permalink, last_analyzed_at, last_score, last_tier, analyzed_count, first_analyzed_at
FROM analyzed_items WHERE permalink=$1
`, permalink)
	var rec AnalyzedRecord
	err := row.Scan(&rec.Permalink, &rec.LastAnalyzedAt, &rec.LastScore, &rec.LastTier, &rec.AnalyzedCount, &rec.FirstAnalyzedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return AnalyzedRecord{}, false, nil
	}
	if err != nil {
		return AnalyzedRecord{}, false, err
	}
	return rec, true, nil
}

// ---- run history ----

// AppendRunHistory writes one execution record. The durable log retains all
// entries; the scheduler's in-memory ring caps its own view.
func (s *Store) AppendRunHistory(ctx context.Context, e RunHistoryEntry) error {
	var errStr sql.NullString
	if e.Error != "" {
		errStr = sql.NullString{String: e.Error, Valid: true}
	}
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO run_history (ts, success, processed, analyzed, tasks_created, duration_ms, error)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`, ts.UTC(), e.Success, e.Result.Processed, e.Result.Analyzed, e.Result.TasksCreated, e.Result.DurationMs, errStr)
	return err
}

// RecentRunHistory returns the most recent entries, newest first.
func (s *Store) RecentRunHistory(ctx context.Context, limit int) ([]RunHistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, ts, success, processed, analyzed, tasks_created, duration_ms, error
FROM run_history ORDER BY ts DESC LIMIT $1
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunHistoryEntry
	for rows.Next() {
		var e RunHistoryEntry
		var errStr sql.NullString
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Success, &e.Result.Processed, &e.Result.Analyzed, &e.Result.TasksCreated, &e.Result.DurationMs, &errStr); err != nil {
			return nil, err
		}
		if errStr.Valid {
			e.Error = errStr.String
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// RunStats aggregates counters across the whole history.
func (s *Store) RunStats(ctx context.Context) (RunStats, error) {
	row := s.DB.QueryRowContext(ctx, `
SELECT COUNT(*),
       COUNT(*) FILTER (WHERE success),
       COUNT(*) FILTER (WHERE NOT success),
       COALESCE(SUM(tasks_created), 0)
FROM run_history
`)
	var st RunStats
	if err := row.Scan(&st.TotalRuns, &st.SuccessfulRuns, &st.FailedRuns, &st.TotalTasksCreated); err != nil {
		return RunStats{}, err
	}
	return st, nil
}

// ---- analysis runs ----

// SaveAnalysisRun persists the audit record of one pipeline invocation.
func (s *Store) SaveAnalysisRun(ctx context.Context, rec AnalysisRunRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	sources := rec.Sources
	if len(sources) == 0 {
		sources = json.RawMessage(`[]`)
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO analysis_runs (id, question, answer, sources, iterations_executed, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
`, rec.ID, rec.Question, rec.Answer, []byte(sources), rec.IterationsExecuted, createdAt.UTC())
	return err
}

// ListAnalysisRuns returns recent analysis runs, newest first.
func (s *Store) ListAnalysisRuns(ctx context.Context, limit int) ([]AnalysisRunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, question, answer, sources, iterations_executed, created_at
FROM analysis_runs ORDER BY created_at DESC LIMIT $1
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AnalysisRunRecord
	for rows.Next() {
		var rec AnalysisRunRecord
		var sources []byte
		if err := rows.Scan(&rec.ID, &rec.Question, &rec.Answer, &sources, &rec.IterationsExecuted, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Sources = json.RawMessage(sources)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ---- scheduler state ----

// LastSuccessfulRunEnd returns the end of the last successful window; ok=false
// when no run has succeeded yet.
func (s *Store) LastSuccessfulRunEnd(ctx context.Context) (time.Time, bool, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT last_successful_run_end FROM scheduler_state WHERE id=1`)
	var t sql.NullTime
	if err := row.Scan(&t); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}
	if !t.Valid {
		return time.Time{}, false, nil
	}
	return t.Time, true, nil
}

// SetLastSuccessfulRunEnd records the window end of a successful run.
func (s *Store) SetLastSuccessfulRunEnd(ctx context.Context, end time.Time) error {
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO scheduler_state (id, last_successful_run_end) VALUES (1, $1)
ON CONFLICT (id) DO UPDATE SET last_successful_run_end = EXCLUDED.last_successful_run_end
`, end.UTC())
	return err
}

// ---- users ----

// ErrEmailTaken is returned when signing up with an existing email.
var ErrEmailTaken = errors.New("email already registered")

// CreateUser inserts an operator account.
func (s *Store) CreateUser(ctx context.Context, email, passwordHash string) (User, error) {
	u := User{ID: uuid.NewString(), Email: strings.ToLower(strings.TrimSpace(email)), PasswordHash: passwordHash}
	row := s.DB.QueryRowContext(ctx, `
INSERT INTO users (id, email, password_hash) VALUES ($1,$2,$3)
RETURNING created_at
`, u.ID, u.Email, u.PasswordHash)
	if err := row.Scan(&u.CreatedAt); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return User{}, ErrEmailTaken
		}
		return User{}, err
	}
	return u, nil
}

// GetUserByEmail fetches a user; found=false when absent.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (User, bool, error) {
	row := s.DB.QueryRowContext(ctx, `
SELECT id, email, password_hash, created_at FROM users WHERE email=$1
`, strings.ToLower(strings.TrimSpace(email)))
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, false, nil
	}
	if err != nil {
		return User{}, false, err
	}
	return u, true, nil
}
