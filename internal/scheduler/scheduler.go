package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/redis/go-redis/v9"

	"github.com/communitysignals/scout/config"
	"github.com/communitysignals/scout/internal/content"
	"github.com/communitysignals/scout/internal/pipeline"
	"github.com/communitysignals/scout/internal/store"
	"github.com/communitysignals/scout/internal/telemetry"
)

// State is the scheduler's execution state.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// ErrAlreadyRunning is returned when a trigger arrives while a run is in
// flight. Concurrent triggers are dropped, never queued.
var ErrAlreadyRunning = errors.New("scheduler: run already in progress")

// Storage is the durable state the scheduler needs, satisfied by *store.Store.
type Storage interface {
	ExistingSourceURLs(ctx context.Context, urls []string) (map[string]struct{}, error)
	CreateTask(ctx context.Context, t *store.Task) (bool, error)
	UpsertAnalyzed(ctx context.Context, permalink string, score int, tier string, at time.Time) error
	GetAnalyzed(ctx context.Context, permalink string) (store.AnalyzedRecord, bool, error)
	AppendRunHistory(ctx context.Context, e store.RunHistoryEntry) error
	RecentRunHistory(ctx context.Context, limit int) ([]store.RunHistoryEntry, error)
	RunStats(ctx context.Context) (store.RunStats, error)
	SaveAnalysisRun(ctx context.Context, rec store.AnalysisRunRecord) error
	LastSuccessfulRunEnd(ctx context.Context) (time.Time, bool, error)
	SetLastSuccessfulRunEnd(ctx context.Context, end time.Time) error
}

// ItemScorer scores one content item, satisfied by *pipeline.Scorer.
type ItemScorer interface {
	Score(ctx context.Context, it content.Item, situational string) (pipeline.ScoredCandidate, error)
}

// Synthesizer produces the coarse audit summary, satisfied by
// *pipeline.Research.
type Synthesizer interface {
	Synthesize(ctx context.Context, question string, items []content.Item) string
}

// Notifier is the fire-and-forget outbound sink.
type Notifier interface {
	Notify(ctx context.Context, summary string) error
}

// Scheduler drives the incremental pipeline: it computes a time window, pulls
// content, filters against prior work, scores survivors, creates tasks, and
// records crash-safe run history.
type Scheduler struct {
	cfg        config.SchedulerConfig
	scoringCfg config.ScoringConfig

	storage Storage
	content content.Store
	scorer  ItemScorer
	synth   Synthesizer
	notify  Notifier
	tele    *telemetry.Telemetry

	lock   *redisLock
	ring   *historyRing
	logger *log.Logger

	mu          sync.Mutex
	state       State
	lastOutcome State
	lastAttempt time.Time
	running     bool

	stop chan struct{}
	now  func() time.Time
}

// New assembles a scheduler. rdb may be nil when redis is not configured;
// tele may be nil to disable metrics.
func New(cfg config.SchedulerConfig, scoringCfg config.ScoringConfig, storage Storage, contentStore content.Store, scorer ItemScorer, synth Synthesizer, notifier Notifier, tele *telemetry.Telemetry, rdb *redis.Client) *Scheduler {
	return &Scheduler{
		cfg:        cfg,
		scoringCfg: scoringCfg,
		storage:    storage,
		content:    contentStore,
		scorer:     scorer,
		synth:      synth,
		notify:     notifier,
		tele:       tele,
		lock:       newRedisLock(rdb, 2*cfg.Interval),
		ring:       newHistoryRing(cfg.HistorySize),
		logger:     log.New(log.Writer(), "[SCHED] ", log.LstdFlags),
		state:      StateIdle,
		stop:       make(chan struct{}),
		now:        time.Now,
	}
}

// State returns the current execution state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastOutcome reports how the most recent run ended, empty before any run.
func (s *Scheduler) LastOutcome() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastOutcome
}

// Start launches the periodic driver. With a cron spec configured the ticker
// fires every minute and the expression decides whether a run is due;
// otherwise the configured interval drives runs directly.
func (s *Scheduler) Start() {
	interval := s.cfg.Interval
	cronSpec := strings.TrimSpace(s.cfg.CronSpec)
	if cronSpec != "" {
		interval = time.Minute
	} else if interval <= 0 {
		interval = 4 * time.Hour
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				if cronSpec != "" && !s.cronDue(cronSpec) {
					continue
				}
				if _, err := s.run(context.Background(), false); err != nil && !errors.Is(err, ErrAlreadyRunning) {
					s.logger.Printf("scheduled run failed: %v", err)
				}
			}
		}
	}()
	s.logger.Printf("started (interval=%s cron=%q)", interval, cronSpec)
}

// Shutdown stops the periodic driver. An in-flight run completes.
func (s *Scheduler) Shutdown() { close(s.stop) }

// cronDue reports whether the expression fires between the last scheduled
// attempt and now. Due-ness is computed from the last attempt, not the last
// success, so a failed run waits for the next cron slot instead of being
// retried on every tick.
func (s *Scheduler) cronDue(spec string) bool {
	expr, err := cronexpr.Parse(spec)
	if err != nil {
		s.logger.Printf("invalid cron spec %q, falling back to due", spec)
		return true
	}
	now := s.now()
	s.mu.Lock()
	ref := s.lastAttempt
	s.mu.Unlock()
	if ref.IsZero() {
		last, ok, err := s.storage.LastSuccessfulRunEnd(context.Background())
		if err != nil || !ok {
			return true
		}
		ref = last
	}
	return !expr.Next(ref).After(now)
}

// RunNow executes one pipeline run outside the timer, using the fixed
// lookback window regardless of history so reruns are repeatable. Subject to
// the same mutual-exclusion guard as scheduled runs.
func (s *Scheduler) RunNow(ctx context.Context) (store.RunResult, error) {
	return s.run(ctx, true)
}

func (s *Scheduler) run(ctx context.Context, forced bool) (result store.RunResult, err error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return store.RunResult{}, ErrAlreadyRunning
	}
	s.running = true
	s.state = StateRunning
	if !forced {
		s.lastAttempt = s.now()
	}
	s.mu.Unlock()

	acquired, release := s.lock.TryLock(ctx)
	if !acquired {
		s.mu.Lock()
		s.running = false
		s.state = StateIdle
		s.mu.Unlock()
		return store.RunResult{}, ErrAlreadyRunning
	}

	started := s.now()
	var windowEnd time.Time

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scheduler panic: %v", r)
		}
		result.DurationMs = time.Since(started).Milliseconds()
		success := err == nil

		entry := store.RunHistoryEntry{Timestamp: started.UTC(), Success: success, Result: result}
		if err != nil {
			entry.Error = err.Error()
		}
		s.ring.Append(entry)
		if herr := s.storage.AppendRunHistory(context.Background(), entry); herr != nil {
			s.logger.Printf("failed to persist run history: %v", herr)
		}
		if success {
			if serr := s.storage.SetLastSuccessfulRunEnd(context.Background(), windowEnd); serr != nil {
				s.logger.Printf("failed to persist window end: %v", serr)
			}
		}
		if s.tele != nil {
			s.tele.RecordRun(success, result.Processed, result.Analyzed, result.TasksCreated, time.Since(started))
		}

		s.mu.Lock()
		if success {
			s.lastOutcome = StateSucceeded
		} else {
			s.lastOutcome = StateFailed
		}
		s.state = StateIdle
		s.running = false
		s.mu.Unlock()
		release()

		s.notifySummary(entry)
	}()

	start, end := s.window(ctx, forced)
	windowEnd = end
	s.logger.Printf("run started (forced=%t window=%s..%s)", forced, start.Format(time.RFC3339), end.Format(time.RFC3339))

	items, err := s.content.TimeRangeSearch(ctx, start, end, 0)
	if err != nil {
		return result, fmt.Errorf("time range search: %w", err)
	}
	result.Processed = len(items)

	survivors, err := s.filterActioned(ctx, items)
	if err != nil {
		return result, err
	}

	// the audit synthesis covers all new items in the window, including ones
	// the cooldown will keep away from the scorer
	if len(survivors) > 0 {
		question := fmt.Sprintf("What actionable community signals appeared between %s and %s?",
			start.Format(time.RFC3339), end.Format(time.RFC3339))
		answer := s.synth.Synthesize(ctx, question, survivors)
		sources, _ := json.Marshal(survivors)
		if aerr := s.storage.SaveAnalysisRun(ctx, store.AnalysisRunRecord{
			Question:           question,
			Answer:             answer,
			Sources:            sources,
			IterationsExecuted: 1,
			CreatedAt:          s.now().UTC(),
		}); aerr != nil {
			s.logger.Printf("failed to save analysis run: %v", aerr)
		}
	}

	eligible := s.filterCooldown(ctx, survivors, forced)
	s.logger.Printf("window items=%d survivors=%d eligible=%d", len(items), len(survivors), len(eligible))

	analyzed, created, err := s.scoreBatch(ctx, eligible)
	result.Analyzed = analyzed
	result.TasksCreated = created
	if err != nil {
		return result, err
	}

	s.logger.Printf("run finished: processed=%d analyzed=%d tasks=%d", result.Processed, result.Analyzed, result.TasksCreated)
	return result, nil
}

// window computes the retrieval window. Scheduled runs continue from the last
// successful window end; forced runs always use the fixed lookback so manual
// reruns are repeatable.
func (s *Scheduler) window(ctx context.Context, forced bool) (time.Time, time.Time) {
	end := s.now()
	lookback := s.cfg.Lookback
	if lookback <= 0 {
		lookback = 24 * time.Hour
	}
	if forced {
		return end.Add(-lookback), end
	}
	last, ok, err := s.storage.LastSuccessfulRunEnd(ctx)
	if err != nil {
		s.logger.Printf("reading last run end failed, using lookback: %v", err)
		return end.Add(-lookback), end
	}
	if !ok {
		return end.Add(-lookback), end
	}
	return last, end
}

// filterActioned drops items whose permalink already exists as a task
// source_url, before any oracle call is spent on them. Intra-batch duplicate
// permalinks collapse to the first occurrence.
func (s *Scheduler) filterActioned(ctx context.Context, items []content.Item) ([]content.Item, error) {
	if len(items) == 0 {
		return nil, nil
	}
	urls := make([]string, 0, len(items))
	for _, it := range items {
		if it.Permalink != "" {
			urls = append(urls, it.Permalink)
		}
	}
	existing, err := s.storage.ExistingSourceURLs(ctx, urls)
	if err != nil {
		return nil, fmt.Errorf("checking existing tasks: %w", err)
	}
	seen := make(map[string]struct{}, len(items))
	var out []content.Item
	for _, it := range items {
		if it.Permalink == "" {
			continue
		}
		if _, dup := seen[it.Permalink]; dup {
			continue
		}
		seen[it.Permalink] = struct{}{}
		if _, actioned := existing[it.Permalink]; actioned {
			continue
		}
		out = append(out, it)
	}
	return out, nil
}

// filterCooldown drops items analyzed within the cooldown window. Forced runs
// bypass the cooldown.
func (s *Scheduler) filterCooldown(ctx context.Context, items []content.Item, forced bool) []content.Item {
	if forced || len(items) == 0 {
		return items
	}
	cooldown := s.scoringCfg.Cooldown
	if cooldown <= 0 {
		cooldown = 720 * time.Hour
	}
	cutoff := s.now().Add(-cooldown)
	var out []content.Item
	for _, it := range items {
		rec, found, err := s.storage.GetAnalyzed(ctx, it.Permalink)
		if err != nil {
			s.logger.Printf("ledger lookup failed for %s, scoring anyway: %v", it.Permalink, err)
			out = append(out, it)
			continue
		}
		if found && rec.LastAnalyzedAt.After(cutoff) {
			continue
		}
		out = append(out, it)
	}
	return out
}

// scoreBatch scores survivors with a bounded worker pool and creates tasks for
// engaging candidates. Ledger upserts and task creation are serialized so the
// first writer wins on source_url.
func (s *Scheduler) scoreBatch(ctx context.Context, items []content.Item) (analyzed, created int, err error) {
	if len(items) == 0 {
		return 0, 0, nil
	}
	workers := s.scoringCfg.Workers
	if workers <= 0 {
		workers = 4
	}
	if workers > len(items) {
		workers = len(items)
	}

	type scored struct {
		item content.Item
		cand pipeline.ScoredCandidate
	}

	jobs := make(chan content.Item)
	results := make(chan scored)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for it := range jobs {
				cand, serr := s.scorer.Score(ctx, it, "")
				if serr != nil {
					// cand already carries the non-engaging default
					s.logger.Printf("scoring failed for %s: %v", it.Permalink, serr)
				}
				results <- scored{item: it, cand: cand}
			}
		}()
	}
	go func() {
		for _, it := range items {
			jobs <- it
		}
		close(jobs)
		wg.Wait()
		close(results)
	}()

	now := s.now().UTC()
	for r := range results {
		analyzed++
		if lerr := s.storage.UpsertAnalyzed(ctx, r.item.Permalink, r.cand.Score, string(r.cand.Tier), now); lerr != nil {
			s.logger.Printf("ledger upsert failed for %s: %v", r.item.Permalink, lerr)
		}
		if !r.cand.EngagementDecision {
			continue
		}
		task := taskFromCandidate(r.item, r.cand)
		ok, cerr := s.storage.CreateTask(ctx, &task)
		if cerr != nil {
			s.logger.Printf("task creation failed for %s: %v", r.item.Permalink, cerr)
			continue
		}
		if ok {
			created++
		}
	}
	return analyzed, created, nil
}

func taskFromCandidate(it content.Item, cand pipeline.ScoredCandidate) store.Task {
	snippet := truncateRunes(strings.TrimSpace(it.Text), 280)
	title := truncateRunes(snippet, 80)
	meta, _ := json.Marshal(map[string]interface{}{
		"score":     cand.Score,
		"tier":      string(cand.Tier),
		"reasoning": cand.Reasoning,
		"author":    it.Author,
	})
	return store.Task{
		Title:             title,
		Snippet:           snippet,
		SourceURL:         it.Permalink,
		Platform:          it.Platform,
		Priority:          priorityForTier(cand.Tier),
		SuggestedResponse: cand.SuggestedAction,
		Metadata:          meta,
	}
}

// truncateRunes shortens s to max runes so multi-byte characters never split.
func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}

func priorityForTier(t pipeline.Tier) int {
	switch t {
	case pipeline.TierStrongFit:
		return 3
	case pipeline.TierSprinkle:
		return 2
	case pipeline.TierPureHelp:
		return 1
	default:
		return 0
	}
}

// History returns recent run entries, preferring the durable store and
// falling back to the in-memory ring when the store is unreachable.
func (s *Scheduler) History(ctx context.Context, limit int) []store.RunHistoryEntry {
	entries, err := s.storage.RecentRunHistory(ctx, limit)
	if err != nil {
		s.logger.Printf("history read failed, serving in-memory ring: %v", err)
		return s.ring.Snapshot(limit)
	}
	return entries
}

// Stats returns aggregate run counters.
func (s *Scheduler) Stats(ctx context.Context) (store.RunStats, error) {
	return s.storage.RunStats(ctx)
}

func (s *Scheduler) notifySummary(entry store.RunHistoryEntry) {
	if s.notify == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		status := "succeeded"
		if !entry.Success {
			status = "failed: " + entry.Error
		}
		summary := fmt.Sprintf("Scout run %s\nprocessed: %d\nanalyzed: %d\ntasks created: %d\nduration: %dms",
			status, entry.Result.Processed, entry.Result.Analyzed, entry.Result.TasksCreated, entry.Result.DurationMs)
		if nerr := s.notify.Notify(ctx, summary); nerr != nil {
			s.logger.Printf("notification failed: %v", nerr)
		}
	}()
}
