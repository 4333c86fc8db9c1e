package telemetry

import (
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Telemetry tracks pipeline activity: prometheus collectors for scraping plus
// a small in-process aggregate for log summaries and cost tracking.
type Telemetry struct {
	runsTotal     *prometheus.CounterVec
	itemsTotal    *prometheus.CounterVec
	tasksCreated  prometheus.Counter
	oracleCalls   prometheus.Counter
	oracleTokens  *prometheus.CounterVec
	runDuration   prometheus.Histogram
	logger        *log.Logger
	costTracking  bool
	mu            sync.Mutex
	promptTokens  int64
	outputTokens  int64
	totalRuns     int64
	totalAnalyzed int64
}

var (
	newOnce sync.Once
	shared  *Telemetry
)

// New returns the process-wide telemetry instance. Collectors register on the
// default prometheus registry, so construction must happen once.
func New(costTracking bool) *Telemetry {
	newOnce.Do(func() {
		shared = &Telemetry{
			runsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "scout_runs_total",
				Help: "Pipeline runs by outcome.",
			}, []string{"status"}),
			itemsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "scout_items_total",
				Help: "Content items by pipeline stage.",
			}, []string{"stage"}),
			tasksCreated: promauto.NewCounter(prometheus.CounterOpts{
				Name: "scout_tasks_created_total",
				Help: "Work items created.",
			}),
			oracleCalls: promauto.NewCounter(prometheus.CounterOpts{
				Name: "scout_oracle_calls_total",
				Help: "Reasoning oracle invocations.",
			}),
			oracleTokens: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "scout_oracle_tokens_total",
				Help: "Oracle token usage by direction.",
			}, []string{"direction"}),
			runDuration: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "scout_run_duration_seconds",
				Help:    "Wall-clock duration of pipeline runs.",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12),
			}),
			logger:       log.New(log.Writer(), "[TELEMETRY] ", log.LstdFlags),
			costTracking: costTracking,
		}
	})
	return shared
}

// RecordRun records a completed scheduler run.
func (t *Telemetry) RecordRun(success bool, processed, analyzed, tasksCreated int, duration time.Duration) {
	status := "success"
	if !success {
		status = "failure"
	}
	t.runsTotal.WithLabelValues(status).Inc()
	t.itemsTotal.WithLabelValues("processed").Add(float64(processed))
	t.itemsTotal.WithLabelValues("analyzed").Add(float64(analyzed))
	t.tasksCreated.Add(float64(tasksCreated))
	t.runDuration.Observe(duration.Seconds())

	t.mu.Lock()
	t.totalRuns++
	t.totalAnalyzed += int64(analyzed)
	t.mu.Unlock()
}

// RecordOracleCall records one oracle invocation and its token usage.
func (t *Telemetry) RecordOracleCall(promptTokens, completionTokens int64) {
	t.oracleCalls.Inc()
	t.oracleTokens.WithLabelValues("prompt").Add(float64(promptTokens))
	t.oracleTokens.WithLabelValues("completion").Add(float64(completionTokens))

	if !t.costTracking {
		return
	}
	t.mu.Lock()
	t.promptTokens += promptTokens
	t.outputTokens += completionTokens
	t.mu.Unlock()
}

// Summary logs cumulative counters, called at the end of a run.
func (t *Telemetry) Summary() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.logger.Printf("runs=%d analyzed=%d prompt_tokens=%d completion_tokens=%d",
		t.totalRuns, t.totalAnalyzed, t.promptTokens, t.outputTokens)
}
