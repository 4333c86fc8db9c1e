package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/communitysignals/scout/internal/content"
	"github.com/communitysignals/scout/internal/pipeline"
	"github.com/communitysignals/scout/internal/scheduler"
	"github.com/communitysignals/scout/internal/store"
)

// Runner is the scheduler surface the run handlers need.
type Runner interface {
	RunNow(ctx context.Context) (store.RunResult, error)
	History(ctx context.Context, limit int) []store.RunHistoryEntry
	Stats(ctx context.Context) (store.RunStats, error)
	State() scheduler.State
}

// Researcher executes an ad-hoc research question.
type Researcher interface {
	Run(ctx context.Context, question string, platforms []string, window *content.DateRange, obs pipeline.Observer) (pipeline.AnalysisRun, error)
}

// CandidateScorer scores one retrieved item with situational context.
type CandidateScorer interface {
	Score(ctx context.Context, it content.Item, situational string) (pipeline.ScoredCandidate, error)
}

// AnalysisStore persists and lists pipeline audit records.
type AnalysisStore interface {
	SaveAnalysisRun(ctx context.Context, rec store.AnalysisRunRecord) error
	ListAnalysisRuns(ctx context.Context, limit int) ([]store.AnalysisRunRecord, error)
}

// RunsHandler exposes run history, stats, the manual trigger, and ad-hoc
// research.
type RunsHandler struct {
	Sched    Runner
	Research Researcher
	Analyses AnalysisStore
	Scorer   CandidateScorer
}

func (h *RunsHandler) Register(g *echo.Group, secret []byte) {
	g.Use(authMiddleware(secret))
	g.GET("/history", h.history)
	g.GET("/stats", h.stats)
	g.GET("/state", h.state)
	g.POST("/trigger", h.trigger)
	g.GET("/analyses", h.analyses)
	g.POST("/research", h.research)
}

func (h *RunsHandler) history(c echo.Context) error {
	limit := 50
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
		limit = n
	}
	entries := h.Sched.History(c.Request().Context(), limit)
	if entries == nil {
		entries = []store.RunHistoryEntry{}
	}
	return c.JSON(http.StatusOK, entries)
}

func (h *RunsHandler) stats(c echo.Context) error {
	st, err := h.Sched.Stats(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, st)
}

func (h *RunsHandler) state(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"state": string(h.Sched.State())})
}

// trigger runs the pipeline outside the timer. A run already in flight
// reports 409 without queueing.
func (h *RunsHandler) trigger(c echo.Context) error {
	result, err := h.Sched.RunNow(c.Request().Context())
	if err != nil {
		if errors.Is(err, scheduler.ErrAlreadyRunning) {
			return echo.NewHTTPError(http.StatusConflict, "run already in progress")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, TriggerResponse{
		Processed:    result.Processed,
		Analyzed:     result.Analyzed,
		TasksCreated: result.TasksCreated,
		DurationMs:   result.DurationMs,
		Status:       "succeeded",
	})
}

func (h *RunsHandler) analyses(c echo.Context) error {
	limit := 20
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
		limit = n
	}
	recs, err := h.Analyses.ListAnalysisRuns(c.Request().Context(), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if recs == nil {
		recs = []store.AnalysisRunRecord{}
	}
	return c.JSON(http.StatusOK, recs)
}

// research answers an ad-hoc question through the full adaptive retrieval
// loop and persists the result for audit.
func (h *RunsHandler) research(c echo.Context) error {
	var req ResearchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Question == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "question required")
	}
	run, err := h.Research.Run(c.Request().Context(), req.Question, req.Platforms, nil, nil)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	sources, _ := json.Marshal(run.Sources)
	if serr := h.Analyses.SaveAnalysisRun(c.Request().Context(), store.AnalysisRunRecord{
		ID:                 run.ID,
		Question:           run.Question,
		Answer:             run.Answer,
		Sources:            sources,
		IterationsExecuted: run.IterationsExecuted,
		CreatedAt:          run.CreatedAt,
	}); serr != nil {
		// the caller still gets the answer; persistence is audit-only
		c.Logger().Errorf("failed to save analysis run: %v", serr)
	}

	resp := ResearchResponse{AnalysisRun: run}
	if req.ScoreResults && h.Scorer != nil {
		situational := fmt.Sprintf("Question: %s\nAnswer: %s", run.Question, run.Answer)
		for _, src := range run.Sources {
			cand, serr := h.Scorer.Score(c.Request().Context(), src, situational)
			if serr != nil {
				// cand carries the non-engaging default; keep going
				c.Logger().Errorf("scoring %s failed: %v", src.Permalink, serr)
			}
			resp.Scored = append(resp.Scored, cand)
		}
	}
	return c.JSON(http.StatusOK, resp)
}
