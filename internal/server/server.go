package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/communitysignals/scout/config"
	"github.com/communitysignals/scout/internal/content"
	"github.com/communitysignals/scout/internal/llm"
	"github.com/communitysignals/scout/internal/notify"
	"github.com/communitysignals/scout/internal/pipeline"
	"github.com/communitysignals/scout/internal/runtime"
	"github.com/communitysignals/scout/internal/scheduler"
	"github.com/communitysignals/scout/internal/store"
	"github.com/communitysignals/scout/internal/telemetry"
)

// Run wires the whole service and blocks serving HTTP: store, content
// adapter, LLM provider, pipeline, scheduler, and the API routes.
func Run(cfg *config.Config) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	// Unified HTTP error handler with structured JSON and logging
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, HTTPError{Error: msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Cookie", "Authorization"},
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	ctx := context.Background()
	dsn := cfg.Storage.Postgres.DSN()
	if err := Migrate("file://migrations", dsn, "up", 0); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	st, err := store.NewWithDSN(ctx, dsn)
	if err != nil {
		return fmt.Errorf("connecting postgres: %w", err)
	}

	tele := telemetry.New(cfg.Telemetry.CostTracking)
	provider, err := llm.NewProvider(cfg.LLM, tele)
	if err != nil {
		return err
	}
	contentStore, err := newContentStore(cfg.ContentStore)
	if err != nil {
		return err
	}
	research := pipeline.NewResearch(provider, contentStore, cfg.LLM.Routing, cfg.Retrieval)
	scorer := pipeline.NewScorer(provider, cfg.LLM.Routing, cfg.Scoring.Rubric)

	var rdb *redis.Client
	if addr := cfg.Storage.Redis.Addr(); addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Storage.Redis.Password, DB: cfg.Storage.Redis.DB})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis connection failed (%s): %w", addr, err)
		}
	}

	var sink notify.Notifier = notify.Nop{}
	if cfg.Notify.TelegramBotToken != "" && cfg.Notify.TelegramChatID != "" {
		sink = notify.NewTelegram(cfg.Notify)
	}

	sched := scheduler.New(cfg.Scheduler, cfg.Scoring, st, contentStore, scorer, research, sink, tele, rdb)
	if cfg.Scheduler.Enabled {
		sched.Start()
		defer sched.Shutdown()
	}

	secret := cfg.Server.JWTSecret
	if secret == "" {
		return fmt.Errorf("jwt secret not configured (server.jwt_secret)")
	}

	api := e.Group("/api")
	auth := &AuthHandler{Store: st, Secret: []byte(secret)}
	auth.Register(api.Group("/auth"))

	th := &TasksHandler{Store: st}
	th.Register(api.Group("/tasks"), []byte(secret))

	rh := &RunsHandler{Sched: sched, Research: research, Analyses: st, Scorer: scorer}
	rh.Register(api.Group("/runs"), []byte(secret))

	addr := cfg.Server.Address
	if addr == "" {
		addr = ":10020"
	}
	log.Printf("listening on %s", addr)
	return e.Start(addr)
}

func authMiddleware(secret []byte) echo.MiddlewareFunc {
	return runtime.EchoAuthMiddleware(secret)
}

func newContentStore(cfg config.ContentStoreConfig) (content.Store, error) {
	switch cfg.Mode {
	case "bleve":
		return content.NewBleveStore(cfg.IndexPath)
	case "", "http":
		return content.NewHTTPStore(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported content store mode: %s", cfg.Mode)
	}
}
