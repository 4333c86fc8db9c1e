package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func load(t *testing.T, body string) (*Config, error) {
	t.Helper()
	viper.Reset()
	return LoadConfig(writeConfig(t, body))
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := load(t, `{
		"content_store": {"base_url": "http://localhost:9000"},
		"storage": {"postgres": {"url": "postgres://u:p@localhost:5432/scout?sslmode=disable"}}
	}`)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Retrieval.MinPrimaryLength != 40 || cfg.Retrieval.MinReplyLength != 80 {
		t.Errorf("quality thresholds = %d/%d, want 40/80", cfg.Retrieval.MinPrimaryLength, cfg.Retrieval.MinReplyLength)
	}
	if cfg.Retrieval.MaxIterations != 4 {
		t.Errorf("max_iterations = %d, want 4", cfg.Retrieval.MaxIterations)
	}
	if cfg.Retrieval.ConfidenceThreshold != 80 {
		t.Errorf("confidence_threshold = %v, want 80", cfg.Retrieval.ConfidenceThreshold)
	}
	if cfg.Scoring.Cooldown != 720*time.Hour {
		t.Errorf("cooldown = %v, want 720h", cfg.Scoring.Cooldown)
	}
	if cfg.Scoring.Workers != 4 {
		t.Errorf("workers = %d, want 4", cfg.Scoring.Workers)
	}
	if cfg.Scheduler.Interval != 4*time.Hour || cfg.Scheduler.HistorySize != 50 {
		t.Errorf("scheduler = %v/%d, want 4h/50", cfg.Scheduler.Interval, cfg.Scheduler.HistorySize)
	}
	if cfg.Server.Address != ":10020" {
		t.Errorf("address = %q", cfg.Server.Address)
	}
	if cfg.LLM.Provider != "openai" || cfg.LLM.MaxRetries != 3 {
		t.Errorf("llm = %q/%d", cfg.LLM.Provider, cfg.LLM.MaxRetries)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	cfg, err := load(t, `{
		"content_store": {"mode": "bleve", "index_path": "/tmp/scout.bleve"},
		"storage": {"postgres": {"host": "db.internal", "dbname": "scout"}},
		"retrieval": {"max_iterations": 2, "confidence_threshold": 90},
		"scoring": {"cooldown": "48h", "rubric": {"product_name": "Acme", "version": "v3"}},
		"scheduler": {"cron_spec": "0 */6 * * *", "interval": "0s"}
	}`)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Retrieval.MaxIterations != 2 || cfg.Retrieval.ConfidenceThreshold != 90 {
		t.Errorf("retrieval overrides not applied: %+v", cfg.Retrieval)
	}
	if cfg.Scoring.Cooldown != 48*time.Hour {
		t.Errorf("cooldown = %v, want 48h", cfg.Scoring.Cooldown)
	}
	if cfg.Scoring.Rubric.ProductName != "Acme" || cfg.Scoring.Rubric.Version != "v3" {
		t.Errorf("rubric = %+v", cfg.Scoring.Rubric)
	}
	if cfg.Scheduler.CronSpec != "0 */6 * * *" {
		t.Errorf("cron_spec = %q", cfg.Scheduler.CronSpec)
	}
}

func TestLoadConfigRejectsBadContentStoreMode(t *testing.T) {
	_, err := load(t, `{
		"content_store": {"mode": "elastic"},
		"storage": {"postgres": {"url": "postgres://u:p@localhost/scout"}}
	}`)
	if err == nil {
		t.Fatal("expected an error for an unknown content_store mode")
	}
}

func TestLoadConfigRequiresHTTPBaseURL(t *testing.T) {
	_, err := load(t, `{
		"content_store": {"mode": "http"},
		"storage": {"postgres": {"url": "postgres://u:p@localhost/scout"}}
	}`)
	if err == nil {
		t.Fatal("expected an error when mode is http and base_url is empty")
	}
}

func TestLoadConfigRequiresPostgres(t *testing.T) {
	_, err := load(t, `{
		"content_store": {"base_url": "http://localhost:9000"},
		"storage": {"postgres": {"port": "5432"}}
	}`)
	if err == nil {
		t.Fatal("expected an error when neither postgres url nor host is set")
	}
}

func TestPostgresDSN(t *testing.T) {
	p := PostgresConfig{Host: "db", User: "scout", Password: "pw", DBName: "scout"}
	want := "postgres://scout:pw@db:5432/scout?sslmode=disable"
	if got := p.DSN(); got != want {
		t.Errorf("DSN = %q, want %q", got, want)
	}

	p = PostgresConfig{URL: "postgres://explicit"}
	if got := p.DSN(); got != "postgres://explicit" {
		t.Errorf("DSN = %q, want the explicit url", got)
	}
}

func TestRoutingModelFallback(t *testing.T) {
	r := LLMRoutingConfig{Planning: "gpt-large", Fallback: "gpt-small"}
	if got := r.Model("planning"); got != "gpt-large" {
		t.Errorf("planning model = %q", got)
	}
	if got := r.Model("scoring"); got != "gpt-small" {
		t.Errorf("scoring model = %q, want fallback", got)
	}
}
