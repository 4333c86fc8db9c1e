package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the scout pipeline
type Config struct {
	General      GeneralConfig      `mapstructure:"general"`
	Server       ServerConfig       `mapstructure:"server"`
	LLM          LLMConfig          `mapstructure:"llm"`
	ContentStore ContentStoreConfig `mapstructure:"content_store"`
	Retrieval    RetrievalConfig    `mapstructure:"retrieval"`
	Scoring      ScoringConfig      `mapstructure:"scoring"`
	Scheduler    SchedulerConfig    `mapstructure:"scheduler"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Telemetry    TelemetryConfig    `mapstructure:"telemetry"`
	Notify       NotifyConfig       `mapstructure:"notify"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug          bool          `mapstructure:"debug"`
	LogLevel       string        `mapstructure:"log_level"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
}

// ServerConfig contains HTTP server and auth settings
type ServerConfig struct {
	Address   string `mapstructure:"address"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

// LLMConfig contains reasoning oracle settings
type LLMConfig struct {
	Provider     string           `mapstructure:"provider"` // openai
	APIKey       string           `mapstructure:"api_key"`
	BaseURL      string           `mapstructure:"base_url"`
	Temperature  float64          `mapstructure:"temperature"`
	MaxTokens    int              `mapstructure:"max_tokens"`
	Timeout      time.Duration    `mapstructure:"timeout"`
	MaxRetries   int              `mapstructure:"max_retries"`
	RetryBackoff time.Duration    `mapstructure:"retry_backoff"`
	Routing      LLMRoutingConfig `mapstructure:"routing"`
}

// LLMRoutingConfig defines which model to use for different pipeline stages
type LLMRoutingConfig struct {
	Planning   string `mapstructure:"planning"`
	Evaluation string `mapstructure:"evaluation"`
	Scoring    string `mapstructure:"scoring"`
	Synthesis  string `mapstructure:"synthesis"`
	Fallback   string `mapstructure:"fallback"`
}

// Model resolves a routing slot, falling back to the fallback model.
func (r LLMRoutingConfig) Model(slot string) string {
	m := ""
	switch slot {
	case "planning":
		m = r.Planning
	case "evaluation":
		m = r.Evaluation
	case "scoring":
		m = r.Scoring
	case "synthesis":
		m = r.Synthesis
	}
	if m == "" {
		m = r.Fallback
	}
	return m
}

// ContentStoreConfig selects and configures the semantic retrieval backend
type ContentStoreConfig struct {
	Mode      string        `mapstructure:"mode"` // http or bleve
	BaseURL   string        `mapstructure:"base_url"`
	APIKey    string        `mapstructure:"api_key"`
	Timeout   time.Duration `mapstructure:"timeout"`
	IndexPath string        `mapstructure:"index_path"`
}

func (c ContentStoreConfig) Validate() error {
	switch c.Mode {
	case "http":
		if strings.TrimSpace(c.BaseURL) == "" {
			return fmt.Errorf("content_store.base_url required when mode is http")
		}
	case "bleve":
		if strings.TrimSpace(c.IndexPath) == "" {
			return fmt.Errorf("content_store.index_path required when mode is bleve")
		}
	default:
		return fmt.Errorf("content_store.mode must be http or bleve, got %q", c.Mode)
	}
	return nil
}

// RetrievalConfig tunes the iterative retrieval loop
type RetrievalConfig struct {
	PerQueryLimit       int     `mapstructure:"per_query_limit"`
	MinPrimaryLength    int     `mapstructure:"min_primary_length"`
	MinReplyLength      int     `mapstructure:"min_reply_length"`
	MaxIterations       int     `mapstructure:"max_iterations"`
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`
	MinResults          int     `mapstructure:"min_results"`
}

// ScoringConfig tunes the scoring/tiering engine
type ScoringConfig struct {
	Rubric   RubricConfig  `mapstructure:"rubric"`
	Cooldown time.Duration `mapstructure:"cooldown"`
	Workers  int           `mapstructure:"workers"`
}

// RubricConfig is the externally supplied, versioned analysis rubric injected
// into the scoring engine at call time.
type RubricConfig struct {
	Version      string   `mapstructure:"version"`
	Instructions string   `mapstructure:"instructions"`
	ProductName  string   `mapstructure:"product_name"`
	Platforms    []string `mapstructure:"platforms"`
}

// SchedulerConfig controls the background driver
type SchedulerConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Interval    time.Duration `mapstructure:"interval"`
	CronSpec    string        `mapstructure:"cron_spec"`
	Lookback    time.Duration `mapstructure:"lookback"`
	HistorySize int           `mapstructure:"history_size"`
}

func (s SchedulerConfig) Validate() error {
	if s.Enabled && s.Interval <= 0 && strings.TrimSpace(s.CronSpec) == "" {
		return fmt.Errorf("scheduler.interval or scheduler.cron_spec required when scheduler is enabled")
	}
	return nil
}

// StorageConfig contains storage and persistence settings
type StorageConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig contains Postgres connection settings
type PostgresConfig struct {
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (p PostgresConfig) Validate() error {
	if strings.TrimSpace(p.URL) != "" {
		return nil
	}
	if strings.TrimSpace(p.Host) == "" {
		return fmt.Errorf("storage.postgres.host required when url is not provided")
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("storage.postgres.dbname required when url is not provided")
	}
	return nil
}

// DSN builds a Postgres connection string from the configured fields.
func (p PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl)
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Addr returns host:port, empty when redis is not configured.
func (r RedisConfig) Addr() string {
	if strings.TrimSpace(r.Host) == "" || strings.TrimSpace(r.Port) == "" {
		return ""
	}
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

// TelemetryConfig contains monitoring settings
type TelemetryConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	CostTracking bool `mapstructure:"cost_tracking"`
}

// NotifyConfig configures the outbound notification sink
type NotifyConfig struct {
	TelegramBotToken string `mapstructure:"telegram_bot_token"`
	TelegramChatID   string `mapstructure:"telegram_chat_id"`
}

// LoadConfig loads config from file, applying SCOUT_* env overrides.
func LoadConfig(path string) (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("json")

	viper.SetDefault("general.log_level", "info")
	viper.SetDefault("general.default_timeout", "2m")
	viper.SetDefault("server.address", ":10020")
	viper.SetDefault("llm.provider", "openai")
	viper.SetDefault("llm.temperature", 0.3)
	viper.SetDefault("llm.max_tokens", 2000)
	viper.SetDefault("llm.timeout", "60s")
	viper.SetDefault("llm.max_retries", 3)
	viper.SetDefault("llm.retry_backoff", "500ms")
	viper.SetDefault("content_store.mode", "http")
	viper.SetDefault("content_store.timeout", "15s")
	viper.SetDefault("retrieval.per_query_limit", 15)
	viper.SetDefault("retrieval.min_primary_length", 40)
	viper.SetDefault("retrieval.min_reply_length", 80)
	viper.SetDefault("retrieval.max_iterations", 4)
	viper.SetDefault("retrieval.confidence_threshold", 80)
	viper.SetDefault("retrieval.min_results", 10)
	viper.SetDefault("scoring.cooldown", "720h")
	viper.SetDefault("scoring.workers", 4)
	viper.SetDefault("scoring.rubric.version", "v1")
	viper.SetDefault("scheduler.enabled", true)
	viper.SetDefault("scheduler.interval", "4h")
	viper.SetDefault("scheduler.lookback", "24h")
	viper.SetDefault("scheduler.history_size", 50)
	viper.SetDefault("telemetry.enabled", true)
	viper.SetDefault("telemetry.cost_tracking", true)

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)
		viper.AddConfigPath(filepath.Join(exeDir, ".."))
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("SCOUT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// env-only operation is allowed when no config file is present
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.ContentStore.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Scheduler.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Storage.Postgres.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
