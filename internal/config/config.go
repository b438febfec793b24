package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"

	"github.com/jwebster45206/chronicle-engine/pkg/stats"
)

type Config struct {
	Port        string `env:"PORT" envDefault:"8080"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevelRaw string `env:"LOG_LEVEL" envDefault:"info"`
	LogLevel    slog.Level

	RedisURL       string `env:"REDIS_URL" envDefault:"localhost:6379"`
	StorageBackend string `env:"STORAGE_BACKEND" envDefault:"redis"`
	SQLitePath     string `env:"SQLITE_PATH" envDefault:"./data/chronicle.db"`

	LLMProvider     string   `env:"LLM_PROVIDER" envDefault:"gemini"`
	ModelName       string   `env:"MODEL_NAME" envDefault:"gemini-2.0-flash"`
	FlavorModelName string   `env:"FLAVOR_MODEL_NAME"`
	GeminiAPIKeys   []string `env:"GEMINI_API_KEYS" envSeparator:","`
	VeniceAPIKey    string   `env:"VENICE_API_KEY"`
	AnthropicAPIKey string   `env:"ANTHROPIC_API_KEY"`
	ImageModelName  string   `env:"IMAGE_MODEL_NAME"`

	CoreStats           []string `env:"CORE_STATS" envSeparator:"," envDefault:"Health,Stamina,Sanity,Cultivation Realm"`
	HistoryCharBudget   int      `env:"HISTORY_CHAR_BUDGET" envDefault:"12000"`
	MaxChronicleRecalls int      `env:"MAX_CHRONICLE_RECALLS" envDefault:"5"`

	OTelEnabled  bool   `env:"OTEL_ENABLED" envDefault:"false"`
	OTelEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	WorkerID string `env:"WORKER_ID"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := ParseEnv(cfg); err != nil {
		return nil, err
	}
	cfg.LogLevel = parseLogLevel(cfg.LogLevelRaw)

	switch strings.ToLower(cfg.StorageBackend) {
	case "redis", "sqlite":
		cfg.StorageBackend = strings.ToLower(cfg.StorageBackend)
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.StorageBackend)
	}
	cfg.LLMProvider = strings.ToLower(strings.TrimSpace(cfg.LLMProvider))
	if cfg.HistoryCharBudget <= 0 {
		return nil, fmt.Errorf("HISTORY_CHAR_BUDGET must be positive")
	}
	return cfg, nil
}

// Core returns the configured core stat set.
func (c *Config) Core() stats.CoreSet {
	if len(c.CoreStats) == 0 {
		return stats.DefaultCoreStats
	}
	return stats.NewCoreSet(c.CoreStats...)
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
