// Package app holds the startup wiring shared by the API, the worker and the
// chronicle command.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/chronicle-engine/internal/config"
	"github.com/jwebster45206/chronicle-engine/internal/engine"
	"github.com/jwebster45206/chronicle-engine/internal/services"
	internalstorage "github.com/jwebster45206/chronicle-engine/internal/storage"
	"github.com/jwebster45206/chronicle-engine/pkg/storage"
)

// Providers supported by NewGenerator.
var SupportedProviders = []string{"gemini", "venice", "anthropic"}

// EngineConfig maps process configuration onto engine settings.
func EngineConfig(cfg *config.Config) engine.Config {
	ec := engine.DefaultConfig()
	ec.Core = cfg.Core()
	ec.HistoryCharBudget = cfg.HistoryCharBudget
	if cfg.MaxChronicleRecalls > 0 {
		ec.MaxChronicleRecalls = cfg.MaxChronicleRecalls
	}
	ec.FlavorModel = cfg.FlavorModelName
	return ec
}

// NewRedisClient connects to redisURL, which may be a redis:// URL or a bare
// host:port.
func NewRedisClient(redisURL string) (*redis.Client, error) {
	opt := &redis.Options{Addr: redisURL}
	if strings.Contains(redisURL, "://") {
		parsed, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse redis URL: %w", err)
		}
		opt = parsed
	}
	return redis.NewClient(opt), nil
}

// OpenStorage opens the configured session store. The redis backend owns its
// own connection, closed with the store.
func OpenStorage(cfg *config.Config, log *slog.Logger) (storage.Storage, error) {
	switch cfg.StorageBackend {
	case "sqlite":
		s, err := internalstorage.NewSQLiteStore(cfg.SQLitePath, cfg.Core(), log)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		return s, nil
	case "redis":
		rdb, err := NewRedisClient(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		return internalstorage.NewRedisStorageFromClient(rdb, cfg.Core(), log), nil
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.StorageBackend)
	}
}

// Generation bundles the provider services built from configuration.
type Generation struct {
	Generator   services.Generator
	Credentials *services.CredentialPool
	Images      services.ImageGenerator
}

// Close releases provider clients that hold connections.
func (g *Generation) Close() error {
	if c, ok := g.Generator.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// NewGenerator builds the configured provider. index may be nil, in which
// case the credential index is not persisted across restarts.
func NewGenerator(ctx context.Context, cfg *config.Config, index services.IndexStore, log *slog.Logger) (*Generation, error) {
	g := &Generation{}

	var pool *services.CredentialPool
	if len(cfg.GeminiAPIKeys) > 0 {
		pool = services.NewCredentialPool(cfg.GeminiAPIKeys, index, log)
		if err := pool.Restore(ctx); err != nil {
			log.Warn("Failed to restore credential index", "error", err)
		}
	}

	switch cfg.LLMProvider {
	case "gemini":
		if pool == nil || !pool.IsConfigured() {
			return nil, fmt.Errorf("GEMINI_API_KEYS is required when using gemini provider")
		}
		g.Generator = services.NewGeminiService(pool, cfg.ModelName, log)
		g.Credentials = pool
		log.Info("Using Gemini provider", "keys", pool.Count(), "active_slot", pool.Index())
	case "venice":
		if cfg.VeniceAPIKey == "" {
			return nil, fmt.Errorf("VENICE_API_KEY is required when using venice provider")
		}
		g.Generator = services.NewVeniceService(cfg.VeniceAPIKey, cfg.ModelName)
		log.Info("Using Venice provider")
	case "anthropic":
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY is required when using anthropic provider")
		}
		g.Generator = services.NewAnthropicService(cfg.AnthropicAPIKey, cfg.ModelName, log)
		log.Info("Using Anthropic provider")
	default:
		return nil, fmt.Errorf("invalid LLM provider %q (supported: %v)", cfg.LLMProvider, SupportedProviders)
	}

	if cfg.ImageModelName != "" {
		if pool == nil || !pool.IsConfigured() {
			log.Warn("IMAGE_MODEL_NAME set without GEMINI_API_KEYS; images disabled")
		} else {
			g.Images = services.NewImagenService(pool, cfg.ImageModelName)
			log.Info("Image generation enabled", "model", cfg.ImageModelName)
		}
	}
	return g, nil
}
