package app

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/chronicle-engine/internal/config"
	"github.com/jwebster45206/chronicle-engine/internal/services"
	"github.com/jwebster45206/chronicle-engine/pkg/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func baseConfig() *config.Config {
	return &config.Config{
		StorageBackend:      "redis",
		LLMProvider:         "gemini",
		ModelName:           "gemini-2.0-flash",
		HistoryCharBudget:   4000,
		MaxChronicleRecalls: 3,
		CoreStats:           []string{"Health", "Qi"},
	}
}

func TestEngineConfig(t *testing.T) {
	cfg := baseConfig()
	cfg.FlavorModelName = "gemini-flash-lite"

	ec := EngineConfig(cfg)
	assert.Equal(t, 4000, ec.HistoryCharBudget)
	assert.Equal(t, 3, ec.MaxChronicleRecalls)
	assert.Equal(t, "gemini-flash-lite", ec.FlavorModel)
	assert.Equal(t, 2, ec.Core.Len())
	assert.NotNil(t, ec.Rules)
	assert.Equal(t, 10, ec.MaxUndo)
}

func TestNewGenerator(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		mutate  func(c *config.Config)
		wantErr string
		check   func(t *testing.T, g *Generation)
	}{
		{
			name:    "gemini without keys",
			mutate:  func(c *config.Config) {},
			wantErr: "GEMINI_API_KEYS",
		},
		{
			name: "gemini with keys and images",
			mutate: func(c *config.Config) {
				c.GeminiAPIKeys = []string{"k1", "k2"}
				c.ImageModelName = "imagen-3"
			},
			check: func(t *testing.T, g *Generation) {
				assert.IsType(t, &services.GeminiService{}, g.Generator)
				require.NotNil(t, g.Credentials)
				assert.Equal(t, 2, g.Credentials.Count())
				assert.NotNil(t, g.Images)
			},
		},
		{
			name: "venice",
			mutate: func(c *config.Config) {
				c.LLMProvider = "venice"
				c.VeniceAPIKey = "v"
			},
			check: func(t *testing.T, g *Generation) {
				assert.IsType(t, &services.VeniceService{}, g.Generator)
				assert.Nil(t, g.Credentials)
				assert.Nil(t, g.Images)
			},
		},
		{
			name:    "anthropic without key",
			mutate:  func(c *config.Config) { c.LLMProvider = "anthropic" },
			wantErr: "ANTHROPIC_API_KEY",
		},
		{
			name: "images without gemini keys",
			mutate: func(c *config.Config) {
				c.LLMProvider = "anthropic"
				c.AnthropicAPIKey = "a"
				c.ImageModelName = "imagen-3"
			},
			check: func(t *testing.T, g *Generation) {
				assert.Nil(t, g.Images)
			},
		},
		{
			name:    "unknown provider",
			mutate:  func(c *config.Config) { c.LLMProvider = "ollama" },
			wantErr: "invalid LLM provider",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := baseConfig()
			tt.mutate(cfg)
			g, err := NewGenerator(ctx, cfg, nil, testLogger())
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			defer func() { _ = g.Close() }()
			tt.check(t, g)
		})
	}
}

func TestNewGenerator_RestoresCredentialIndex(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = rdb.Close() }()
	index := services.NewRedisServiceFromClient(rdb, testLogger())
	ctx := context.Background()
	require.NoError(t, index.SaveIndex(ctx, 1))

	cfg := baseConfig()
	cfg.GeminiAPIKeys = []string{"k1", "k2", "k3"}
	g, err := NewGenerator(ctx, cfg, index, testLogger())
	require.NoError(t, err)
	defer func() { _ = g.Close() }()
	assert.Equal(t, 1, g.Credentials.Index())
}

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)
	for _, url := range []string{mr.Addr(), "redis://" + mr.Addr() + "/0"} {
		rdb, err := NewRedisClient(url)
		require.NoError(t, err)
		assert.NoError(t, rdb.Ping(context.Background()).Err(), url)
		_ = rdb.Close()
	}

	_, err := NewRedisClient("redis://:bad port")
	assert.Error(t, err)
}

func TestOpenStorage(t *testing.T) {
	t.Run("sqlite", func(t *testing.T) {
		cfg := baseConfig()
		cfg.StorageBackend = "sqlite"
		cfg.SQLitePath = filepath.Join(t.TempDir(), "chronicle.db")
		s, err := OpenStorage(cfg, testLogger())
		require.NoError(t, err)
		defer func() { _ = s.Close() }()
		_, ok := s.(storage.ChronicleArchive)
		assert.True(t, ok)
		assert.NoError(t, s.Ping(context.Background()))
	})

	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		cfg := baseConfig()
		cfg.RedisURL = "redis://" + mr.Addr()
		s, err := OpenStorage(cfg, testLogger())
		require.NoError(t, err)
		defer func() { _ = s.Close() }()
		assert.NoError(t, s.Ping(context.Background()))
	})

	t.Run("unknown backend", func(t *testing.T) {
		cfg := baseConfig()
		cfg.StorageBackend = "postgres"
		_, err := OpenStorage(cfg, testLogger())
		assert.Error(t, err)
	})
}
