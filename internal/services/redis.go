package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const credentialIndexKey = "credentials:index"

// RedisService wraps the shared Redis connection. It doubles as the
// credential pool's IndexStore.
type RedisService struct {
	client *redis.Client
	logger *slog.Logger
}

var _ IndexStore = (*RedisService)(nil)

// NewRedisService creates a new Redis service instance
func NewRedisService(redisURL string, logger *slog.Logger) *RedisService {
	rdb := redis.NewClient(&redis.Options{
		Addr: redisURL,
	})
	return NewRedisServiceFromClient(rdb, logger)
}

// NewRedisServiceFromClient wraps an existing client.
func NewRedisServiceFromClient(client *redis.Client, logger *slog.Logger) *RedisService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisService{
		client: client,
		logger: logger,
	}
}

func (r *RedisService) Ping(ctx context.Context) error {
	cmd := r.client.Ping(ctx)
	if err := cmd.Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}

	r.logger.Debug("Redis ping successful", "result", cmd.Val())
	return nil
}

// LoadIndex reads the persisted credential index.
func (r *RedisService) LoadIndex(ctx context.Context) (int, bool, error) {
	val, err := r.client.Get(ctx, credentialIndexKey).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("redis get failed: %w", err)
	}
	idx, err := strconv.Atoi(val)
	if err != nil {
		r.logger.Warn("Ignoring malformed credential index", "value", val)
		return 0, false, nil
	}
	return idx, true, nil
}

// SaveIndex persists the active credential index.
func (r *RedisService) SaveIndex(ctx context.Context, index int) error {
	if err := r.client.Set(ctx, credentialIndexKey, strconv.Itoa(index), 0).Err(); err != nil {
		r.logger.Error("Redis SET failed", "key", credentialIndexKey, "error", err)
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisService) Close() error {
	if err := r.client.Close(); err != nil {
		r.logger.Error("Failed to close Redis connection", "error", err)
		return err
	}

	r.logger.Info("Redis connection closed")
	return nil
}

func (r *RedisService) GetClient() *redis.Client {
	return r.client
}

func (r *RedisService) WaitForConnection(ctx context.Context) error {
	maxRetries := 30
	retryDelay := 2 * time.Second

	for i := 0; i < maxRetries; i++ {
		if err := r.Ping(ctx); err != nil {
			r.logger.Debug("Redis not ready yet", "error", err, "attempt", i+1)

			select {
			case <-ctx.Done():
				return fmt.Errorf("context cancelled while waiting for redis: %w", ctx.Err())
			case <-time.After(retryDelay):
				continue
			}
		}

		r.logger.Info("Redis connection established")
		return nil
	}

	return fmt.Errorf("redis did not become available after %d attempts", maxRetries)
}
