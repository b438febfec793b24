package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/chronicle-engine/pkg/state"
	"github.com/jwebster45206/chronicle-engine/pkg/storage"
)

const (
	gamestatePrefix = "gamestate:"
	undoPrefix      = "gamestate-undo:"
)

// GameState operations (Redis-backed)

func (r *RedisStorage) SaveGameState(ctx context.Context, id uuid.UUID, gs *state.GameState) error {
	gs.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(gs)
	if err != nil {
		r.logger.Error("Failed to marshal gamestate", "uuid", id, "error", err)
		return fmt.Errorf("failed to marshal gamestate: %w", err)
	}

	key := gamestatePrefix + id.String()
	cmd := r.client.Set(ctx, key, string(data), r.ttl)
	if err := cmd.Err(); err != nil {
		r.logger.Error("Failed to save gamestate", "uuid", id, "error", err)
		return fmt.Errorf("failed to save gamestate: %w", err)
	}

	return nil
}

// LoadGameState hydrates the stored document, upgrading older formats.
func (r *RedisStorage) LoadGameState(ctx context.Context, id uuid.UUID) (*state.GameState, error) {
	key := gamestatePrefix + id.String()
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			r.logger.Warn("Gamestate not found", "uuid", id)
			return nil, nil
		}
		r.logger.Error("Failed to load gamestate", "uuid", id, "error", err)
		return nil, fmt.Errorf("failed to load gamestate: %w", err)
	}

	if len(data) == 0 {
		r.logger.Warn("Gamestate not found", "uuid", id)
		return nil, nil
	}

	gs, err := state.Hydrate(data, r.core)
	if err != nil {
		r.logger.Error("Failed to hydrate gamestate", "uuid", id, "error", err)
		return nil, fmt.Errorf("failed to unmarshal gamestate: %w", err)
	}
	return gs, nil
}

func (r *RedisStorage) DeleteGameState(ctx context.Context, id uuid.UUID) error {
	cmd := r.client.Del(ctx, gamestatePrefix+id.String(), undoPrefix+id.String())
	if err := cmd.Err(); err != nil {
		r.logger.Error("Failed to delete gamestate", "uuid", id, "error", err)
		return fmt.Errorf("failed to delete gamestate: %w", err)
	}
	return nil
}

// ListGameStates scans stored sessions, newest first.
func (r *RedisStorage) ListGameStates(ctx context.Context) ([]storage.Summary, error) {
	var out []storage.Summary
	iter := r.client.Scan(ctx, 0, gamestatePrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		id, err := uuid.Parse(strings.TrimPrefix(key, gamestatePrefix))
		if err != nil {
			continue
		}
		gs, err := r.LoadGameState(ctx, id)
		if err != nil {
			r.logger.Warn("Skipping unreadable gamestate", "uuid", id, "error", err)
			continue
		}
		if gs == nil {
			continue
		}
		out = append(out, storage.Summary{
			ID:         id,
			Title:      storage.Title(gs),
			TotalTurns: gs.TotalTurns,
			UpdatedAt:  gs.UpdatedAt,
		})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to list gamestates: %w", err)
	}
	slices.SortFunc(out, func(a, b storage.Summary) int { return b.UpdatedAt.Compare(a.UpdatedAt) })
	return out, nil
}

// PushUndo prepends a snapshot to the session's capped undo list.
func (r *RedisStorage) PushUndo(ctx context.Context, id uuid.UUID, gs *state.GameState) error {
	data, err := json.Marshal(gs)
	if err != nil {
		return fmt.Errorf("failed to marshal gamestate: %w", err)
	}
	key := undoPrefix + id.String()
	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, key, string(data))
	pipe.LTrim(ctx, key, 0, storage.MaxUndo-1)
	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Error("Failed to push undo snapshot", "uuid", id, "error", err)
		return fmt.Errorf("failed to push undo snapshot: %w", err)
	}
	return nil
}

// PopUndo removes and returns the newest snapshot.
func (r *RedisStorage) PopUndo(ctx context.Context, id uuid.UUID) (*state.GameState, error) {
	data, err := r.client.LPop(ctx, undoPrefix+id.String()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, storage.ErrNothingToUndo
		}
		return nil, fmt.Errorf("failed to pop undo snapshot: %w", err)
	}
	gs, err := state.Hydrate(data, r.core)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal undo snapshot: %w", err)
	}
	return gs, nil
}
