package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/chronicle-engine/internal/engine"
	"github.com/jwebster45206/chronicle-engine/pkg/state"
)

// EventType represents the type of event being broadcast
type EventType string

const (
	EventTypeRequestQueued     EventType = "request.queued"
	EventTypeRequestProcessing EventType = "request.processing"
	EventTypeRequestCompleted  EventType = "request.completed"
	EventTypeRequestFailed     EventType = "request.failed"
	EventTypePhaseChanged      EventType = "engine.phase"
)

// Event represents a generic event structure
type Event struct {
	Type      EventType              `json:"type"`
	RequestID string                 `json:"request_id,omitempty"`
	GameID    string                 `json:"game_id,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// Channel returns the pub/sub channel for one session.
func Channel(gameID uuid.UUID) string {
	return fmt.Sprintf("game-events:%s", gameID.String())
}

// Broadcaster publishes events to Redis Pub/Sub for SSE and websocket
// distribution
type Broadcaster struct {
	redisClient *redis.Client
	logger      *slog.Logger
}

// NewBroadcaster creates a new event broadcaster
func NewBroadcaster(redisClient *redis.Client, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		redisClient: redisClient,
		logger:      logger,
	}
}

// PublishRequestQueued publishes a request.queued event
func (b *Broadcaster) PublishRequestQueued(ctx context.Context, gameID uuid.UUID, requestID string, requestType string) error {
	event := Event{
		Type:      EventTypeRequestQueued,
		RequestID: requestID,
		GameID:    gameID.String(),
		Data: map[string]interface{}{
			"status": "queued",
			"type":   requestType,
		},
	}
	return b.publishToGame(ctx, gameID, event)
}

// PublishRequestProcessing publishes a request.processing event
func (b *Broadcaster) PublishRequestProcessing(ctx context.Context, gameID uuid.UUID, requestID string, requestType string, action string) error {
	data := map[string]interface{}{
		"status": "processing",
		"type":   requestType,
	}
	if action != "" {
		data["action"] = action
	}
	event := Event{
		Type:      EventTypeRequestProcessing,
		RequestID: requestID,
		GameID:    gameID.String(),
		Data:      data,
	}
	return b.publishToGame(ctx, gameID, event)
}

// PublishPhase reports a turn state machine transition.
func (b *Broadcaster) PublishPhase(ctx context.Context, gameID uuid.UUID, requestID string, phase engine.Phase) error {
	event := Event{
		Type:      EventTypePhaseChanged,
		RequestID: requestID,
		GameID:    gameID.String(),
		Data: map[string]interface{}{
			"phase": phase,
		},
	}
	return b.publishToGame(ctx, gameID, event)
}

// PublishRequestCompleted publishes a request.completed event carrying the
// committed state.
func (b *Broadcaster) PublishRequestCompleted(ctx context.Context, gameID uuid.UUID, requestID string, gs *state.GameState) error {
	data := map[string]interface{}{
		"status": "completed",
	}
	if gs != nil {
		data["gamestate"] = gs
		data["turn"] = gs.TotalTurns
	}
	event := Event{
		Type:      EventTypeRequestCompleted,
		RequestID: requestID,
		GameID:    gameID.String(),
		Data:      data,
	}
	return b.publishToGame(ctx, gameID, event)
}

// PublishRequestFailed publishes a request.failed event. Engine errors keep
// their kind and retry hint.
func (b *Broadcaster) PublishRequestFailed(ctx context.Context, gameID uuid.UUID, requestID string, err error) error {
	data := map[string]interface{}{
		"status": "failed",
		"error":  err.Error(),
	}
	var engErr *engine.Error
	if errors.As(err, &engErr) {
		data["error"] = engErr.Message
		data["kind"] = engErr.Kind
		data["recoverable"] = engErr.Recoverable
		data["failed_slot"] = engErr.FailedSlot
	}
	event := Event{
		Type:      EventTypeRequestFailed,
		RequestID: requestID,
		GameID:    gameID.String(),
		Data:      data,
	}
	return b.publishToGame(ctx, gameID, event)
}

// publishToGame publishes an event to the game-specific channel
func (b *Broadcaster) publishToGame(ctx context.Context, gameID uuid.UUID, event Event) error {
	channel := Channel(gameID)

	data, err := json.Marshal(event)
	if err != nil {
		b.logger.Error("Failed to marshal event", "error", err, "event_type", event.Type)
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := b.redisClient.Publish(ctx, channel, data).Err(); err != nil {
		b.logger.Error("Failed to publish event", "error", err, "channel", channel)
		return fmt.Errorf("failed to publish event: %w", err)
	}

	b.logger.Debug("Event published",
		"channel", channel,
		"event_type", event.Type,
		"request_id", event.RequestID,
	)

	return nil
}
