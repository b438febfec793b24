package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/chronicle-engine/internal/services/events"
)

const eventConnected events.EventType = "connected"

var errBadSessionID = errors.New("Invalid game state ID format.")

// sessionFromPath reads the session id from /v1/{transport}/gamestate/{id}.
func sessionFromPath(path, transport string) (uuid.UUID, error) {
	rest, ok := strings.CutPrefix(strings.Trim(path, "/"), "v1/"+transport+"/gamestate/")
	if !ok || rest == "" || strings.Contains(rest, "/") {
		return uuid.Nil, fmt.Errorf("Invalid path. Expected /v1/%s/gamestate/{gameStateID}", transport)
	}
	id, err := uuid.Parse(rest)
	if err != nil {
		return uuid.Nil, errBadSessionID
	}
	return id, nil
}

func writeStreamError(w http.ResponseWriter, status int, msg string, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(ErrorResponse{Error: msg}); err != nil {
		logger.Error("Failed to encode error response", "error", err)
	}
}

// sessionStream is one subscriber's view of a session's event channel.
type sessionStream struct {
	gameID uuid.UUID
	pubsub *redis.PubSub
	events chan events.Event
	logger *slog.Logger
}

// openStream subscribes to the session channel and waits for the
// confirmation, so nothing published after it returns is missed.
func openStream(ctx context.Context, rdb *redis.Client, gameID uuid.UUID, logger *slog.Logger) (*sessionStream, error) {
	channel := events.Channel(gameID)
	pubsub := rdb.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}
	s := &sessionStream{
		gameID: gameID,
		pubsub: pubsub,
		events: make(chan events.Event),
		logger: logger,
	}
	go s.decode(ctx)
	return s, nil
}

func (s *sessionStream) decode(ctx context.Context) {
	defer close(s.events)
	for msg := range s.pubsub.Channel() {
		var ev events.Event
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			s.logger.Error("Failed to unmarshal event", "error", err, "payload", msg.Payload)
			continue
		}
		select {
		case s.events <- ev:
		case <-ctx.Done():
			return
		}
	}
}

// hello is the first event every subscriber receives.
func (s *sessionStream) hello() events.Event {
	return events.Event{
		Type:   eventConnected,
		GameID: s.gameID.String(),
		Data:   map[string]interface{}{"message": "Connected to event stream"},
	}
}

func (s *sessionStream) Close() {
	if err := s.pubsub.Close(); err != nil {
		s.logger.Error("Failed to close pubsub", "error", err)
	}
}
