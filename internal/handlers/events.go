package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/chronicle-engine/internal/services/events"
)

const sseKeepalive = 30 * time.Second

// EventsHandler streams a session's turn lifecycle as server-sent events.
// Each frame is named after the event type and carries the whole event, so
// clients can match request ids.
type EventsHandler struct {
	redisClient *redis.Client
	logger      *slog.Logger
}

func NewEventsHandler(redisClient *redis.Client, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{redisClient: redisClient, logger: logger}
}

// GET /v1/events/gamestate/{gameStateID}
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.logger.Warn("Method not allowed for events endpoint", "method", r.Method, "path", r.URL.Path)
		writeStreamError(w, http.StatusMethodNotAllowed, "Method not allowed. Only GET is supported.", h.logger)
		return
	}
	gameID, err := sessionFromPath(r.URL.Path, "events")
	if err != nil {
		writeStreamError(w, http.StatusBadRequest, err.Error(), h.logger)
		return
	}

	ctx := r.Context()
	stream, err := openStream(ctx, h.redisClient, gameID, h.logger)
	if err != nil {
		h.logger.Error("Failed to open event stream", "game_state_id", gameID.String(), "error", err)
		writeStreamError(w, http.StatusServiceUnavailable, "Event stream unavailable.", h.logger)
		return
	}
	defer stream.Close()

	out := newSSEWriter(w)
	out.header()
	h.logger.Info("SSE connection established",
		"game_state_id", gameID.String(),
		"remote_addr", r.RemoteAddr)
	if err := out.event(stream.hello()); err != nil {
		h.logger.Warn("Failed to write SSE event", "error", err)
		return
	}

	keepalive := time.NewTicker(sseKeepalive)
	defer keepalive.Stop()
	for {
		var err error
		select {
		case <-ctx.Done():
			h.logger.Info("SSE client disconnected", "game_state_id", gameID.String())
			return
		case ev, ok := <-stream.events:
			if !ok {
				return
			}
			err = out.event(ev)
		case <-keepalive.C:
			err = out.comment("keepalive")
		}
		if err != nil {
			h.logger.Warn("Failed to write SSE frame", "game_state_id", gameID.String(), "error", err)
			return
		}
	}
}

type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSEWriter(w http.ResponseWriter) *sseWriter {
	f, _ := w.(http.Flusher)
	return &sseWriter{w: w, flusher: f}
}

func (s *sseWriter) header() {
	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("Access-Control-Allow-Origin", "*")
	s.w.WriteHeader(http.StatusOK)
	s.flush()
}

func (s *sseWriter) event(ev events.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
		return err
	}
	s.flush()
	return nil
}

func (s *sseWriter) comment(text string) error {
	if _, err := fmt.Fprintf(s.w, ": %s\n\n", text); err != nil {
		return err
	}
	s.flush()
	return nil
}

func (s *sseWriter) flush() {
	if s.flusher != nil {
		s.flusher.Flush()
	}
}
