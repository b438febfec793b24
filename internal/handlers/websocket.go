package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/chronicle-engine/internal/services/events"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

// WebSocketHandler streams a session's events over a websocket. It carries
// the same payloads as the SSE endpoint.
type WebSocketHandler struct {
	redisClient *redis.Client
	upgrader    websocket.Upgrader
	logger      *slog.Logger
}

func NewWebSocketHandler(redisClient *redis.Client, logger *slog.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		redisClient: redisClient,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// ServeHTTP upgrades the connection.
// GET /v1/ws/gamestate/{gameStateID}
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	gameStateID, err := sessionFromPath(r.URL.Path, "ws")
	if err != nil {
		writeStreamError(w, http.StatusBadRequest, err.Error(), h.logger)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		h.logger.Warn("Websocket upgrade failed", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	ctx := r.Context()
	stream, err := openStream(ctx, h.redisClient, gameStateID, h.logger)
	if err != nil {
		h.logger.Error("Failed to open event stream", "game_state_id", gameStateID.String(), "error", err)
		return
	}
	defer stream.Close()

	h.logger.Info("Websocket connection established",
		"game_state_id", gameStateID.String(),
		"remote_addr", r.RemoteAddr)

	// The read loop only services control frames and notices disconnects.
	closed := make(chan struct{})
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := h.write(conn, stream.hello()); err != nil {
		return
	}

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-closed:
			h.logger.Info("Websocket client disconnected", "game_state_id", gameStateID.String())
			return
		case ev, ok := <-stream.events:
			if !ok {
				return
			}
			if err := h.write(conn, ev); err != nil {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *WebSocketHandler) write(conn *websocket.Conn, event events.Event) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := conn.WriteJSON(event); err != nil {
		h.logger.Warn("Failed to write websocket message", "error", err)
		return err
	}
	return nil
}
