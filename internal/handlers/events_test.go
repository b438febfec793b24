package handlers

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/chronicle-engine/internal/services/events"
)

func setupEventsRedis(t *testing.T) (*redis.Client, *events.Broadcaster) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb, events.NewBroadcaster(rdb, testLogger())
}

func TestEventsHandler_InvalidPaths(t *testing.T) {
	rdb, _ := setupEventsRedis(t)
	h := NewEventsHandler(rdb, testLogger())

	tests := []struct {
		name   string
		method string
		path   string
		status int
	}{
		{"wrong method", http.MethodPost, "/v1/events/gamestate/" + uuid.New().String(), http.StatusMethodNotAllowed},
		{"wrong prefix", http.MethodGet, "/v1/events/games/" + uuid.New().String(), http.StatusBadRequest},
		{"bad id", http.MethodGet, "/v1/events/gamestate/nope", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.status, rr.Code)
		})
	}
}

// readSSE returns the data line of the next event named name.
func readSSE(t *testing.T, sc *bufio.Scanner, name string) string {
	t.Helper()
	current := ""
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			current = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: ") && current == name:
			return strings.TrimPrefix(line, "data: ")
		}
	}
	t.Fatalf("stream ended before %s event", name)
	return ""
}

func TestEventsHandler_StreamsEvents(t *testing.T) {
	rdb, b := setupEventsRedis(t)
	srv := httptest.NewServer(NewEventsHandler(rdb, testLogger()))
	defer srv.Close()

	gameID := uuid.New()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/events/gamestate/"+gameID.String(), nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	sc := bufio.NewScanner(resp.Body)
	connected := readSSE(t, sc, "connected")
	assert.Contains(t, connected, gameID.String())

	require.NoError(t, b.PublishRequestQueued(ctx, gameID, "r1", "action"))
	data := readSSE(t, sc, string(events.EventTypeRequestQueued))
	assert.Contains(t, data, `"request_id":"r1"`)
}

func TestWebSocketHandler_StreamsEvents(t *testing.T) {
	rdb, b := setupEventsRedis(t)
	srv := httptest.NewServer(NewWebSocketHandler(rdb, testLogger()))
	defer srv.Close()

	gameID := uuid.New()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/ws/gamestate/" + gameID.String()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var ev events.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, events.EventType("connected"), ev.Type)
	assert.Equal(t, gameID.String(), ev.GameID)

	require.NoError(t, b.PublishRequestProcessing(context.Background(), gameID, "r2", "action", "Bow"))
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, events.EventTypeRequestProcessing, ev.Type)
	assert.Equal(t, "r2", ev.RequestID)
	assert.Equal(t, "Bow", ev.Data["action"])
}

func TestWebSocketHandler_RejectsBadPath(t *testing.T) {
	rdb, _ := setupEventsRedis(t)
	h := NewWebSocketHandler(rdb, testLogger())
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/ws/gamestate/nope", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSessionFromPath(t *testing.T) {
	id := uuid.New()
	tests := []struct {
		name      string
		path      string
		transport string
		wantErr   string
	}{
		{"sse", "/v1/events/gamestate/" + id.String(), "events", ""},
		{"websocket trailing slash", "/v1/ws/gamestate/" + id.String() + "/", "ws", ""},
		{"transport mismatch", "/v1/ws/gamestate/" + id.String(), "events", "Expected /v1/events/gamestate/{gameStateID}"},
		{"missing id", "/v1/events/gamestate/", "events", "Invalid path"},
		{"extra segment", "/v1/events/gamestate/" + id.String() + "/x", "events", "Invalid path"},
		{"bad id", "/v1/events/gamestate/not-a-uuid", "events", "Invalid game state ID format."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := sessionFromPath(tt.path, tt.transport)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, id, got)
		})
	}
}

func TestEventsHandler_SkipsUndecodablePayloads(t *testing.T) {
	rdb, b := setupEventsRedis(t)
	srv := httptest.NewServer(NewEventsHandler(rdb, testLogger()))
	defer srv.Close()

	gameID := uuid.New()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/events/gamestate/"+gameID.String(), nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	sc := bufio.NewScanner(resp.Body)
	readSSE(t, sc, "connected")

	require.NoError(t, rdb.Publish(ctx, events.Channel(gameID), "{not json").Err())
	require.NoError(t, b.PublishRequestQueued(ctx, gameID, "r3", "edit"))
	data := readSSE(t, sc, string(events.EventTypeRequestQueued))
	assert.Contains(t, data, `"request_id":"r3"`)
}
