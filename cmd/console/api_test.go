package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/chronicle-engine/internal/handlers"
	"github.com/jwebster45206/chronicle-engine/internal/services/events"
	"github.com/jwebster45206/chronicle-engine/pkg/state"
)

func TestReadSSE(t *testing.T) {
	gs := state.NewGameState("A frozen harbor.", state.DefaultSettings())
	completed, err := json.Marshal(events.Event{
		Type: events.EventTypeRequestCompleted,
		Data: map[string]interface{}{"gamestate": gs, "turn": 1},
	})
	require.NoError(t, err)

	stream := "event: connected\n" +
		`data: {"game_id":"x","message":"Connected"}` + "\n\n" +
		": keepalive\n\n" +
		"event: request.completed\n" +
		"data: " + string(completed) + "\n\n"

	ch := make(chan events.Event, 4)
	require.NoError(t, readSSE(context.Background(), strings.NewReader(stream), ch))
	close(ch)

	var got []events.Event
	for ev := range ch {
		got = append(got, ev)
	}
	require.Len(t, got, 2)
	assert.Equal(t, events.EventType("connected"), got[0].Type)
	assert.Equal(t, events.EventTypeRequestCompleted, got[1].Type)

	out := gameStateFrom(got[1])
	require.NotNil(t, out)
	assert.Equal(t, gs.ID, out.ID)
	assert.Nil(t, gameStateFrom(got[0]))
}

func TestAPIClient_Operation(t *testing.T) {
	id := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/gamestate/" + id.String() + "/action":
			var req handlers.ActionRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			assert.Equal(t, "Open the door", req.Action)
			w.WriteHeader(http.StatusAccepted)
			_ = json.NewEncoder(w).Encode(handlers.AcceptedResponse{RequestID: "r1", GameStateID: id, Status: "queued"})
		case "/v1/gamestate/" + id.String() + "/undo":
			w.WriteHeader(http.StatusConflict)
			_ = json.NewEncoder(w).Encode(handlers.ErrorResponse{Error: "a request is already in progress"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	api := newAPIClient(&ConsoleConfig{APIBaseURL: srv.URL + "/", Timeout: time.Second})

	accepted, err := api.operation(id, "action", handlers.ActionRequest{Action: "Open the door"})
	require.NoError(t, err)
	assert.Equal(t, "r1", accepted.RequestID)

	_, err = api.operation(id, "undo", nil)
	var apiErr *apiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	assert.Equal(t, "a request is already in progress", apiErr.Message)
	assert.Equal(t, "The narrator is still working on the last request.", describeError(err))
}

func TestFormatNarratorResponse(t *testing.T) {
	out := formatNarratorResponse("The tide turns.", 40)
	assert.Contains(t, out, AgentName)
	assert.Contains(t, out, "The tide turns.")

	out = formatNarratorResponse("Ferryman: Pay first.", 40)
	assert.NotContains(t, out, AgentName)
	assert.Contains(t, out, "Pay first.")
}
