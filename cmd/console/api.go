package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/jwebster45206/chronicle-engine/internal/handlers"
	"github.com/jwebster45206/chronicle-engine/internal/services/events"
	"github.com/jwebster45206/chronicle-engine/pkg/prompts"
	"github.com/jwebster45206/chronicle-engine/pkg/state"
	"github.com/jwebster45206/chronicle-engine/pkg/storage"
)

// apiClient talks to the chronicle API. stream has no timeout so event
// streams can stay open.
type apiClient struct {
	baseURL string
	client  *http.Client
	stream  *http.Client
}

func newAPIClient(cfg *ConsoleConfig) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(cfg.APIBaseURL, "/"),
		client:  &http.Client{Timeout: cfg.Timeout},
		stream:  &http.Client{},
	}
}

func (a *apiClient) testConnection() bool {
	resp, err := a.client.Get(a.baseURL + "/health")
	if err != nil {
		return false
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()
	return resp.StatusCode == http.StatusOK
}

// do sends a request and decodes a JSON reply into out when the status
// matches want.
func (a *apiClient) do(method, path string, body any, want int, out any) error {
	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(jsonData)
	}
	req, err := http.NewRequest(method, a.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != want {
		return &apiError{Status: resp.StatusCode, Message: errorMessage(data)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("API returned status %d: %s", e.Status, e.Message)
}

func errorMessage(body []byte) string {
	var errorResp handlers.ErrorResponse
	if err := json.Unmarshal(body, &errorResp); err != nil || errorResp.Error == "" {
		return strings.TrimSpace(string(body))
	}
	return errorResp.Error
}

func (a *apiClient) listGameStates() ([]storage.Summary, error) {
	var out []storage.Summary
	if err := a.do(http.MethodGet, "/v1/gamestate", nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *apiClient) getGameState(id uuid.UUID) (*handlers.GameStateResponse, error) {
	var out handlers.GameStateResponse
	if err := a.do(http.MethodGet, "/v1/gamestate/"+id.String(), nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *apiClient) createGameState(seed *prompts.Seed) (*handlers.AcceptedResponse, error) {
	settings := seed.Settings
	body := handlers.CreateGameStateRequest{
		WorldContext:   seed.WorldContext,
		CharacterSheet: seed.CharacterSheet,
		Settings:       &settings,
	}
	var out handlers.AcceptedResponse
	if err := a.do(http.MethodPost, "/v1/gamestate", body, http.StatusAccepted, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// operation posts to /v1/gamestate/{id}/{op}.
func (a *apiClient) operation(id uuid.UUID, op string, body any) (*handlers.AcceptedResponse, error) {
	var out handlers.AcceptedResponse
	path := fmt.Sprintf("/v1/gamestate/%s/%s", id, op)
	if err := a.do(http.MethodPost, path, body, http.StatusAccepted, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// listenToSSE connects to the SSE endpoint and streams events to a channel.
// The channel is closed when the stream ends.
func (a *apiClient) listenToSSE(ctx context.Context, gameStateID uuid.UUID, eventChan chan<- events.Event) error {
	defer close(eventChan)
	url := fmt.Sprintf("%s/v1/events/gamestate/%s", a.baseURL, gameStateID.String())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := a.stream.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to SSE: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("SSE connection failed with status %d: %s", resp.StatusCode, string(body))
	}

	return readSSE(ctx, resp.Body, eventChan)
}

func readSSE(ctx context.Context, r io.Reader, eventChan chan<- events.Event) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	var current events.Event
	var eventType string

	for scanner.Scan() {
		line := scanner.Text()

		if line == "" {
			// Empty line signals end of event
			if eventType != "" {
				if current.Type == "" {
					current.Type = events.EventType(eventType)
				}
				select {
				case eventChan <- current:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			current = events.Event{}
			eventType = ""
			continue
		}

		switch {
		case strings.HasPrefix(line, "event: "):
			eventType = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			dataJSON := strings.TrimPrefix(line, "data: ")
			_ = json.Unmarshal([]byte(dataJSON), &current)
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("error reading SSE stream: %w", err)
	}
	return nil
}

// gameStateFrom extracts the committed state carried by a completed event.
func gameStateFrom(ev events.Event) *state.GameState {
	raw, ok := ev.Data["gamestate"]
	if !ok {
		return nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil
	}
	var gs state.GameState
	if err := json.Unmarshal(data, &gs); err != nil {
		return nil
	}
	return &gs
}
