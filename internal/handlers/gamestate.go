package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/jwebster45206/chronicle-engine/pkg/prompts"
	"github.com/jwebster45206/chronicle-engine/pkg/queue"
	"github.com/jwebster45206/chronicle-engine/pkg/state"
	"github.com/jwebster45206/chronicle-engine/pkg/stats"
	"github.com/jwebster45206/chronicle-engine/pkg/storage"
)

const maxImportBytes = 8 << 20

type ErrorResponse struct {
	Error string `json:"error"`
}

// RequestQueue is the part of the shared work queue the API needs.
type RequestQueue interface {
	EnqueueRequest(ctx context.Context, req *queue.Request) error
	Depth(ctx context.Context, gameStateID uuid.UUID) (int, error)
	Clear(ctx context.Context, gameStateID uuid.UUID) error
}

// QueuedPublisher announces accepted requests to event subscribers.
type QueuedPublisher interface {
	PublishRequestQueued(ctx context.Context, gameID uuid.UUID, requestID string, requestType string) error
}

// CreateGameStateRequest is the seed for a new story.
type CreateGameStateRequest struct {
	WorldContext   string          `json:"worldContext"`
	CharacterSheet string          `json:"characterSheet"`
	Settings       *state.Settings `json:"settings,omitempty"`
}

// ActionRequest carries one player action.
type ActionRequest struct {
	Action string `json:"action"`
}

// SkillRequest asks for a skill shaped from a stat or a custom power.
type SkillRequest struct {
	StatName    string `json:"statName,omitempty"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
}

// AcceptedResponse is returned for every enqueued request. The outcome
// arrives on the session's event stream.
type AcceptedResponse struct {
	RequestID   string    `json:"request_id"`
	GameStateID uuid.UUID `json:"game_state_id"`
	Type        string    `json:"type"`
	Status      string    `json:"status"`
}

// GameStateResponse wraps a stored session with its queue status.
type GameStateResponse struct {
	GameState *state.GameState `json:"gamestate"`
	Pending   int              `json:"pending"`
}

type GameStateHandler struct {
	storage   storage.Storage
	queue     RequestQueue
	publisher QueuedPublisher
	core      stats.CoreSet
	logger    *slog.Logger
}

func NewGameStateHandler(logger *slog.Logger, storage storage.Storage, queue RequestQueue, core stats.CoreSet) *GameStateHandler {
	return &GameStateHandler{
		logger:  logger,
		storage: storage,
		queue:   queue,
		core:    core,
	}
}

// WithPublisher enables request.queued events.
func (h *GameStateHandler) WithPublisher(p QueuedPublisher) *GameStateHandler {
	h.publisher = p
	return h
}

// ServeHTTP handles HTTP requests for game state operations
// Routes:
// POST   /v1/gamestate                       - Start a new story (queued)
// GET    /v1/gamestate                       - List stored sessions
// POST   /v1/gamestate/import                - Import a saved document
// GET    /v1/gamestate/{id}                  - Read game state by ID
// DELETE /v1/gamestate/{id}                  - Delete game state by ID
// GET    /v1/gamestate/{id}/export           - Download the saved document
// POST   /v1/gamestate/{id}/action           - Submit a player action (queued)
// POST   /v1/gamestate/{id}/skill/from-stat  - Shape a skill from a stat (queued)
// POST   /v1/gamestate/{id}/skill/custom     - Shape a custom power (queued)
// POST   /v1/gamestate/{id}/skill/confirm    - Learn the pending skill (queued)
// POST   /v1/gamestate/{id}/skill/decline    - Decline the pending skill (queued)
// POST   /v1/gamestate/{id}/edit             - Stage a manual edit (queued)
// POST   /v1/gamestate/{id}/edit/confirm     - Apply the staged edit (queued)
// POST   /v1/gamestate/{id}/edit/cancel      - Drop the staged edit (queued)
// POST   /v1/gamestate/{id}/undo             - Restore the previous snapshot (queued)
// POST   /v1/gamestate/{id}/image            - Regenerate the scene image (queued)
func (h *GameStateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/gamestate"), "/")
	if path == "" {
		switch r.Method {
		case http.MethodPost:
			h.handleCreate(w, r)
		case http.MethodGet:
			h.handleList(w, r)
		default:
			h.methodNotAllowed(w, r, "POST, GET")
		}
		return
	}
	if path == "import" {
		if r.Method != http.MethodPost {
			h.methodNotAllowed(w, r, "POST")
			return
		}
		h.handleImport(w, r)
		return
	}

	idStr, op, _ := strings.Cut(path, "/")
	gameStateID, err := uuid.Parse(idStr)
	if err != nil {
		h.logger.Warn("Invalid game state ID", "id", idStr, "error", err)
		h.writeError(w, http.StatusBadRequest, "Invalid game state ID format")
		return
	}

	if op == "" {
		switch r.Method {
		case http.MethodGet:
			h.handleRead(w, r, gameStateID)
		case http.MethodDelete:
			h.handleDelete(w, r, gameStateID)
		default:
			h.methodNotAllowed(w, r, "GET, DELETE")
		}
		return
	}
	if op == "export" {
		if r.Method != http.MethodGet {
			h.methodNotAllowed(w, r, "GET")
			return
		}
		h.handleExport(w, r, gameStateID)
		return
	}

	if r.Method != http.MethodPost {
		h.methodNotAllowed(w, r, "POST")
		return
	}
	req, err := h.buildRequest(r, op, gameStateID)
	if err != nil {
		var nf *routeNotFound
		if errors.As(err, &nf) {
			h.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		h.logger.Warn("Invalid request body", "op", op, "error", err)
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.enqueueForExisting(w, r, req)
}

type routeNotFound struct{ op string }

func (e *routeNotFound) Error() string { return "unknown operation: " + e.op }

// buildRequest decodes the body for op into a queue request.
func (h *GameStateHandler) buildRequest(r *http.Request, op string, id uuid.UUID) (*queue.Request, error) {
	var req *queue.Request
	switch op {
	case "action":
		var body ActionRequest
		if err := decodeBody(r, &body); err != nil {
			return nil, err
		}
		req = queue.NewRequest(queue.RequestTypeAction, id)
		req.Action = strings.TrimSpace(body.Action)
	case "skill/from-stat":
		var body SkillRequest
		if err := decodeBody(r, &body); err != nil {
			return nil, err
		}
		req = queue.NewRequest(queue.RequestTypeSkillFromStat, id)
		req.StatName = strings.TrimSpace(body.StatName)
	case "skill/custom":
		var body SkillRequest
		if err := decodeBody(r, &body); err != nil {
			return nil, err
		}
		req = queue.NewRequest(queue.RequestTypeCustomPower, id)
		req.PowerName = strings.TrimSpace(body.Name)
		req.Description = strings.TrimSpace(body.Description)
	case "skill/confirm":
		req = queue.NewRequest(queue.RequestTypeConfirmSkill, id)
	case "skill/decline":
		req = queue.NewRequest(queue.RequestTypeDeclineSkill, id)
	case "edit":
		var body state.Edit
		if err := decodeBody(r, &body); err != nil {
			return nil, err
		}
		req = queue.NewRequest(queue.RequestTypeRequestEdit, id)
		req.Edit = &body
	case "edit/confirm":
		req = queue.NewRequest(queue.RequestTypeConfirmEdit, id)
	case "edit/cancel":
		req = queue.NewRequest(queue.RequestTypeCancelEdit, id)
	case "undo":
		req = queue.NewRequest(queue.RequestTypeUndo, id)
	case "image":
		req = queue.NewRequest(queue.RequestTypeRegenerateImage, id)
	default:
		return nil, &routeNotFound{op: op}
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return req, nil
}

var errInvalidJSON = errors.New("invalid JSON in request body")

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errInvalidJSON
	}
	return nil
}

func (h *GameStateHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var body CreateGameStateRequest
	if err := decodeBody(r, &body); err != nil {
		h.logger.Warn("Invalid JSON in request body", "error", err)
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(body.WorldContext) == "" {
		h.writeError(w, http.StatusBadRequest, "worldContext field is required")
		return
	}

	settings := state.DefaultSettings()
	if body.Settings != nil {
		settings = body.Settings.WithDefaults()
	}
	req := queue.NewRequest(queue.RequestTypeStart, uuid.New())
	req.Seed = &prompts.Seed{
		ID:             req.GameStateID,
		WorldContext:   strings.TrimSpace(body.WorldContext),
		CharacterSheet: strings.TrimSpace(body.CharacterSheet),
		Settings:       settings,
	}
	h.enqueue(w, r, req)
}

// enqueueForExisting refuses requests for missing or busy sessions before
// queueing them.
func (h *GameStateHandler) enqueueForExisting(w http.ResponseWriter, r *http.Request, req *queue.Request) {
	gs, err := h.storage.LoadGameState(r.Context(), req.GameStateID)
	if err != nil {
		h.logger.Error("Failed to load game state", "error", err, "game_state_id", req.GameStateID.String())
		h.writeError(w, http.StatusInternalServerError, "Failed to load game state")
		return
	}
	if gs == nil {
		h.writeError(w, http.StatusNotFound, "Game state not found")
		return
	}
	depth, err := h.queue.Depth(r.Context(), req.GameStateID)
	if err != nil {
		h.logger.Error("Failed to read queue depth", "error", err, "game_state_id", req.GameStateID.String())
		h.writeError(w, http.StatusInternalServerError, "Failed to read queue state")
		return
	}
	if depth > 0 {
		h.writeError(w, http.StatusConflict, "A turn is already in progress for this game")
		return
	}
	h.enqueue(w, r, req)
}

func (h *GameStateHandler) enqueue(w http.ResponseWriter, r *http.Request, req *queue.Request) {
	if err := h.queue.EnqueueRequest(r.Context(), req); err != nil {
		h.logger.Error("Failed to enqueue request", "error", err, "type", req.Type)
		h.writeError(w, http.StatusInternalServerError, "Failed to enqueue request")
		return
	}
	if h.publisher != nil {
		if err := h.publisher.PublishRequestQueued(r.Context(), req.GameStateID, req.RequestID, string(req.Type)); err != nil {
			h.logger.Warn("Failed to publish queued event", "error", err)
		}
	}
	h.logger.Info("Request queued",
		"request_id", req.RequestID,
		"type", req.Type,
		"game_state_id", req.GameStateID.String())
	h.writeJSON(w, http.StatusAccepted, AcceptedResponse{
		RequestID:   req.RequestID,
		GameStateID: req.GameStateID,
		Type:        string(req.Type),
		Status:      "queued",
	})
}

func (h *GameStateHandler) handleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.storage.ListGameStates(r.Context())
	if err != nil {
		h.logger.Error("Failed to list game states", "error", err)
		h.writeError(w, http.StatusInternalServerError, "Failed to list game states")
		return
	}
	if list == nil {
		list = []storage.Summary{}
	}
	h.writeJSON(w, http.StatusOK, list)
}

func (h *GameStateHandler) handleRead(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	gs, err := h.storage.LoadGameState(r.Context(), id)
	if err != nil {
		h.logger.Error("Failed to load game state", "error", err, "game_state_id", id.String())
		h.writeError(w, http.StatusInternalServerError, "Failed to load game state")
		return
	}
	if gs == nil {
		h.writeError(w, http.StatusNotFound, "Game state not found")
		return
	}
	depth, err := h.queue.Depth(r.Context(), id)
	if err != nil {
		h.logger.Warn("Failed to read queue depth", "error", err, "game_state_id", id.String())
	}
	h.writeJSON(w, http.StatusOK, GameStateResponse{GameState: gs, Pending: depth})
}

func (h *GameStateHandler) handleDelete(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	if err := h.storage.DeleteGameState(r.Context(), id); err != nil {
		h.logger.Error("Failed to delete game state", "error", err, "game_state_id", id.String())
		h.writeError(w, http.StatusInternalServerError, "Failed to delete game state")
		return
	}
	if err := h.queue.Clear(r.Context(), id); err != nil {
		h.logger.Warn("Failed to clear pending requests", "error", err, "game_state_id", id.String())
	}
	h.logger.Info("Game state deleted", "game_state_id", id.String())
	w.WriteHeader(http.StatusNoContent)
}

func (h *GameStateHandler) handleExport(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	gs, err := h.storage.LoadGameState(r.Context(), id)
	if err != nil {
		h.logger.Error("Failed to load game state", "error", err, "game_state_id", id.String())
		h.writeError(w, http.StatusInternalServerError, "Failed to load game state")
		return
	}
	if gs == nil {
		h.writeError(w, http.StatusNotFound, "Game state not found")
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "chronicle-"+id.String()+".json"))
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	w.WriteHeader(http.StatusOK)
	if err := enc.Encode(gs); err != nil {
		h.logger.Error("Failed to encode export", "error", err)
	}
}

// handleImport hydrates a saved document, upgrading older formats. An id
// that is already in use is replaced with a fresh one.
func (h *GameStateHandler) handleImport(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxImportBytes))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}
	gs, err := state.Hydrate(data, h.core)
	if err != nil {
		h.logger.Warn("Rejected import", "error", err)
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	existing, err := h.storage.LoadGameState(r.Context(), gs.ID)
	if err != nil {
		h.logger.Error("Failed to check existing game state", "error", err)
		h.writeError(w, http.StatusInternalServerError, "Failed to import game state")
		return
	}
	if existing != nil {
		gs.ID = uuid.New()
	}
	if err := h.storage.SaveGameState(r.Context(), gs.ID, gs); err != nil {
		h.logger.Error("Failed to save imported game state", "error", err, "game_state_id", gs.ID.String())
		h.writeError(w, http.StatusInternalServerError, "Failed to import game state")
		return
	}
	h.logger.Info("Game state imported", "game_state_id", gs.ID.String(), "turns", gs.TotalTurns)
	h.writeJSON(w, http.StatusCreated, gs)
}

func (h *GameStateHandler) methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed string) {
	h.logger.Warn("Method not allowed for game state endpoint", "method", r.Method, "path", r.URL.Path)
	w.Header().Set("Allow", allowed)
	h.writeError(w, http.StatusMethodNotAllowed, "Method not allowed. Supported methods: "+allowed)
}

func (h *GameStateHandler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, ErrorResponse{Error: msg})
}

func (h *GameStateHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Failed to encode response", "error", err)
	}
}
