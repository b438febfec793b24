package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwebster45206/chronicle-engine/pkg/prompts"
	"github.com/jwebster45206/chronicle-engine/pkg/state"
)

// RequestType identifies the type of request in the queue
type RequestType string

const (
	// RequestTypeStart runs the opening call for a new session
	RequestTypeStart RequestType = "start"

	// RequestTypeAction is a player action for one turn
	RequestTypeAction RequestType = "action"

	RequestTypeSkillFromStat   RequestType = "skill_from_stat"
	RequestTypeCustomPower     RequestType = "custom_power"
	RequestTypeConfirmSkill    RequestType = "confirm_skill"
	RequestTypeDeclineSkill    RequestType = "decline_skill"
	RequestTypeRequestEdit     RequestType = "request_edit"
	RequestTypeConfirmEdit     RequestType = "confirm_edit"
	RequestTypeCancelEdit      RequestType = "cancel_edit"
	RequestTypeUndo            RequestType = "undo"
	RequestTypeRegenerateImage RequestType = "regenerate_image"
)

// Request represents a unified request in the queue
type Request struct {
	RequestID   string      `json:"request_id"`
	Type        RequestType `json:"type"`
	GameStateID uuid.UUID   `json:"game_state_id"`

	// Action-specific fields
	Action string `json:"action,omitempty"`

	// Start-specific fields
	Seed *prompts.Seed `json:"seed,omitempty"`

	// Skill-specific fields
	StatName    string `json:"stat_name,omitempty"`
	PowerName   string `json:"power_name,omitempty"`
	Description string `json:"description,omitempty"`

	// Edit-specific fields
	Edit *state.Edit `json:"edit,omitempty"`

	EnqueuedAt time.Time `json:"enqueued_at"`
}

// NewRequest stamps a request with a fresh id and enqueue time.
func NewRequest(t RequestType, gameStateID uuid.UUID) *Request {
	return &Request{
		RequestID:   uuid.New().String(),
		Type:        t,
		GameStateID: gameStateID,
		EnqueuedAt:  time.Now().UTC(),
	}
}

// Validate checks the fields each request type needs.
func (r *Request) Validate() error {
	if r.GameStateID == uuid.Nil {
		return fmt.Errorf("game_state_id is required")
	}
	switch r.Type {
	case RequestTypeStart:
		if r.Seed == nil {
			return fmt.Errorf("start requires a seed")
		}
	case RequestTypeAction:
		if r.Action == "" {
			return fmt.Errorf("action requires text")
		}
	case RequestTypeSkillFromStat:
		if r.StatName == "" {
			return fmt.Errorf("skill_from_stat requires stat_name")
		}
	case RequestTypeCustomPower:
		if r.PowerName == "" {
			return fmt.Errorf("custom_power requires power_name")
		}
	case RequestTypeRequestEdit:
		if r.Edit == nil {
			return fmt.Errorf("request_edit requires an edit")
		}
		return r.Edit.Validate()
	case RequestTypeConfirmSkill, RequestTypeDeclineSkill, RequestTypeConfirmEdit,
		RequestTypeCancelEdit, RequestTypeUndo, RequestTypeRegenerateImage:
	default:
		return fmt.Errorf("unknown request type: %s", r.Type)
	}
	return nil
}

// MarshalJSON serializes the request to JSON for Redis storage
func (r *Request) MarshalJSON() ([]byte, error) {
	type Alias Request
	return json.Marshal(&struct {
		GameStateID string `json:"game_state_id"`
		*Alias
	}{
		GameStateID: r.GameStateID.String(),
		Alias:       (*Alias)(r),
	})
}

// UnmarshalJSON deserializes the request from JSON in Redis
func (r *Request) UnmarshalJSON(data []byte) error {
	type Alias Request
	aux := &struct {
		GameStateID string `json:"game_state_id"`
		*Alias
	}{
		Alias: (*Alias)(r),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	gameStateID, err := uuid.Parse(aux.GameStateID)
	if err != nil {
		return err
	}

	r.GameStateID = gameStateID
	return nil
}

// ToJSON converts the request to JSON bytes for Redis
func (r *Request) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

// FromJSON parses a request from JSON bytes
func FromJSON(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, err
	}
	return &req, nil
}
