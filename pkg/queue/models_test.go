package queue

import (
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/jwebster45206/chronicle-engine/pkg/prompts"
	"github.com/jwebster45206/chronicle-engine/pkg/state"
)

func TestRequest_JSON(t *testing.T) {
	id := uuid.New()
	req := NewRequest(RequestTypeRequestEdit, id)
	req.Edit = &state.Edit{Kind: state.EditRenameStat, Target: "Vết thương", NewName: "Vết thương cũ"}

	data, err := req.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON failed: %v", err)
	}
	if !strings.Contains(string(data), id.String()) {
		t.Errorf("expected game_state_id in %s", data)
	}

	got, err := FromJSON(data)
	if err != nil {
		t.Fatalf("FromJSON failed: %v", err)
	}
	if got.GameStateID != id {
		t.Errorf("expected id %s, got %s", id, got.GameStateID)
	}
	if got.Edit == nil || got.Edit.NewName != "Vết thương cũ" {
		t.Errorf("edit not preserved: %+v", got.Edit)
	}
}

func TestRequest_FromJSONBadID(t *testing.T) {
	if _, err := FromJSON([]byte(`{"type": "action", "game_state_id": "nope"}`)); err == nil {
		t.Fatal("expected error for malformed id")
	}
}

func TestRequest_Validate(t *testing.T) {
	id := uuid.New()
	tests := []struct {
		name    string
		req     *Request
		wantErr bool
	}{
		{"action ok", &Request{Type: RequestTypeAction, GameStateID: id, Action: "look"}, false},
		{"action empty", &Request{Type: RequestTypeAction, GameStateID: id}, true},
		{"missing id", &Request{Type: RequestTypeUndo}, true},
		{"start needs seed", &Request{Type: RequestTypeStart, GameStateID: id}, true},
		{"start ok", &Request{Type: RequestTypeStart, GameStateID: id, Seed: &prompts.Seed{WorldContext: "x"}}, false},
		{"skill needs stat", &Request{Type: RequestTypeSkillFromStat, GameStateID: id}, true},
		{"power needs name", &Request{Type: RequestTypeCustomPower, GameStateID: id}, true},
		{"edit validated", &Request{Type: RequestTypeRequestEdit, GameStateID: id, Edit: &state.Edit{Kind: state.EditRenameStat, Target: "a"}}, true},
		{"undo ok", &Request{Type: RequestTypeUndo, GameStateID: id}, false},
		{"unknown", &Request{Type: "dance", GameStateID: id}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
