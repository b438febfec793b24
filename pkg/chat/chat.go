package chat

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ActionRequest is a player action submitted to the chronicle-engine api.
type ActionRequest struct {
	GameStateID uuid.UUID `json:"gamestate_id"`
	Action      string    `json:"action"`
}

// ActionResponse is returned once a turn has been committed.
type ActionResponse struct {
	GameStateID uuid.UUID `json:"gamestate_id,omitempty"`
	StoryText   string    `json:"story_text,omitempty"`
	Choices     []string  `json:"choices,omitempty"`
}

const (
	ChatRoleUser   = "user"      // Player
	ChatRoleAgent  = "assistant" // Narrator
	ChatRoleSystem = "system"    // Rules and memory
)

// ChatMessage is a single message sent to a generation provider.
type ChatMessage struct {
	Role    string `json:"role"` // "user", "assistant", "system"
	Content string `json:"content"`
}

func (ar *ActionRequest) Validate() error {
	if strings.TrimSpace(ar.Action) == "" {
		return fmt.Errorf("action cannot be empty")
	}
	return nil
}

// SplitSystem separates system messages, joined in order, from the
// conversation. Providers with a dedicated system field use this.
func SplitSystem(messages []ChatMessage) (string, []ChatMessage) {
	var system []string
	rest := make([]ChatMessage, 0, len(messages))
	for _, m := range messages {
		if m.Role == ChatRoleSystem {
			system = append(system, m.Content)
			continue
		}
		rest = append(rest, m)
	}
	return strings.Join(system, "\n\n"), rest
}
