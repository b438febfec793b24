package chat

import (
	"testing"
)

func TestActionRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		action  string
		wantErr bool
	}{
		{"plain action", "I open the door.", false},
		{"empty", "", true},
		{"whitespace", "   \n", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := &ActionRequest{Action: tt.action}
			err := req.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSplitSystem(t *testing.T) {
	messages := []ChatMessage{
		{Role: ChatRoleSystem, Content: "rules"},
		{Role: ChatRoleUser, Content: "I wave."},
		{Role: ChatRoleSystem, Content: "memory"},
		{Role: ChatRoleAgent, Content: "She waves back."},
	}

	system, rest := SplitSystem(messages)

	if system != "rules\n\nmemory" {
		t.Errorf("unexpected system text %q", system)
	}
	if len(rest) != 2 {
		t.Fatalf("expected 2 conversation messages, got %d", len(rest))
	}
	if rest[0].Role != ChatRoleUser || rest[1].Role != ChatRoleAgent {
		t.Errorf("conversation order not preserved: %+v", rest)
	}
}
