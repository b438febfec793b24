package prompts

import (
	"strings"
	"testing"

	"github.com/jwebster45206/chronicle-engine/pkg/chat"
	"github.com/jwebster45206/chronicle-engine/pkg/state"
	"github.com/jwebster45206/chronicle-engine/pkg/stats"
)

func TestOpeningPrompt(t *testing.T) {
	seed := Seed{
		WorldContext:   "A drowned city.",
		CharacterSheet: "Mara, a salvage diver.",
		Settings:       state.Settings{Perspective: state.PerspectiveFirst},
	}
	msgs, err := OpeningPrompt(nil, seed, stats.NewCoreSet("Health", "Air"))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(msgs) != 4 {
		t.Fatalf("Expected 4 messages, got %d", len(msgs))
	}
	r := DefaultRules()
	if !strings.Contains(msgs[0].Content, r.Perspectives["first"]) {
		t.Error("Expected first-person perspective rules")
	}
	if !strings.Contains(msgs[1].Content, "Mara, a salvage diver.") {
		t.Error("Expected character sheet in memory")
	}
	if msgs[2].Role != chat.ChatRoleUser || !strings.Contains(msgs[2].Content, "Health, Air") {
		t.Errorf("Expected opening instruction naming core stats, got %q", msgs[2].Content)
	}

	if _, err := OpeningPrompt(nil, Seed{}, stats.DefaultCoreStats); err == nil {
		t.Error("Expected error for empty world")
	}
}

func TestFlavorPrompt(t *testing.T) {
	gs := testGameState()
	msgs := FlavorPrompt(nil, gs, "The elder opens one eye.")
	if len(msgs) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(msgs))
	}
	if !strings.Contains(msgs[0].Content, "id: <id> | status:") {
		t.Error("Expected pipe format instructions")
	}
	body := msgs[1].Content
	if !strings.Contains(body, "Elder Mo (id: elder_mo) currently: meditating") {
		t.Errorf("Expected present NPC, got %q", body)
	}
	if strings.Contains(body, "linh_gac") {
		t.Error("Expected absent NPC to be left out")
	}
	if !strings.Contains(body, "sect_gate") || !strings.Contains(body, "The elder opens one eye.") {
		t.Error("Expected locations and story text")
	}
}

func TestChroniclePrompt(t *testing.T) {
	gs := testGameState()
	msgs := ChroniclePrompt(nil, gs, gs.History)
	body := msgs[1].Content
	if !strings.Contains(body, "> Climb the stairs") {
		t.Errorf("Expected rendered turns, got %q", body)
	}
	if !strings.Contains(body, "Gatekeeper Linh (id: linh_gac)") {
		t.Error("Expected every known NPC id for involvement")
	}
}

func TestSkillPrompts(t *testing.T) {
	gs := testGameState()

	msgs, err := SkillFromStatPrompt(nil, gs, "Stamina")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !strings.Contains(msgs[1].Content, `"Stamina: tired"`) {
		t.Errorf("Expected stat source, got %q", msgs[1].Content)
	}
	if _, err := SkillFromStatPrompt(nil, gs, "Luck"); err == nil {
		t.Error("Expected error for unknown stat")
	}

	msgs, err = CustomPowerPrompt(nil, gs, "Iron Skin", "My skin hardens like metal.")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !strings.Contains(msgs[1].Content, `"Iron Skin": My skin hardens like metal.`) {
		t.Errorf("Expected power description, got %q", msgs[1].Content)
	}
	if _, err := CustomPowerPrompt(nil, gs, " ", "x"); err == nil {
		t.Error("Expected error for empty name")
	}
}
