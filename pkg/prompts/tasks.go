package prompts

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/jwebster45206/chronicle-engine/pkg/budget"
	"github.com/jwebster45206/chronicle-engine/pkg/chat"
	"github.com/jwebster45206/chronicle-engine/pkg/entity"
	"github.com/jwebster45206/chronicle-engine/pkg/state"
	"github.com/jwebster45206/chronicle-engine/pkg/stats"
)

// Seed is the player-supplied material for a new story.
type Seed struct {
	// ID pins the session id. A zero value mints a new one.
	ID             uuid.UUID      `json:"id,omitempty" yaml:"-"`
	WorldContext   string         `json:"worldContext" yaml:"worldContext"`
	CharacterSheet string         `json:"characterSheet" yaml:"characterSheet"`
	Settings       state.Settings `json:"settings" yaml:"settings"`
}

// OpeningPrompt builds the single call that seeds stats, entities and skills
// and narrates the first scene.
func OpeningPrompt(r *Rules, seed Seed, core stats.CoreSet) ([]chat.ChatMessage, error) {
	if strings.TrimSpace(seed.WorldContext) == "" {
		return nil, fmt.Errorf("world context is required")
	}
	if r == nil {
		r = DefaultRules()
	}
	c := New().WithRules(r).WithCoreStats(core)
	vars := c.vars()

	var sb strings.Builder
	section(&sb, "World", seed.WorldContext)
	section(&sb, "Player character", seed.CharacterSheet)

	return []chat.ChatMessage{
		{Role: chat.ChatRoleSystem, Content: c.systemRules(seed.Settings, false)},
		{Role: chat.ChatRoleSystem, Content: sb.String()},
		{Role: chat.ChatRoleUser, Content: fill(r.Opening, vars)},
		{Role: chat.ChatRoleSystem, Content: fill(r.Output, vars)},
	}, nil
}

// FlavorPrompt asks for one pipe-delimited status line per entity touched by
// storyText. Only present NPCs and known locations are listed.
func FlavorPrompt(r *Rules, gs *state.GameState, storyText string) []chat.ChatMessage {
	if r == nil {
		r = DefaultRules()
	}
	present := entity.NewIDSet(gs.PresentNPCIDs...)
	var sb strings.Builder
	sb.WriteString("Characters:\n")
	for _, n := range entity.SortByOrder(entity.NPCKind{}, gs.NPCs) {
		if !present.Has(n.ID) {
			continue
		}
		fmt.Fprintf(&sb, "- %s (id: %s)", n.Name, n.ID)
		if n.Status != "" {
			fmt.Fprintf(&sb, " currently: %s", n.Status)
		}
		sb.WriteString("\n")
	}
	sb.WriteString("Locations:\n")
	for _, l := range entity.SortByOrder(entity.LocationKind{}, gs.Locations) {
		fmt.Fprintf(&sb, "- %s (id: %s)\n", l.Name, l.ID)
	}
	sb.WriteString("\nLatest story text:\n")
	sb.WriteString(strings.TrimSpace(storyText))

	return []chat.ChatMessage{
		{Role: chat.ChatRoleSystem, Content: fill(r.Flavor, nil)},
		{Role: chat.ChatRoleUser, Content: sb.String()},
	}
}

// ChroniclePrompt asks for a single chronicle entry summarizing turns.
func ChroniclePrompt(r *Rules, gs *state.GameState, turns []state.GameTurn) []chat.ChatMessage {
	if r == nil {
		r = DefaultRules()
	}
	var ids strings.Builder
	for _, n := range gs.NPCs {
		fmt.Fprintf(&ids, "- %s (id: %s)\n", n.Name, n.ID)
	}
	var sb strings.Builder
	section(&sb, "Known characters", ids.String())
	section(&sb, "Scene", budget.RenderAll(turns))

	return []chat.ChatMessage{
		{Role: chat.ChatRoleSystem, Content: fill(r.Chronicle, nil)},
		{Role: chat.ChatRoleUser, Content: sb.String()},
	}
}

// SkillFromStatPrompt asks for a skill derived from an existing stat.
func SkillFromStatPrompt(r *Rules, gs *state.GameState, statName string) ([]chat.ChatMessage, error) {
	if r == nil {
		r = DefaultRules()
	}
	st, ok := gs.PlayerStats[statName]
	if !ok {
		return nil, fmt.Errorf("stat %q not found", statName)
	}
	source := fmt.Sprintf("%s: %s", statName, st.Value.String())
	return skillPrompt(gs, fill(r.SkillFromStat, map[string]string{"source": source})), nil
}

// CustomPowerPrompt asks the model to shape a player-described power.
func CustomPowerPrompt(r *Rules, gs *state.GameState, name, description string) ([]chat.ChatMessage, error) {
	if r == nil {
		r = DefaultRules()
	}
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("power name is required")
	}
	vars := map[string]string{
		"name":        strings.TrimSpace(name),
		"description": strings.TrimSpace(description),
	}
	return skillPrompt(gs, fill(r.CustomPower, vars)), nil
}

func skillPrompt(gs *state.GameState, instruction string) []chat.ChatMessage {
	var sb strings.Builder
	section(&sb, "World", gs.WorldContext)
	section(&sb, "Player stats", RenderStats(gs.PlayerStats, gs.PlayerStatOrder))
	section(&sb, "Known skills", RenderSkills(gs.Skills))
	return []chat.ChatMessage{
		{Role: chat.ChatRoleSystem, Content: sb.String()},
		{Role: chat.ChatRoleUser, Content: instruction},
	}
}
