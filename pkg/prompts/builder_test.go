package prompts

import (
	"slices"
	"strings"
	"testing"

	"github.com/jwebster45206/chronicle-engine/pkg/chat"
	"github.com/jwebster45206/chronicle-engine/pkg/chronicle"
	"github.com/jwebster45206/chronicle-engine/pkg/entity"
	"github.com/jwebster45206/chronicle-engine/pkg/state"
	"github.com/jwebster45206/chronicle-engine/pkg/stats"
)

func testGameState() *state.GameState {
	gs := state.NewGameState("A misty valley ruled by a sect of sword cultivators.", state.DefaultSettings())
	gs.PlayerStats = stats.Map{
		"Health":  {Value: stats.Text("healthy")},
		"Stamina": {Value: stats.Text("tired")},
	}
	gs.PlayerStatOrder = []string{"Health", "Stamina"}
	gs.NPCs = []entity.NPC{
		{ID: "elder_mo", Name: "Elder Mo", Personality: "stern", Status: "meditating", SortOrder: 0},
		{ID: "linh_gac", Name: "Gatekeeper Linh", Personality: "lazy", Status: "asleep at the gate", SortOrder: 1},
	}
	gs.Locations = []entity.Location{{ID: "sect_gate", Name: "Sect Gate", Description: "A stone arch"}}
	gs.PresentNPCIDs = []string{"elder_mo"}
	gs.History = []state.GameTurn{
		{StoryText: "You wake at the foot of the mountain."},
		state.NewTurn("Climb the stairs", "You climb until your legs burn.", nil),
	}
	return gs
}

func contents(msgs []chat.ChatMessage) string {
	var sb strings.Builder
	for _, m := range msgs {
		sb.WriteString(m.Content)
		sb.WriteString("\n")
	}
	return sb.String()
}

func TestNew(t *testing.T) {
	c := New()
	if c == nil {
		t.Fatal("Expected composer to be created, got nil")
	}
	if c.rules == nil {
		t.Error("Expected default rules to be loaded")
	}
	if c.core.Len() == 0 {
		t.Error("Expected default core stats")
	}
}

func TestComposer_FluentInterface(t *testing.T) {
	gs := testGameState()
	core := stats.NewCoreSet("Health")
	c := New().
		WithGameState(gs).
		WithAction("Bow to the elder").
		WithHistory(gs.History[:1]).
		WithPresentNPCs([]string{"linh_gac"}).
		WithCoreStats(core)

	if c.gs != gs {
		t.Error("WithGameState did not set gamestate")
	}
	if c.action != "Bow to the elder" {
		t.Error("WithAction did not set action")
	}
	if len(c.history) != 1 || !c.hasHistory {
		t.Error("WithHistory did not set history")
	}
	if !c.hasPresent || c.present[0] != "linh_gac" {
		t.Error("WithPresentNPCs did not set ids")
	}
	if c.core.Len() != 1 {
		t.Error("WithCoreStats did not set core stats")
	}
}

func TestComposer_Build_Requires(t *testing.T) {
	_, err := New().WithAction("Look around").Build()
	if err == nil || err.Error() != "gamestate is required" {
		t.Errorf("Expected 'gamestate is required' error, got: %v", err)
	}

	_, err = New().WithGameState(testGameState()).WithAction("   ").Build()
	if err == nil || err.Error() != "action is required" {
		t.Errorf("Expected 'action is required' error, got: %v", err)
	}
}

func TestComposer_Build_MessageOrder(t *testing.T) {
	gs := testGameState()
	msgs, err := New().WithGameState(gs).WithAction("Bow to the elder").Build()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	// rules, memory, opening story, action+story, player action, output
	wantRoles := []string{
		chat.ChatRoleSystem,
		chat.ChatRoleSystem,
		chat.ChatRoleAgent,
		chat.ChatRoleUser,
		chat.ChatRoleAgent,
		chat.ChatRoleUser,
		chat.ChatRoleSystem,
	}
	if len(msgs) != len(wantRoles) {
		t.Fatalf("Expected %d messages, got %d", len(wantRoles), len(msgs))
	}
	for i, role := range wantRoles {
		if msgs[i].Role != role {
			t.Errorf("Message %d: expected role %s, got %s", i, role, msgs[i].Role)
		}
	}
	if msgs[2].Content != "You wake at the foot of the mountain." {
		t.Errorf("Expected opening story first in history, got %q", msgs[2].Content)
	}
	if msgs[3].Content != "Climb the stairs" {
		t.Errorf("Expected history action, got %q", msgs[3].Content)
	}
	if msgs[5].Content != "Bow to the elder" {
		t.Errorf("Expected player action, got %q", msgs[5].Content)
	}
	if !strings.Contains(msgs[6].Content, "Health, Stamina, Sanity, Cultivation Realm") {
		t.Errorf("Expected output rules to name core stats, got %q", msgs[6].Content)
	}
}

func TestComposer_ExactlyOneLogicLayer(t *testing.T) {
	r := DefaultRules()
	for _, mode := range []state.LogicMode{state.LogicStrict, state.LogicAuthor, ""} {
		gs := testGameState()
		gs.Settings.Logic = mode
		c := New().WithGameState(gs).WithAction("Draw my sword")
		msgs, err := c.Build()
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}

		count := 0
		for _, l := range c.Layers() {
			if l == LayerLogic {
				count++
			}
		}
		if count != 1 {
			t.Errorf("logic=%q: expected exactly one logic layer, got %d", mode, count)
		}

		strict := strings.Contains(msgs[0].Content, strings.TrimSpace(r.Logic["strict"]))
		author := strings.Contains(msgs[0].Content, strings.TrimSpace(r.Logic["author"]))
		if strict == author {
			t.Errorf("logic=%q: expected exactly one logic text, strict=%v author=%v", mode, strict, author)
		}
		if mode == state.LogicAuthor && !author {
			t.Error("Expected author logic layer")
		}
		if mode == "" && !strict {
			t.Error("Expected strict logic as the default")
		}
	}
}

func TestComposer_ModulePrecedence(t *testing.T) {
	tests := []struct {
		name     string
		settings state.Settings
		want     []string
		notWant  []string
	}{
		{
			name:     "no modules",
			settings: state.DefaultSettings(),
			notWant:  []string{LayerStrictInterpretation, LayerExplicitContent, LayerNPCResolveDecay, LayerMercy},
		},
		{
			name:     "strict interpretation alone",
			settings: state.Settings{StrictInterpretation: true},
			want:     []string{LayerStrictInterpretation},
			notWant:  []string{LayerExplicitContent},
		},
		{
			name:     "explicit content wins over strict interpretation",
			settings: state.Settings{StrictInterpretation: true, ExplicitContent: true},
			want:     []string{LayerExplicitContent},
			notWant:  []string{LayerStrictInterpretation},
		},
		{
			name:     "orthogonal modules combine",
			settings: state.Settings{NPCResolveDecay: true, Mercy: true, StrictInterpretation: true},
			want:     []string{LayerNPCResolveDecay, LayerMercy, LayerStrictInterpretation},
		},
		{
			name:     "language",
			settings: state.Settings{Language: "Vietnamese"},
			want:     []string{LayerLanguage},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gs := testGameState()
			gs.Settings = tt.settings
			c := New().WithGameState(gs).WithAction("Wait")
			if _, err := c.Build(); err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			layers := c.Layers()
			for _, l := range tt.want {
				if !slices.Contains(layers, l) {
					t.Errorf("Expected layer %s in %v", l, layers)
				}
			}
			for _, l := range tt.notWant {
				if slices.Contains(layers, l) {
					t.Errorf("Did not expect layer %s in %v", l, layers)
				}
			}
		})
	}
}

func TestComposer_ExplicitFlavor(t *testing.T) {
	gs := testGameState()
	gs.Settings.ExplicitContent = true
	gs.Settings.ExplicitFlavor = "dark and poetic"
	msgs, err := New().WithGameState(gs).WithAction("Wait").Build()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !strings.Contains(msgs[0].Content, "dark and poetic") {
		t.Error("Expected explicit flavor in rules")
	}
	if strings.Contains(msgs[0].Content, "{{flavor}}") {
		t.Error("Expected flavor placeholder to be filled")
	}
}

func TestComposer_AuthorOverride(t *testing.T) {
	gs := testGameState()
	gs.Settings.StrictInterpretation = true
	gs.Settings.Mercy = true
	gs.Settings.NPCResolveDecay = true

	c := New().WithGameState(gs).WithAction("[[ The elder is actually my father ]]")
	msgs, err := c.Build()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	layers := c.Layers()
	if !slices.Contains(layers, LayerAuthorOverride) {
		t.Errorf("Expected author override layer, got %v", layers)
	}
	for _, l := range []string{LayerStrictInterpretation, LayerMercy, LayerNPCResolveDecay, LayerExplicitContent} {
		if slices.Contains(layers, l) {
			t.Errorf("Expected override to suppress %s", l)
		}
	}
	if !slices.Contains(layers, LayerLogic) {
		t.Error("Expected logic layer to remain under override")
	}

	action := msgs[len(msgs)-2]
	if action.Role != chat.ChatRoleUser {
		t.Fatalf("Expected user directive, got role %s", action.Role)
	}
	if action.Content != "AUTHOR DIRECTIVE: The elder is actually my father" {
		t.Errorf("Unexpected directive content %q", action.Content)
	}
}

func TestComposer_FogOfWar(t *testing.T) {
	gs := testGameState()
	msgs, err := New().WithGameState(gs).WithAction("Look around").Build()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	memory := msgs[1].Content

	if !strings.Contains(memory, "meditating") {
		t.Error("Expected present NPC to be shown in full")
	}
	if !strings.Contains(memory, "Gatekeeper Linh (id: linh_gac)") {
		t.Error("Expected absent NPC to be listed by name and id")
	}
	if strings.Contains(memory, "asleep at the gate") || strings.Contains(memory, "lazy") {
		t.Error("Expected absent NPC detail to be hidden")
	}

	msgs, err = New().WithGameState(gs).WithAction("Look around").WithPresentNPCs([]string{"linh_gac"}).Build()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	memory = msgs[1].Content
	if !strings.Contains(memory, "asleep at the gate") {
		t.Error("Expected explicitly present NPC to be shown in full")
	}
	if strings.Contains(memory, "meditating") {
		t.Error("Expected elder detail to be hidden")
	}
}

func TestComposer_MemoryTiers(t *testing.T) {
	gs := testGameState()
	gs.WorldInfo = "A rival sect marches from the east."
	gs.Skills = []state.Skill{{Name: "Cloud Step", Description: "Light footwork", Abilities: []state.Ability{{Name: "Leap", Description: "Jump a wall"}}}}
	gs.Chronicle = []chronicle.Entry{
		{Summary: "Met the elder.", EventType: "dialogue", PlotSignificanceScore: 4},
		{Summary: "Old grudge.", EventType: chronicle.ArchivedPrefix + "combat", PlotSignificanceScore: 6},
	}

	msgs, err := New().WithGameState(gs).WithAction("Look around").Build()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	memory := msgs[1].Content
	for _, want := range []string{
		"A misty valley",
		"A rival sect marches from the east.",
		"- Health: healthy",
		"Cloud Step",
		"Leap: Jump a wall",
		"Sect Gate (id: sect_gate): A stone arch",
		"Met the elder.",
	} {
		if !strings.Contains(memory, want) {
			t.Errorf("Expected memory to contain %q", want)
		}
	}
	if strings.Contains(memory, "Old grudge.") {
		t.Error("Expected archived entry to be excluded")
	}
	if strings.Index(memory, "- Health") > strings.Index(memory, "- Stamina") {
		t.Error("Expected stats in display order")
	}

	msgs, err = New().WithGameState(gs).WithAction("Look around").WithChronicle(nil).Build()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if strings.Contains(msgs[1].Content, "Met the elder.") {
		t.Error("Expected explicit empty chronicle selection to be honored")
	}
}

func TestParseAuthorOverride(t *testing.T) {
	tests := []struct {
		input string
		want  string
		ok    bool
	}{
		{"[[The bridge collapses]]", "The bridge collapses", true},
		{"  [[ spaced ]]  ", "spaced", true},
		{"[[]]", "", false},
		{"[[ ]]", "", false},
		{"[not an override]", "", false},
		{"Open the door", "", false},
		{"[[unterminated", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseAuthorOverride(tt.input)
		if ok != tt.ok || got != tt.want {
			t.Errorf("ParseAuthorOverride(%q) = (%q, %v), want (%q, %v)", tt.input, got, ok, tt.want, tt.ok)
		}
	}
}

func TestLoadRules(t *testing.T) {
	r := DefaultRules()
	if r.Base == "" || r.Output == "" {
		t.Fatal("Expected embedded rules to have base and output")
	}
	for _, p := range []state.Perspective{state.PerspectiveFirst, state.PerspectiveSecond, state.PerspectiveThird} {
		if r.Perspectives[string(p)] == "" {
			t.Errorf("Expected perspective %s", p)
		}
	}
	for _, d := range []state.Difficulty{state.DifficultyGentle, state.DifficultyBalanced, state.DifficultyHarsh, state.DifficultyBrutal} {
		if r.Difficulty[string(d)] == "" {
			t.Errorf("Expected difficulty %s", d)
		}
	}

	if _, err := LoadRules([]byte("base: x\noutput: y\nlogic:\n  strict: s\n")); err == nil {
		t.Error("Expected error for missing author logic")
	}
	if _, err := LoadRules([]byte("output: y\nlogic:\n  strict: s\n  author: a\n")); err == nil {
		t.Error("Expected error for missing base")
	}
	if _, err := LoadRules([]byte("base: [")); err == nil {
		t.Error("Expected parse error")
	}
	custom, err := LoadRules([]byte("base: b\noutput: o\nlogic:\n  strict: s\n  author: a\n"))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	msgs, err := New().WithRules(custom).WithGameState(testGameState()).WithAction("Wait").Build()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if msgs[0].Content != "b\n\ns" {
		t.Errorf("Expected custom rules only, got %q", msgs[0].Content)
	}
}
