package prompts

import (
	"fmt"
	"strings"

	"github.com/jwebster45206/chronicle-engine/pkg/chat"
	"github.com/jwebster45206/chronicle-engine/pkg/chronicle"
	"github.com/jwebster45206/chronicle-engine/pkg/entity"
	"github.com/jwebster45206/chronicle-engine/pkg/state"
	"github.com/jwebster45206/chronicle-engine/pkg/stats"
)

// Layer names recorded by Composer.Layers.
const (
	LayerBase                 = "base"
	LayerPerspective          = "perspective"
	LayerDifficulty           = "difficulty"
	LayerLogic                = "logic"
	LayerStrictInterpretation = "module:strictInterpretation"
	LayerExplicitContent      = "module:explicitContent"
	LayerNPCResolveDecay      = "module:npcResolveDecay"
	LayerMercy                = "module:mercy"
	LayerAuthorOverride       = "authorOverride"
	LayerLanguage             = "language"
	LayerOutput               = "output"
)

const defaultExplicitFlavor = "tasteful and emotionally grounded"

// Composer constructs the chat messages for one narrative turn using a
// fluent interface.
type Composer struct {
	rules      *Rules
	gs         *state.GameState
	action     string
	history    []state.GameTurn
	hasHistory bool
	chronicle  []chronicle.Entry
	hasChron   bool
	present    []string
	hasPresent bool
	core       stats.CoreSet
	layers     []string
	messages   []chat.ChatMessage
}

// New creates a composer using the embedded rule set and default core stats.
func New() *Composer {
	return &Composer{
		rules:    DefaultRules(),
		core:     stats.DefaultCoreStats,
		messages: make([]chat.ChatMessage, 0),
	}
}

// WithRules replaces the rule set.
func (c *Composer) WithRules(r *Rules) *Composer {
	if r != nil {
		c.rules = r
	}
	return c
}

// WithGameState sets the committed state the prompt describes.
func (c *Composer) WithGameState(gs *state.GameState) *Composer {
	c.gs = gs
	return c
}

// WithAction sets the player's input for this turn.
func (c *Composer) WithAction(action string) *Composer {
	c.action = action
	return c
}

// WithHistory sets the recent-turn window, already fitted to the budget.
// Without it the full game history is used.
func (c *Composer) WithHistory(turns []state.GameTurn) *Composer {
	c.history = turns
	c.hasHistory = true
	return c
}

// WithChronicle sets the recalled chronicle entries. Without it every
// active entry is used.
func (c *Composer) WithChronicle(entries []chronicle.Entry) *Composer {
	c.chronicle = entries
	c.hasChron = true
	return c
}

// WithPresentNPCs restricts full NPC detail to the given ids. Without it the
// state's PresentNPCIDs are used.
func (c *Composer) WithPresentNPCs(ids []string) *Composer {
	c.present = ids
	c.hasPresent = true
	return c
}

// WithCoreStats sets the core stat names referenced in output rules.
func (c *Composer) WithCoreStats(core stats.CoreSet) *Composer {
	c.core = core
	return c
}

// Layers returns the rule tiers included by the last Build.
func (c *Composer) Layers() []string {
	return append([]string(nil), c.layers...)
}

// Build constructs the final message array. Order: rule tiers, memory,
// recent history, the player's action, then the output reminder.
func (c *Composer) Build() ([]chat.ChatMessage, error) {
	if c.gs == nil {
		return nil, fmt.Errorf("gamestate is required")
	}
	if strings.TrimSpace(c.action) == "" {
		return nil, fmt.Errorf("action is required")
	}

	c.messages = make([]chat.ChatMessage, 0)
	c.layers = nil

	directive, override := ParseAuthorOverride(c.action)

	c.addSystem(c.systemRules(c.gs.Settings, override))
	c.addSystem(c.memory())
	c.addHistory()

	if override {
		c.messages = append(c.messages, chat.ChatMessage{
			Role:    chat.ChatRoleUser,
			Content: "AUTHOR DIRECTIVE: " + directive,
		})
	} else {
		c.messages = append(c.messages, chat.ChatMessage{
			Role:    chat.ChatRoleUser,
			Content: strings.TrimSpace(c.action),
		})
	}

	c.addSystem(fill(c.rules.Output, c.vars()))
	c.layers = append(c.layers, LayerOutput)

	return c.messages, nil
}

func (c *Composer) addSystem(content string) {
	if strings.TrimSpace(content) == "" {
		return
	}
	c.messages = append(c.messages, chat.ChatMessage{
		Role:    chat.ChatRoleSystem,
		Content: content,
	})
}

// systemRules joins the fixed tiers and the active situational modules.
// An author override replaces every module with the override tier.
func (c *Composer) systemRules(s state.Settings, override bool) string {
	s = s.WithDefaults()
	var parts []string
	add := func(layer, text string) {
		text = strings.TrimSpace(text)
		if text == "" {
			return
		}
		parts = append(parts, text)
		c.layers = append(c.layers, layer)
	}

	add(LayerBase, c.rules.Base)
	add(LayerPerspective, c.rules.Perspectives[string(s.Perspective)])
	add(LayerDifficulty, c.rules.Difficulty[string(s.Difficulty)])
	add(LayerLogic, c.rules.Logic[string(s.Logic)])

	if override {
		add(LayerAuthorOverride, c.rules.AuthorOverride)
	} else {
		for _, m := range c.activeModules(s) {
			add(m.layer, m.text)
		}
	}

	if lang := strings.TrimSpace(s.Language); lang != "" {
		add(LayerLanguage, fmt.Sprintf("Write all story text, choices, names and summaries in %s.", lang))
	}
	return strings.Join(parts, "\n\n")
}

type module struct {
	layer string
	text  string
}

// activeModules applies module precedence: explicit content excludes strict
// interpretation.
func (c *Composer) activeModules(s state.Settings) []module {
	var mods []module
	if s.ExplicitContent {
		flavor := strings.TrimSpace(s.ExplicitFlavor)
		if flavor == "" {
			flavor = defaultExplicitFlavor
		}
		mods = append(mods, module{LayerExplicitContent, fill(c.rules.Modules.ExplicitContent, map[string]string{"flavor": flavor})})
	} else if s.StrictInterpretation {
		mods = append(mods, module{LayerStrictInterpretation, c.rules.Modules.StrictInterpretation})
	}
	if s.NPCResolveDecay {
		mods = append(mods, module{LayerNPCResolveDecay, c.rules.Modules.NPCResolveDecay})
	}
	if s.Mercy {
		mods = append(mods, module{LayerMercy, c.rules.Modules.Mercy})
	}
	return mods
}

func (c *Composer) vars() map[string]string {
	return map[string]string{"coreStats": strings.Join(c.core.Names(), ", ")}
}

// memory renders the world foundation, the character sheet, NPCs under fog
// of war, locations and the recalled chronicle.
func (c *Composer) memory() string {
	gs := c.gs
	var sb strings.Builder

	section(&sb, "World", gs.WorldContext)
	section(&sb, "Elsewhere in the world", gs.WorldInfo)
	section(&sb, "Player stats", RenderStats(gs.PlayerStats, gs.PlayerStatOrder))
	section(&sb, "Player skills", RenderSkills(gs.Skills))

	present, absent := c.splitNPCs()
	var pb strings.Builder
	for _, n := range present {
		pb.WriteString(RenderNPC(n))
	}
	section(&sb, "Characters in the scene", pb.String())

	var ab strings.Builder
	for _, n := range absent {
		fmt.Fprintf(&ab, "- %s (id: %s)\n", n.Name, n.ID)
	}
	section(&sb, "Other known characters (not present)", ab.String())

	var lb strings.Builder
	for _, l := range entity.SortByOrder(entity.LocationKind{}, gs.Locations) {
		lb.WriteString(RenderLocation(l))
	}
	section(&sb, "Known locations", lb.String())

	entries := c.chronicle
	if !c.hasChron {
		entries = chronicle.Active(gs.Chronicle)
	}
	section(&sb, "Chronicle of past events", RenderChronicle(entries))

	return sb.String()
}

// splitNPCs separates present NPCs, shown in full, from absent ones, shown
// by name and id only.
func (c *Composer) splitNPCs() (present, absent []entity.NPC) {
	ids := c.present
	if !c.hasPresent {
		ids = c.gs.PresentNPCIDs
	}
	visible := entity.NewIDSet(ids...)
	for _, n := range entity.SortByOrder(entity.NPCKind{}, c.gs.NPCs) {
		if visible.Has(n.ID) {
			present = append(present, n)
		} else {
			absent = append(absent, n)
		}
	}
	return present, absent
}

func (c *Composer) addHistory() {
	turns := c.history
	if !c.hasHistory {
		turns = c.gs.History
	}
	for _, t := range turns {
		if !t.IsOpening() {
			c.messages = append(c.messages, chat.ChatMessage{
				Role:    chat.ChatRoleUser,
				Content: t.Action(),
			})
		}
		c.messages = append(c.messages, chat.ChatMessage{
			Role:    chat.ChatRoleAgent,
			Content: t.StoryText,
		})
	}
}
