// Package state holds the persisted shape of a story session and the
// backward-compatible hydration of saved documents.
package state

import (
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jwebster45206/chronicle-engine/pkg/chronicle"
	"github.com/jwebster45206/chronicle-engine/pkg/entity"
	"github.com/jwebster45206/chronicle-engine/pkg/stats"
)

// GameState is one committed snapshot of a session. Operations on it return
// a new value; callers Clone before mutating.
type GameState struct {
	ID              uuid.UUID         `json:"id"`
	History         []GameTurn        `json:"history"`
	PlayerStats     stats.Map         `json:"playerStats"`
	PlayerStatOrder []string          `json:"playerStatOrder"`
	WorldContext    string            `json:"worldContext"`
	NPCs            []entity.NPC      `json:"npcs"`
	Locations       []entity.Location `json:"locations"`
	Skills          []Skill           `json:"skills"`
	Chronicle       []chronicle.Entry `json:"chronicle"`
	ShortTermBuffer []GameTurn        `json:"shortTermBuffer"`
	LastImage       string            `json:"lastImage,omitempty"`
	ImageError      string            `json:"imageError,omitempty"`
	TotalTurns      int               `json:"totalTurns"`
	WorldInfo       string            `json:"worldInfo,omitempty"`
	Settings        Settings          `json:"settings"`

	PresentNPCIDs   []string        `json:"presentNpcIds"`
	RecentlyUpdated RecentlyUpdated `json:"recentlyUpdated"`
	PendingSkill    *PendingSkill   `json:"pendingSkill,omitempty"`
	PendingEdit     *Edit           `json:"pendingEdit,omitempty"`

	TotalRequests int `json:"totalRequests"`
	TotalTokens   int `json:"totalTokens"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewGameState returns an empty session with every list initialized.
func NewGameState(worldContext string, settings Settings) *GameState {
	now := time.Now().UTC()
	return &GameState{
		ID:              uuid.New(),
		History:         []GameTurn{},
		PlayerStats:     stats.Map{},
		PlayerStatOrder: []string{},
		WorldContext:    worldContext,
		NPCs:            []entity.NPC{},
		Locations:       []entity.Location{},
		Skills:          []Skill{},
		Chronicle:       []chronicle.Entry{},
		ShortTermBuffer: []GameTurn{},
		Settings:        settings.WithDefaults(),
		PresentNPCIDs:   []string{},
		RecentlyUpdated: RecentlyUpdated{}.Clone(),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// LastTurn returns the newest turn, if any.
func (gs *GameState) LastTurn() (GameTurn, bool) {
	if gs == nil || len(gs.History) == 0 {
		return GameTurn{}, false
	}
	return gs.History[len(gs.History)-1], true
}

// Clone returns a deep copy sharing no slices or maps with gs.
func (gs *GameState) Clone() *GameState {
	if gs == nil {
		return nil
	}
	out := *gs
	out.History = cloneTurns(gs.History)
	out.ShortTermBuffer = cloneTurns(gs.ShortTermBuffer)
	out.PlayerStats = gs.PlayerStats.Clone()
	if out.PlayerStats == nil {
		out.PlayerStats = stats.Map{}
	}
	out.PlayerStatOrder = nonNil(slices.Clone(gs.PlayerStatOrder))

	out.NPCs = make([]entity.NPC, len(gs.NPCs))
	for i, n := range gs.NPCs {
		out.NPCs[i] = n.Clone()
	}
	out.Locations = nonNil(slices.Clone(gs.Locations))

	out.Skills = make([]Skill, len(gs.Skills))
	for i, s := range gs.Skills {
		out.Skills[i] = s.Clone()
	}
	out.Chronicle = make([]chronicle.Entry, len(gs.Chronicle))
	for i, e := range gs.Chronicle {
		out.Chronicle[i] = e.Clone()
	}

	out.PresentNPCIDs = nonNil(slices.Clone(gs.PresentNPCIDs))
	out.RecentlyUpdated = gs.RecentlyUpdated.Clone()
	if gs.PendingSkill != nil {
		p := *gs.PendingSkill
		p.Skill = p.Skill.Clone()
		out.PendingSkill = &p
	}
	if gs.PendingEdit != nil {
		e := *gs.PendingEdit
		out.PendingEdit = &e
	}
	return &out
}

// SkillByName finds a skill case-insensitively.
func (gs *GameState) SkillByName(name string) (int, bool) {
	for i, s := range gs.Skills {
		if equalFold(s.Name, name) {
			return i, true
		}
	}
	return -1, false
}

func cloneTurns(turns []GameTurn) []GameTurn {
	out := make([]GameTurn, len(turns))
	for i, t := range turns {
		out[i] = t.Clone()
	}
	return out
}
