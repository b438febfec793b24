package state

import "slices"

// GameTurn is one exchange: the player's action and the narrated result.
// PlayerAction is nil for the opening turn.
type GameTurn struct {
	PlayerAction      *string  `json:"playerAction"`
	StoryText         string   `json:"storyText"`
	Choices           []string `json:"choices"`
	TokenCount        int      `json:"tokenCount"`
	IsMajorEvent      bool     `json:"isMajorEvent,omitempty"`
	IsCondensedMemory bool     `json:"isCondensedMemory,omitempty"`
	RequestCount      int      `json:"requestCount,omitempty"`
}

// Action returns the player action text, empty for the opening turn.
func (t GameTurn) Action() string {
	if t.PlayerAction == nil {
		return ""
	}
	return *t.PlayerAction
}

// IsOpening reports whether the turn has no player action.
func (t GameTurn) IsOpening() bool {
	return t.PlayerAction == nil
}

func (t GameTurn) Clone() GameTurn {
	out := t
	if t.PlayerAction != nil {
		a := *t.PlayerAction
		out.PlayerAction = &a
	}
	out.Choices = slices.Clone(t.Choices)
	if out.Choices == nil {
		out.Choices = []string{}
	}
	return out
}

// NewTurn builds a turn for the given action.
func NewTurn(action string, story string, choices []string) GameTurn {
	a := action
	return GameTurn{PlayerAction: &a, StoryText: story, Choices: slices.Clone(choices)}
}

// Ability is one technique granted by a skill.
type Ability struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Skill is a named container of abilities. Skills enter the permanent list
// only through explicit player confirmation.
type Skill struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Abilities   []Ability `json:"abilities"`
}

func (s Skill) Clone() Skill {
	out := s
	out.Abilities = slices.Clone(s.Abilities)
	if out.Abilities == nil {
		out.Abilities = []Ability{}
	}
	return out
}

// SkillOrigin records which flow staged a pending skill.
type SkillOrigin string

const (
	SkillFromStat      SkillOrigin = "stat"
	SkillFromCustom    SkillOrigin = "custom"
	SkillFromNarrative SkillOrigin = "narrative"
)

// PendingSkill is a skill awaiting confirm or decline.
type PendingSkill struct {
	Skill      Skill       `json:"skill"`
	Origin     SkillOrigin `json:"origin"`
	SourceStat string      `json:"sourceStat,omitempty"`
}

// RecentlyUpdated lists the keys changed by the latest turn.
type RecentlyUpdated struct {
	Stats     []string `json:"stats"`
	NPCs      []string `json:"npcs"`
	Locations []string `json:"locations"`
}

func (r RecentlyUpdated) Clone() RecentlyUpdated {
	return RecentlyUpdated{
		Stats:     nonNil(slices.Clone(r.Stats)),
		NPCs:      nonNil(slices.Clone(r.NPCs)),
		Locations: nonNil(slices.Clone(r.Locations)),
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
