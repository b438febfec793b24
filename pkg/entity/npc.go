package entity

import (
	"log/slog"

	"github.com/jwebster45206/chronicle-engine/pkg/stats"
)

// NPC is a non-player character. ID is the sole identity key; Name may change.
type NPC struct {
	ID                     string    `json:"id"`
	Name                   string    `json:"name"`
	Gender                 string    `json:"gender,omitempty"`
	Personality            string    `json:"personality,omitempty"`
	RelationshipToPlayer   string    `json:"relationshipToPlayer,omitempty"`
	Identity               string    `json:"identity,omitempty"`
	Appearance             string    `json:"appearance,omitempty"`
	Virginity              string    `json:"virginity,omitempty"`
	Status                 string    `json:"status,omitempty"`
	LastInteractionSummary string    `json:"lastInteractionSummary,omitempty"`
	Stats                  stats.Map `json:"stats,omitempty"`
	IsProtected            bool      `json:"isProtected"`
	SortOrder              int       `json:"sortOrder"`
}

// Clone deep-copies the NPC.
func (n NPC) Clone() NPC {
	out := n
	out.Stats = n.Stats.Clone()
	return out
}

// NPCUpdate is a model-issued instruction for one NPC. Nil fields are absent.
type NPCUpdate struct {
	Action                 string         `json:"action"`
	ID                     string         `json:"id"`
	Name                   *string        `json:"name,omitempty"`
	Gender                 *string        `json:"gender,omitempty"`
	Personality            *string        `json:"personality,omitempty"`
	RelationshipToPlayer   *string        `json:"relationshipToPlayer,omitempty"`
	Identity               *string        `json:"identity,omitempty"`
	Appearance             *string        `json:"appearance,omitempty"`
	Virginity              *string        `json:"virginity,omitempty"`
	Status                 *string        `json:"status,omitempty"`
	LastInteractionSummary *string        `json:"lastInteractionSummary,omitempty"`
	Stats                  []stats.Update `json:"stats,omitempty"`
}

// NPCKind implements Kind for NPCs. Nested stat updates go through the stat
// reconciler so existing history and evolution are kept.
type NPCKind struct {
	Stats  *stats.Reconciler
	Logger *slog.Logger
}

var _ Kind[NPC, NPCUpdate] = NPCKind{}

func (NPCKind) Label() string { return "npc" }

func (NPCKind) EntityID(e NPC) string   { return e.ID }
func (NPCKind) EntityName(e NPC) string { return e.Name }
func (NPCKind) IsProtected(e NPC) bool  { return e.IsProtected }
func (NPCKind) SortOrder(e NPC) int     { return e.SortOrder }

func (NPCKind) WithSortOrder(e NPC, order int) NPC {
	e.SortOrder = order
	return e
}

func (NPCKind) WithProtected(e NPC, protected bool) NPC {
	e.IsProtected = protected
	return e
}

func (NPCKind) UpdateAction(u NPCUpdate) string { return u.Action }
func (NPCKind) UpdateID(u NPCUpdate) string     { return u.ID }
func (NPCKind) UpdateName(u NPCUpdate) string   { return strValue(u.Name) }

func (NPCKind) WithUpdateID(u NPCUpdate, id string) NPCUpdate {
	u.ID = id
	return u
}

func (k NPCKind) Create(u NPCUpdate, sortOrder int) NPC {
	n := NPC{
		ID:                   u.ID,
		Name:                 strValue(u.Name),
		Gender:               strValue(u.Gender),
		Personality:          strValue(u.Personality),
		RelationshipToPlayer: strValue(u.RelationshipToPlayer),
		Identity:             strValue(u.Identity),
		Appearance:           strValue(u.Appearance),
		Virginity:            strValue(u.Virginity),
		SortOrder:            sortOrder,
	}
	if n.Name == "" {
		n.Name = u.ID
	}
	if len(u.Stats) > 0 && k.Stats != nil {
		n.Stats = k.Stats.MergeUpdates(nil, u.Stats)
	}
	return n
}

// Merge applies an NPC update. Field list:
//
//	name, gender, identity, appearance, virginity  replaced when present and non-empty
//	personality, relationshipToPlayer              only filled when currently empty
//	stats                                          merged through the stat reconciler
//	status, lastInteractionSummary                 owned by the flavor pass, never set here
//	isProtected, sortOrder                         owned by manual edits, never set here
func (k NPCKind) Merge(e NPC, u NPCUpdate) NPC {
	out := e.Clone()
	setIfPresent(&out.Name, u.Name)
	setIfPresent(&out.Gender, u.Gender)
	setIfPresent(&out.Identity, u.Identity)
	setIfPresent(&out.Appearance, u.Appearance)
	setIfPresent(&out.Virginity, u.Virginity)

	out.Personality = k.fixed(e.ID, "personality", out.Personality, u.Personality)
	out.RelationshipToPlayer = k.fixed(e.ID, "relationshipToPlayer", out.RelationshipToPlayer, u.RelationshipToPlayer)

	if len(u.Stats) > 0 && k.Stats != nil {
		out.Stats = k.Stats.MergeUpdates(out.Stats, u.Stats)
	}
	return out
}

func (k NPCKind) fixed(id, field, current string, incoming *string) string {
	v := strValue(incoming)
	if v == "" || v == current {
		return current
	}
	if current == "" {
		return v
	}
	if k.Logger != nil {
		k.Logger.Debug("Ignoring change to fixed NPC field", "npc_id", id, "field", field)
	}
	return current
}

func (NPCKind) StripNarrative(u NPCUpdate) NPCUpdate {
	u.Status = nil
	u.LastInteractionSummary = nil
	return u
}
