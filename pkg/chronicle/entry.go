// Package chronicle maintains the long-term event log: validation of model
// drafted entries, duplicate suppression, grouping of minor events, archiving
// of entries about dead NPCs and relevance-ranked recall.
package chronicle

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/jwebster45206/chronicle-engine/pkg/entity"
)

const (
	MinScore     = 1
	MaxScore     = 10
	DefaultScore = 5

	DefaultSummary   = "Time passed without notable events."
	DefaultEventType = "general"
	LegacyEventType  = "legacy_import"

	// ArchivedPrefix marks an entry as archived. Archived entries stay in the
	// log but are excluded from recall.
	ArchivedPrefix = "archived:"
)

// RelationshipChange records how an NPC's stance toward the player moved.
type RelationshipChange struct {
	NPCID  string `json:"npcId"`
	Change string `json:"change"`
}

// Entry is one chronicle record.
type Entry struct {
	ID                    string               `json:"id,omitempty"`
	Summary               string               `json:"summary"`
	EventType             string               `json:"eventType"`
	InvolvedNPCIDs        []string             `json:"involvedNpcIds"`
	PlotSignificanceScore int                  `json:"plotSignificanceScore"`
	IsUnforgettable       bool                 `json:"isUnforgettable"`
	RelationshipChanges   []RelationshipChange `json:"relationshipChanges,omitempty"`
	KeyDetail             string               `json:"keyDetail,omitempty"`
	PotentialConsequence  string               `json:"potentialConsequence,omitempty"`
	Turn                  int                  `json:"turn,omitempty"`
	GroupedCount          int                  `json:"groupedCount,omitempty"`
}

// IsArchived reports whether the entry has been tombstoned.
func (e Entry) IsArchived() bool {
	return strings.HasPrefix(e.EventType, ArchivedPrefix)
}

// BaseEventType returns the event type without the archive prefix.
func (e Entry) BaseEventType() string {
	return strings.TrimPrefix(e.EventType, ArchivedPrefix)
}

// Clone deep-copies the entry.
func (e Entry) Clone() Entry {
	out := e
	out.InvolvedNPCIDs = append([]string{}, e.InvolvedNPCIDs...)
	if e.RelationshipChanges != nil {
		out.RelationshipChanges = append([]RelationshipChange(nil), e.RelationshipChanges...)
	}
	return out
}

// Draft is a chronicle entry as produced by the model, before validation.
// The score is left untyped because models send it as a number or a string.
type Draft struct {
	Summary               string               `json:"summary"`
	EventType             string               `json:"eventType"`
	InvolvedNPCIDs        []string             `json:"involvedNpcIds"`
	PlotSignificanceScore any                  `json:"plotSignificanceScore"`
	RelationshipChanges   []RelationshipChange `json:"relationshipChanges,omitempty"`
	KeyDetail             string               `json:"keyDetail,omitempty"`
	PotentialConsequence  string               `json:"potentialConsequence,omitempty"`
}

// ValidateEntry fills missing fields with safe defaults, clamps the score to
// [1,10] (5 when unparseable) and derives the unforgettable flag.
func ValidateEntry(d Draft) Entry {
	e := Entry{
		Summary:              strings.TrimSpace(d.Summary),
		EventType:            normalizeEventType(d.EventType),
		InvolvedNPCIDs:       normalizeIDs(d.InvolvedNPCIDs),
		KeyDetail:            strings.TrimSpace(d.KeyDetail),
		PotentialConsequence: strings.TrimSpace(d.PotentialConsequence),
	}
	if e.Summary == "" {
		e.Summary = DefaultSummary
	}
	for _, rc := range d.RelationshipChanges {
		id := entity.CanonicalID(rc.NPCID)
		change := strings.TrimSpace(rc.Change)
		if id == "" || change == "" {
			continue
		}
		e.RelationshipChanges = append(e.RelationshipChanges, RelationshipChange{NPCID: id, Change: change})
	}
	e.PlotSignificanceScore = parseScore(d.PlotSignificanceScore)
	e.IsUnforgettable = e.PlotSignificanceScore == MaxScore
	return e
}

// FromLegacy converts a pre-chronicle free-text memory into a single entry.
func FromLegacy(text string) Entry {
	return Entry{
		Summary:               strings.TrimSpace(text),
		EventType:             LegacyEventType,
		InvolvedNPCIDs:        []string{},
		PlotSignificanceScore: MaxScore,
		IsUnforgettable:       true,
	}
}

func parseScore(v any) int {
	var f float64
	switch s := v.(type) {
	case float64:
		f = s
	case int:
		f = float64(s)
	case json.Number:
		n, err := s.Float64()
		if err != nil {
			return DefaultScore
		}
		f = n
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return DefaultScore
		}
		f = n
	default:
		return DefaultScore
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return DefaultScore
	}
	return int(math.Max(MinScore, math.Min(MaxScore, math.Round(f))))
}

func normalizeEventType(s string) string {
	s = strings.TrimPrefix(strings.TrimSpace(s), ArchivedPrefix)
	s = entity.CanonicalID(s)
	if s == "" {
		return DefaultEventType
	}
	return s
}

func normalizeIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = entity.CanonicalID(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
