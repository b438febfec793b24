package chronicle

import (
	"regexp"

	"github.com/jwebster45206/chronicle-engine/pkg/entity"
)

var deathPattern = regexp.MustCompile(`(?i)\b(dead|deceased|died|killed|slain|perished|executed|murdered|lifeless)\b|đã chết|tử vong|qua đời|bị giết|đã mất|tử trận|\bchết\b`)

// IsDeadStatus reports whether an NPC status text confirms death.
func IsDeadStatus(status string) bool {
	return deathPattern.MatchString(status)
}

// ArchiveDeadNPCMemories archives every active entry that names at least one
// NPC and whose named NPCs are all confirmed dead. NPCs missing from the list
// are not considered dead.
func ArchiveDeadNPCMemories(entries []Entry, npcs []entity.NPC) []Entry {
	dead := make(map[string]struct{})
	for _, n := range npcs {
		if IsDeadStatus(n.Status) {
			dead[entity.CanonicalID(n.ID)] = struct{}{}
		}
	}

	out := make([]Entry, len(entries))
	for i, e := range entries {
		e = e.Clone()
		if !e.IsArchived() && len(e.InvolvedNPCIDs) > 0 && allDead(e.InvolvedNPCIDs, dead) {
			e.EventType = ArchivedPrefix + e.EventType
		}
		out[i] = e
	}
	return out
}

// Active returns the entries that are not archived.
func Active(entries []Entry) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if !e.IsArchived() {
			out = append(out, e)
		}
	}
	return out
}

func allDead(ids []string, dead map[string]struct{}) bool {
	for _, id := range ids {
		if _, ok := dead[entity.CanonicalID(id)]; !ok {
			return false
		}
	}
	return true
}
