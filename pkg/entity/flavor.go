package entity

import "strings"

// Flavor is the narrative status line produced for one entity by the
// free-text flavor call.
type Flavor struct {
	Status  string
	Summary string
}

// ApplyNPCFlavor sets status and last-interaction summary on NPCs whose id
// appears in flavor. Empty flavor fields leave the current text in place.
func ApplyNPCFlavor(npcs []NPC, flavor map[string]Flavor) []NPC {
	out := make([]NPC, len(npcs))
	for i, n := range npcs {
		n = n.Clone()
		if f, ok := flavor[CanonicalID(n.ID)]; ok {
			if s := strings.TrimSpace(f.Status); s != "" {
				n.Status = s
			}
			if s := strings.TrimSpace(f.Summary); s != "" {
				n.LastInteractionSummary = s
			}
		}
		out[i] = n
	}
	return out
}

// ApplyLocationFlavor sets status and last-event summary on locations whose
// id appears in flavor.
func ApplyLocationFlavor(locations []Location, flavor map[string]Flavor) []Location {
	out := make([]Location, len(locations))
	for i, l := range locations {
		if f, ok := flavor[CanonicalID(l.ID)]; ok {
			if s := strings.TrimSpace(f.Status); s != "" {
				l.Status = s
			}
			if s := strings.TrimSpace(f.Summary); s != "" {
				l.LastEventSummary = s
			}
		}
		out[i] = l
	}
	return out
}
