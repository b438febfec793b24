package chronicle

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"
)

// GroupBy selects how minor events are bucketed.
type GroupBy int

const (
	ByEventType GroupBy = iota
	ByTheme             // event type plus primary NPC
	ByPrimaryNPC
)

// GroupOptions tunes GroupMinorEvents.
type GroupOptions struct {
	Threshold     int // entries scoring below this are minor
	MinBucket     int // buckets at least this large collapse
	ScoreCeiling  int
	SummaryLimit  int // in runes
	MaxKeyDetails int
	By            GroupBy
}

// DefaultGroupOptions are the grouping defaults.
var DefaultGroupOptions = GroupOptions{
	Threshold:     6,
	MinBucket:     3,
	ScoreCeiling:  7,
	SummaryLimit:  250,
	MaxKeyDetails: 2,
	By:            ByEventType,
}

// GroupMinorEvents collapses buckets of minor entries into one synthetic
// entry placed where the bucket's first member was. Archived, unforgettable
// and already-grouped entries are never bucketed.
func GroupMinorEvents(entries []Entry, opts GroupOptions) []Entry {
	buckets := make(map[string][]int)
	var keys []string
	for i, e := range entries {
		if !groupable(e, opts) {
			continue
		}
		key := bucketKey(e, opts.By)
		if _, ok := buckets[key]; !ok {
			keys = append(keys, key)
		}
		buckets[key] = append(buckets[key], i)
	}

	replace := make(map[int]Entry)
	drop := make(map[int]struct{})
	for _, key := range keys {
		members := buckets[key]
		if len(members) < opts.MinBucket {
			continue
		}
		group := make([]Entry, len(members))
		for j, idx := range members {
			group[j] = entries[idx]
		}
		replace[members[0]] = synthesize(group, opts)
		for _, idx := range members[1:] {
			drop[idx] = struct{}{}
		}
	}

	out := make([]Entry, 0, len(entries))
	for i, e := range entries {
		if _, ok := drop[i]; ok {
			continue
		}
		if g, ok := replace[i]; ok {
			out = append(out, g)
			continue
		}
		out = append(out, e.Clone())
	}
	return out
}

func groupable(e Entry, opts GroupOptions) bool {
	return !e.IsArchived() &&
		!e.IsUnforgettable &&
		e.PlotSignificanceScore < MaxScore &&
		e.PlotSignificanceScore < opts.Threshold &&
		e.GroupedCount == 0
}

func bucketKey(e Entry, by GroupBy) string {
	primary := ""
	if len(e.InvolvedNPCIDs) > 0 {
		primary = e.InvolvedNPCIDs[0]
	}
	switch by {
	case ByTheme:
		return e.EventType + "|" + primary
	case ByPrimaryNPC:
		return primary
	default:
		return e.EventType
	}
}

func synthesize(group []Entry, opts GroupOptions) Entry {
	summaries := make([]string, 0, len(group))
	seenNPC := make(map[string]struct{})
	var npcs []string
	var details []string
	seenDetail := make(map[string]struct{})
	total := 0

	for _, e := range group {
		summaries = append(summaries, strings.TrimSpace(e.Summary))
		total += e.PlotSignificanceScore
		for _, id := range e.InvolvedNPCIDs {
			if _, ok := seenNPC[id]; !ok {
				seenNPC[id] = struct{}{}
				npcs = append(npcs, id)
			}
		}
		d := strings.TrimSpace(e.KeyDetail)
		if d == "" || len(details) >= opts.MaxKeyDetails {
			continue
		}
		if _, ok := seenDetail[strings.ToLower(d)]; ok {
			continue
		}
		seenDetail[strings.ToLower(d)] = struct{}{}
		details = append(details, d)
	}

	score := int(math.Round(float64(total)/float64(len(group)))) + 1
	score = min(score, opts.ScoreCeiling, MaxScore)
	score = max(score, MinScore)

	first, last := group[0], group[len(group)-1]
	summary := fmt.Sprintf("Summary of %d minor events: %s", len(group), strings.Join(summaries, " "))
	if npcs == nil {
		npcs = []string{}
	}
	return Entry{
		ID:                    "group-" + first.ID,
		Summary:               truncateRunes(summary, opts.SummaryLimit),
		EventType:             first.EventType,
		InvolvedNPCIDs:        npcs,
		PlotSignificanceScore: score,
		KeyDetail:             strings.Join(details, " | "),
		Turn:                  last.Turn,
		GroupedCount:          len(group),
	}
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:limit-1])) + "…"
}
