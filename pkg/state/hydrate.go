package state

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jwebster45206/chronicle-engine/pkg/chronicle"
	"github.com/jwebster45206/chronicle-engine/pkg/entity"
	"github.com/jwebster45206/chronicle-engine/pkg/stats"
)

var ErrInvalidDocument = errors.New("invalid game state document")

// legacyMemoryKeys are pre-chronicle free-text memory fields.
var legacyMemoryKeys = []string{"longTermMemory", "memory"}

// Hydrate decodes a saved document of any supported vintage and upgrades it:
// missing arrays become empty, legacy free-text memory becomes a single
// legacy chronicle entry, absent sortOrder is re-derived (protected first,
// then alphabetical) and an absent stat order is derived (core stats first,
// then alphabetical).
func Hydrate(data []byte, core stats.CoreSet) (*GameState, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: document is null", ErrInvalidDocument)
	}

	type alias GameState
	gs := &GameState{}
	doc := struct {
		*alias
		Chronicle json.RawMessage `json:"chronicle"`
	}{alias: (*alias)(gs)}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}

	entries, err := hydrateChronicle(doc.Chronicle)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		for _, key := range legacyMemoryKeys {
			var text string
			if json.Unmarshal(raw[key], &text) == nil && strings.TrimSpace(text) != "" {
				entries = []chronicle.Entry{chronicle.FromLegacy(text)}
				break
			}
		}
	}
	gs.Chronicle = entries

	backfill(gs)

	if missingField(raw["npcs"], "sortOrder") {
		gs.NPCs = entity.DeriveOrder(entity.NPCKind{}, gs.NPCs)
	} else {
		gs.NPCs = entity.DensePack(entity.NPCKind{}, gs.NPCs)
	}
	if missingField(raw["locations"], "sortOrder") {
		gs.Locations = entity.DeriveOrder(entity.LocationKind{}, gs.Locations)
	} else {
		gs.Locations = entity.DensePack(entity.LocationKind{}, gs.Locations)
	}

	for name, st := range gs.PlayerStats {
		if core.Contains(name) && st.Duration != nil {
			st.Duration = nil
			gs.PlayerStats[name] = st
		}
	}
	gs.PlayerStatOrder = stats.NormalizeOrder(gs.PlayerStatOrder, gs.PlayerStats, core)

	return gs, nil
}

func hydrateChronicle(data json.RawMessage) ([]chronicle.Entry, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return []chronicle.Entry{}, nil
	}
	switch data[0] {
	case '"':
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return nil, fmt.Errorf("%w: chronicle: %v", ErrInvalidDocument, err)
		}
		if strings.TrimSpace(text) == "" {
			return []chronicle.Entry{}, nil
		}
		return []chronicle.Entry{chronicle.FromLegacy(text)}, nil
	case '[':
	default:
		return nil, fmt.Errorf("%w: chronicle must be a list or a string", ErrInvalidDocument)
	}

	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("%w: chronicle: %v", ErrInvalidDocument, err)
	}
	out := make([]chronicle.Entry, 0, len(items))
	for _, item := range items {
		item = bytes.TrimSpace(item)
		if len(item) > 0 && item[0] == '"' {
			var text string
			if err := json.Unmarshal(item, &text); err != nil {
				return nil, fmt.Errorf("%w: chronicle entry: %v", ErrInvalidDocument, err)
			}
			if strings.TrimSpace(text) != "" {
				out = append(out, chronicle.FromLegacy(text))
			}
			continue
		}
		var e chronicle.Entry
		if err := json.Unmarshal(item, &e); err != nil {
			return nil, fmt.Errorf("%w: chronicle entry: %v", ErrInvalidDocument, err)
		}
		if e.InvolvedNPCIDs == nil {
			e.InvolvedNPCIDs = []string{}
		}
		if e.EventType == "" {
			e.EventType = chronicle.DefaultEventType
		}
		e.PlotSignificanceScore = max(chronicle.MinScore, min(chronicle.MaxScore, e.PlotSignificanceScore))
		out = append(out, e)
	}
	return out, nil
}

func backfill(gs *GameState) {
	if gs.ID == uuid.Nil {
		gs.ID = uuid.New()
	}
	gs.History = nonNil(gs.History)
	for i := range gs.History {
		gs.History[i].Choices = nonNil(gs.History[i].Choices)
	}
	gs.ShortTermBuffer = nonNil(gs.ShortTermBuffer)
	for i := range gs.ShortTermBuffer {
		gs.ShortTermBuffer[i].Choices = nonNil(gs.ShortTermBuffer[i].Choices)
	}
	if gs.PlayerStats == nil {
		gs.PlayerStats = stats.Map{}
	}
	gs.PlayerStatOrder = nonNil(gs.PlayerStatOrder)
	gs.NPCs = nonNil(gs.NPCs)
	gs.Locations = nonNil(gs.Locations)
	gs.Skills = nonNil(gs.Skills)
	for i := range gs.Skills {
		gs.Skills[i].Abilities = nonNil(gs.Skills[i].Abilities)
	}
	gs.PresentNPCIDs = nonNil(gs.PresentNPCIDs)
	gs.RecentlyUpdated = gs.RecentlyUpdated.Clone()
	gs.Settings = gs.Settings.WithDefaults()
	if gs.TotalTurns < len(gs.History) {
		gs.TotalTurns = len(gs.History)
	}
	if gs.CreatedAt.IsZero() {
		gs.CreatedAt = time.Now().UTC()
	}
	if gs.UpdatedAt.IsZero() {
		gs.UpdatedAt = gs.CreatedAt
	}
}

// missingField reports whether any object in a JSON array lacks key.
func missingField(list json.RawMessage, key string) bool {
	var items []map[string]json.RawMessage
	if err := json.Unmarshal(list, &items); err != nil {
		return false
	}
	for _, item := range items {
		if _, ok := item[key]; !ok {
			return true
		}
	}
	return false
}

func equalFold(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
