package response

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"github.com/jwebster45206/chronicle-engine/pkg/entity"
	"github.com/jwebster45206/chronicle-engine/pkg/state"
	"github.com/jwebster45206/chronicle-engine/pkg/stats"
)

var coreKeys = []string{
	"storyText", "choices", "statUpdates", "npcUpdates", "locationUpdates",
	"newSkill", "presentNpcIds", "isMajorEvent", "isSceneBreak", "worldInfoUpdate",
}

// DecodeCore parses, validates and normalizes the main narrative response.
func DecodeCore(text string, logger *slog.Logger) (*CoreResponse, error) {
	v, err := ParseJSON(text)
	if err != nil {
		return nil, err
	}
	resp, err := ValidateCoreResponse(v, text, logger)
	if err != nil {
		return nil, err
	}
	Normalize(resp)
	return resp, nil
}

// DecodeOpening parses the opening response: a core response plus skills.
func DecodeOpening(text string, logger *slog.Logger) (*OpeningResponse, error) {
	v, err := ParseJSON(text)
	if err != nil {
		return nil, err
	}
	core, err := ValidateCoreResponse(v, text, logger)
	if err != nil {
		return nil, err
	}
	Normalize(core)
	out := &OpeningResponse{CoreResponse: *core}
	obj, _ := object(v)
	if list, ok := obj["skills"].([]any); ok {
		for _, item := range list {
			if sk, ok := skillFrom(item); ok {
				out.Skills = append(out.Skills, sk)
			}
		}
	}
	if out.Skills == nil {
		out.Skills = []state.Skill{}
	}
	return out, nil
}

// ValidateCoreResponse coerces a parsed response into a CoreResponse. Missing
// fields get safe defaults and malformed update entries are dropped, each
// logged. Only responses that are not objects, carry none of the expected
// fields or have a non-text narrative are rejected.
func ValidateCoreResponse(v any, raw string, logger *slog.Logger) (*CoreResponse, error) {
	if logger == nil {
		logger = slog.Default()
	}
	obj, ok := object(v)
	if !ok {
		return nil, invalid(raw, "expected a JSON object")
	}
	if !slices.ContainsFunc(coreKeys, func(k string) bool { _, ok := obj[k]; return ok }) {
		return nil, invalid(raw, "response has none of the expected fields")
	}

	out := &CoreResponse{}

	switch s := obj["storyText"].(type) {
	case string:
		out.StoryText = s
	case nil:
	default:
		return nil, invalid(raw, "storyText must be a string, got %T", s)
	}
	if strings.TrimSpace(out.StoryText) == "" {
		logger.Warn("Model response missing storyText, using placeholder")
		out.StoryText = PlaceholderStory
	}

	out.Choices = stringList(obj, "choices", logger)
	out.PresentNPCIDs = canonicalIDs(stringList(obj, "presentNpcIds", logger))
	out.IsMajorEvent = boolField(obj, "isMajorEvent", logger)
	out.IsSceneBreak = boolField(obj, "isSceneBreak", logger)
	if s, ok := obj["worldInfoUpdate"].(string); ok {
		out.WorldInfoUpdate = s
	}

	for _, item := range list(obj, "statUpdates", logger) {
		m, ok := item.(map[string]any)
		if !ok || !validStatUpdate(m) {
			logger.Warn("Dropping malformed stat update", "update", fmt.Sprint(item))
			continue
		}
		coerceStatUpdate(m)
		if err := appendDecoded(&out.StatUpdates, m); err != nil {
			logger.Warn("Dropping undecodable stat update", "error", err)
		}
	}

	for _, item := range list(obj, "npcUpdates", logger) {
		m, ok := item.(map[string]any)
		if !ok || !validEntityUpdate(m) {
			logger.Warn("Dropping malformed NPC update", "update", fmt.Sprint(item))
			continue
		}
		filterNestedStats(m, logger)
		if err := appendDecoded(&out.NPCUpdates, m); err != nil {
			logger.Warn("Dropping undecodable NPC update", "error", err)
		}
	}

	for _, item := range list(obj, "locationUpdates", logger) {
		m, ok := item.(map[string]any)
		if !ok || !validEntityUpdate(m) {
			logger.Warn("Dropping malformed location update", "update", fmt.Sprint(item))
			continue
		}
		if err := appendDecoded(&out.LocationUpdates, m); err != nil {
			logger.Warn("Dropping undecodable location update", "error", err)
		}
	}

	if item, ok := obj["newSkill"]; ok && item != nil {
		if sk, ok := skillFrom(item); ok {
			out.NewSkill = &sk
		} else {
			logger.Warn("Dropping malformed newSkill suggestion")
		}
	}

	if out.StatUpdates == nil {
		out.StatUpdates = []stats.Update{}
	}
	if out.NPCUpdates == nil {
		out.NPCUpdates = []entity.NPCUpdate{}
	}
	if out.LocationUpdates == nil {
		out.LocationUpdates = []entity.LocationUpdate{}
	}
	return out, nil
}

// Normalize enforces exactly ChoiceCount distinct, non-empty choices.
func Normalize(resp *CoreResponse) {
	seen := make(map[string]struct{}, ChoiceCount)
	choices := make([]string, 0, ChoiceCount)
	add := func(c string) {
		c = strings.TrimSpace(c)
		key := strings.ToLower(c)
		if c == "" || len(choices) >= ChoiceCount {
			return
		}
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		choices = append(choices, c)
	}
	for _, c := range resp.Choices {
		add(c)
	}
	for _, c := range DefaultChoices {
		add(c)
	}
	resp.Choices = choices
	if resp.PresentNPCIDs == nil {
		resp.PresentNPCIDs = []string{}
	}
}

func appendDecoded[T any](dst *[]T, m map[string]any) error {
	var v T
	if err := remarshal(m, &v); err != nil {
		return err
	}
	*dst = append(*dst, v)
	return nil
}

func list(obj map[string]any, key string, logger *slog.Logger) []any {
	switch v := obj[key].(type) {
	case []any:
		return v
	case nil:
		if _, present := obj[key]; !present {
			logger.Warn("Model response missing field, defaulting to empty list", "field", key)
		}
		return nil
	default:
		logger.Warn("Model response field is not a list, defaulting to empty list", "field", key, "type", fmt.Sprintf("%T", v))
		return nil
	}
}

func stringList(obj map[string]any, key string, logger *slog.Logger) []string {
	out := []string{}
	for _, item := range list(obj, key, logger) {
		switch s := item.(type) {
		case string:
			if strings.TrimSpace(s) != "" {
				out = append(out, s)
			}
		case json.Number, float64, bool:
			out = append(out, fmt.Sprint(s))
		default:
			logger.Warn("Dropping non-text list item", "field", key)
		}
	}
	return out
}

func boolField(obj map[string]any, key string, logger *slog.Logger) bool {
	switch v := obj[key].(type) {
	case bool:
		return v
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			logger.Warn("Coercing non-boolean flag to false", "field", key, "value", v)
			return false
		}
		return b
	case nil:
		if _, present := obj[key]; !present {
			logger.Warn("Model response missing flag, defaulting to false", "field", key)
		}
		return false
	default:
		logger.Warn("Coercing non-boolean flag to false", "field", key)
		return false
	}
}

func validStatUpdate(m map[string]any) bool {
	name, _ := m["statName"].(string)
	if strings.TrimSpace(name) == "" {
		return false
	}
	switch v := m["value"].(type) {
	case string:
		return strings.TrimSpace(v) != ""
	case json.Number, float64, bool:
		return true
	default:
		return false
	}
}

// coerceStatUpdate turns numeric strings into numbers for integer fields and
// drops integer fields that cannot be read.
func coerceStatUpdate(m map[string]any) {
	coerceInt(m, "duration")
	if ev, ok := m["evolution"].(map[string]any); ok {
		coerceInt(ev, "after")
		coerceInt(ev, "withDuration")
		if b, _ := ev["becomes"].(string); strings.TrimSpace(b) == "" {
			delete(m, "evolution")
		}
	} else {
		delete(m, "evolution")
	}
	if _, ok := m["isItem"].(bool); !ok {
		delete(m, "isItem")
	}
	if _, ok := m["history"].([]any); !ok {
		delete(m, "history")
	}
}

func coerceInt(m map[string]any, key string) {
	switch v := m[key].(type) {
	case int, float64:
		return
	case json.Number:
		if f, err := v.Float64(); err == nil {
			m[key] = int(f)
			return
		}
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			m[key] = n
			return
		}
	case nil:
		if _, ok := m[key]; !ok {
			return
		}
	}
	delete(m, key)
}

func filterNestedStats(m map[string]any, logger *slog.Logger) {
	items, ok := m["stats"].([]any)
	if !ok {
		delete(m, "stats")
		return
	}
	kept := make([]any, 0, len(items))
	for _, item := range items {
		sm, ok := item.(map[string]any)
		if !ok || !validStatUpdate(sm) {
			logger.Warn("Dropping malformed NPC stat update", "npc_id", m["id"], "update", fmt.Sprint(item))
			continue
		}
		coerceStatUpdate(sm)
		kept = append(kept, sm)
	}
	m["stats"] = kept
}

// validEntityUpdate requires a recognized action and an id. A CREATE without
// an id is accepted when it names the entity, since an id can be minted.
func validEntityUpdate(m map[string]any) bool {
	actionText, _ := m["action"].(string)
	action, ok := entity.ParseAction(actionText)
	if !ok {
		return false
	}
	id, _ := m["id"].(string)
	if strings.TrimSpace(id) != "" {
		return true
	}
	name, _ := m["name"].(string)
	return action == entity.ActionCreate && strings.TrimSpace(name) != ""
}

func canonicalIDs(ids []string) []string {
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
