package response

import (
	"strings"

	"github.com/jwebster45206/chronicle-engine/pkg/chronicle"
	"github.com/jwebster45206/chronicle-engine/pkg/state"
)

// ParseSkill decodes a skill-acquisition response.
func ParseSkill(text string) (state.Skill, error) {
	v, err := ParseJSON(text)
	if err != nil {
		return state.Skill{}, err
	}
	obj, ok := object(v)
	if !ok {
		return state.Skill{}, invalid(text, "expected a skill object")
	}
	if inner, ok := obj["skill"]; ok {
		v = inner
	}
	sk, ok := skillFrom(v)
	if !ok {
		return state.Skill{}, invalid(text, "skill has no name")
	}
	return sk, nil
}

// ParseChronicle decodes a chronicle summarization response into a draft.
// Missing fields are left for chronicle.ValidateEntry to default.
func ParseChronicle(text string) (chronicle.Draft, error) {
	v, err := ParseJSON(text)
	if err != nil {
		return chronicle.Draft{}, err
	}
	obj, ok := object(v)
	if !ok {
		return chronicle.Draft{}, invalid(text, "expected a chronicle entry object")
	}
	if inner, ok := obj["entry"].(map[string]any); ok {
		obj = inner
	}
	if ids, ok := obj["involvedNpcIds"]; ok {
		if _, isList := ids.([]any); !isList {
			delete(obj, "involvedNpcIds")
		}
	}
	if rc, ok := obj["relationshipChanges"]; ok {
		if _, isList := rc.([]any); !isList {
			delete(obj, "relationshipChanges")
		}
	}
	var d chronicle.Draft
	if err := remarshal(obj, &d); err != nil {
		return chronicle.Draft{}, invalid(text, "failed to decode chronicle entry: %v", err)
	}
	return d, nil
}

func skillFrom(v any) (state.Skill, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return state.Skill{}, false
	}
	name, _ := m["name"].(string)
	if strings.TrimSpace(name) == "" {
		return state.Skill{}, false
	}
	desc, _ := m["description"].(string)
	sk := state.Skill{Name: strings.TrimSpace(name), Description: desc, Abilities: []state.Ability{}}
	items, _ := m["abilities"].([]any)
	for _, item := range items {
		am, ok := item.(map[string]any)
		if !ok {
			continue
		}
		an, _ := am["name"].(string)
		if strings.TrimSpace(an) == "" {
			continue
		}
		ad, _ := am["description"].(string)
		sk.Abilities = append(sk.Abilities, state.Ability{Name: strings.TrimSpace(an), Description: ad})
	}
	return sk, true
}
