package stats

import (
	"slices"
	"strings"
)

// Evolution turns a stat into a different stat once its remaining duration
// drops to the After threshold.
type Evolution struct {
	After        int    `json:"after"`
	Becomes      string `json:"becomes"`
	WithValue    Value  `json:"withValue"`
	WithDuration *int   `json:"withDuration,omitempty"`
}

// Stat is a single character attribute or inventory item.
// A nil Duration means the stat is permanent.
type Stat struct {
	Value     Value      `json:"value"`
	Duration  *int       `json:"duration,omitempty"`
	History   []string   `json:"history,omitempty"`
	IsItem    *bool      `json:"isItem,omitempty"`
	Evolution *Evolution `json:"evolution,omitempty"`
}

// Item reports whether the stat is an inventory entry.
func (s Stat) Item() bool {
	return s.IsItem != nil && *s.IsItem
}

// Clone returns a copy that shares no memory with s.
func (s Stat) Clone() Stat {
	out := s
	if s.Duration != nil {
		d := *s.Duration
		out.Duration = &d
	}
	if s.History != nil {
		out.History = slices.Clone(s.History)
	}
	if s.IsItem != nil {
		b := *s.IsItem
		out.IsItem = &b
	}
	if s.Evolution != nil {
		ev := *s.Evolution
		if ev.WithDuration != nil {
			d := *ev.WithDuration
			ev.WithDuration = &d
		}
		out.Evolution = &ev
	}
	return out
}

// Map is a stat set keyed by stat name.
type Map map[string]Stat

// Clone deep-copies the map.
func (m Map) Clone() Map {
	if m == nil {
		return nil
	}
	out := make(Map, len(m))
	for k, v := range m {
		out[k] = v.Clone()
	}
	return out
}

// Names returns the stat names sorted alphabetically (case-insensitive).
func (m Map) Names() []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sortAlpha(names)
	return names
}

// Update is a model-issued change to a single stat. Fields left nil are
// kept from the existing stat.
type Update struct {
	StatName  string     `json:"statName"`
	Value     Value      `json:"value"`
	Duration  *int       `json:"duration,omitempty"`
	History   []string   `json:"history,omitempty"`
	IsItem    *bool      `json:"isItem,omitempty"`
	Evolution *Evolution `json:"evolution,omitempty"`
}

// Stat converts the update into a partial Stat suitable for Merge.
func (u Update) Stat() Stat {
	return Stat{
		Value:     u.Value,
		Duration:  u.Duration,
		History:   u.History,
		IsItem:    u.IsItem,
		Evolution: u.Evolution,
	}.Clone()
}

// CoreSet is the configured set of always-present stats that never expire.
type CoreSet struct {
	names []string
	index map[string]struct{}
}

// DefaultCoreStats mirrors the four attributes every character sheet carries.
var DefaultCoreStats = NewCoreSet("Health", "Stamina", "Sanity", "Cultivation Realm")

// NewCoreSet builds a core set, preserving the given display order.
func NewCoreSet(names ...string) CoreSet {
	cs := CoreSet{index: make(map[string]struct{}, len(names))}
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		key := coreKey(n)
		if _, ok := cs.index[key]; ok {
			continue
		}
		cs.index[key] = struct{}{}
		cs.names = append(cs.names, n)
	}
	return cs
}

// Contains reports whether name is a core stat. Matching ignores case and
// surrounding whitespace.
func (cs CoreSet) Contains(name string) bool {
	_, ok := cs.index[coreKey(name)]
	return ok
}

// Canonical returns the configured display name for a core stat.
func (cs CoreSet) Canonical(name string) (string, bool) {
	key := coreKey(name)
	for _, n := range cs.names {
		if coreKey(n) == key {
			return n, true
		}
	}
	return "", false
}

// Names returns the core stat names in display order.
func (cs CoreSet) Names() []string {
	return slices.Clone(cs.names)
}

func (cs CoreSet) Len() int {
	return len(cs.names)
}

func coreKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func sortAlpha(names []string) {
	slices.SortFunc(names, func(a, b string) int {
		if c := strings.Compare(strings.ToLower(a), strings.ToLower(b)); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})
}
