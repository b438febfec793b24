package stats

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

var (
	ErrStatNotFound = errors.New("stat not found")
	ErrStatExists   = errors.New("stat already exists")
	ErrCoreStat     = errors.New("core stats cannot be changed this way")
)

// DeriveOrder returns the default display order: core stats first, in
// configured order, then the remaining stats alphabetically.
func DeriveOrder(m Map, core CoreSet) []string {
	order := make([]string, 0, len(m))
	for _, name := range core.Names() {
		if key, ok := lookup(m, name); ok {
			order = append(order, key)
		}
	}
	rest := make([]string, 0, len(m))
	for name := range m {
		if !core.Contains(name) {
			rest = append(rest, name)
		}
	}
	sortAlpha(rest)
	return append(order, rest...)
}

// NormalizeOrder reconciles an explicit order with the stat map: unknown keys
// are dropped, core stats are moved to the front, and stats missing from the
// order are appended alphabetically.
func NormalizeOrder(order []string, m Map, core CoreSet) []string {
	if len(order) == 0 {
		return DeriveOrder(m, core)
	}
	seen := make(map[string]struct{}, len(order))
	var head, body []string
	for _, name := range core.Names() {
		if key, ok := lookup(m, name); ok {
			head = append(head, key)
			seen[key] = struct{}{}
		}
	}
	for _, name := range order {
		if _, ok := m[name]; !ok {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		body = append(body, name)
	}
	var missing []string
	for name := range m {
		if _, ok := seen[name]; !ok {
			missing = append(missing, name)
		}
	}
	sortAlpha(missing)
	out := append(head, body...)
	return append(out, missing...)
}

// Rename moves a stat to a new key, keeping value, history and every other
// field. The new key takes the old key's place in order.
func Rename(m Map, order []string, oldName, newName string, core CoreSet) (Map, []string, error) {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return nil, nil, fmt.Errorf("new stat name cannot be empty")
	}
	s, ok := m[oldName]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrStatNotFound, oldName)
	}
	if core.Contains(oldName) {
		return nil, nil, fmt.Errorf("%w: %s", ErrCoreStat, oldName)
	}
	if newName == oldName {
		return m.Clone(), slices.Clone(order), nil
	}
	if _, exists := m[newName]; exists {
		return nil, nil, fmt.Errorf("%w: %s", ErrStatExists, newName)
	}

	out := m.Clone()
	delete(out, oldName)
	out[newName] = s.Clone()

	newOrder := make([]string, 0, len(order))
	replaced := false
	for _, name := range order {
		if name == oldName {
			newOrder = append(newOrder, newName)
			replaced = true
			continue
		}
		newOrder = append(newOrder, name)
	}
	if !replaced {
		newOrder = append(newOrder, newName)
	}
	return out, newOrder, nil
}

// Remove deletes a non-core stat and drops it from order.
func Remove(m Map, order []string, name string, core CoreSet) (Map, []string, error) {
	if _, ok := m[name]; !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrStatNotFound, name)
	}
	if core.Contains(name) {
		return nil, nil, fmt.Errorf("%w: %s", ErrCoreStat, name)
	}
	out := m.Clone()
	delete(out, name)
	return out, slices.DeleteFunc(slices.Clone(order), func(s string) bool { return s == name }), nil
}

// Reorder moves a non-core stat to position index among the non-core stats.
// Core stats stay pinned at the front.
func Reorder(order []string, name string, index int, core CoreSet) ([]string, error) {
	if core.Contains(name) {
		return nil, fmt.Errorf("%w: %s", ErrCoreStat, name)
	}
	var head, body []string
	found := false
	for _, n := range order {
		switch {
		case core.Contains(n):
			head = append(head, n)
		case n == name:
			found = true
		default:
			body = append(body, n)
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrStatNotFound, name)
	}
	index = max(0, min(index, len(body)))
	body = slices.Insert(body, index, name)
	return append(head, body...), nil
}

// Pin moves a non-core stat to the first position after the core stats.
func Pin(order []string, name string, core CoreSet) ([]string, error) {
	return Reorder(order, name, 0, core)
}

func lookup(m Map, name string) (string, bool) {
	if _, ok := m[name]; ok {
		return name, true
	}
	for k := range m {
		if coreKey(k) == coreKey(name) {
			return k, true
		}
	}
	return "", false
}
