package entity

import (
	"fmt"
	"slices"
	"strings"
)

// SortByOrder returns entities ordered by sortOrder, stable for ties.
func SortByOrder[E, U any](k Kind[E, U], entities []E) []E {
	out := slices.Clone(entities)
	slices.SortStableFunc(out, func(a, b E) int {
		return k.SortOrder(a) - k.SortOrder(b)
	})
	return out
}

// DensePack sorts by sortOrder and renumbers 0..n-1.
func DensePack[E, U any](k Kind[E, U], entities []E) []E {
	out := SortByOrder(k, entities)
	for i := range out {
		out[i] = k.WithSortOrder(out[i], i)
	}
	return out
}

// DeriveOrder assigns a deterministic order: protected entities first, then
// alphabetical by name. Used when a saved game predates explicit ordering.
func DeriveOrder[E, U any](k Kind[E, U], entities []E) []E {
	out := slices.Clone(entities)
	slices.SortStableFunc(out, func(a, b E) int {
		pa, pb := k.IsProtected(a), k.IsProtected(b)
		if pa != pb {
			if pa {
				return -1
			}
			return 1
		}
		return strings.Compare(strings.ToLower(k.EntityName(a)), strings.ToLower(k.EntityName(b)))
	})
	for i := range out {
		out[i] = k.WithSortOrder(out[i], i)
	}
	return out
}

// Reorder moves the entity with id to position index and re-packs sortOrder.
func Reorder[E, U any](k Kind[E, U], entities []E, id string, index int) ([]E, error) {
	sorted := SortByOrder(k, entities)
	pos := find(k, sorted, id)
	if pos < 0 {
		return nil, fmt.Errorf("%w: %s %s", ErrNotFound, k.Label(), id)
	}
	e := sorted[pos]
	sorted = slices.Delete(sorted, pos, pos+1)
	index = max(0, min(index, len(sorted)))
	sorted = slices.Insert(sorted, index, e)
	return DensePack(k, sorted), nil
}

// Pin moves the entity with id to the top of the list.
func Pin[E, U any](k Kind[E, U], entities []E, id string) ([]E, error) {
	return Reorder(k, entities, id, 0)
}

// Remove deletes an entity by manual request. Protected entities are refused.
func Remove[E, U any](k Kind[E, U], entities []E, id string) ([]E, error) {
	pos := find(k, entities, id)
	if pos < 0 {
		return nil, fmt.Errorf("%w: %s %s", ErrNotFound, k.Label(), id)
	}
	if k.IsProtected(entities[pos]) {
		return nil, fmt.Errorf("%w: %s %s", ErrProtected, k.Label(), id)
	}
	out := slices.Delete(slices.Clone(entities), pos, pos+1)
	return DensePack(k, out), nil
}

// ToggleProtect flips the protection flag of the entity with id.
func ToggleProtect[E, U any](k Kind[E, U], entities []E, id string) ([]E, error) {
	pos := find(k, entities, id)
	if pos < 0 {
		return nil, fmt.Errorf("%w: %s %s", ErrNotFound, k.Label(), id)
	}
	out := slices.Clone(entities)
	out[pos] = k.WithProtected(out[pos], !k.IsProtected(out[pos]))
	return out, nil
}

// Find returns the entity with id.
func Find[E, U any](k Kind[E, U], entities []E, id string) (E, bool) {
	pos := find(k, entities, id)
	if pos < 0 {
		var zero E
		return zero, false
	}
	return entities[pos], true
}

func find[E, U any](k Kind[E, U], entities []E, id string) int {
	id = CanonicalID(id)
	for i, e := range entities {
		if CanonicalID(k.EntityID(e)) == id {
			return i
		}
	}
	return -1
}
