package entity

import (
	"log/slog"
	"slices"
	"strings"
)

// Apply runs a batch of updates against entities and returns the new list.
// The input slice is not modified.
//
//   - CREATE appends with sortOrder = len(list). A CREATE whose id already
//     exists, including one created earlier in the same batch, is merged as an
//     UPDATE. A CREATE without id gets one minted from its name.
//   - UPDATE merges into the entity with that id. An UPDATE for an unknown id
//     that carries a name is treated as a CREATE; without a name it is dropped.
//   - DELETE removes the entity unless it is protected.
//
// Status and summary fields are stripped from every update before it is
// applied. Untouched entities keep their relative order.
func Apply[E, U any](k Kind[E, U], entities []E, updates []U, logger *slog.Logger) []E {
	if logger == nil {
		logger = slog.Default()
	}
	out := slices.Clone(entities)
	if out == nil {
		out = make([]E, 0, len(updates))
	}

	index := buildIndex(k, out)
	deleted := false

	for i, u := range updates {
		u = k.StripNarrative(u)

		action, ok := ParseAction(k.UpdateAction(u))
		if !ok {
			logger.Warn("Dropping entity update with unknown action",
				"kind", k.Label(), "index", i, "action", k.UpdateAction(u))
			continue
		}

		id := CanonicalID(k.UpdateID(u))
		if id == "" {
			id = resolveByName(k, out, k.UpdateName(u))
		}

		switch action {
		case ActionCreate:
			if id == "" {
				name := k.UpdateName(u)
				if name == "" {
					logger.Warn("Dropping CREATE without id or name", "kind", k.Label(), "index", i)
					continue
				}
				id = MintID(idSet(index), name)
			}
			if pos, exists := index[id]; exists {
				logger.Info("CREATE collides with existing id, merging as UPDATE", "kind", k.Label(), "id", id)
				out[pos] = k.Merge(out[pos], k.WithUpdateID(u, id))
				continue
			}
			out = append(out, k.Create(k.WithUpdateID(u, id), len(out)))
			index[id] = len(out) - 1

		case ActionUpdate:
			if id == "" {
				logger.Warn("Dropping UPDATE without id", "kind", k.Label(), "index", i)
				continue
			}
			if pos, exists := index[id]; exists {
				out[pos] = k.Merge(out[pos], k.WithUpdateID(u, id))
				continue
			}
			if k.UpdateName(u) == "" {
				logger.Warn("Dropping UPDATE for unknown id", "kind", k.Label(), "id", id)
				continue
			}
			logger.Info("UPDATE for unknown id, creating entity", "kind", k.Label(), "id", id)
			out = append(out, k.Create(k.WithUpdateID(u, id), len(out)))
			index[id] = len(out) - 1

		case ActionDelete:
			pos, exists := index[id]
			if !exists {
				logger.Warn("Ignoring DELETE for unknown id", "kind", k.Label(), "id", id)
				continue
			}
			if k.IsProtected(out[pos]) {
				logger.Info("Refusing to delete protected entity", "kind", k.Label(), "id", id)
				continue
			}
			out = slices.Delete(out, pos, pos+1)
			index = buildIndex(k, out)
			deleted = true
		}
	}

	if deleted {
		out = DensePack(k, out)
	}
	return out
}

func buildIndex[E, U any](k Kind[E, U], entities []E) map[string]int {
	index := make(map[string]int, len(entities))
	for i, e := range entities {
		index[CanonicalID(k.EntityID(e))] = i
	}
	return index
}

func idSet(index map[string]int) IDSet {
	s := make(IDSet, len(index))
	for id := range index {
		s.Add(id)
	}
	return s
}

func resolveByName[E, U any](k Kind[E, U], entities []E, name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	for _, e := range entities {
		if strings.EqualFold(k.EntityName(e), name) {
			return CanonicalID(k.EntityID(e))
		}
	}
	return ""
}

// IDs returns the ids of the given entities.
func IDs[E, U any](k Kind[E, U], entities []E) IDSet {
	s := make(IDSet, len(entities))
	for _, e := range entities {
		s.Add(k.EntityID(e))
	}
	return s
}
