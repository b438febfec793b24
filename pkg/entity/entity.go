// Package entity applies model-issued CREATE/UPDATE/DELETE instructions to the
// NPC and location lists while keeping ids stable and protected entities in place.
package entity

import (
	"errors"
	"strings"
)

// Action is the instruction carried by an entity update.
type Action string

const (
	ActionCreate Action = "CREATE"
	ActionUpdate Action = "UPDATE"
	ActionDelete Action = "DELETE"
)

// ParseAction normalizes a model-supplied action string.
func ParseAction(s string) (Action, bool) {
	switch Action(strings.ToUpper(strings.TrimSpace(s))) {
	case ActionCreate, "ADD", "NEW":
		return ActionCreate, true
	case ActionUpdate, "MODIFY", "EDIT":
		return ActionUpdate, true
	case ActionDelete, "REMOVE":
		return ActionDelete, true
	default:
		return "", false
	}
}

var (
	ErrNotFound  = errors.New("entity not found")
	ErrProtected = errors.New("entity is protected")
)

// IDSet is a set of entity ids.
type IDSet map[string]struct{}

// NewIDSet builds a set from the given ids.
func NewIDSet(ids ...string) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s IDSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

func (s IDSet) Add(id string) {
	s[id] = struct{}{}
}

// Kind describes how one entity type is identified, created, merged and
// ordered. Apply and the ordering helpers are written against it so NPCs and
// locations share one algorithm with per-kind field lists.
type Kind[E, U any] interface {
	Label() string

	EntityID(e E) string
	EntityName(e E) string
	IsProtected(e E) bool
	SortOrder(e E) int
	WithSortOrder(e E, order int) E
	WithProtected(e E, protected bool) E

	UpdateAction(u U) string
	UpdateID(u U) string
	UpdateName(u U) string
	WithUpdateID(u U, id string) U

	// Create builds a new entity from a CREATE payload.
	Create(u U, sortOrder int) E
	// Merge applies an UPDATE payload using the kind's explicit field list.
	Merge(e E, u U) E
	// StripNarrative clears fields owned by the narrative flavor pass.
	StripNarrative(u U) U
}

// CanonicalID lowercases and trims a model-supplied id so that "Linh_Gac " and
// "linh_gac" address the same entity.
func CanonicalID(id string) string {
	id = strings.ToLower(strings.TrimSpace(id))
	return strings.Join(strings.FieldsFunc(id, func(r rune) bool {
		return r == ' ' || r == '-' || r == '\t'
	}), "_")
}

func strValue(p *string) string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(*p)
}

func setIfPresent(dst *string, p *string) {
	if v := strValue(p); v != "" {
		*dst = v
	}
}
