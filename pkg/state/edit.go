package state

import (
	"errors"
	"fmt"
	"strings"
)

// EditKind names a manual, non-model state transition.
type EditKind string

const (
	EditRenameStat            EditKind = "rename-stat"
	EditRetargetStat          EditKind = "retarget-stat"
	EditDeleteStat            EditKind = "delete-stat"
	EditReorderStat           EditKind = "reorder-stat"
	EditPinStat               EditKind = "pin-stat"
	EditReorderNPC            EditKind = "reorder-npc"
	EditPinNPC                EditKind = "pin-npc"
	EditReorderLocation       EditKind = "reorder-location"
	EditPinLocation           EditKind = "pin-location"
	EditLocation              EditKind = "edit-location"
	EditForgetSkill           EditKind = "forget-skill"
	EditAbility               EditKind = "edit-ability"
	EditDeleteNPC             EditKind = "delete-npc"
	EditDeleteLocation        EditKind = "delete-location"
	EditToggleProtectNPC      EditKind = "toggle-protect-npc"
	EditToggleProtectLocation EditKind = "toggle-protect-location"
)

var ErrInvalidEdit = errors.New("invalid edit")

// Edit is a staged manual change. Target is a stat name, entity id or
// skill name depending on Kind.
type Edit struct {
	Kind        EditKind `json:"kind"`
	Target      string   `json:"target"`
	NewName     string   `json:"newName,omitempty"`
	NewValue    string   `json:"newValue,omitempty"`
	Index       int      `json:"index,omitempty"`
	Ability     string   `json:"ability,omitempty"`
	Description string   `json:"description,omitempty"`
	Status      string   `json:"status,omitempty"`
}

// Validate checks that the edit carries the fields its kind needs.
func (e Edit) Validate() error {
	if strings.TrimSpace(e.Target) == "" {
		return fmt.Errorf("%w: %s requires a target", ErrInvalidEdit, e.Kind)
	}
	switch e.Kind {
	case EditRenameStat:
		if strings.TrimSpace(e.NewName) == "" {
			return fmt.Errorf("%w: rename-stat requires newName", ErrInvalidEdit)
		}
	case EditRetargetStat:
		if strings.TrimSpace(e.NewName) == "" && strings.TrimSpace(e.NewValue) == "" {
			return fmt.Errorf("%w: retarget-stat requires newName or newValue", ErrInvalidEdit)
		}
	case EditAbility:
		if strings.TrimSpace(e.Ability) == "" {
			return fmt.Errorf("%w: edit-ability requires ability", ErrInvalidEdit)
		}
	case EditReorderStat, EditReorderNPC, EditReorderLocation:
		if e.Index < 0 {
			return fmt.Errorf("%w: negative index", ErrInvalidEdit)
		}
	case EditDeleteStat, EditPinStat, EditPinNPC, EditPinLocation, EditLocation,
		EditForgetSkill, EditDeleteNPC, EditDeleteLocation,
		EditToggleProtectNPC, EditToggleProtectLocation:
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidEdit, e.Kind)
	}
	return nil
}
