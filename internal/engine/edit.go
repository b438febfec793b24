package engine

import (
	"fmt"
	"strings"

	"github.com/jwebster45206/chronicle-engine/pkg/entity"
	"github.com/jwebster45206/chronicle-engine/pkg/state"
	"github.com/jwebster45206/chronicle-engine/pkg/stats"
)

// RequestEdit stages a manual edit. Nothing changes until ConfirmEdit.
func (e *Engine) RequestEdit(ed state.Edit) (*state.GameState, error) {
	if err := ed.Validate(); err != nil {
		return nil, err
	}
	return e.stageEdit(func(gs *state.GameState) error {
		// Dry run so a doomed edit is refused before it is staged.
		if err := applyEdit(gs.Clone(), ed, e.cfg.Core); err != nil {
			return err
		}
		staged := ed
		gs.PendingEdit = &staged
		return nil
	})
}

// ConfirmEdit applies the staged edit.
func (e *Engine) ConfirmEdit() (*state.GameState, error) {
	return e.edit(func(gs *state.GameState) error {
		if gs.PendingEdit == nil {
			return ErrNoPendingEdit
		}
		ed := *gs.PendingEdit
		gs.PendingEdit = nil
		if err := applyEdit(gs, ed, e.cfg.Core); err != nil {
			return err
		}
		e.logger.Info("Edit applied", "game_state_id", gs.ID.String(), "kind", ed.Kind, "target", ed.Target)
		return nil
	})
}

// CancelEdit drops the staged edit.
func (e *Engine) CancelEdit() (*state.GameState, error) {
	return e.stageEdit(func(gs *state.GameState) error {
		if gs.PendingEdit == nil {
			return ErrNoPendingEdit
		}
		gs.PendingEdit = nil
		return nil
	})
}

// ApplyEdit runs an edit immediately against gs, without staging. It is the
// building block for ConfirmEdit and for offline tools.
func ApplyEdit(gs *state.GameState, ed state.Edit, core stats.CoreSet) error {
	if err := ed.Validate(); err != nil {
		return err
	}
	return applyEdit(gs, ed, core)
}

func applyEdit(gs *state.GameState, ed state.Edit, core stats.CoreSet) error {
	target := strings.TrimSpace(ed.Target)
	var err error
	switch ed.Kind {
	case state.EditRenameStat:
		gs.PlayerStats, gs.PlayerStatOrder, err = stats.Rename(gs.PlayerStats, gs.PlayerStatOrder, target, ed.NewName, core)
	case state.EditRetargetStat:
		err = retargetStat(gs, target, ed, core)
	case state.EditDeleteStat:
		gs.PlayerStats, gs.PlayerStatOrder, err = stats.Remove(gs.PlayerStats, gs.PlayerStatOrder, target, core)
	case state.EditReorderStat:
		gs.PlayerStatOrder, err = stats.Reorder(gs.PlayerStatOrder, target, ed.Index, core)
	case state.EditPinStat:
		gs.PlayerStatOrder, err = stats.Pin(gs.PlayerStatOrder, target, core)

	case state.EditReorderNPC:
		gs.NPCs, err = entity.Reorder(entity.NPCKind{}, gs.NPCs, target, ed.Index)
	case state.EditPinNPC:
		gs.NPCs, err = entity.Pin(entity.NPCKind{}, gs.NPCs, target)
	case state.EditDeleteNPC:
		gs.NPCs, err = entity.Remove(entity.NPCKind{}, gs.NPCs, target)
		if err == nil {
			gs.PresentNPCIDs = removeID(gs.PresentNPCIDs, target)
		}
	case state.EditToggleProtectNPC:
		gs.NPCs, err = entity.ToggleProtect(entity.NPCKind{}, gs.NPCs, target)

	case state.EditReorderLocation:
		gs.Locations, err = entity.Reorder(entity.LocationKind{}, gs.Locations, target, ed.Index)
	case state.EditPinLocation:
		gs.Locations, err = entity.Pin(entity.LocationKind{}, gs.Locations, target)
	case state.EditDeleteLocation:
		gs.Locations, err = entity.Remove(entity.LocationKind{}, gs.Locations, target)
	case state.EditToggleProtectLocation:
		gs.Locations, err = entity.ToggleProtect(entity.LocationKind{}, gs.Locations, target)
	case state.EditLocation:
		err = editLocation(gs, target, ed)

	case state.EditForgetSkill:
		i, ok := gs.SkillByName(target)
		if !ok {
			return fmt.Errorf("%w: skill %s", entity.ErrNotFound, target)
		}
		gs.Skills = append(gs.Skills[:i:i], gs.Skills[i+1:]...)
	case state.EditAbility:
		err = editAbility(gs, target, ed)

	default:
		return fmt.Errorf("%w: unknown kind %q", state.ErrInvalidEdit, ed.Kind)
	}
	return err
}

// retargetStat renames a stat and/or sets a new value. A changed value pushes
// the old one onto the stat's history.
func retargetStat(gs *state.GameState, name string, ed state.Edit, core stats.CoreSet) error {
	if _, ok := gs.PlayerStats[name]; !ok {
		return fmt.Errorf("%w: %s", stats.ErrStatNotFound, name)
	}
	if nn := strings.TrimSpace(ed.NewName); nn != "" && nn != name {
		m, order, err := stats.Rename(gs.PlayerStats, gs.PlayerStatOrder, name, nn, core)
		if err != nil {
			return err
		}
		gs.PlayerStats, gs.PlayerStatOrder = m, order
		name = nn
	}
	if nv := strings.TrimSpace(ed.NewValue); nv != "" {
		st := gs.PlayerStats[name].Clone()
		if old := st.Value.String(); old != "" && old != nv {
			st.History = append(st.History, old)
		}
		st.Value = stats.Text(nv)
		gs.PlayerStats[name] = st
	}
	return nil
}

func editLocation(gs *state.GameState, id string, ed state.Edit) error {
	id = entity.CanonicalID(id)
	for i, l := range gs.Locations {
		if entity.CanonicalID(l.ID) != id {
			continue
		}
		if d := strings.TrimSpace(ed.Description); d != "" {
			l.Description = d
		}
		if s := strings.TrimSpace(ed.Status); s != "" {
			l.Status = s
		}
		if n := strings.TrimSpace(ed.NewName); n != "" {
			l.Name = n
		}
		gs.Locations[i] = l
		return nil
	}
	return fmt.Errorf("%w: location %s", entity.ErrNotFound, id)
}

func editAbility(gs *state.GameState, skill string, ed state.Edit) error {
	i, ok := gs.SkillByName(skill)
	if !ok {
		return fmt.Errorf("%w: skill %s", entity.ErrNotFound, skill)
	}
	sk := gs.Skills[i].Clone()
	for j, a := range sk.Abilities {
		if !strings.EqualFold(a.Name, strings.TrimSpace(ed.Ability)) {
			continue
		}
		if n := strings.TrimSpace(ed.NewName); n != "" {
			a.Name = n
		}
		if d := strings.TrimSpace(ed.Description); d != "" {
			a.Description = d
		}
		sk.Abilities[j] = a
		gs.Skills[i] = sk
		return nil
	}
	return fmt.Errorf("%w: ability %s", entity.ErrNotFound, ed.Ability)
}

func removeID(ids []string, id string) []string {
	id = entity.CanonicalID(id)
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		if entity.CanonicalID(v) != id {
			out = append(out, v)
		}
	}
	return out
}
