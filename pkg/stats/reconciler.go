package stats

import (
	"log/slog"
	"strings"
)

// Reconciler merges model-issued stat updates into existing stat sets and
// advances duration-based decay and evolution.
type Reconciler struct {
	core   CoreSet
	logger *slog.Logger
}

// NewReconciler creates a reconciler for the given core stat set.
func NewReconciler(core CoreSet, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{core: core, logger: logger}
}

// Core returns the configured core stat set.
func (r *Reconciler) Core() CoreSet {
	return r.core
}

// Merge folds updates into base and returns a new map. For existing keys the
// update is applied field by field; fields absent from the update are kept
// from base:
//
//	value     kept unless the update carries a value
//	duration  kept unless the update carries a duration
//	history   kept unless the update carries a history list
//	isItem    kept unless the update carries the flag
//	evolution kept unless the update carries an evolution
//
// Keys not mentioned in updates are never dropped.
func (r *Reconciler) Merge(base, updates Map) Map {
	out := base.Clone()
	if out == nil {
		out = make(Map, len(updates))
	}
	for name, upd := range updates {
		name = r.resolve(out, name)
		out[name] = r.mergeOne(name, out, upd)
	}
	return out
}

// MergeUpdates applies a list of updates in order. Entries with no stat name
// or no value are dropped with a warning.
func (r *Reconciler) MergeUpdates(base Map, updates []Update) Map {
	out := base.Clone()
	if out == nil {
		out = make(Map, len(updates))
	}
	for i, u := range updates {
		name := strings.TrimSpace(u.StatName)
		if name == "" {
			r.logger.Warn("Dropping stat update without a name", "index", i)
			continue
		}
		if u.Value.IsBlank() {
			r.logger.Warn("Dropping stat update without a value", "index", i, "stat", name)
			continue
		}
		name = r.resolve(out, name)
		out[name] = r.mergeOne(name, out, u.Stat())
	}
	return out
}

// resolve maps an update's stat name onto the key it refers to. Names match
// existing keys ignoring case; a new core stat takes its configured display
// name.
func (r *Reconciler) resolve(current Map, name string) string {
	if key, ok := lookup(current, name); ok {
		if key != name {
			r.logger.Debug("Stat name matched ignoring case", "stat", name, "key", key)
		}
		return key
	}
	if canonical, ok := r.core.Canonical(name); ok {
		return canonical
	}
	return name
}

func (r *Reconciler) mergeOne(name string, current Map, upd Stat) Stat {
	existing, ok := current[name]
	var merged Stat
	if !ok {
		merged = upd.Clone()
	} else {
		merged = existing.Clone()
		if upd.Value.IsSet() {
			merged.Value = upd.Value
		}
		if upd.Duration != nil {
			d := *upd.Duration
			merged.Duration = &d
		}
		if upd.History != nil {
			merged.History = append([]string(nil), upd.History...)
		}
		if upd.IsItem != nil {
			b := *upd.IsItem
			merged.IsItem = &b
		}
		if upd.Evolution != nil {
			merged.Evolution = upd.Clone().Evolution
		}
	}
	if r.core.Contains(name) && merged.Duration != nil {
		r.logger.Debug("Ignoring duration on core stat", "stat", name)
		merged.Duration = nil
	}
	return merged
}

// AdvanceTurn runs one turn of evolution followed by decay. Stats evolved in
// this pass are not decayed until the next one, so their duration is exactly
// the one given by the evolution payload.
func (r *Reconciler) AdvanceTurn(stats Map) Map {
	out := stats.Clone()
	if out == nil {
		return Map{}
	}

	evolved := make(map[string]struct{})
	for _, name := range stats.Names() {
		s := stats[name]
		if s.Evolution == nil || s.Duration == nil || r.core.Contains(name) {
			continue
		}
		if *s.Duration > s.Evolution.After {
			continue
		}
		next := strings.TrimSpace(s.Evolution.Becomes)
		if next == "" {
			r.logger.Warn("Stat evolution has no target name", "stat", name)
			continue
		}
		delete(out, name)
		ns := Stat{Value: s.Evolution.WithValue}
		if s.Evolution.WithDuration != nil {
			d := *s.Evolution.WithDuration
			ns.Duration = &d
		}
		if s.IsItem != nil {
			b := *s.IsItem
			ns.IsItem = &b
		}
		out[next] = ns
		evolved[next] = struct{}{}
		r.logger.Debug("Stat evolved", "from", name, "to", next)
	}

	for name, s := range out {
		if _, ok := evolved[name]; ok {
			continue
		}
		if s.Duration == nil {
			continue
		}
		if r.core.Contains(name) {
			s.Duration = nil
			out[name] = s
			continue
		}
		if *s.Duration <= 1 {
			delete(out, name)
			continue
		}
		d := *s.Duration - 1
		s.Duration = &d
		out[name] = s
	}
	return out
}
