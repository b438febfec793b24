package entity

import "log/slog"

// Disambiguate ensures a proper noun resolves to exactly one of NPC or
// location within one reconciliation pass. A CREATE whose name or id already
// belongs to an entity of the other kind is dropped. When both kinds try to
// create the same noun in one batch the NPC wins.
func Disambiguate(npcUpdates []NPCUpdate, locUpdates []LocationUpdate, npcs []NPC, locations []Location, logger *slog.Logger) ([]NPCUpdate, []LocationUpdate) {
	if logger == nil {
		logger = slog.Default()
	}

	npcKeys := make(IDSet)
	for _, n := range npcs {
		addKeys(npcKeys, n.ID, n.Name)
	}
	locKeys := make(IDSet)
	for _, l := range locations {
		addKeys(locKeys, l.ID, l.Name)
	}

	keptNPCs := make([]NPCUpdate, 0, len(npcUpdates))
	for _, u := range npcUpdates {
		if isCreate(u.Action) {
			keys := nounKeys(u.ID, strValue(u.Name))
			if overlaps(keys, locKeys) && !overlaps(keys, npcKeys) {
				logger.Warn("Dropping NPC CREATE that names an existing location", "id", u.ID, "name", strValue(u.Name))
				continue
			}
			for _, k := range keys {
				npcKeys.Add(k)
			}
		}
		keptNPCs = append(keptNPCs, u)
	}

	keptLocs := make([]LocationUpdate, 0, len(locUpdates))
	for _, u := range locUpdates {
		if isCreate(u.Action) {
			keys := nounKeys(u.ID, strValue(u.Name))
			if overlaps(keys, npcKeys) && !overlaps(keys, locKeys) {
				logger.Warn("Dropping location CREATE that names an NPC", "id", u.ID, "name", strValue(u.Name))
				continue
			}
		}
		keptLocs = append(keptLocs, u)
	}
	return keptNPCs, keptLocs
}

func isCreate(action string) bool {
	a, ok := ParseAction(action)
	return ok && a == ActionCreate
}

func addKeys(set IDSet, id, name string) {
	for _, k := range nounKeys(id, name) {
		set.Add(k)
	}
}

func nounKeys(id, name string) []string {
	var keys []string
	if c := Slug(id); c != "" {
		keys = append(keys, c)
	}
	if s := Slug(name); s != "" {
		keys = append(keys, s)
	}
	return keys
}

func overlaps(keys []string, set IDSet) bool {
	for _, k := range keys {
		if set.Has(k) {
			return true
		}
	}
	return false
}
