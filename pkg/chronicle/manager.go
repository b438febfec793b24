package chronicle

import (
	"log/slog"

	"github.com/oklog/ulid/v2"
)

// RecentWindow is how many of the latest active entries a new entry is
// compared against for duplicates.
const RecentWindow = 3

// Manager appends validated entries to the chronicle and suppresses
// near-identical consecutive summaries.
type Manager struct {
	scorer Scorer
	newID  func() string
	logger *slog.Logger
}

// NewManager creates a manager. A nil scorer selects DefaultSimilarity.
func NewManager(scorer Scorer, logger *slog.Logger) *Manager {
	if scorer == nil {
		scorer = DefaultSimilarity
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		scorer: scorer,
		newID:  func() string { return ulid.Make().String() },
		logger: logger,
	}
}

// WithIDFunc overrides entry id generation.
func (m *Manager) WithIDFunc(fn func() string) *Manager {
	m.newID = fn
	return m
}

// IsDuplicate compares candidate against the last RecentWindow active
// entries of existing.
func (m *Manager) IsDuplicate(candidate Entry, existing []Entry) bool {
	checked := 0
	for i := len(existing) - 1; i >= 0 && checked < RecentWindow; i-- {
		prior := existing[i]
		if prior.IsArchived() {
			continue
		}
		checked++
		if m.scorer.Duplicate(candidate, prior) {
			return true
		}
	}
	return false
}

// Append validates draft and appends it unless it duplicates a recent entry.
// It returns the new log, the validated entry and whether it was appended.
func (m *Manager) Append(entries []Entry, draft Draft, turn int) ([]Entry, Entry, bool) {
	e := ValidateEntry(draft)
	e.Turn = turn
	if m.IsDuplicate(e, entries) {
		m.logger.Info("Skipping duplicate chronicle entry", "event_type", e.EventType, "turn", turn)
		return cloneEntries(entries), e, false
	}
	e.ID = m.newID()
	out := cloneEntries(entries)
	out = append(out, e)
	return out, e, true
}

func cloneEntries(entries []Entry) []Entry {
	out := make([]Entry, len(entries), len(entries)+1)
	for i, e := range entries {
		out[i] = e.Clone()
	}
	return out
}
