package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jwebster45206/chronicle-engine/pkg/chronicle"
	"github.com/jwebster45206/chronicle-engine/pkg/state"
)

// MaxUndo is how many previous snapshots are kept per session.
const MaxUndo = 10

// ErrNothingToUndo is returned by PopUndo when no snapshot is stored.
var ErrNothingToUndo = errors.New("nothing to undo")

// Summary describes a stored session for listings.
type Summary struct {
	ID         uuid.UUID `json:"id"`
	Title      string    `json:"title"`
	TotalTurns int       `json:"totalTurns"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Storage defines a unified interface for session persistence.
type Storage interface {
	// Health and lifecycle
	Ping(ctx context.Context) error
	Close() error

	// GameState operations. LoadGameState returns nil, nil when missing.
	SaveGameState(ctx context.Context, id uuid.UUID, gs *state.GameState) error
	LoadGameState(ctx context.Context, id uuid.UUID) (*state.GameState, error)
	DeleteGameState(ctx context.Context, id uuid.UUID) error
	ListGameStates(ctx context.Context) ([]Summary, error)

	// Undo stack, newest first, capped at MaxUndo.
	PushUndo(ctx context.Context, id uuid.UUID, gs *state.GameState) error
	PopUndo(ctx context.Context, id uuid.UUID) (*state.GameState, error)
}

// ArchivedEntry is a chronicle entry mirrored to long-term storage.
type ArchivedEntry struct {
	ID          string          `json:"id"`
	GameStateID uuid.UUID       `json:"gamestateId"`
	Entry       chronicle.Entry `json:"entry"`
	ArchivedAt  time.Time       `json:"archivedAt"`
}

// ChronicleArchive mirrors chronicle entries for search across sessions.
type ChronicleArchive interface {
	ArchiveChronicle(ctx context.Context, id uuid.UUID, entries []chronicle.Entry) error
	SearchChronicle(ctx context.Context, query string, limit int) ([]ArchivedEntry, error)
}

// Title derives a short listing title from a session's world context.
func Title(gs *state.GameState) string {
	const max = 60
	r := []rune(gs.WorldContext)
	if len(r) <= max {
		return string(r)
	}
	return string(r[:max]) + "…"
}
