package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/jwebster45206/chronicle-engine/pkg/chronicle"
	"github.com/jwebster45206/chronicle-engine/pkg/state"
	"github.com/jwebster45206/chronicle-engine/pkg/stats"
	"github.com/jwebster45206/chronicle-engine/pkg/storage"
)

// timeFormat keeps a fixed width so stored timestamps sort as text.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore keeps save slots, undo snapshots and the chronicle archive in
// a single SQLite file.
type SQLiteStore struct {
	db     *sql.DB
	core   stats.CoreSet
	logger *slog.Logger

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

var (
	_ storage.Storage          = (*SQLiteStore)(nil)
	_ storage.ChronicleArchive = (*SQLiteStore)(nil)
)

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(dbPath string, core stats.CoreSet, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &SQLiteStore{
		db:      db,
		core:    core,
		logger:  logger,
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}

	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) newID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS saves (
		id          TEXT PRIMARY KEY,
		title       TEXT NOT NULL,
		total_turns INTEGER NOT NULL DEFAULT 0,
		document    TEXT NOT NULL,
		created_at  TEXT NOT NULL,
		updated_at  TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_saves_updated ON saves(updated_at DESC);

	CREATE TABLE IF NOT EXISTS undo_snapshots (
		id           TEXT PRIMARY KEY,
		gamestate_id TEXT NOT NULL,
		document     TEXT NOT NULL,
		created_at   TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_undo_gamestate ON undo_snapshots(gamestate_id, id DESC);

	CREATE TABLE IF NOT EXISTS chronicle_archive (
		id           TEXT PRIMARY KEY,
		gamestate_id TEXT NOT NULL,
		entry_key    TEXT NOT NULL,
		summary      TEXT NOT NULL,
		event_type   TEXT NOT NULL,
		key_detail   TEXT,
		document     TEXT NOT NULL,
		archived_at  TEXT NOT NULL,
		deleted_at   TEXT,
		UNIQUE (gamestate_id, entry_key)
	);
	CREATE INDEX IF NOT EXISTS idx_archive_gamestate ON chronicle_archive(gamestate_id);
	CREATE INDEX IF NOT EXISTS idx_archive_deleted ON chronicle_archive(deleted_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveGameState writes a save slot keyed by session id.
func (s *SQLiteStore) SaveGameState(ctx context.Context, id uuid.UUID, gs *state.GameState) error {
	now := time.Now().UTC()
	gs.UpdatedAt = now
	data, err := json.Marshal(gs)
	if err != nil {
		return fmt.Errorf("failed to marshal gamestate: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO saves (id, title, total_turns, document, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			total_turns = excluded.total_turns,
			document = excluded.document,
			updated_at = excluded.updated_at`,
		id.String(), storage.Title(gs), gs.TotalTurns, string(data),
		now.Format(timeFormat), now.Format(timeFormat))
	if err != nil {
		s.logger.Error("Failed to save gamestate", "uuid", id, "error", err)
		return fmt.Errorf("failed to save gamestate: %w", err)
	}
	return nil
}

// LoadGameState hydrates a save slot. Returns nil, nil when missing.
func (s *SQLiteStore) LoadGameState(ctx context.Context, id uuid.UUID) (*state.GameState, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT document FROM saves WHERE id = ?`, id.String()).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load gamestate: %w", err)
	}
	gs, err := state.Hydrate([]byte(doc), s.core)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal gamestate: %w", err)
	}
	return gs, nil
}

// DeleteGameState removes the save slot and its undo snapshots. Archived
// chronicle entries are tombstoned, not removed.
func (s *SQLiteStore) DeleteGameState(ctx context.Context, id uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(timeFormat)
	stmts := []struct {
		query string
		args  []any
	}{
		{`DELETE FROM saves WHERE id = ?`, []any{id.String()}},
		{`DELETE FROM undo_snapshots WHERE gamestate_id = ?`, []any{id.String()}},
		{`UPDATE chronicle_archive SET deleted_at = ? WHERE gamestate_id = ? AND deleted_at IS NULL`, []any{now, id.String()}},
	}
	for _, st := range stmts {
		if _, err := tx.ExecContext(ctx, st.query, st.args...); err != nil {
			return fmt.Errorf("failed to delete gamestate: %w", err)
		}
	}
	return tx.Commit()
}

// ListGameStates lists save slots, newest first.
func (s *SQLiteStore) ListGameStates(ctx context.Context) ([]storage.Summary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, title, total_turns, updated_at FROM saves ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list gamestates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []storage.Summary
	for rows.Next() {
		var (
			id, title, updated string
			turns              int
		)
		if err := rows.Scan(&id, &title, &turns, &updated); err != nil {
			return nil, err
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			continue
		}
		ts, _ := time.Parse(timeFormat, updated)
		out = append(out, storage.Summary{ID: parsed, Title: title, TotalTurns: turns, UpdatedAt: ts})
	}
	return out, rows.Err()
}

// PushUndo stores a snapshot and drops those beyond MaxUndo.
func (s *SQLiteStore) PushUndo(ctx context.Context, id uuid.UUID, gs *state.GameState) error {
	data, err := json.Marshal(gs)
	if err != nil {
		return fmt.Errorf("failed to marshal gamestate: %w", err)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO undo_snapshots (id, gamestate_id, document, created_at) VALUES (?, ?, ?, ?)`,
		s.newID(), id.String(), string(data), time.Now().UTC().Format(timeFormat)); err != nil {
		return fmt.Errorf("failed to push undo snapshot: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM undo_snapshots
		WHERE gamestate_id = ? AND id NOT IN (
			SELECT id FROM undo_snapshots WHERE gamestate_id = ? ORDER BY id DESC LIMIT ?
		)`, id.String(), id.String(), storage.MaxUndo); err != nil {
		return fmt.Errorf("failed to trim undo snapshots: %w", err)
	}
	return tx.Commit()
}

// PopUndo removes and returns the newest snapshot.
func (s *SQLiteStore) PopUndo(ctx context.Context, id uuid.UUID) (*state.GameState, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var snapID, doc string
	err = tx.QueryRowContext(ctx,
		`SELECT id, document FROM undo_snapshots WHERE gamestate_id = ? ORDER BY id DESC LIMIT 1`,
		id.String()).Scan(&snapID, &doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNothingToUndo
	}
	if err != nil {
		return nil, fmt.Errorf("failed to pop undo snapshot: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM undo_snapshots WHERE id = ?`, snapID); err != nil {
		return nil, fmt.Errorf("failed to pop undo snapshot: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	gs, err := state.Hydrate([]byte(doc), s.core)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal undo snapshot: %w", err)
	}
	return gs, nil
}

// ArchiveChronicle mirrors a session's chronicle. New entries are inserted,
// known ones refreshed, and entries no longer in the log are tombstoned.
func (s *SQLiteStore) ArchiveChronicle(ctx context.Context, id uuid.UUID, entries []chronicle.Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(timeFormat)
	keys := make([]any, 0, len(entries))
	for _, e := range entries {
		doc, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to marshal chronicle entry: %w", err)
		}
		key := entryKey(e)
		keys = append(keys, key)
		_, err = tx.ExecContext(ctx, `
			INSERT INTO chronicle_archive (id, gamestate_id, entry_key, summary, event_type, key_detail, document, archived_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(gamestate_id, entry_key) DO UPDATE SET
				summary = excluded.summary,
				event_type = excluded.event_type,
				key_detail = excluded.key_detail,
				document = excluded.document,
				deleted_at = NULL`,
			s.newID(), id.String(), key, e.Summary, e.EventType, e.KeyDetail, string(doc), now)
		if err != nil {
			return fmt.Errorf("failed to archive chronicle entry: %w", err)
		}
	}

	query := `UPDATE chronicle_archive SET deleted_at = ? WHERE gamestate_id = ? AND deleted_at IS NULL`
	args := []any{now, id.String()}
	if len(keys) > 0 {
		query += ` AND entry_key NOT IN (` + strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",") + `)`
		args = append(args, keys...)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to tombstone chronicle entries: %w", err)
	}
	return tx.Commit()
}

// SearchChronicle finds live archived entries whose summary or key detail
// contains query, newest first.
func (s *SQLiteStore) SearchChronicle(ctx context.Context, query string, limit int) ([]storage.ArchivedEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	like := "%" + query + "%"
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, gamestate_id, document, archived_at
		FROM chronicle_archive
		WHERE deleted_at IS NULL AND (summary LIKE ? OR key_detail LIKE ? OR event_type LIKE ?)
		ORDER BY id DESC
		LIMIT ?`, like, like, like, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search chronicle: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []storage.ArchivedEntry
	for rows.Next() {
		var id, gsID, doc, archived string
		if err := rows.Scan(&id, &gsID, &doc, &archived); err != nil {
			return nil, err
		}
		var ae storage.ArchivedEntry
		ae.ID = id
		ae.GameStateID, _ = uuid.Parse(gsID)
		ae.ArchivedAt, _ = time.Parse(timeFormat, archived)
		if err := json.Unmarshal([]byte(doc), &ae.Entry); err != nil {
			s.logger.Warn("Skipping unreadable archived entry", "id", id, "error", err)
			continue
		}
		out = append(out, ae)
	}
	return out, rows.Err()
}

func entryKey(e chronicle.Entry) string {
	if e.ID != "" {
		return e.ID
	}
	return fmt.Sprintf("%d:%s", e.Turn, e.Summary)
}
