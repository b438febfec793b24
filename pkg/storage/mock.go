package storage

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/jwebster45206/chronicle-engine/pkg/state"
)

// MockStorage is a mock implementation of Storage for testing
type MockStorage struct {
	mu         sync.RWMutex
	gamestates map[uuid.UUID]*state.GameState
	undo       map[uuid.UUID][]*state.GameState
	pingError  error
	saveError  error
}

// Ensure MockStorage implements Storage interface
var _ Storage = (*MockStorage)(nil)

// NewMockStorage creates a new mock storage
func NewMockStorage() *MockStorage {
	return &MockStorage{
		gamestates: make(map[uuid.UUID]*state.GameState),
		undo:       make(map[uuid.UUID][]*state.GameState),
	}
}

// SetPingError configures the mock to fail on ping with the given error
func (m *MockStorage) SetPingError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingError = err
}

// SetSaveError configures the mock to fail on save
func (m *MockStorage) SetSaveError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveError = err
}

// Ping mocks storage ping
func (m *MockStorage) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pingError
}

// Close mocks storage close
func (m *MockStorage) Close() error {
	return nil
}

// SaveGameState stores a deep copy
func (m *MockStorage) SaveGameState(ctx context.Context, id uuid.UUID, gs *state.GameState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveError != nil {
		return m.saveError
	}
	m.gamestates[id] = gs.Clone()
	return nil
}

// LoadGameState returns a deep copy, or nil when missing
func (m *MockStorage) LoadGameState(ctx context.Context, id uuid.UUID) (*state.GameState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	gs, ok := m.gamestates[id]
	if !ok {
		return nil, nil
	}
	return gs.Clone(), nil
}

// DeleteGameState removes a session and its undo stack
func (m *MockStorage) DeleteGameState(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.gamestates, id)
	delete(m.undo, id)
	return nil
}

// ListGameStates lists stored sessions, newest first
func (m *MockStorage) ListGameStates(ctx context.Context) ([]Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Summary, 0, len(m.gamestates))
	for id, gs := range m.gamestates {
		out = append(out, Summary{ID: id, Title: Title(gs), TotalTurns: gs.TotalTurns, UpdatedAt: gs.UpdatedAt})
	}
	slices.SortFunc(out, func(a, b Summary) int { return b.UpdatedAt.Compare(a.UpdatedAt) })
	return out, nil
}

// PushUndo stores a snapshot on the session's undo stack
func (m *MockStorage) PushUndo(ctx context.Context, id uuid.UUID, gs *state.GameState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stack := append([]*state.GameState{gs.Clone()}, m.undo[id]...)
	if len(stack) > MaxUndo {
		stack = stack[:MaxUndo]
	}
	m.undo[id] = stack
	return nil
}

// PopUndo removes and returns the newest snapshot
func (m *MockStorage) PopUndo(ctx context.Context, id uuid.UUID) (*state.GameState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stack := m.undo[id]
	if len(stack) == 0 {
		return nil, ErrNothingToUndo
	}
	m.undo[id] = stack[1:]
	return stack[0], nil
}

// UndoDepth reports the number of stored snapshots for id
func (m *MockStorage) UndoDepth(id uuid.UUID) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.undo[id])
}
