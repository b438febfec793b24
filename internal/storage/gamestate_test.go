package storage

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/chronicle-engine/pkg/chronicle"
	"github.com/jwebster45206/chronicle-engine/pkg/state"
	"github.com/jwebster45206/chronicle-engine/pkg/stats"
	"github.com/jwebster45206/chronicle-engine/pkg/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func setupRedisStorage(t *testing.T) (*RedisStorage, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStorageFromClient(client, stats.DefaultCoreStats, testLogger())
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func sampleState(world string) *state.GameState {
	gs := state.NewGameState(world, state.DefaultSettings())
	gs.PlayerStats = stats.Map{
		"Health":     {Value: stats.Text("healthy")},
		"Vết thương": {Value: stats.Text("nặng"), History: []string{"nhẹ"}},
	}
	gs.History = []state.GameTurn{{StoryText: "The gate creaks open.", Choices: []string{"Enter", "Wait"}}}
	gs.TotalTurns = 1
	gs.Chronicle = []chronicle.Entry{{
		ID:                    "c1",
		Summary:               "Elder Mo accepted the player as an outer disciple",
		EventType:             "relationship",
		InvolvedNPCIDs:        []string{"elder_mo"},
		PlotSignificanceScore: 8,
		Turn:                  1,
	}}
	return gs
}

func TestRedisStorage_SaveAndLoad(t *testing.T) {
	s, mr := setupRedisStorage(t)
	ctx := context.Background()
	gs := sampleState("A misty valley")

	require.NoError(t, s.SaveGameState(ctx, gs.ID, gs))
	assert.True(t, mr.Exists(gamestatePrefix+gs.ID.String()))
	assert.Equal(t, DefaultTTL, mr.TTL(gamestatePrefix+gs.ID.String()))

	loaded, err := s.LoadGameState(ctx, gs.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, gs.ID, loaded.ID)
	assert.Equal(t, []string{"nhẹ"}, loaded.PlayerStats["Vết thương"].History)
	assert.Equal(t, []string{"Health", "Vết thương"}, loaded.PlayerStatOrder)
	require.Len(t, loaded.Chronicle, 1)
	assert.Equal(t, "relationship", loaded.Chronicle[0].EventType)
}

func TestRedisStorage_LoadMissing(t *testing.T) {
	s, _ := setupRedisStorage(t)
	loaded, err := s.LoadGameState(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestRedisStorage_LoadHydratesLegacyDocument(t *testing.T) {
	s, mr := setupRedisStorage(t)
	id := uuid.New()
	doc := `{"id": "` + id.String() + `", "worldContext": "Old save", "playerStats": {"Health": {"value": "ok", "duration": 3}}, "longTermMemory": "The player once fought a bear."}`
	require.NoError(t, mr.Set(gamestatePrefix+id.String(), doc))

	loaded, err := s.LoadGameState(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Len(t, loaded.Chronicle, 1)
	assert.Equal(t, chronicle.LegacyEventType, loaded.Chronicle[0].EventType)
	assert.Nil(t, loaded.PlayerStats["Health"].Duration, "core stats are permanent")
}

func TestRedisStorage_LoadCorrupt(t *testing.T) {
	s, mr := setupRedisStorage(t)
	id := uuid.New()
	require.NoError(t, mr.Set(gamestatePrefix+id.String(), "{not json"))

	_, err := s.LoadGameState(context.Background(), id)
	assert.ErrorIs(t, err, state.ErrInvalidDocument)
}

func TestRedisStorage_WithTTL(t *testing.T) {
	s, mr := setupRedisStorage(t)
	s.WithTTL(0)
	gs := sampleState("No expiry")
	require.NoError(t, s.SaveGameState(context.Background(), gs.ID, gs))
	assert.Equal(t, time.Duration(0), mr.TTL(gamestatePrefix+gs.ID.String()))
}

func TestRedisStorage_DeleteAndList(t *testing.T) {
	s, mr := setupRedisStorage(t)
	ctx := context.Background()

	first := sampleState("First world")
	second := sampleState("Second world")
	require.NoError(t, s.SaveGameState(ctx, first.ID, first))
	require.NoError(t, s.SaveGameState(ctx, second.ID, second))
	require.NoError(t, mr.Set("unrelated", "x"))

	list, err := s.ListGameStates(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID, "newest first")
	assert.Equal(t, "Second world", list[0].Title)

	require.NoError(t, s.PushUndo(ctx, first.ID, first))
	require.NoError(t, s.DeleteGameState(ctx, first.ID))
	assert.False(t, mr.Exists(gamestatePrefix+first.ID.String()))
	assert.False(t, mr.Exists(undoPrefix+first.ID.String()))

	list, err = s.ListGameStates(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestRedisStorage_UndoStack(t *testing.T) {
	s, mr := setupRedisStorage(t)
	ctx := context.Background()
	gs := sampleState("Undo world")

	_, err := s.PopUndo(ctx, gs.ID)
	assert.ErrorIs(t, err, storage.ErrNothingToUndo)

	for turn := 1; turn <= storage.MaxUndo+3; turn++ {
		snap := gs.Clone()
		snap.TotalTurns = turn
		require.NoError(t, s.PushUndo(ctx, gs.ID, snap))
	}
	items, err := mr.List(undoPrefix + gs.ID.String())
	require.NoError(t, err)
	assert.Len(t, items, storage.MaxUndo)

	top, err := s.PopUndo(ctx, gs.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.MaxUndo+3, top.TotalTurns)

	next, err := s.PopUndo(ctx, gs.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.MaxUndo+2, next.TotalTurns)
}

func TestRedisStorage_Ping(t *testing.T) {
	s, _ := setupRedisStorage(t)
	require.NoError(t, s.Ping(context.Background()))
	require.NoError(t, s.WaitForConnection(context.Background()))
}
