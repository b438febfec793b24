package worker

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/chronicle-engine/internal/engine"
	"github.com/jwebster45206/chronicle-engine/internal/services"
	internalstorage "github.com/jwebster45206/chronicle-engine/internal/storage"
	"github.com/jwebster45206/chronicle-engine/pkg/prompts"
	"github.com/jwebster45206/chronicle-engine/pkg/queue"
	"github.com/jwebster45206/chronicle-engine/pkg/response"
	"github.com/jwebster45206/chronicle-engine/pkg/state"
	"github.com/jwebster45206/chronicle-engine/pkg/stats"
	"github.com/jwebster45206/chronicle-engine/pkg/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

const openingJSON = `{
	"storyText": "Mist curls around the sect gate as you arrive.",
	"choices": ["Knock", "Wait", "Climb the wall", "Leave"],
	"statUpdates": [{"statName": "Sword", "value": "rusty", "isItem": true}],
	"npcUpdates": [{"action": "CREATE", "id": "linh_gac", "name": "Gatekeeper Linh", "personality": "lazy"}],
	"presentNpcIds": ["linh_gac"],
	"skills": []
}`

const turnJSON = `{
	"storyText": "Linh waves you through the gate.",
	"choices": ["Enter", "Thank Linh", "Look back", "Rest"],
	"statUpdates": [{"statName": "Stamina", "value": "tired"}]
}`

const sceneBreakJSON = `{
	"storyText": "The gate closes behind you. A new chapter begins.",
	"choices": ["Enter", "Thank Linh", "Look back", "Rest"],
	"isSceneBreak": true
}`

const chronicleJSON = `{
	"summary": "The player passed the sect gate with Linh's blessing.",
	"eventType": "travel",
	"involvedNpcIds": ["linh_gac"],
	"plotSignificanceScore": 6,
	"keyDetail": "The gate closed behind them"
}`

// bySchema answers each call from a table keyed by schema name. The
// free-text flavor call fails, which the engine tolerates.
func bySchema(responses map[response.SchemaKind]string) *services.MockGenerator {
	gen := services.NewMockGenerator()
	gen.GenerateFunc = func(ctx context.Context, req services.GenerateRequest) (*services.GenerateResult, error) {
		text, ok := responses[response.SchemaKind(req.SchemaName)]
		if !ok {
			return nil, errors.New("no scripted response for " + req.SchemaName)
		}
		return &services.GenerateResult{Text: text, TotalTokens: 42, Model: "mock"}, nil
	}
	return gen
}

func seedRequest(id uuid.UUID) *queue.Request {
	req := queue.NewRequest(queue.RequestTypeStart, id)
	req.Seed = &prompts.Seed{
		WorldContext:   "A misty valley ruled by a sect of sword cultivators.",
		CharacterSheet: "A wandering orphan with a rusty sword.",
		Settings:       state.DefaultSettings(),
	}
	return req
}

func actionRequest(id uuid.UUID, action string) *queue.Request {
	req := queue.NewRequest(queue.RequestTypeAction, id)
	req.Action = action
	return req
}

func newTestProcessor(store storage.Storage, gen services.Generator) *Processor {
	return NewProcessor(store, gen, engine.Config{}, testLogger())
}

func TestProcessor_StartAndAction(t *testing.T) {
	store := storage.NewMockStorage()
	gen := bySchema(map[response.SchemaKind]string{
		response.SchemaOpening: openingJSON,
		response.SchemaCore:    turnJSON,
	})
	p := newTestProcessor(store, gen)
	ctx := context.Background()
	id := uuid.New()

	var phases []engine.Phase
	observer := func(_ uuid.UUID, phase engine.Phase) { phases = append(phases, phase) }

	gs, err := p.Process(ctx, seedRequest(id), observer)
	require.NoError(t, err)
	assert.Equal(t, id, gs.ID)
	assert.Equal(t, 1, gs.TotalTurns)
	assert.Contains(t, phases, engine.PhaseAwaitingFirstResponse)
	assert.Contains(t, phases, engine.PhaseCommitted)

	stored, err := store.LoadGameState(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "rusty", stored.PlayerStats["Sword"].Value.String())
	assert.Equal(t, 0, store.UndoDepth(id), "opening turn has nothing to undo")

	gs, err = p.Process(ctx, actionRequest(id, "Greet Linh"), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, gs.TotalTurns)
	assert.Equal(t, "tired", gs.PlayerStats["Stamina"].Value.String())
	assert.Equal(t, 1, store.UndoDepth(id))

	stored, _ = store.LoadGameState(ctx, id)
	assert.Equal(t, 2, stored.TotalTurns)
}

func TestProcessor_UndoRestoresPreviousTurn(t *testing.T) {
	store := storage.NewMockStorage()
	gen := bySchema(map[response.SchemaKind]string{
		response.SchemaOpening: openingJSON,
		response.SchemaCore:    turnJSON,
	})
	p := newTestProcessor(store, gen)
	ctx := context.Background()
	id := uuid.New()

	_, err := p.Process(ctx, seedRequest(id), nil)
	require.NoError(t, err)
	_, err = p.Process(ctx, actionRequest(id, "Greet Linh"), nil)
	require.NoError(t, err)

	gs, err := p.Process(ctx, queue.NewRequest(queue.RequestTypeUndo, id), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, gs.TotalTurns)

	stored, _ := store.LoadGameState(ctx, id)
	assert.Equal(t, 1, stored.TotalTurns)

	_, err = p.Process(ctx, queue.NewRequest(queue.RequestTypeUndo, id), nil)
	assert.ErrorIs(t, err, engine.ErrNothingToUndo)
}

func TestProcessor_FailedTurnKeepsStoredState(t *testing.T) {
	store := storage.NewMockStorage()
	gen := bySchema(map[response.SchemaKind]string{
		response.SchemaOpening: openingJSON,
		response.SchemaCore:    "I will not answer in JSON.",
	})
	p := newTestProcessor(store, gen)
	ctx := context.Background()
	id := uuid.New()

	_, err := p.Process(ctx, seedRequest(id), nil)
	require.NoError(t, err)

	_, err = p.Process(ctx, actionRequest(id, "Greet Linh"), nil)
	var engErr *engine.Error
	require.ErrorAs(t, err, &engErr)
	assert.Equal(t, engine.KindSchema, engErr.Kind)

	stored, _ := store.LoadGameState(ctx, id)
	assert.Equal(t, 1, stored.TotalTurns)
	assert.Equal(t, 0, store.UndoDepth(id))
}

func TestProcessor_MissingGame(t *testing.T) {
	p := newTestProcessor(storage.NewMockStorage(), services.NewMockGenerator())
	_, err := p.Process(context.Background(), actionRequest(uuid.New(), "Look"), nil)
	assert.ErrorIs(t, err, ErrGameNotFound)

	_, err = p.Process(context.Background(), queue.NewRequest(queue.RequestTypeUndo, uuid.New()), nil)
	assert.ErrorIs(t, err, ErrGameNotFound)
}

func TestProcessor_InvalidRequest(t *testing.T) {
	p := newTestProcessor(storage.NewMockStorage(), services.NewMockGenerator())
	_, err := p.Process(context.Background(), queue.NewRequest(queue.RequestTypeAction, uuid.New()), nil)
	assert.Error(t, err)
}

func TestProcessor_StagedEditAcrossRequests(t *testing.T) {
	store := storage.NewMockStorage()
	gen := bySchema(map[response.SchemaKind]string{response.SchemaOpening: openingJSON})
	p := newTestProcessor(store, gen)
	ctx := context.Background()
	id := uuid.New()

	_, err := p.Process(ctx, seedRequest(id), nil)
	require.NoError(t, err)

	req := queue.NewRequest(queue.RequestTypeRequestEdit, id)
	req.Edit = &state.Edit{Kind: state.EditRenameStat, Target: "Sword", NewName: "Old Sword"}
	gs, err := p.Process(ctx, req, nil)
	require.NoError(t, err)
	require.NotNil(t, gs.PendingEdit)
	assert.Contains(t, gs.PlayerStats, "Sword")
	assert.Equal(t, 0, store.UndoDepth(id))

	gs, err = p.Process(ctx, queue.NewRequest(queue.RequestTypeConfirmEdit, id), nil)
	require.NoError(t, err)
	assert.Nil(t, gs.PendingEdit)
	assert.Contains(t, gs.PlayerStats, "Old Sword")
	assert.NotContains(t, gs.PlayerStats, "Sword")
	assert.Equal(t, 1, store.UndoDepth(id))

	_, err = p.Process(ctx, queue.NewRequest(queue.RequestTypeConfirmEdit, id), nil)
	assert.ErrorIs(t, err, engine.ErrNoPendingEdit)
}

func TestProcessor_RegenerateImage(t *testing.T) {
	store := storage.NewMockStorage()
	gen := bySchema(map[response.SchemaKind]string{response.SchemaOpening: openingJSON})
	ctx := context.Background()
	id := uuid.New()

	_, err := newTestProcessor(store, gen).Process(ctx, seedRequest(id), nil)
	require.NoError(t, err)

	_, err = newTestProcessor(store, gen).Process(ctx, queue.NewRequest(queue.RequestTypeRegenerateImage, id), nil)
	assert.ErrorIs(t, err, engine.ErrImagesDisabled)

	img := &services.MockImageGenerator{
		GenerateImageFunc: func(ctx context.Context, prompt string) (string, error) {
			return "", errors.New("quota exceeded")
		},
	}
	gs, err := newTestProcessor(store, gen).WithImages(img).Process(ctx, queue.NewRequest(queue.RequestTypeRegenerateImage, id), nil)
	require.NoError(t, err)
	assert.Contains(t, gs.ImageError, "quota exceeded")

	stored, _ := store.LoadGameState(ctx, id)
	assert.Contains(t, stored.ImageError, "quota exceeded")
}

func TestProcessor_ArchivesChronicle(t *testing.T) {
	store, err := internalstorage.NewSQLiteStore(filepath.Join(t.TempDir(), "chronicle.db"), stats.DefaultCoreStats, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	gen := bySchema(map[response.SchemaKind]string{
		response.SchemaOpening:   openingJSON,
		response.SchemaCore:      sceneBreakJSON,
		response.SchemaChronicle: chronicleJSON,
	})
	p := newTestProcessor(store, gen)
	ctx := context.Background()
	id := uuid.New()

	_, err = p.Process(ctx, seedRequest(id), nil)
	require.NoError(t, err)
	gs, err := p.Process(ctx, actionRequest(id, "Walk through the gate"), nil)
	require.NoError(t, err)
	require.Len(t, gs.Chronicle, 1)

	found, err := store.SearchChronicle(ctx, "sect gate", 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, id, found[0].GameStateID)
}
