package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/jwebster45206/chronicle-engine/internal/engine"
	"github.com/jwebster45206/chronicle-engine/internal/services"
	"github.com/jwebster45206/chronicle-engine/pkg/queue"
	"github.com/jwebster45206/chronicle-engine/pkg/state"
	"github.com/jwebster45206/chronicle-engine/pkg/storage"
)

// ErrGameNotFound is returned for requests against a missing session.
var ErrGameNotFound = errors.New("game state not found")

// Processor runs one queued request against a stored session. It is shared
// by the worker and the local play command.
type Processor struct {
	storage     storage.Storage
	archive     storage.ChronicleArchive
	gen         services.Generator
	images      services.ImageGenerator
	credentials *services.CredentialPool
	cfg         engine.Config
	logger      *slog.Logger
}

// NewProcessor creates a processor. When store also implements
// storage.ChronicleArchive, committed chronicle entries are mirrored to it.
func NewProcessor(store storage.Storage, gen services.Generator, cfg engine.Config, logger *slog.Logger) *Processor {
	p := &Processor{
		storage: store,
		gen:     gen,
		cfg:     cfg,
		logger:  logger,
	}
	if archive, ok := store.(storage.ChronicleArchive); ok {
		p.archive = archive
	}
	return p
}

// WithImages enables the image side channel.
func (p *Processor) WithImages(img services.ImageGenerator) *Processor {
	p.images = img
	return p
}

// WithCredentials enables credential rotation.
func (p *Processor) WithCredentials(pool *services.CredentialPool) *Processor {
	p.credentials = pool
	return p
}

func (p *Processor) newEngine(observer engine.Observer) *engine.Engine {
	e := engine.New(p.gen, p.cfg, p.logger)
	if p.credentials != nil {
		e.WithCredentials(p.credentials)
	}
	if p.images != nil {
		e.WithImages(p.images)
	}
	if observer != nil {
		e.WithObserver(observer)
	}
	return e
}

// GetGameState loads a session, returning ErrGameNotFound when missing.
func (p *Processor) GetGameState(ctx context.Context, id uuid.UUID) (*state.GameState, error) {
	gs, err := p.storage.LoadGameState(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load game state: %w", err)
	}
	if gs == nil {
		return nil, fmt.Errorf("%w: %s", ErrGameNotFound, id.String())
	}
	return gs, nil
}

// Process executes req and persists the committed state. A failed engine
// call leaves the stored session untouched and returns the engine error.
func (p *Processor) Process(ctx context.Context, req *queue.Request, observer engine.Observer) (*state.GameState, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	switch req.Type {
	case queue.RequestTypeStart:
		return p.start(ctx, req, observer)
	case queue.RequestTypeUndo:
		return p.undo(ctx, req.GameStateID)
	}

	before, err := p.GetGameState(ctx, req.GameStateID)
	if err != nil {
		return nil, err
	}
	e := p.newEngine(observer)
	if err := e.Continue(before); err != nil {
		return nil, fmt.Errorf("failed to resume game state: %w", err)
	}

	next, err := p.dispatch(ctx, e, req)
	if err != nil {
		return nil, err
	}

	if e.UndoDepth() > 0 {
		if err := p.storage.PushUndo(ctx, req.GameStateID, before); err != nil {
			p.logger.Warn("Failed to store undo snapshot", "game_state_id", req.GameStateID.String(), "error", err)
		}
	}
	if err := p.save(ctx, next); err != nil {
		return nil, err
	}
	return next, nil
}

func (p *Processor) dispatch(ctx context.Context, e *engine.Engine, req *queue.Request) (*state.GameState, error) {
	switch req.Type {
	case queue.RequestTypeAction:
		return e.SubmitAction(ctx, req.Action)
	case queue.RequestTypeSkillFromStat:
		return e.RequestSkillFromStat(ctx, req.StatName)
	case queue.RequestTypeCustomPower:
		return e.RequestCustomPower(ctx, req.PowerName, req.Description)
	case queue.RequestTypeConfirmSkill:
		return e.ConfirmSkill()
	case queue.RequestTypeDeclineSkill:
		return e.DeclineSkill()
	case queue.RequestTypeRequestEdit:
		return e.RequestEdit(*req.Edit)
	case queue.RequestTypeConfirmEdit:
		return e.ConfirmEdit()
	case queue.RequestTypeCancelEdit:
		return e.CancelEdit()
	case queue.RequestTypeRegenerateImage:
		gs, err := e.RegenerateImage(ctx)
		if gs == nil {
			return nil, err
		}
		if err != nil {
			// The failure is recorded on the state itself.
			p.logger.Warn("Image regeneration failed", "game_state_id", req.GameStateID.String(), "error", err)
		}
		return gs, nil
	default:
		return nil, fmt.Errorf("unknown request type: %s", req.Type)
	}
}

func (p *Processor) start(ctx context.Context, req *queue.Request, observer engine.Observer) (*state.GameState, error) {
	seed := *req.Seed
	seed.ID = req.GameStateID

	e := p.newEngine(observer)
	gs, err := e.Start(ctx, seed)
	if err != nil {
		return nil, err
	}
	if err := p.save(ctx, gs); err != nil {
		return nil, err
	}
	return gs, nil
}

func (p *Processor) undo(ctx context.Context, id uuid.UUID) (*state.GameState, error) {
	if _, err := p.GetGameState(ctx, id); err != nil {
		return nil, err
	}
	prev, err := p.storage.PopUndo(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNothingToUndo) {
			return nil, engine.ErrNothingToUndo
		}
		return nil, fmt.Errorf("failed to pop undo snapshot: %w", err)
	}
	if err := p.storage.SaveGameState(ctx, id, prev); err != nil {
		return nil, fmt.Errorf("failed to save game state: %w", err)
	}
	p.logger.Info("Undo applied", "game_state_id", id.String(), "turns", prev.TotalTurns)
	return prev, nil
}

func (p *Processor) save(ctx context.Context, gs *state.GameState) error {
	if err := p.storage.SaveGameState(ctx, gs.ID, gs); err != nil {
		return fmt.Errorf("failed to save game state: %w", err)
	}
	if p.archive != nil && len(gs.Chronicle) > 0 {
		if err := p.archive.ArchiveChronicle(ctx, gs.ID, gs.Chronicle); err != nil {
			p.logger.Warn("Failed to archive chronicle", "game_state_id", gs.ID.String(), "error", err)
		}
	}
	return nil
}
