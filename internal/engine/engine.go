// Package engine runs the turn state machine: it composes prompts, calls the
// generation service, validates what comes back, reconciles stats, entities
// and the chronicle, and commits a new immutable game state.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jwebster45206/chronicle-engine/internal/services"
	"github.com/jwebster45206/chronicle-engine/pkg/chat"
	"github.com/jwebster45206/chronicle-engine/pkg/chronicle"
	"github.com/jwebster45206/chronicle-engine/pkg/entity"
	"github.com/jwebster45206/chronicle-engine/pkg/prompts"
	"github.com/jwebster45206/chronicle-engine/pkg/response"
	"github.com/jwebster45206/chronicle-engine/pkg/state"
	"github.com/jwebster45206/chronicle-engine/pkg/stats"
	"github.com/jwebster45206/chronicle-engine/pkg/textfilter"
)

const tracerName = "github.com/jwebster45206/chronicle-engine/internal/engine"

// Phase is the turn state machine position.
type Phase string

const (
	PhaseIdle                     Phase = "idle"
	PhaseAwaitingFirstResponse    Phase = "awaiting_first_response"
	PhaseReconciling              Phase = "reconciling"
	PhaseAwaitingChronicleSummary Phase = "awaiting_chronicle_summary"
	PhaseCommitted                Phase = "committed"
	PhaseError                    Phase = "error"
)

// Config tunes the engine. Zero fields take the defaults.
type Config struct {
	Rules               *prompts.Rules
	Core                stats.CoreSet
	HistoryCharBudget   int
	MaxChronicleRecalls int
	GroupOptions        chronicle.GroupOptions
	// FlavorModel overrides the provider model for the free-text flavor call.
	FlavorModel string
	MaxUndo     int
}

// DefaultConfig returns the settings used when none are given.
func DefaultConfig() Config {
	return Config{
		Rules:               prompts.DefaultRules(),
		Core:                stats.DefaultCoreStats,
		HistoryCharBudget:   12000,
		MaxChronicleRecalls: 5,
		GroupOptions:        chronicle.DefaultGroupOptions,
		MaxUndo:             10,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Rules == nil {
		c.Rules = d.Rules
	}
	if c.Core.Len() == 0 {
		c.Core = d.Core
	}
	if c.HistoryCharBudget <= 0 {
		c.HistoryCharBudget = d.HistoryCharBudget
	}
	if c.MaxChronicleRecalls < 0 {
		c.MaxChronicleRecalls = 0
	}
	if c.GroupOptions.MinBucket == 0 {
		c.GroupOptions = d.GroupOptions
	}
	if c.MaxUndo <= 0 {
		c.MaxUndo = d.MaxUndo
	}
	return c
}

// Observer is notified on every phase change. It runs with the engine lock
// held and must not call back into the engine.
type Observer func(id uuid.UUID, phase Phase)

// Engine owns one session. At most one turn is in flight at a time; callers
// get ErrBusy rather than queueing.
type Engine struct {
	cfg         Config
	gen         services.Generator
	images      services.ImageGenerator
	credentials *services.CredentialPool
	reconciler  *stats.Reconciler
	npcKind     entity.NPCKind
	chronicle   *chronicle.Manager
	profanity   *textfilter.ProfanityFilter
	tracer      trace.Tracer
	observer    Observer
	logger      *slog.Logger

	mu      sync.Mutex
	busy    bool
	phase   Phase
	current *state.GameState
	undo    []*state.GameState
	lastErr *Error
}

// New creates an engine around a generation service.
func New(gen services.Generator, cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	rec := stats.NewReconciler(cfg.Core, logger)
	return &Engine{
		cfg:        cfg,
		gen:        gen,
		reconciler: rec,
		npcKind:    entity.NPCKind{Stats: rec, Logger: logger},
		chronicle:  chronicle.NewManager(nil, logger),
		profanity:  textfilter.NewProfanityFilter(),
		tracer:     otel.Tracer(tracerName),
		logger:     logger,
		phase:      PhaseIdle,
	}
}

// WithCredentials enables rotation on failed calls.
func (e *Engine) WithCredentials(pool *services.CredentialPool) *Engine {
	e.credentials = pool
	return e
}

// WithImages enables the image side channel.
func (e *Engine) WithImages(img services.ImageGenerator) *Engine {
	e.images = img
	return e
}

// WithChronicleManager replaces the default chronicle manager.
func (e *Engine) WithChronicleManager(m *chronicle.Manager) *Engine {
	e.chronicle = m
	return e
}

// WithTracer overrides the global tracer.
func (e *Engine) WithTracer(t trace.Tracer) *Engine {
	e.tracer = t
	return e
}

// WithObserver registers a phase change callback.
func (e *Engine) WithObserver(fn Observer) *Engine {
	e.observer = fn
	return e
}

// State returns a copy of the last committed state, or nil.
func (e *Engine) State() *state.GameState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current.Clone()
}

// Phase reports the state machine position.
func (e *Engine) Phase() Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase
}

// Busy reports whether a turn or sub-call chain is in flight.
func (e *Engine) Busy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.busy
}

// LastError returns the current error, or nil after a successful commit.
func (e *Engine) LastError() *Error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

// UndoDepth reports how many snapshots Undo can restore.
func (e *Engine) UndoDepth() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.undo)
}

// Continue resumes from a saved state. The state is re-hydrated so documents
// built by older versions are upgraded, and committed immediately.
func (e *Engine) Continue(gs *state.GameState) error {
	if gs == nil {
		return ErrNotStarted
	}
	data, err := json.Marshal(gs)
	if err != nil {
		return fmt.Errorf("failed to marshal gamestate: %w", err)
	}
	return e.Load(data)
}

// Load hydrates a saved document and commits it.
func (e *Engine) Load(data []byte) error {
	gs, err := state.Hydrate(data, e.cfg.Core)
	if err != nil {
		return fmt.Errorf("failed to hydrate gamestate: %w", err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.busy {
		return ErrBusy
	}
	e.current = gs
	e.undo = nil
	e.lastErr = nil
	e.setPhase(PhaseCommitted)
	e.logger.Info("Story resumed", "game_state_id", gs.ID.String(), "turns", gs.TotalTurns)
	return nil
}

// Start issues the opening call for a fresh story and commits the first state.
func (e *Engine) Start(ctx context.Context, seed prompts.Seed) (*state.GameState, error) {
	if err := e.acquire(false); err != nil {
		return nil, err
	}
	ctx, span := e.tracer.Start(ctx, "engine.Start")
	defer span.End()

	messages, err := prompts.OpeningPrompt(e.cfg.Rules, seed, e.cfg.Core)
	if err != nil {
		e.release()
		return nil, err
	}

	gs := state.NewGameState(strings.TrimSpace(seed.WorldContext), seed.Settings)
	if seed.ID != uuid.Nil {
		gs.ID = seed.ID
	}
	span.SetAttributes(attribute.String("game_state_id", gs.ID.String()))
	e.notify(gs.ID, PhaseAwaitingFirstResponse)

	res, err := e.call(ctx, messages, response.SchemaOpening, "")
	if err != nil {
		return nil, e.fail(span, gs.ID, err)
	}
	e.notify(gs.ID, PhaseReconciling)
	resp, err := response.DecodeOpening(res.Text, e.logger)
	if err != nil {
		return nil, e.fail(span, gs.ID, schemaError(err, res.Text))
	}
	e.soften(gs, &resp.CoreResponse)

	e.reconcile(gs, &resp.CoreResponse)
	gs.Skills = resp.Skills
	gs.PendingSkill = nil
	e.ensureCoreStats(gs)

	turn := state.GameTurn{
		StoryText:    resp.StoryText,
		Choices:      resp.Choices,
		TokenCount:   res.TotalTokens,
		IsMajorEvent: resp.IsMajorEvent,
		RequestCount: 1,
	}
	gs.History = append(gs.History, turn)
	gs.ShortTermBuffer = append(gs.ShortTermBuffer, turn.Clone())
	gs.TotalTurns = 1
	gs.TotalRequests = 1
	gs.TotalTokens = res.TotalTokens

	e.commit(gs, false)
	e.mu.Lock()
	e.undo = nil
	e.mu.Unlock()
	span.SetAttributes(attribute.Int("engine.calls", 1))
	e.logger.Info("Story started", "game_state_id", gs.ID.String(), "npcs", len(gs.NPCs), "skills", len(gs.Skills))

	e.maybeImage(ctx, gs.ID)
	return e.State(), nil
}

// SubmitAction plays one turn. On failure the last committed state is kept
// and the returned error is an *Error describing whether to retry.
func (e *Engine) SubmitAction(ctx context.Context, action string) (*state.GameState, error) {
	action = strings.TrimSpace(action)
	if action == "" {
		return nil, ErrEmptyAction
	}
	if err := e.acquire(true); err != nil {
		return nil, err
	}
	base := e.State()

	ctx, span := e.tracer.Start(ctx, "engine.SubmitAction",
		trace.WithAttributes(attribute.String("game_state_id", base.ID.String())))
	defer span.End()

	run := &turnRun{action: action, base: base}
	if err := e.runPipeline(ctx, run); err != nil {
		return nil, e.fail(span, base.ID, err)
	}
	span.SetAttributes(
		attribute.Int("engine.calls", run.calls),
		attribute.Int("engine.tokens", run.tokens),
		attribute.Bool("engine.scene_break", run.resp.IsSceneBreak),
	)

	e.commit(run.next, true)
	e.logger.Info("Turn committed",
		"game_state_id", run.next.ID.String(),
		"turn", run.next.TotalTurns,
		"calls", run.calls,
		"scene_break", run.resp.IsSceneBreak)

	e.maybeImage(ctx, run.next.ID)
	return e.State(), nil
}

// Undo restores the snapshot taken before the last commit.
func (e *Engine) Undo() (*state.GameState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.busy {
		return nil, ErrBusy
	}
	if len(e.undo) == 0 {
		return nil, ErrNothingToUndo
	}
	last := len(e.undo) - 1
	e.current = e.undo[last]
	e.undo = e.undo[:last]
	e.lastErr = nil
	e.setPhase(PhaseCommitted)
	return e.current.Clone(), nil
}

// RegenerateImage retries the image for the latest turn.
func (e *Engine) RegenerateImage(ctx context.Context) (*state.GameState, error) {
	if e.images == nil {
		return nil, ErrImagesDisabled
	}
	if err := e.acquire(true); err != nil {
		return nil, err
	}
	defer e.release()
	gs := e.State()
	if err := e.generateImage(ctx, gs.ID); err != nil {
		return e.State(), err
	}
	return e.State(), nil
}

func (e *Engine) maybeImage(ctx context.Context, id uuid.UUID) {
	if e.images == nil {
		return
	}
	e.mu.Lock()
	enabled := e.current != nil && e.current.Settings.ImageGeneration
	e.mu.Unlock()
	if !enabled {
		return
	}
	if err := e.generateImage(ctx, id); err != nil {
		e.logger.Warn("Image generation failed", "game_state_id", id.String(), "error", err)
	}
}

func (e *Engine) generateImage(ctx context.Context, id uuid.UUID) error {
	gs := e.State()
	last, ok := gs.LastTurn()
	if !ok {
		return ErrNotStarted
	}
	ctx, span := e.tracer.Start(ctx, "engine.image")
	defer span.End()

	ref, err := e.images.GenerateImage(ctx, imagePrompt(gs, last.StoryText))

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil || e.current.ID != id {
		return nil
	}
	next := e.current.Clone()
	if err != nil {
		span.RecordError(err)
		next.ImageError = err.Error()
	} else {
		next.LastImage = ref
		next.ImageError = ""
	}
	e.current = next
	return err
}

func imagePrompt(gs *state.GameState, story string) string {
	const limit = 600
	r := []rune(strings.TrimSpace(story))
	if len(r) > limit {
		r = r[:limit]
	}
	return fmt.Sprintf("Illustration of an interactive fiction scene.\nSetting: %s\nScene: %s",
		truncateRunes(gs.WorldContext, 200), string(r))
}

func truncateRunes(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n])
}

// acquire sets the busy flag. When needState is true a committed state must
// exist.
func (e *Engine) acquire(needState bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.busy {
		return ErrBusy
	}
	if needState && e.current == nil {
		return ErrNotStarted
	}
	e.busy = true
	e.lastErr = nil
	return nil
}

func (e *Engine) release() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.busy = false
}

// commit swaps in next, optionally keeping the previous state for undo, and
// clears the busy flag.
func (e *Engine) commit(next *state.GameState, keepUndo bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if keepUndo && e.current != nil {
		e.undo = append(e.undo, e.current)
		if len(e.undo) > e.cfg.MaxUndo {
			e.undo = e.undo[len(e.undo)-e.cfg.MaxUndo:]
		}
	}
	e.current = next
	e.lastErr = nil
	e.busy = false
	e.setPhase(PhaseCommitted)
}

// fail records err as the current error, clears busy and returns the error
// to hand back to the caller.
func (e *Engine) fail(span trace.Span, id uuid.UUID, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	var engErr *Error
	if !errors.As(err, &engErr) {
		engErr = &Error{Kind: KindTransport, Message: err.Error(), FailedSlot: -1, Err: err}
	}
	e.logger.Error("Turn failed",
		"game_state_id", id.String(),
		"kind", engErr.Kind,
		"recoverable", engErr.Recoverable,
		"error", err)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastErr = engErr
	e.busy = false
	e.setPhase(PhaseError)
	return engErr
}

func (e *Engine) notify(id uuid.UUID, p Phase) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.phaseFor(id, p)
}

func (e *Engine) setPhase(p Phase) {
	id := uuid.Nil
	if e.current != nil {
		id = e.current.ID
	}
	e.phaseFor(id, p)
}

func (e *Engine) phaseFor(id uuid.UUID, p Phase) {
	e.phase = p
	if e.observer != nil {
		e.observer(id, p)
	}
}

// call runs one generation request. Failures rotate the credential pool when
// more than one credential is configured.
func (e *Engine) call(ctx context.Context, messages []chat.ChatMessage, kind response.SchemaKind, model string) (*services.GenerateResult, error) {
	res, err := e.gen.Generate(ctx, schemaRequest(messages, kind, model))
	if err != nil {
		return nil, e.callError(ctx, err)
	}
	return res, nil
}

// callOptional is call without credential rotation, for optional stages.
func (e *Engine) callOptional(ctx context.Context, req services.GenerateRequest) (*services.GenerateResult, error) {
	return e.gen.Generate(ctx, req)
}

func schemaRequest(messages []chat.ChatMessage, kind response.SchemaKind, model string) services.GenerateRequest {
	req := services.GenerateRequest{Messages: messages, Model: model}
	if kind != "" {
		req.Schema = response.Schema(kind)
		req.SchemaName = string(kind)
	}
	return req
}

func (e *Engine) callError(ctx context.Context, err error) error {
	if errors.Is(err, context.Canceled) {
		return &Error{Kind: KindTransport, Message: err.Error(), FailedSlot: -1, Err: err}
	}
	slot := -1
	var pe *services.ProviderError
	if errors.As(err, &pe) {
		slot = pe.Slot
	}
	if e.credentials != nil && e.credentials.CanRotate() {
		failed, next := e.credentials.Rotate(ctx)
		if slot < 0 {
			slot = failed
		}
		return &Error{
			Kind:        KindCredential,
			Message:     fmt.Sprintf("Credential %d failed. Switched to credential %d, please retry the same action.", slot, next),
			Recoverable: true,
			FailedSlot:  slot,
			Err:         err,
		}
	}
	return &Error{Kind: KindTransport, Message: err.Error(), FailedSlot: slot, Err: err}
}

func schemaError(err error, raw string) error {
	return &Error{
		Kind:       KindSchema,
		Message:    "The narrator's response could not be understood. Please rephrase your action and try again.",
		Raw:        raw,
		FailedSlot: -1,
		Err:        err,
	}
}

// ensureCoreStats adds any configured core stat the opening response left out.
func (e *Engine) ensureCoreStats(gs *state.GameState) {
	for _, name := range e.cfg.Core.Names() {
		found := false
		for existing := range gs.PlayerStats {
			if strings.EqualFold(existing, name) {
				found = true
				break
			}
		}
		if !found {
			gs.PlayerStats[name] = stats.Stat{Value: stats.Text("unknown")}
		}
	}
	gs.PlayerStatOrder = stats.NormalizeOrder(gs.PlayerStatOrder, gs.PlayerStats, e.cfg.Core)
}
