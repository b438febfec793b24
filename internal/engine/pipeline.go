package engine

import (
	"context"
	"reflect"
	"slices"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/jwebster45206/chronicle-engine/internal/services"
	"github.com/jwebster45206/chronicle-engine/pkg/budget"
	"github.com/jwebster45206/chronicle-engine/pkg/chat"
	"github.com/jwebster45206/chronicle-engine/pkg/chronicle"
	"github.com/jwebster45206/chronicle-engine/pkg/entity"
	"github.com/jwebster45206/chronicle-engine/pkg/prompts"
	"github.com/jwebster45206/chronicle-engine/pkg/response"
	"github.com/jwebster45206/chronicle-engine/pkg/state"
	"github.com/jwebster45206/chronicle-engine/pkg/stats"
	"github.com/jwebster45206/chronicle-engine/pkg/textfilter"
)

// Stage names, also used as span names.
const (
	StageCore      = "core"
	StageFlavor    = "flavor"
	StageChronicle = "chronicle"
)

// turnRun carries one turn through the pipeline.
type turnRun struct {
	action string
	base   *state.GameState // last committed state, untouched
	next   *state.GameState // state being built
	resp   *response.CoreResponse
	turn   state.GameTurn
	calls  int
	tokens int
	// summarized is set once the turn has been folded into a chronicle entry.
	summarized bool
}

type stage struct {
	name string
	// optional stages log and skip on failure; the core result is kept.
	optional bool
	run      func(ctx context.Context, r *turnRun) error
}

func (e *Engine) stages() []stage {
	return []stage{
		{name: StageCore, run: e.coreStage},
		{name: StageFlavor, optional: true, run: e.flavorStage},
		{name: StageChronicle, optional: true, run: e.chronicleStage},
	}
}

func (e *Engine) runPipeline(ctx context.Context, r *turnRun) error {
	for _, st := range e.stages() {
		sctx, span := e.tracer.Start(ctx, "stage."+st.name)
		err := st.run(sctx, r)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.Int("engine.calls", r.calls))
		span.End()

		if err == nil {
			continue
		}
		if !st.optional {
			return err
		}
		e.logger.Warn("Skipping failed stage",
			"stage", st.name,
			"game_state_id", r.base.ID.String(),
			"error", err)
	}
	e.finishTurn(r)
	return nil
}

// coreStage decays stats, composes the prompt, runs the schema-constrained
// narrative call and reconciles its updates.
func (e *Engine) coreStage(ctx context.Context, r *turnRun) error {
	e.notify(r.base.ID, PhaseAwaitingFirstResponse)

	next := r.base.Clone()
	next.PendingEdit = nil
	e.decay(next)

	override := false
	if _, ok := prompts.ParseAuthorOverride(r.action); ok {
		override = true
	}
	recall := chronicle.SelectContext(next.Chronicle, r.action, next.PresentNPCIDs, recallState(next), e.cfg.MaxChronicleRecalls)
	messages, err := prompts.New().
		WithRules(e.cfg.Rules).
		WithCoreStats(e.cfg.Core).
		WithGameState(next).
		WithAction(r.action).
		WithHistory(budget.Fit(next.History, e.cfg.HistoryCharBudget)).
		WithChronicle(recall).
		WithPresentNPCs(next.PresentNPCIDs).
		Build()
	if err != nil {
		return err
	}
	e.logger.Debug("Sending core request",
		"game_state_id", next.ID.String(),
		"messages", len(messages),
		"recalled", len(recall),
		"author_override", override)

	res, err := e.call(ctx, messages, response.SchemaCore, "")
	if err != nil {
		return err
	}
	r.calls++
	r.tokens += res.TotalTokens

	e.notify(next.ID, PhaseReconciling)
	resp, err := response.DecodeCore(res.Text, e.logger)
	if err != nil {
		return schemaError(err, res.Text)
	}
	e.soften(next, resp)

	e.reconcile(next, resp)
	r.next = next
	r.resp = resp
	r.turn = state.NewTurn(r.action, resp.StoryText, resp.Choices)
	r.turn.IsMajorEvent = resp.IsMajorEvent
	return nil
}

// flavorStage asks for free-text status lines for the scene's entities.
func (e *Engine) flavorStage(ctx context.Context, r *turnRun) error {
	if len(r.next.PresentNPCIDs) == 0 && len(r.next.Locations) == 0 {
		return nil
	}
	messages := prompts.FlavorPrompt(e.cfg.Rules, r.next, r.resp.StoryText)
	res, err := e.callOptional(ctx, flavorRequest(messages, e.cfg.FlavorModel))
	if err != nil {
		return err
	}
	r.calls++
	r.tokens += res.TotalTokens

	flavor := response.ParseFreeTextNPCUpdates(res.Text)
	if len(flavor) == 0 {
		return nil
	}
	before := r.next.Clone()
	r.next.NPCs = entity.ApplyNPCFlavor(r.next.NPCs, flavor)
	r.next.Locations = entity.ApplyLocationFlavor(r.next.Locations, flavor)
	r.next.RecentlyUpdated.NPCs = union(r.next.RecentlyUpdated.NPCs, changedNPCs(before.NPCs, r.next.NPCs))
	r.next.RecentlyUpdated.Locations = union(r.next.RecentlyUpdated.Locations, changedLocations(before.Locations, r.next.Locations))
	return nil
}

// chronicleStage summarizes the short-term buffer at a scene break. When it
// fails the turn stays buffered and is summarized at the next break.
func (e *Engine) chronicleStage(ctx context.Context, r *turnRun) error {
	if !r.resp.IsSceneBreak {
		return nil
	}
	e.notify(r.next.ID, PhaseAwaitingChronicleSummary)

	turns := append(slices.Clone(r.next.ShortTermBuffer), r.turn)
	messages := prompts.ChroniclePrompt(e.cfg.Rules, r.next, turns)
	res, err := e.callOptional(ctx, schemaRequest(messages, response.SchemaChronicle, ""))
	if err != nil {
		return err
	}
	r.calls++
	r.tokens += res.TotalTokens

	draft, err := response.ParseChronicle(res.Text)
	if err != nil {
		return err
	}
	entries, entry, added := e.chronicle.Append(r.next.Chronicle, draft, r.next.TotalTurns+1)
	entries = chronicle.GroupMinorEvents(entries, e.cfg.GroupOptions)
	r.next.Chronicle = entries
	r.next.ShortTermBuffer = []state.GameTurn{}
	r.summarized = true
	e.logger.Info("Scene summarized",
		"game_state_id", r.next.ID.String(),
		"turns", len(turns),
		"event_type", entry.EventType,
		"added", added)
	return nil
}

// finishTurn appends the turn, updates accounting and archives memories of
// NPCs the flavor pass confirmed dead.
func (e *Engine) finishTurn(r *turnRun) {
	next := r.next
	r.turn.TokenCount = r.tokens
	r.turn.RequestCount = r.calls

	if !r.summarized {
		next.ShortTermBuffer = append(next.ShortTermBuffer, r.turn.Clone())
	}
	next.History = append(next.History, r.turn)
	next.TotalTurns++
	next.TotalRequests += r.calls
	next.TotalTokens += r.tokens
	next.Chronicle = chronicle.ArchiveDeadNPCMemories(next.Chronicle, next.NPCs)
}

// decay advances durations and evolutions on the player and every NPC.
func (e *Engine) decay(gs *state.GameState) {
	gs.PlayerStats = e.reconciler.AdvanceTurn(gs.PlayerStats)
	gs.PlayerStatOrder = stats.NormalizeOrder(gs.PlayerStatOrder, gs.PlayerStats, e.cfg.Core)
	for i := range gs.NPCs {
		if len(gs.NPCs[i].Stats) == 0 {
			continue
		}
		gs.NPCs[i].Stats = e.reconciler.AdvanceTurn(gs.NPCs[i].Stats)
	}
}

// soften filters profanity from narration unless the session allows
// explicit content.
func (e *Engine) soften(gs *state.GameState, resp *response.CoreResponse) {
	if !textfilter.Applies(gs.Settings.ExplicitContent) {
		return
	}
	text := resp.StoryText + "\n" + strings.Join(resp.Choices, "\n")
	if !e.profanity.ContainsProfanity(text) {
		return
	}
	e.profanity.Narration(&resp.StoryText, resp.Choices)
	e.logger.Debug("Narration filtered", "game_state_id", gs.ID.String())
}

// reconcile folds a validated core response into gs in place.
func (e *Engine) reconcile(gs *state.GameState, resp *response.CoreResponse) {
	beforeStats := gs.PlayerStats.Clone()
	beforeNPCs := make([]entity.NPC, len(gs.NPCs))
	for i, n := range gs.NPCs {
		beforeNPCs[i] = n.Clone()
	}
	beforeLocs := slices.Clone(gs.Locations)

	gs.PlayerStats = e.reconciler.MergeUpdates(gs.PlayerStats, resp.StatUpdates)
	gs.PlayerStatOrder = stats.NormalizeOrder(gs.PlayerStatOrder, gs.PlayerStats, e.cfg.Core)

	npcUpdates, locUpdates := entity.Disambiguate(resp.NPCUpdates, resp.LocationUpdates, gs.NPCs, gs.Locations, e.logger)
	gs.NPCs = entity.Apply(e.npcKind, gs.NPCs, npcUpdates, e.logger)
	gs.Locations = entity.Apply(entity.LocationKind{}, gs.Locations, locUpdates, e.logger)
	gs.PresentNPCIDs = resolvePresent(gs.NPCs, resp.PresentNPCIDs)

	if info := strings.TrimSpace(resp.WorldInfoUpdate); info != "" {
		gs.WorldInfo = info
	}

	gs.RecentlyUpdated = state.RecentlyUpdated{
		Stats:     changedStats(beforeStats, gs.PlayerStats),
		NPCs:      changedNPCs(beforeNPCs, gs.NPCs),
		Locations: changedLocations(beforeLocs, gs.Locations),
	}

	if resp.NewSkill != nil && gs.PendingSkill == nil {
		if _, known := gs.SkillByName(resp.NewSkill.Name); !known {
			gs.PendingSkill = &state.PendingSkill{Skill: resp.NewSkill.Clone(), Origin: state.SkillFromNarrative}
			e.logger.Info("Skill suggested by narrative", "game_state_id", gs.ID.String(), "skill", resp.NewSkill.Name)
		}
	}
}

// resolvePresent keeps the ids that name a known NPC, matching by id first
// and then by slugged name.
func resolvePresent(npcs []entity.NPC, ids []string) []string {
	out := []string{}
	seen := entity.NewIDSet()
	for _, raw := range ids {
		id := entity.CanonicalID(raw)
		match := ""
		for _, n := range npcs {
			if entity.CanonicalID(n.ID) == id {
				match = n.ID
				break
			}
		}
		if match == "" {
			for _, n := range npcs {
				if entity.Slug(n.Name) == entity.Slug(raw) {
					match = n.ID
					break
				}
			}
		}
		if match == "" || seen.Has(match) {
			continue
		}
		seen.Add(match)
		out = append(out, match)
	}
	return out
}

func flavorRequest(messages []chat.ChatMessage, model string) services.GenerateRequest {
	return services.GenerateRequest{Messages: messages, Model: model, Temperature: services.Temperature(0.7)}
}

func recallState(gs *state.GameState) chronicle.RecallState {
	rs := chronicle.RecallState{StatNames: gs.PlayerStats.Names()}
	for _, l := range gs.Locations {
		rs.LocationNames = append(rs.LocationNames, l.Name)
	}
	return rs
}

func changedStats(before, after stats.Map) []string {
	out := []string{}
	for _, name := range after.Names() {
		prev, ok := before[name]
		if !ok || !reflect.DeepEqual(prev, after[name]) {
			out = append(out, name)
		}
	}
	return out
}

func changedNPCs(before, after []entity.NPC) []string {
	out := []string{}
	for _, n := range after {
		prev, ok := entity.Find(entity.NPCKind{}, before, n.ID)
		prev.SortOrder = n.SortOrder
		if !ok || !reflect.DeepEqual(prev, n) {
			out = append(out, n.ID)
		}
	}
	return out
}

func changedLocations(before, after []entity.Location) []string {
	out := []string{}
	for _, l := range after {
		prev, ok := entity.Find(entity.LocationKind{}, before, l.ID)
		prev.SortOrder = l.SortOrder
		if !ok || prev != l {
			out = append(out, l.ID)
		}
	}
	return out
}

func union(a, b []string) []string {
	out := slices.Clone(a)
	for _, s := range b {
		if !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	if out == nil {
		out = []string{}
	}
	return out
}
