package engine

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/jwebster45206/chronicle-engine/pkg/chat"
	"github.com/jwebster45206/chronicle-engine/pkg/prompts"
	"github.com/jwebster45206/chronicle-engine/pkg/response"
	"github.com/jwebster45206/chronicle-engine/pkg/state"
	"github.com/jwebster45206/chronicle-engine/pkg/stats"
)

// UnlearnedSuffix marks the placeholder stat left behind by a declined skill.
const UnlearnedSuffix = " (unlearned)"

// UnlearnedStatName is the placeholder stat name for a declined skill.
func UnlearnedStatName(skill string) string {
	return strings.TrimSpace(skill) + UnlearnedSuffix
}

// RequestSkillFromStat asks the model to shape a skill from an existing stat
// and stages it for confirmation.
func (e *Engine) RequestSkillFromStat(ctx context.Context, statName string) (*state.GameState, error) {
	gs := e.State()
	if gs == nil {
		return nil, ErrNotStarted
	}
	messages, err := prompts.SkillFromStatPrompt(e.cfg.Rules, gs, strings.TrimSpace(statName))
	if err != nil {
		return nil, err
	}
	return e.requestSkill(ctx, messages, state.SkillFromStat, strings.TrimSpace(statName))
}

// RequestCustomPower asks the model to shape a player-described power and
// stages it for confirmation.
func (e *Engine) RequestCustomPower(ctx context.Context, name, description string) (*state.GameState, error) {
	gs := e.State()
	if gs == nil {
		return nil, ErrNotStarted
	}
	messages, err := prompts.CustomPowerPrompt(e.cfg.Rules, gs, name, description)
	if err != nil {
		return nil, err
	}
	return e.requestSkill(ctx, messages, state.SkillFromCustom, "")
}

func (e *Engine) requestSkill(ctx context.Context, messages []chat.ChatMessage, origin state.SkillOrigin, source string) (*state.GameState, error) {
	if err := e.acquire(true); err != nil {
		return nil, err
	}
	base := e.State()
	ctx, span := e.tracer.Start(ctx, "engine.RequestSkill")
	defer span.End()
	span.SetAttributes(
		attribute.String("game_state_id", base.ID.String()),
		attribute.String("skill.origin", string(origin)),
	)

	e.notify(base.ID, PhaseAwaitingFirstResponse)
	res, err := e.call(ctx, messages, response.SchemaSkill, "")
	if err != nil {
		return nil, e.fail(span, base.ID, err)
	}
	skill, err := response.ParseSkill(res.Text)
	if err != nil {
		return nil, e.fail(span, base.ID, schemaError(err, res.Text))
	}

	next := base.Clone()
	next.PendingSkill = &state.PendingSkill{Skill: skill, Origin: origin, SourceStat: source}
	next.TotalRequests++
	next.TotalTokens += res.TotalTokens
	e.commit(next, false)
	e.logger.Info("Skill staged", "game_state_id", next.ID.String(), "skill", skill.Name, "origin", origin)
	return e.State(), nil
}

// ConfirmSkill folds the pending skill into the permanent list, replacing a
// skill of the same name, and removes its unlearned placeholder.
func (e *Engine) ConfirmSkill() (*state.GameState, error) {
	return e.edit(func(gs *state.GameState) error {
		if gs.PendingSkill == nil {
			return ErrNoPendingSkill
		}
		skill := gs.PendingSkill.Skill.Clone()
		if i, ok := gs.SkillByName(skill.Name); ok {
			gs.Skills[i] = skill
		} else {
			gs.Skills = append(gs.Skills, skill)
		}
		removeUnlearned(gs, skill.Name, e.cfg.Core)
		gs.PendingSkill = nil
		e.logger.Info("Skill learned", "game_state_id", gs.ID.String(), "skill", skill.Name)
		return nil
	})
}

// DeclineSkill discards the pending skill and leaves an unlearned placeholder
// stat so it can be taken up again later.
func (e *Engine) DeclineSkill() (*state.GameState, error) {
	return e.edit(func(gs *state.GameState) error {
		if gs.PendingSkill == nil {
			return ErrNoPendingSkill
		}
		p := gs.PendingSkill
		name := UnlearnedStatName(p.Skill.Name)
		desc := strings.TrimSpace(p.Skill.Description)
		if desc == "" {
			desc = "unlearned"
		}
		gs.PlayerStats[name] = stats.Stat{Value: stats.Text(desc)}
		gs.PlayerStatOrder = stats.NormalizeOrder(gs.PlayerStatOrder, gs.PlayerStats, e.cfg.Core)
		gs.PendingSkill = nil
		return nil
	})
}

func removeUnlearned(gs *state.GameState, skill string, core stats.CoreSet) {
	placeholder := UnlearnedStatName(skill)
	for name := range gs.PlayerStats {
		if !strings.EqualFold(name, placeholder) {
			continue
		}
		m, order, err := stats.Remove(gs.PlayerStats, gs.PlayerStatOrder, name, core)
		if err != nil {
			continue
		}
		gs.PlayerStats, gs.PlayerStatOrder = m, order
	}
}

// edit applies a synchronous local transition to a copy of the current state
// and commits it with an undo snapshot.
func (e *Engine) edit(fn func(gs *state.GameState) error) (*state.GameState, error) {
	if err := e.acquire(true); err != nil {
		return nil, err
	}
	next := e.State()
	if err := fn(next); err != nil {
		e.release()
		return nil, err
	}
	e.commit(next, true)
	return e.State(), nil
}

// stageEdit applies fn without an undo snapshot. Used for request/cancel steps.
func (e *Engine) stageEdit(fn func(gs *state.GameState) error) (*state.GameState, error) {
	if err := e.acquire(true); err != nil {
		return nil, err
	}
	next := e.State()
	if err := fn(next); err != nil {
		e.release()
		return nil, fmt.Errorf("failed to stage change: %w", err)
	}
	e.commit(next, false)
	return e.State(), nil
}
