package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/chronicle-engine/pkg/response"
	"github.com/jwebster45206/chronicle-engine/pkg/state"
	"github.com/jwebster45206/chronicle-engine/pkg/stats"
)

const ironBodyJSON = `{"name": "Iron Body", "description": "Skin hardened by qi", "abilities": [{"name": "Stone Skin", "description": "Shrug off a blow"}]}`

func TestRequestSkillFromStat(t *testing.T) {
	gs := baseState()
	gs.PlayerStats["Endurance"] = stats.Stat{Value: stats.Text("remarkable")}
	gen := newScripted(map[string]string{string(response.SchemaSkill): ironBodyJSON})
	e := newTestEngine(t, gen, gs)

	next, err := e.RequestSkillFromStat(context.Background(), "Endurance")
	require.NoError(t, err)
	require.NotNil(t, next.PendingSkill)
	assert.Equal(t, "Iron Body", next.PendingSkill.Skill.Name)
	assert.Equal(t, state.SkillFromStat, next.PendingSkill.Origin)
	assert.Equal(t, "Endurance", next.PendingSkill.SourceStat)
	assert.Empty(t, next.Skills, "staged skills are not learned")

	prompt := userText(gen.calls(string(response.SchemaSkill))[0])
	assert.Contains(t, prompt, "Endurance: remarkable")
}

func TestRequestSkillFromStat_UnknownStat(t *testing.T) {
	e := newTestEngine(t, newScripted(nil), baseState())
	_, err := e.RequestSkillFromStat(context.Background(), "Nonexistent")
	assert.Error(t, err)
	assert.False(t, e.Busy())
}

func TestRequestCustomPower(t *testing.T) {
	gen := newScripted(map[string]string{string(response.SchemaSkill): `{"skill": {"name": "Shadow Step", "description": "Blink between shadows"}}`})
	e := newTestEngine(t, gen, baseState())

	next, err := e.RequestCustomPower(context.Background(), "Shadow Step", "Move through shadows")
	require.NoError(t, err)
	require.NotNil(t, next.PendingSkill)
	assert.Equal(t, state.SkillFromCustom, next.PendingSkill.Origin)
	assert.Equal(t, "Shadow Step", next.PendingSkill.Skill.Name)

	_, err = e.RequestCustomPower(context.Background(), " ", "nameless")
	assert.Error(t, err)
}

func TestRequestSkill_SchemaViolation(t *testing.T) {
	gen := newScripted(map[string]string{string(response.SchemaSkill): `{"description": "no name"}`})
	e := newTestEngine(t, gen, baseState())

	_, err := e.RequestCustomPower(context.Background(), "Nameless", "")
	var engErr *Error
	require.True(t, errors.As(err, &engErr))
	assert.Equal(t, KindSchema, engErr.Kind)
	assert.Nil(t, e.State().PendingSkill)
}

func TestConfirmSkill(t *testing.T) {
	gs := baseState()
	gs.PlayerStats[UnlearnedStatName("Iron Body")] = stats.Stat{Value: stats.Text("unlearned")}
	gs.PendingSkill = &state.PendingSkill{
		Skill:  state.Skill{Name: "Iron Body", Description: "Skin hardened by qi", Abilities: []state.Ability{}},
		Origin: state.SkillFromNarrative,
	}
	e := newTestEngine(t, newScripted(nil), gs)

	next, err := e.ConfirmSkill()
	require.NoError(t, err)
	require.Len(t, next.Skills, 1)
	assert.Equal(t, "Iron Body", next.Skills[0].Name)
	assert.Nil(t, next.PendingSkill)
	assert.NotContains(t, next.PlayerStats, UnlearnedStatName("Iron Body"))
	assert.NotContains(t, next.PlayerStatOrder, UnlearnedStatName("Iron Body"))
	assert.Equal(t, 1, e.UndoDepth())

	_, err = e.ConfirmSkill()
	assert.ErrorIs(t, err, ErrNoPendingSkill)
}

func TestConfirmSkill_ReplacesSameName(t *testing.T) {
	gs := baseState()
	gs.Skills = []state.Skill{{Name: "iron body", Description: "old", Abilities: []state.Ability{}}}
	gs.PendingSkill = &state.PendingSkill{Skill: state.Skill{Name: "Iron Body", Description: "new", Abilities: []state.Ability{}}}
	e := newTestEngine(t, newScripted(nil), gs)

	next, err := e.ConfirmSkill()
	require.NoError(t, err)
	require.Len(t, next.Skills, 1)
	assert.Equal(t, "new", next.Skills[0].Description)
}

func TestDeclineSkill(t *testing.T) {
	gs := baseState()
	gs.PendingSkill = &state.PendingSkill{Skill: state.Skill{Name: "Iron Body", Description: "Skin hardened by qi"}}
	e := newTestEngine(t, newScripted(nil), gs)

	next, err := e.DeclineSkill()
	require.NoError(t, err)
	assert.Empty(t, next.Skills)
	assert.Nil(t, next.PendingSkill)
	placeholder := UnlearnedStatName("Iron Body")
	require.Contains(t, next.PlayerStats, placeholder)
	assert.Equal(t, "Skin hardened by qi", next.PlayerStats[placeholder].Value.String())
	assert.Contains(t, next.PlayerStatOrder, placeholder)

	_, err = e.DeclineSkill()
	assert.ErrorIs(t, err, ErrNoPendingSkill)
}
