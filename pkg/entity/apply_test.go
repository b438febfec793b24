package entity

import (
	"log/slog"
	"os"
	"testing"

	"github.com/jwebster45206/chronicle-engine/pkg/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func npcKind() NPCKind {
	return NPCKind{Stats: stats.NewReconciler(stats.DefaultCoreStats, testLogger()), Logger: testLogger()}
}

func str(s string) *string { return &s }

func TestApply_IDStability(t *testing.T) {
	k := npcKind()
	updates := []NPCUpdate{
		{Action: "CREATE", ID: "x", Name: str("Guard")},
		{Action: "UPDATE", ID: "x", Name: str("Lord Arin")},
	}

	out := Apply(k, nil, updates, testLogger())

	require.Len(t, out, 1)
	assert.Equal(t, "x", out[0].ID)
	assert.Equal(t, "Lord Arin", out[0].Name)
}

func TestApply_DuplicateCreateInSameBatch(t *testing.T) {
	k := npcKind()
	updates := []NPCUpdate{
		{Action: "CREATE", ID: "linh_gac", Name: str("Lính gác"), Gender: str("nam")},
		{Action: "CREATE", ID: "linh_gac", Name: str("Lính gác cổng"), Appearance: str("giáp sắt")},
	}

	out := Apply(k, nil, updates, testLogger())

	require.Len(t, out, 1, "second CREATE must merge, not duplicate")
	assert.Equal(t, "Lính gác cổng", out[0].Name)
	assert.Equal(t, "nam", out[0].Gender)
	assert.Equal(t, "giáp sắt", out[0].Appearance)
	assert.Equal(t, 0, out[0].SortOrder)
}

func TestApply_ProtectedDelete(t *testing.T) {
	k := npcKind()
	npcs := []NPC{
		{ID: "mentor", Name: "Old Mentor", IsProtected: true, SortOrder: 0},
		{ID: "thug", Name: "Thug", SortOrder: 1},
	}

	out := Apply(k, npcs, []NPCUpdate{{Action: "DELETE", ID: "mentor"}}, testLogger())
	assert.Equal(t, npcs, out, "protected entity list must be unchanged")

	out = Apply(k, npcs, []NPCUpdate{{Action: "DELETE", ID: "thug"}}, testLogger())
	require.Len(t, out, 1)
	assert.Equal(t, "mentor", out[0].ID)
}

func TestApply_DeleteRepacksSortOrder(t *testing.T) {
	k := LocationKind{}
	locs := []Location{
		{ID: "gate", Name: "Gate", SortOrder: 0},
		{ID: "hall", Name: "Hall", SortOrder: 1},
		{ID: "well", Name: "Well", SortOrder: 2},
	}

	out := Apply(k, locs, []LocationUpdate{{Action: "DELETE", ID: "hall"}}, testLogger())

	require.Len(t, out, 2)
	assert.Equal(t, "gate", out[0].ID)
	assert.Equal(t, 0, out[0].SortOrder)
	assert.Equal(t, "well", out[1].ID)
	assert.Equal(t, 1, out[1].SortOrder)
	assert.Equal(t, 2, locs[2].SortOrder, "input must not be mutated")
}

func TestApply_StripsNarrativeFields(t *testing.T) {
	k := npcKind()
	npcs := []NPC{{ID: "mei", Name: "Mei", Status: "resting", LastInteractionSummary: "shared tea"}}
	updates := []NPCUpdate{{
		Action:                 "UPDATE",
		ID:                     "mei",
		Status:                 str("furious"),
		LastInteractionSummary: str("model overreach"),
	}}

	out := Apply(k, npcs, updates, testLogger())

	assert.Equal(t, "resting", out[0].Status)
	assert.Equal(t, "shared tea", out[0].LastInteractionSummary)
}

func TestApply_FixedFieldsDoNotChange(t *testing.T) {
	k := npcKind()
	npcs := []NPC{{ID: "mei", Name: "Mei", Personality: "stoic", RelationshipToPlayer: "rival"}}
	updates := []NPCUpdate{{Action: "UPDATE", ID: "mei", Personality: str("bubbly"), RelationshipToPlayer: str("lover")}}

	out := Apply(k, npcs, updates, testLogger())

	assert.Equal(t, "stoic", out[0].Personality)
	assert.Equal(t, "rival", out[0].RelationshipToPlayer)

	npcs[0].Personality = ""
	out = Apply(k, npcs, updates, testLogger())
	assert.Equal(t, "bubbly", out[0].Personality, "empty fixed field may be filled")
}

func TestApply_NestedStatsMerge(t *testing.T) {
	k := npcKind()
	npcs := []NPC{{
		ID:   "mei",
		Name: "Mei",
		Stats: stats.Map{
			"Wound": {Value: stats.Text("light"), History: []string{"none"}},
		},
	}}
	updates := []NPCUpdate{{
		Action: "UPDATE",
		ID:     "mei",
		Stats: []stats.Update{
			{StatName: "Wound", Value: stats.Text("deep")},
			{StatName: "Resolve", Value: stats.Text("wavering")},
		},
	}}

	out := Apply(k, npcs, updates, testLogger())

	require.Len(t, out[0].Stats, 2)
	assert.Equal(t, "deep", out[0].Stats["Wound"].Value.String())
	assert.Equal(t, []string{"none"}, out[0].Stats["Wound"].History)
	assert.Equal(t, "light", npcs[0].Stats["Wound"].Value.String(), "input must not be mutated")
}

func TestApply_MintsIDsAndResolvesNames(t *testing.T) {
	k := npcKind()
	npcs := []NPC{{ID: "tran_binh", Name: "Trần Bình", SortOrder: 0}}
	updates := []NPCUpdate{
		{Action: "CREATE", Name: str("Trần Bình")},
		{Action: "CREATE", Name: str("Lão Hạc")},
		{Action: "UPDATE", ID: "Lao_Hac ", Appearance: str("gầy gò")},
		{Action: "UPDATE", ID: "ghost"},
		{Action: "EXPLODE", ID: "tran_binh"},
	}

	out := Apply(k, npcs, updates, testLogger())

	require.Len(t, out, 2)
	assert.Equal(t, "lao_hac", out[1].ID)
	assert.Equal(t, "gầy gò", out[1].Appearance)
	assert.Equal(t, 1, out[1].SortOrder)
}

func TestApply_UpdateUnknownWithNameCreates(t *testing.T) {
	out := Apply(LocationKind{}, nil, []LocationUpdate{{Action: "update", ID: "old_mill", Name: str("Old Mill")}}, testLogger())
	require.Len(t, out, 1)
	assert.Equal(t, "old_mill", out[0].ID)
}
