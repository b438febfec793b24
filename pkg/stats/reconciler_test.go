package stats

import (
	"encoding/json"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testReconciler() *Reconciler {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewReconciler(DefaultCoreStats, logger)
}

func intPtr(i int) *int { return &i }

func boolPtr(b bool) *bool { return &b }

func TestMerge_PreservesUnspecifiedFields(t *testing.T) {
	r := testReconciler()
	base := Map{
		"Wound": {
			Value:    Text("light"),
			History:  []string{"a", "b"},
			Duration: intPtr(4),
			Evolution: &Evolution{
				After:     1,
				Becomes:   "Scar",
				WithValue: Text("faded"),
			},
		},
		"Torch": {Value: Text("lit"), IsItem: boolPtr(true)},
	}
	updates := Map{"Wound": {Value: Text("x")}}

	merged := r.Merge(base, updates)

	wound := merged["Wound"]
	assert.Equal(t, "x", wound.Value.String())
	assert.Equal(t, []string{"a", "b"}, wound.History)
	require.NotNil(t, wound.Duration)
	assert.Equal(t, 4, *wound.Duration)
	require.NotNil(t, wound.Evolution)
	assert.Equal(t, "Scar", wound.Evolution.Becomes)

	_, ok := merged["Torch"]
	assert.True(t, ok, "keys absent from the update must survive")

	// base must not be mutated
	assert.Equal(t, "light", base["Wound"].Value.String())
}

func TestMerge_InsertsNewKeys(t *testing.T) {
	r := testReconciler()
	merged := r.Merge(Map{"Health": {Value: Text("fine")}}, Map{"Poisoned": {Value: Text("mild"), Duration: intPtr(3)}})

	if len(merged) != 2 {
		t.Fatalf("expected 2 stats, got %d", len(merged))
	}
	if merged["Poisoned"].Duration == nil || *merged["Poisoned"].Duration != 3 {
		t.Errorf("expected duration 3 on new stat, got %v", merged["Poisoned"].Duration)
	}
}

func TestMerge_StripsDurationFromCoreStats(t *testing.T) {
	r := testReconciler()
	merged := r.Merge(Map{"Health": {Value: Text("fine")}}, Map{"Health": {Value: Text("hurt"), Duration: intPtr(2)}})

	if merged["Health"].Duration != nil {
		t.Errorf("core stat should never carry a duration, got %d", *merged["Health"].Duration)
	}
	if merged["Health"].Value.String() != "hurt" {
		t.Errorf("expected value hurt, got %s", merged["Health"].Value)
	}
}

func TestMergeUpdates_DropsMalformedEntries(t *testing.T) {
	r := testReconciler()
	base := Map{"Health": {Value: Text("fine")}}
	updates := []Update{
		{StatName: "", Value: Text("ignored")},
		{StatName: "Blessed"},
		{StatName: "  Cursed  ", Value: Text("weak"), Duration: intPtr(2)},
		{StatName: "Health", Value: Number(80)},
	}

	merged := r.MergeUpdates(base, updates)

	if _, ok := merged["Blessed"]; ok {
		t.Error("update without value should be dropped")
	}
	if _, ok := merged["Cursed"]; !ok {
		t.Error("expected trimmed stat name Cursed to be inserted")
	}
	if got := merged["Health"].Value.String(); got != "80" {
		t.Errorf("expected numeric health 80, got %q", got)
	}
	if len(merged) != 2 {
		t.Errorf("expected 2 stats, got %d", len(merged))
	}
}

func TestMergeUpdates_MatchesNamesIgnoringCase(t *testing.T) {
	r := testReconciler()
	base := Map{
		"Health": {Value: Text("healthy")},
		"Torch":  {Value: Text("lit"), IsItem: boolPtr(true)},
	}
	updates := []Update{
		{StatName: "health", Value: Text("wounded")},
		{StatName: "TORCH", Value: Text("guttering")},
		{StatName: "sanity", Value: Text("shaken")},
	}

	merged := r.MergeUpdates(base, updates)

	require.Len(t, merged, 3)
	assert.Equal(t, "wounded", merged["Health"].Value.String())
	assert.Equal(t, "guttering", merged["Torch"].Value.String())
	assert.True(t, merged["Torch"].Item())
	assert.Equal(t, "shaken", merged["Sanity"].Value.String(), "new core stat takes its display name")
	assert.NotContains(t, merged, "health")
	assert.NotContains(t, merged, "sanity")

	merged = r.Merge(base, Map{"HEALTH": {Value: Text("bleeding")}})
	assert.Equal(t, "bleeding", merged["Health"].Value.String())
	assert.NotContains(t, merged, "HEALTH")
}

func TestAdvanceTurn_Decay(t *testing.T) {
	tests := []struct {
		name         string
		stats        Map
		expectKey    string
		expectExists bool
		expectDur    *int
	}{
		{
			name:         "decrements duration above one",
			stats:        Map{"Haste": {Value: Text("on"), Duration: intPtr(3)}},
			expectKey:    "Haste",
			expectExists: true,
			expectDur:    intPtr(2),
		},
		{
			name:         "removes stat at duration one",
			stats:        Map{"Haste": {Value: Text("on"), Duration: intPtr(1)}},
			expectKey:    "Haste",
			expectExists: false,
		},
		{
			name:         "removes stat at duration zero",
			stats:        Map{"Haste": {Value: Text("on"), Duration: intPtr(0)}},
			expectKey:    "Haste",
			expectExists: false,
		},
		{
			name:         "permanent stat untouched",
			stats:        Map{"Scar": {Value: Text("old")}},
			expectKey:    "Scar",
			expectExists: true,
		},
		{
			name:         "core stat never removed",
			stats:        Map{"Health": {Value: Text("fine"), Duration: intPtr(1)}},
			expectKey:    "Health",
			expectExists: true,
		},
		{
			name:         "core stat matched case-insensitively",
			stats:        Map{"health": {Value: Text("fine"), Duration: intPtr(0)}},
			expectKey:    "health",
			expectExists: true,
		},
	}

	r := testReconciler()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := r.AdvanceTurn(tt.stats)
			s, ok := out[tt.expectKey]
			if ok != tt.expectExists {
				t.Fatalf("expected exists=%v, got %v", tt.expectExists, ok)
			}
			if !ok {
				return
			}
			if tt.expectDur == nil {
				if s.Duration != nil {
					t.Errorf("expected no duration, got %d", *s.Duration)
				}
				return
			}
			if s.Duration == nil || *s.Duration != *tt.expectDur {
				t.Errorf("expected duration %d, got %v", *tt.expectDur, s.Duration)
			}
		})
	}
}

func TestAdvanceTurn_EvolutionPrecedence(t *testing.T) {
	r := testReconciler()
	stats := Map{
		"Fresh Wound": {
			Value:    Text("bleeding"),
			Duration: intPtr(1),
			History:  []string{"scratch"},
			Evolution: &Evolution{
				After:        2,
				Becomes:      "Scar",
				WithValue:    Text("pale line"),
				WithDuration: intPtr(5),
			},
		},
		"Hunger": {Value: Text("peckish"), Duration: intPtr(4)},
	}

	out := r.AdvanceTurn(stats)

	_, ok := out["Fresh Wound"]
	assert.False(t, ok, "original key should disappear")
	scar, ok := out["Scar"]
	require.True(t, ok, "evolved stat should exist")
	assert.Equal(t, "pale line", scar.Value.String())
	require.NotNil(t, scar.Duration)
	assert.Equal(t, 5, *scar.Duration, "evolved duration is taken verbatim")
	assert.Equal(t, 3, *out["Hunger"].Duration)

	// input must not be mutated
	assert.Equal(t, 1, *stats["Fresh Wound"].Duration)
}

func TestAdvanceTurn_EvolutionNotYetDue(t *testing.T) {
	r := testReconciler()
	stats := Map{
		"Curse": {
			Value:     Text("creeping"),
			Duration:  intPtr(5),
			Evolution: &Evolution{After: 2, Becomes: "Doom", WithValue: Text("total")},
		},
	}

	out := r.AdvanceTurn(stats)
	if _, ok := out["Doom"]; ok {
		t.Fatal("evolution should not trigger above threshold")
	}
	if *out["Curse"].Duration != 4 {
		t.Errorf("expected duration 4, got %d", *out["Curse"].Duration)
	}
}

func TestAdvanceTurn_PermanentEvolvedStat(t *testing.T) {
	r := testReconciler()
	out := r.AdvanceTurn(Map{
		"Seed": {
			Value:     Text("sprouting"),
			Duration:  intPtr(1),
			Evolution: &Evolution{After: 1, Becomes: "Sapling", WithValue: Text("green")},
		},
	})
	sapling, ok := out["Sapling"]
	if !ok {
		t.Fatal("expected Sapling")
	}
	if sapling.Duration != nil {
		t.Errorf("evolution without duration should produce a permanent stat")
	}
}

func TestValue_JSON(t *testing.T) {
	var m Map
	data := []byte(`{"Gold":{"value":12,"isItem":true},"Mood":{"value":"calm","duration":2}}`)
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if !m["Gold"].Value.IsNumber() || m["Gold"].Value.String() != "12" {
		t.Errorf("expected numeric gold, got %v", m["Gold"].Value)
	}
	if !m["Gold"].Item() {
		t.Error("expected gold to be an item")
	}
	out, err := json.Marshal(m["Mood"])
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(out) != `{"value":"calm","duration":2}` {
		t.Errorf("unexpected encoding: %s", out)
	}
}
