package response

import (
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestParseJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"plain object", `{"a":1}`, false},
		{"fenced", "```json\n{\"a\":\"x```\"}\n```", false},
		{"bare fence", "```\n[1,2]\n```", false},
		{"prose", "Sure! Here is the JSON: {}", true},
		{"empty", "   ", true},
		{"broken", `{"a":`, true},
		{"trailing garbage", `{"a":1} {"b":2}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := ParseJSON(tt.input)
			if tt.wantErr {
				var verr *ValidationError
				require.True(t, errors.As(err, &verr), "expected *ValidationError, got %v", err)
				assert.Equal(t, tt.input, verr.Raw, "raw text is carried for display")
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, v)
		})
	}
}

func TestParseJSON_SanitizesStringLeaves(t *testing.T) {
	v, err := ParseJSON("```json\n{\"storyText\":\"  The end.```  \",\"list\":[\"a```\"]}\n```")
	require.NoError(t, err)
	m := v.(map[string]any)
	assert.Equal(t, "The end.", m["storyText"])
	assert.Equal(t, []any{"a"}, m["list"])
}

func TestDecodeCore_Defaults(t *testing.T) {
	resp, err := DecodeCore(`{"storyText":"You step inside."}`, testLogger())
	require.NoError(t, err)

	assert.Equal(t, "You step inside.", resp.StoryText)
	assert.Len(t, resp.Choices, ChoiceCount)
	assert.Equal(t, DefaultChoices, resp.Choices)
	assert.NotNil(t, resp.StatUpdates)
	assert.NotNil(t, resp.NPCUpdates)
	assert.NotNil(t, resp.LocationUpdates)
	assert.NotNil(t, resp.PresentNPCIDs)
	assert.False(t, resp.IsSceneBreak)
	assert.Nil(t, resp.NewSkill)
}

func TestDecodeCore_PlaceholderStory(t *testing.T) {
	resp, err := DecodeCore(`{"choices":["Run"]}`, testLogger())
	require.NoError(t, err)
	assert.Equal(t, PlaceholderStory, resp.StoryText)
	assert.Equal(t, "Run", resp.Choices[0])
}

func TestDecodeCore_Rejects(t *testing.T) {
	for _, input := range []string{
		`[1,2,3]`,
		`{"unrelated":true}`,
		`{"storyText":{"text":"nested"}}`,
		`not json at all`,
	} {
		_, err := DecodeCore(input, testLogger())
		var verr *ValidationError
		assert.True(t, errors.As(err, &verr), input)
	}
}

func TestDecodeCore_DropsMalformedEntries(t *testing.T) {
	input := `{
		"storyText": "Steel rings.",
		"choices": ["Parry", "parry", "", "Flee", 7, "Shout", "Pray"],
		"statUpdates": [
			{"statName": "Health", "value": "Wounded"},
			{"statName": "", "value": "x"},
			{"statName": "Luck", "value": "   "},
			{"statName": "Poison", "value": "Mild", "duration": "3"},
			{"statName": "Gold", "value": 12},
			"junk"
		],
		"npcUpdates": [
			{"action": "CREATE", "id": "Linh Gac", "name": "Linh Gác", "status": "angry",
			 "stats": [{"statName": "Morale", "value": "low"}, {"statName": "Bad"}]},
			{"action": "UPDATE", "name": "No Id"},
			{"action": "ADD", "name": "Nameless Monk"},
			{"action": "EXPLODE", "id": "x"},
			{"id": "y"}
		],
		"locationUpdates": [{"action": "delete", "id": "old_mill"}, {"action": "UPDATE"}],
		"presentNpcIds": ["Linh Gac", "linh_gac", ""],
		"isMajorEvent": "true",
		"isSceneBreak": "maybe",
		"newSkill": {"name": "Iron Palm", "description": "Hard hands", "abilities": [{"name": "Chop"}, {"description": "no name"}]},
		"worldInfoUpdate": "The capital burns."
	}`

	resp, err := DecodeCore(input, testLogger())
	require.NoError(t, err)

	assert.Equal(t, []string{"Parry", "Flee", "7", "Shout"}, resp.Choices)

	require.Len(t, resp.StatUpdates, 3)
	assert.Equal(t, "Health", resp.StatUpdates[0].StatName)
	assert.Equal(t, "Poison", resp.StatUpdates[1].StatName)
	require.NotNil(t, resp.StatUpdates[1].Duration)
	assert.Equal(t, 3, *resp.StatUpdates[1].Duration)
	assert.True(t, resp.StatUpdates[2].Value.IsNumber())

	require.Len(t, resp.NPCUpdates, 2)
	assert.Equal(t, "Linh Gac", resp.NPCUpdates[0].ID)
	require.Len(t, resp.NPCUpdates[0].Stats, 1)
	assert.Equal(t, "Morale", resp.NPCUpdates[0].Stats[0].StatName)
	assert.Equal(t, "ADD", resp.NPCUpdates[1].Action)

	require.Len(t, resp.LocationUpdates, 1)
	assert.Equal(t, []string{"linh_gac"}, resp.PresentNPCIDs)
	assert.True(t, resp.IsMajorEvent)
	assert.False(t, resp.IsSceneBreak)
	require.NotNil(t, resp.NewSkill)
	assert.Equal(t, "Iron Palm", resp.NewSkill.Name)
	require.Len(t, resp.NewSkill.Abilities, 1)
	assert.Equal(t, "The capital burns.", resp.WorldInfoUpdate)
}

func TestDecodeOpening(t *testing.T) {
	resp, err := DecodeOpening(`{"storyText":"Dawn.","skills":[{"name":"Swim","abilities":[]},{"description":"nameless"}]}`, testLogger())
	require.NoError(t, err)
	assert.Equal(t, "Dawn.", resp.StoryText)
	require.Len(t, resp.Skills, 1)
	assert.Equal(t, "Swim", resp.Skills[0].Name)

	resp, err = DecodeOpening(`{"storyText":"Dawn."}`, testLogger())
	require.NoError(t, err)
	assert.NotNil(t, resp.Skills)
}

func TestParseFreeTextNPCUpdates(t *testing.T) {
	text := `Here are the updates:
id: mei | status: Furious | summary: Mei slapped you.
- ID: Lao Hac | Summary: Went fishing | Status: calm
id: ghost | status: fading
random prose line
status: x | summary: y
**id**: guard | status: asleep | summary: Snoring at the gate`

	got := ParseFreeTextNPCUpdates(text)

	require.Len(t, got, 3)
	assert.Equal(t, "Furious", got["mei"].Status)
	assert.Equal(t, "Mei slapped you.", got["mei"].Summary)
	assert.Equal(t, "calm", got["lao_hac"].Status)
	assert.Equal(t, "Went fishing", got["lao_hac"].Summary)
	assert.Equal(t, "asleep", got["guard"].Status)
}

func TestParseSkill(t *testing.T) {
	sk, err := ParseSkill("```json\n{\"skill\":{\"name\":\"Wind Step\",\"description\":\"Fast\",\"abilities\":[{\"name\":\"Dash\",\"description\":\"Move\"}]}}\n```")
	require.NoError(t, err)
	assert.Equal(t, "Wind Step", sk.Name)
	require.Len(t, sk.Abilities, 1)

	_, err = ParseSkill(`{"description":"no name"}`)
	var verr *ValidationError
	assert.True(t, errors.As(err, &verr))
}

func TestParseChronicle(t *testing.T) {
	d, err := ParseChronicle(`{"summary":"Mei left.","eventType":"betrayal","involvedNpcIds":"mei","plotSignificanceScore":"7"}`)
	require.NoError(t, err)
	assert.Equal(t, "Mei left.", d.Summary)
	assert.Nil(t, d.InvolvedNPCIDs, "non-list ids are dropped for defaulting")
	assert.Equal(t, "7", d.PlotSignificanceScore)

	d, err = ParseChronicle(`{"entry":{"summary":"Wrapped."}}`)
	require.NoError(t, err)
	assert.Equal(t, "Wrapped.", d.Summary)

	_, err = ParseChronicle(`"just a string"`)
	assert.Error(t, err)
}

func TestSchema(t *testing.T) {
	for _, kind := range SchemaKinds() {
		s := Schema(kind)
		require.NotNil(t, s, kind)
		assert.Equal(t, "object", s["type"], kind)
		_, hasVersion := s["$schema"]
		assert.False(t, hasVersion)
	}

	core := Schema(SchemaCore)
	props := core["properties"].(map[string]any)
	for _, key := range []string{"storyText", "choices", "statUpdates", "npcUpdates", "locationUpdates", "newSkill", "presentNpcIds", "isMajorEvent", "isSceneBreak"} {
		assert.Contains(t, props, key)
	}
	assert.Contains(t, core["required"], "isSceneBreak")
	assert.NotContains(t, core["required"], "newSkill")

	opening := Schema(SchemaOpening)
	assert.Contains(t, opening["properties"].(map[string]any), "skills")
	assert.Contains(t, opening["properties"].(map[string]any), "storyText")

	core["type"] = "mutated"
	assert.Equal(t, "object", Schema(SchemaCore)["type"], "callers get a fresh copy")
	assert.Nil(t, Schema("unknown"))
}
