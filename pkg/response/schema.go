package response

import (
	"encoding/json"
	"reflect"
	"sync"

	"github.com/invopop/jsonschema"
)

// The types below describe what the model is asked to produce. They mirror
// the decoded types but use plain text values so the schema stays simple for
// providers with limited schema support.

type evolutionSchema struct {
	After        int    `json:"after" jsonschema:"required,description=Remaining duration at which the stat transforms"`
	Becomes      string `json:"becomes" jsonschema:"required,description=Name of the stat it turns into"`
	WithValue    string `json:"withValue,omitempty" jsonschema:"description=Value of the new stat"`
	WithDuration *int   `json:"withDuration,omitempty" jsonschema:"description=Duration of the new stat; omit for permanent"`
}

type statUpdateSchema struct {
	StatName  string           `json:"statName" jsonschema:"required,description=Exact name of the stat or item"`
	Value     string           `json:"value" jsonschema:"required,description=New textual state label"`
	Duration  *int             `json:"duration,omitempty" jsonschema:"description=Turns remaining; omit for permanent"`
	IsItem    *bool            `json:"isItem,omitempty" jsonschema:"description=True for inventory items"`
	Evolution *evolutionSchema `json:"evolution,omitempty"`
}

type npcUpdateSchema struct {
	Action               string             `json:"action" jsonschema:"required,enum=CREATE,enum=UPDATE,enum=DELETE"`
	ID                   string             `json:"id" jsonschema:"required,description=Stable snake_case id; never change an existing id"`
	Name                 string             `json:"name,omitempty"`
	Gender               string             `json:"gender,omitempty"`
	Personality          string             `json:"personality,omitempty" jsonschema:"description=Set only on CREATE"`
	RelationshipToPlayer string             `json:"relationshipToPlayer,omitempty" jsonschema:"description=Set only on CREATE"`
	Identity             string             `json:"identity,omitempty"`
	Appearance           string             `json:"appearance,omitempty"`
	Virginity            string             `json:"virginity,omitempty"`
	Stats                []statUpdateSchema `json:"stats,omitempty"`
}

type locationUpdateSchema struct {
	Action      string `json:"action" jsonschema:"required,enum=CREATE,enum=UPDATE,enum=DELETE"`
	ID          string `json:"id" jsonschema:"required,description=Stable snake_case id"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
}

type abilitySchema struct {
	Name        string `json:"name" jsonschema:"required"`
	Description string `json:"description" jsonschema:"required"`
}

type skillSchema struct {
	Name        string          `json:"name" jsonschema:"required"`
	Description string          `json:"description" jsonschema:"required"`
	Abilities   []abilitySchema `json:"abilities" jsonschema:"required"`
}

type coreSchema struct {
	StoryText       string                 `json:"storyText" jsonschema:"required,description=Narration of what happens next"`
	Choices         []string               `json:"choices" jsonschema:"required,minItems=4,maxItems=4,description=Exactly four suggested next actions"`
	StatUpdates     []statUpdateSchema     `json:"statUpdates" jsonschema:"required"`
	NPCUpdates      []npcUpdateSchema      `json:"npcUpdates" jsonschema:"required"`
	LocationUpdates []locationUpdateSchema `json:"locationUpdates" jsonschema:"required"`
	NewSkill        *skillSchema           `json:"newSkill,omitempty" jsonschema:"description=A skill the player could now learn"`
	PresentNPCIDs   []string               `json:"presentNpcIds" jsonschema:"required,description=Ids of NPCs physically present in the scene"`
	IsMajorEvent    bool                   `json:"isMajorEvent" jsonschema:"required"`
	IsSceneBreak    bool                   `json:"isSceneBreak" jsonschema:"required,description=True when the current scene has concluded"`
	WorldInfoUpdate string                 `json:"worldInfoUpdate,omitempty" jsonschema:"description=Off-screen developments in the wider world"`
}

type openingSchema struct {
	coreSchema
	Skills []skillSchema `json:"skills" jsonschema:"required"`
}

type relationshipChangeSchema struct {
	NPCID  string `json:"npcId" jsonschema:"required"`
	Change string `json:"change" jsonschema:"required"`
}

type chronicleSchema struct {
	Summary               string                     `json:"summary" jsonschema:"required"`
	EventType             string                     `json:"eventType" jsonschema:"required,enum=combat,enum=romance,enum=discovery,enum=betrayal,enum=alliance,enum=death,enum=travel,enum=dialogue,enum=mystery,enum=power,enum=trade,enum=general"`
	InvolvedNPCIDs        []string                   `json:"involvedNpcIds" jsonschema:"required"`
	PlotSignificanceScore int                        `json:"plotSignificanceScore" jsonschema:"required,minimum=1,maximum=10"`
	RelationshipChanges   []relationshipChangeSchema `json:"relationshipChanges,omitempty"`
	KeyDetail             string                     `json:"keyDetail,omitempty" jsonschema:"description=A concrete detail that may matter later"`
	PotentialConsequence  string                     `json:"potentialConsequence,omitempty" jsonschema:"description=What this could lead to"`
}

// SchemaKind names a response schema.
type SchemaKind string

const (
	SchemaCore      SchemaKind = "core"
	SchemaOpening   SchemaKind = "opening"
	SchemaSkill     SchemaKind = "skill"
	SchemaChronicle SchemaKind = "chronicle"
)

var schemaTypes = map[SchemaKind]reflect.Type{
	SchemaCore:      reflect.TypeOf(coreSchema{}),
	SchemaOpening:   reflect.TypeOf(openingSchema{}),
	SchemaSkill:     reflect.TypeOf(skillSchema{}),
	SchemaChronicle: reflect.TypeOf(chronicleSchema{}),
}

var (
	schemaOnce  sync.Once
	schemaCache map[SchemaKind][]byte
)

// Schema returns a fresh JSON Schema document for kind as a generic map, ready
// to be sent to a provider or converted to its native schema type. It returns
// nil for unknown kinds.
func Schema(kind SchemaKind) map[string]any {
	schemaOnce.Do(buildSchemas)
	data, ok := schemaCache[kind]
	if !ok {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}

// SchemaKinds lists the available schemas.
func SchemaKinds() []SchemaKind {
	return []SchemaKind{SchemaCore, SchemaOpening, SchemaSkill, SchemaChronicle}
}

func buildSchemas() {
	reflector := jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		DoNotReference:             true,
		ExpandedStruct:             true,
	}
	schemaCache = make(map[SchemaKind][]byte, len(schemaTypes))
	for kind, typ := range schemaTypes {
		s := reflector.ReflectFromType(typ)
		data, err := json.Marshal(s)
		if err != nil {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal(data, &m); err != nil {
			continue
		}
		delete(m, "$schema")
		delete(m, "$id")
		data, err = json.Marshal(m)
		if err != nil {
			continue
		}
		schemaCache[kind] = data
	}
}
