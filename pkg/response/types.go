package response

import (
	"github.com/jwebster45206/chronicle-engine/pkg/entity"
	"github.com/jwebster45206/chronicle-engine/pkg/state"
	"github.com/jwebster45206/chronicle-engine/pkg/stats"
)

// ChoiceCount is the fixed number of suggested actions per turn.
const ChoiceCount = 4

// PlaceholderStory replaces a missing narrative.
const PlaceholderStory = "The story continues..."

// DefaultChoices pad a short choice list.
var DefaultChoices = []string{
	"Look around carefully",
	"Press onward",
	"Wait and observe",
	"Reflect on what just happened",
}

// CoreResponse is the validated result of the main narrative call.
type CoreResponse struct {
	StoryText       string                  `json:"storyText"`
	Choices         []string                `json:"choices"`
	StatUpdates     []stats.Update          `json:"statUpdates"`
	NPCUpdates      []entity.NPCUpdate      `json:"npcUpdates"`
	LocationUpdates []entity.LocationUpdate `json:"locationUpdates"`
	NewSkill        *state.Skill            `json:"newSkill,omitempty"`
	PresentNPCIDs   []string                `json:"presentNpcIds"`
	IsMajorEvent    bool                    `json:"isMajorEvent"`
	IsSceneBreak    bool                    `json:"isSceneBreak"`
	WorldInfoUpdate string                  `json:"worldInfoUpdate,omitempty"`
}

// OpeningResponse is the validated result of the opening call, which also
// seeds the starting skills.
type OpeningResponse struct {
	CoreResponse
	Skills []state.Skill `json:"skills"`
}

// Flavor text keyed by entity id, from the free-text flavor call.
type Flavor = map[string]entity.Flavor
