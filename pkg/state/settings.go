package state

// Perspective selects the narrative voice.
type Perspective string

const (
	PerspectiveFirst  Perspective = "first"
	PerspectiveSecond Perspective = "second"
	PerspectiveThird  Perspective = "third"
)

// Difficulty selects how kind fate is to the player.
type Difficulty string

const (
	DifficultyGentle   Difficulty = "gentle"
	DifficultyBalanced Difficulty = "balanced"
	DifficultyHarsh    Difficulty = "harsh"
	DifficultyBrutal   Difficulty = "brutal"
)

// LogicMode selects the base logic layer. Exactly one is always active.
type LogicMode string

const (
	// LogicStrict narrates impossible actions as failed attempts.
	LogicStrict LogicMode = "strict"
	// LogicAuthor lets the player's action succeed regardless of prior constraints.
	LogicAuthor LogicMode = "author"
)

// Settings are the per-session gameplay toggles.
type Settings struct {
	Perspective          Perspective `json:"perspective"`
	Difficulty           Difficulty  `json:"difficulty"`
	Logic                LogicMode   `json:"logic"`
	StrictInterpretation bool        `json:"strictInterpretation,omitempty"`
	ExplicitContent      bool        `json:"explicitContent,omitempty"`
	ExplicitFlavor       string      `json:"explicitFlavor,omitempty"`
	NPCResolveDecay      bool        `json:"npcResolveDecay,omitempty"`
	Mercy                bool        `json:"mercy,omitempty"`
	ImageGeneration      bool        `json:"imageGeneration,omitempty"`
	Language             string      `json:"language,omitempty"`
}

// DefaultSettings returns the settings used for a fresh session.
func DefaultSettings() Settings {
	return Settings{
		Perspective: PerspectiveSecond,
		Difficulty:  DifficultyBalanced,
		Logic:       LogicStrict,
	}
}

// WithDefaults fills unset or unknown enum fields.
func (s Settings) WithDefaults() Settings {
	switch s.Perspective {
	case PerspectiveFirst, PerspectiveSecond, PerspectiveThird:
	default:
		s.Perspective = PerspectiveSecond
	}
	switch s.Difficulty {
	case DifficultyGentle, DifficultyBalanced, DifficultyHarsh, DifficultyBrutal:
	default:
		s.Difficulty = DifficultyBalanced
	}
	if s.Logic != LogicAuthor {
		s.Logic = LogicStrict
	}
	return s
}
