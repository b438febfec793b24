package prompts

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRulesYAML []byte

// Rules holds every instruction tier the composer can assemble.
type Rules struct {
	Base           string            `yaml:"base"`
	Perspectives   map[string]string `yaml:"perspectives"`
	Difficulty     map[string]string `yaml:"difficulty"`
	Logic          map[string]string `yaml:"logic"`
	Modules        Modules           `yaml:"modules"`
	AuthorOverride string            `yaml:"authorOverride"`
	Output         string            `yaml:"output"`
	Opening        string            `yaml:"opening"`
	Flavor         string            `yaml:"flavor"`
	Chronicle      string            `yaml:"chronicle"`
	SkillFromStat  string            `yaml:"skillFromStat"`
	CustomPower    string            `yaml:"customPower"`
}

// Modules are the situational rule modules toggled by settings.
type Modules struct {
	StrictInterpretation string `yaml:"strictInterpretation"`
	ExplicitContent      string `yaml:"explicitContent"`
	NPCResolveDecay      string `yaml:"npcResolveDecay"`
	Mercy                string `yaml:"mercy"`
}

// DefaultRules returns the embedded rule set.
func DefaultRules() *Rules {
	r, err := LoadRules(defaultRulesYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded rules.yaml is invalid: %v", err))
	}
	return r
}

// LoadRules parses a rule set and checks that the required tiers exist.
func LoadRules(data []byte) (*Rules, error) {
	var r Rules
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse rules: %w", err)
	}
	if strings.TrimSpace(r.Base) == "" {
		return nil, fmt.Errorf("rules: base is required")
	}
	for _, mode := range []string{"strict", "author"} {
		if strings.TrimSpace(r.Logic[mode]) == "" {
			return nil, fmt.Errorf("rules: logic.%s is required", mode)
		}
	}
	if strings.TrimSpace(r.Output) == "" {
		return nil, fmt.Errorf("rules: output is required")
	}
	return &r, nil
}

// fill replaces {{key}} placeholders.
func fill(text string, vars map[string]string) string {
	for k, v := range vars {
		text = strings.ReplaceAll(text, "{{"+k+"}}", v)
	}
	return strings.TrimSpace(text)
}
