package prompts

import "strings"

const (
	OverrideOpen  = "[["
	OverrideClose = "]]"
)

// ParseAuthorOverride detects an action wrapped in [[ ]] and returns the
// directive inside it.
func ParseAuthorOverride(action string) (string, bool) {
	s := strings.TrimSpace(action)
	if !strings.HasPrefix(s, OverrideOpen) || !strings.HasSuffix(s, OverrideClose) {
		return "", false
	}
	if len(s) < len(OverrideOpen)+len(OverrideClose) {
		return "", false
	}
	inner := strings.TrimSpace(s[len(OverrideOpen) : len(s)-len(OverrideClose)])
	if inner == "" {
		return "", false
	}
	return inner, true
}
