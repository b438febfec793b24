// Package response turns raw model output into typed, validated values.
// Nothing produced by the model is trusted past this boundary.
package response

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ValidationError reports a model response that broke contract. Raw holds
// the offending text so it can be shown to the player.
type ValidationError struct {
	Reason string
	Raw    string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid model response: %s", e.Reason)
}

func invalid(raw string, format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...), Raw: raw}
}

// ParseJSON strips Markdown fences, requires an object or array, decodes it
// and trims stray fence remnants from every string leaf.
func ParseJSON(text string) (any, error) {
	body := stripFences(text)
	if body == "" {
		return nil, invalid(text, "empty response")
	}
	if body[0] != '{' && body[0] != '[' {
		return nil, invalid(text, "response is not JSON (starts with %q)", firstRune(body))
	}

	dec := json.NewDecoder(strings.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, invalid(text, "failed to parse JSON: %v", err)
	}
	if dec.More() {
		return nil, invalid(text, "unexpected trailing content after JSON value")
	}
	return sanitize(v), nil
}

func stripFences(text string) string {
	s := strings.TrimSpace(strings.TrimPrefix(text, "\ufeff"))
	if strings.HasPrefix(s, "```") {
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		} else {
			s = strings.TrimLeft(s, "`")
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func sanitize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			t[k] = sanitize(child)
		}
		return t
	case []any:
		for i, child := range t {
			t[i] = sanitize(child)
		}
		return t
	case string:
		return cleanString(t)
	default:
		return v
	}
}

func cleanString(s string) string {
	s = strings.TrimSpace(s)
	for strings.HasSuffix(s, "```") {
		s = strings.TrimSpace(strings.TrimSuffix(s, "```"))
	}
	return s
}

func firstRune(s string) string {
	for _, r := range s {
		return string(r)
	}
	return ""
}

// remarshal converts a sanitized generic value into a typed struct.
func remarshal(v any, dst any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	return dec.Decode(dst)
}

// object unwraps a generic value into an object, accepting a single-element
// array envelope.
func object(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case []any:
		if len(t) == 1 {
			m, ok := t[0].(map[string]any)
			return m, ok
		}
	}
	return nil, false
}
