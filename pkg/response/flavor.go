package response

import (
	"strings"

	"github.com/jwebster45206/chronicle-engine/pkg/entity"
)

// ParseFreeTextNPCUpdates reads pipe-delimited flavor lines of the form
//
//	id: X | status: Y | summary: Z
//
// Keys are case-insensitive and may appear in any order. Lines without an id
// or without both a status and a summary are ignored.
func ParseFreeTextNPCUpdates(text string) Flavor {
	out := Flavor{}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*• \t")
		if !strings.Contains(line, "|") {
			continue
		}
		var id, status, summary string
		var sawStatus, sawSummary bool
		for _, part := range strings.Split(line, "|") {
			key, value, ok := strings.Cut(part, ":")
			if !ok {
				continue
			}
			value = strings.TrimSpace(value)
			switch strings.ToLower(strings.Trim(strings.TrimSpace(key), "*")) {
			case "id":
				id = entity.CanonicalID(value)
			case "status":
				status, sawStatus = value, true
			case "summary":
				summary, sawSummary = value, true
			}
		}
		if id == "" || !sawStatus || !sawSummary {
			continue
		}
		out[id] = entity.Flavor{Status: status, Summary: summary}
	}
	return out
}
