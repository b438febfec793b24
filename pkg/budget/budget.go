// Package budget selects which past turns fit into a prompt's history window.
package budget

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/jwebster45206/chronicle-engine/pkg/state"
)

// Options tunes Fit.
type Options struct {
	KeepRecent  int // newest turns always considered first
	ActionLimit int // runes kept of a summarized player action
	StoryLimit  int // runes kept of a summarized story text
}

var DefaultOptions = Options{KeepRecent: 3, ActionLimit: 50, StoryLimit: 150}

// Fit selects turns whose rendered length stays within charBudget using
// DefaultOptions.
func Fit(turns []state.GameTurn, charBudget int) []state.GameTurn {
	return FitWith(turns, charBudget, DefaultOptions)
}

// FitWith keeps the newest KeepRecent turns, then every major event, then
// fills the remaining budget newest-first. A turn that does not fit in full is
// summarized; the fill phase stops at the first turn that does not fit even
// summarized. The result is chronological and Cost(result) <= charBudget.
func FitWith(turns []state.GameTurn, charBudget int, opts Options) []state.GameTurn {
	if charBudget <= 0 || len(turns) == 0 {
		return []state.GameTurn{}
	}

	chosen := make([]*state.GameTurn, len(turns))
	used := 0
	place := func(i int) bool {
		full := turns[i].Clone()
		if c := TurnCost(full); used+c <= charBudget {
			chosen[i] = &full
			used += c
			return true
		}
		short := Summarize(turns[i], opts)
		if c := TurnCost(short); used+c <= charBudget {
			chosen[i] = &short
			used += c
			return true
		}
		return false
	}

	for i, n := len(turns)-1, 0; i >= 0 && n < opts.KeepRecent; i, n = i-1, n+1 {
		place(i)
	}
	for i := len(turns) - 1; i >= 0; i-- {
		if chosen[i] == nil && turns[i].IsMajorEvent {
			place(i)
		}
	}
	for i := len(turns) - 1; i >= 0; i-- {
		if chosen[i] != nil {
			continue
		}
		if !place(i) {
			break
		}
	}

	out := make([]state.GameTurn, 0, len(turns))
	for _, t := range chosen {
		if t != nil {
			out = append(out, *t)
		}
	}
	return out
}

// Render formats a turn the way it appears in a prompt's history window.
func Render(t state.GameTurn) string {
	var sb strings.Builder
	if !t.IsOpening() {
		sb.WriteString("> ")
		sb.WriteString(t.Action())
		sb.WriteString("\n")
	}
	sb.WriteString(t.StoryText)
	sb.WriteString("\n")
	return sb.String()
}

// RenderAll concatenates rendered turns. Its rune length equals Cost(turns).
func RenderAll(turns []state.GameTurn) string {
	var sb strings.Builder
	for _, t := range turns {
		sb.WriteString(Render(t))
	}
	return sb.String()
}

// TurnCost is the rune length of Render(t).
func TurnCost(t state.GameTurn) int {
	return utf8.RuneCountInString(Render(t))
}

// Cost is the rune length of RenderAll(turns).
func Cost(turns []state.GameTurn) int {
	total := 0
	for _, t := range turns {
		total += TurnCost(t)
	}
	return total
}

// Summarize condenses a turn: the action is truncated and the story reduced
// to its first and last sentence, or hard truncated when that is still long.
func Summarize(t state.GameTurn, opts Options) state.GameTurn {
	out := t.Clone()
	out.IsCondensedMemory = true
	out.Choices = []string{}
	if out.PlayerAction != nil {
		a := truncate(strings.TrimSpace(*out.PlayerAction), opts.ActionLimit)
		out.PlayerAction = &a
	}

	story := strings.TrimSpace(t.StoryText)
	if utf8.RuneCountInString(story) <= opts.StoryLimit {
		out.StoryText = story
		return out
	}
	sentences := splitSentences(story)
	if len(sentences) >= 2 {
		bookends := sentences[0] + " … " + sentences[len(sentences)-1]
		if utf8.RuneCountInString(bookends) <= opts.StoryLimit {
			out.StoryText = bookends
			return out
		}
	}
	out.StoryText = truncate(story, opts.StoryLimit)
	return out
}

func truncate(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return strings.TrimRightFunc(string(r[:limit-1]), unicode.IsSpace) + "…"
}

func splitSentences(s string) []string {
	var out []string
	r := []rune(s)
	start := 0
	for i, c := range r {
		if !isTerminal(c) {
			continue
		}
		if i+1 < len(r) && !unicode.IsSpace(r[i+1]) && !isTerminal(r[i+1]) {
			continue
		}
		if sentence := strings.TrimSpace(string(r[start : i+1])); sentence != "" {
			out = append(out, sentence)
		}
		start = i + 1
	}
	if rest := strings.TrimSpace(string(r[start:])); rest != "" {
		out = append(out, rest)
	}
	return out
}

func isTerminal(c rune) bool {
	switch c {
	case '.', '!', '?', '。', '！', '？', '…':
		return true
	}
	return false
}
