package prompts

import (
	"fmt"
	"strings"

	"github.com/jwebster45206/chronicle-engine/pkg/chronicle"
	"github.com/jwebster45206/chronicle-engine/pkg/entity"
	"github.com/jwebster45206/chronicle-engine/pkg/state"
	"github.com/jwebster45206/chronicle-engine/pkg/stats"
)

// RenderStats lists stats in display order, one per line.
func RenderStats(m stats.Map, order []string) string {
	var sb strings.Builder
	seen := make(map[string]struct{}, len(m))
	write := func(name string) {
		st, ok := m[name]
		if !ok {
			return
		}
		if _, dup := seen[name]; dup {
			return
		}
		seen[name] = struct{}{}
		sb.WriteString("- ")
		sb.WriteString(name)
		if st.Item() {
			sb.WriteString(" [item]")
		}
		sb.WriteString(": ")
		sb.WriteString(st.Value.String())
		if st.Duration != nil {
			fmt.Fprintf(&sb, " (%d turns left)", *st.Duration)
		}
		if st.Evolution != nil && st.Evolution.Becomes != "" {
			fmt.Fprintf(&sb, " (becomes %s at %d)", st.Evolution.Becomes, st.Evolution.After)
		}
		sb.WriteString("\n")
	}
	for _, name := range order {
		write(name)
	}
	for _, name := range m.Names() {
		write(name)
	}
	return sb.String()
}

// RenderSkills lists skills and their abilities.
func RenderSkills(skills []state.Skill) string {
	var sb strings.Builder
	for _, s := range skills {
		fmt.Fprintf(&sb, "- %s: %s\n", s.Name, s.Description)
		for _, a := range s.Abilities {
			fmt.Fprintf(&sb, "  * %s: %s\n", a.Name, a.Description)
		}
	}
	return sb.String()
}

// RenderNPC gives the full description of a present NPC.
func RenderNPC(n entity.NPC) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "- %s (id: %s)", n.Name, n.ID)
	fields := []struct{ label, value string }{
		{"gender", n.Gender},
		{"personality", n.Personality},
		{"relationship to player", n.RelationshipToPlayer},
		{"identity", n.Identity},
		{"appearance", n.Appearance},
		{"virginity", n.Virginity},
		{"status", n.Status},
		{"last interaction", n.LastInteractionSummary},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) != "" {
			fmt.Fprintf(&sb, "\n  %s: %s", f.label, f.value)
		}
	}
	if len(n.Stats) > 0 {
		sb.WriteString("\n  stats:\n")
		for _, line := range strings.Split(strings.TrimRight(RenderStats(n.Stats, nil), "\n"), "\n") {
			sb.WriteString("    " + line + "\n")
		}
		return strings.TrimRight(sb.String(), "\n") + "\n"
	}
	sb.WriteString("\n")
	return sb.String()
}

// RenderLocation describes a location on one or two lines.
func RenderLocation(l entity.Location) string {
	line := fmt.Sprintf("- %s (id: %s)", l.Name, l.ID)
	if l.Description != "" {
		line += ": " + l.Description
	}
	if l.Status != "" {
		line += "\n  status: " + l.Status
	}
	return line + "\n"
}

// RenderChronicle lists chronicle entries oldest first.
func RenderChronicle(entries []chronicle.Entry) string {
	var sb strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&sb, "- [%s, significance %d] %s", e.BaseEventType(), e.PlotSignificanceScore, e.Summary)
		if e.KeyDetail != "" {
			fmt.Fprintf(&sb, " Detail: %s.", strings.TrimSuffix(e.KeyDetail, "."))
		}
		if e.PotentialConsequence != "" {
			fmt.Fprintf(&sb, " Could lead to: %s.", strings.TrimSuffix(e.PotentialConsequence, "."))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func section(sb *strings.Builder, title, body string) {
	body = strings.TrimSpace(body)
	if body == "" {
		return
	}
	if sb.Len() > 0 {
		sb.WriteString("\n\n")
	}
	sb.WriteString("### ")
	sb.WriteString(title)
	sb.WriteString("\n")
	sb.WriteString(body)
}
