// Package textfilter softens profanity in narration for sessions that have
// not opted into explicit content.
package textfilter

import (
	"cmp"
	"regexp"
	"slices"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// replacements maps each filtered word to its family-friendly stand-in.
var replacements = map[string]string{
	"fuck":         "fudge",
	"shit":         "shoot",
	"damn":         "dang",
	"hell":         "heck",
	"ass":          "butt",
	"bitch":        "jerk",
	"bastard":      "jerk",
	"crap":         "crud",
	"piss":         "ticked",
	"cock":         "[censored]",
	"dick":         "jerk",
	"pussy":        "[censored]",
	"tits":         "[censored]",
	"boobs":        "[censored]",
	"whore":        "[censored]",
	"slut":         "[censored]",
	"fag":          "[censored]",
	"retard":       "[censored]",
	"nigger":       "[censored]",
	"nigga":        "[censored]",
	"spic":         "[censored]",
	"chink":        "[censored]",
	"kike":         "[censored]",
	"motherfucker": "mother-trucker",
	"goddamn":      "gosh-dang",
	"jesus christ": "jeez",
	"christ":       "crikey",
	"asshole":      "jerk",
	"dumbass":      "dummy",
	"jackass":      "jerk",
	"smartass":     "smarty",
	"badass":       "tough",
	"bullshit":     "baloney",
	"horseshit":    "nonsense",
	"dipshit":      "dummy",
	"shithead":     "jerk",
	"dickhead":     "jerk",
	"prick":        "jerk",
	"douche":       "jerk",
	"douchebag":    "jerk",
}

type rule struct {
	re          *regexp.Regexp
	replacement string
}

// ProfanityFilter replaces profanity with milder words, keeping the case of
// the original.
type ProfanityFilter struct {
	rules []rule
}

// NewProfanityFilter compiles the word list. Longer phrases are matched
// first so "jesus christ" wins over "christ".
func NewProfanityFilter() *ProfanityFilter {
	words := make([]string, 0, len(replacements))
	for w := range replacements {
		words = append(words, w)
	}
	slices.SortFunc(words, func(a, b string) int {
		if c := cmp.Compare(len(b), len(a)); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})

	pf := &ProfanityFilter{rules: make([]rule, 0, len(words))}
	for _, w := range words {
		pf.rules = append(pf.rules, rule{
			re:          regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(w) + `(s?)\b`),
			replacement: replacements[w],
		})
	}
	return pf
}

// FilterText returns text with every listed word replaced. A plural "s"
// carries over to the replacement.
func (pf *ProfanityFilter) FilterText(text string) string {
	for _, r := range pf.rules {
		text = r.re.ReplaceAllStringFunc(text, func(match string) string {
			word, suffix := match, ""
			if sub := r.re.FindStringSubmatch(match); len(sub) == 2 && sub[1] != "" {
				word, suffix = match[:len(match)-len(sub[1])], sub[1]
			}
			return preserveCase(word, r.replacement) + suffix
		})
	}
	return text
}

// ContainsProfanity reports whether any listed word occurs in text.
func (pf *ProfanityFilter) ContainsProfanity(text string) bool {
	for _, r := range pf.rules {
		if r.re.MatchString(text) {
			return true
		}
	}
	return false
}

// Narration filters story text and choices in place. It reports whether
// anything changed.
func (pf *ProfanityFilter) Narration(story *string, choices []string) bool {
	changed := false
	if out := pf.FilterText(*story); out != *story {
		*story = out
		changed = true
	}
	for i, c := range choices {
		if out := pf.FilterText(c); out != c {
			choices[i] = out
			changed = true
		}
	}
	return changed
}

// Applies reports whether narration should be filtered for a session.
func Applies(explicitContent bool) bool {
	return !explicitContent
}

func preserveCase(original, replacement string) string {
	if original == "" {
		return replacement
	}
	if strings.ToUpper(original) == original {
		return strings.ToUpper(replacement)
	}
	if strings.ToLower(original) == original {
		return strings.ToLower(replacement)
	}
	titleCaser := cases.Title(language.English)
	if titleCaser.String(strings.ToLower(original)) == original {
		return titleCaser.String(replacement)
	}

	// Mixed case: copy the pattern rune by rune
	orig := []rune(original)
	out := make([]rune, 0, len(replacement))
	for i, r := range []rune(replacement) {
		if i < len(orig) && unicode.IsUpper(orig[i]) {
			out = append(out, unicode.ToUpper(r))
		} else {
			out = append(out, unicode.ToLower(r))
		}
	}
	return string(out)
}
