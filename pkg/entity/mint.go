package entity

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const fallbackID = "entity"

var lower = cases.Lower(language.Und)

// MintID derives a snake_case id from displayName that is not in existing.
// Diacritics are folded ("Lính Gác" becomes "linh_gac"); a numeric suffix
// starting at _2 resolves collisions. MintID is pure: the same inputs always
// yield the same id.
func MintID(existing IDSet, displayName string) string {
	base := Slug(displayName)
	if base == "" {
		base = fallbackID
	}
	if !existing.Has(base) {
		return base
	}
	for n := 2; ; n++ {
		candidate := base + "_" + strconv.Itoa(n)
		if !existing.Has(candidate) {
			return candidate
		}
	}
}

// Slug folds a display name to lowercase ASCII snake_case.
func Slug(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	folded = strings.NewReplacer("đ", "d", "Đ", "D", "ø", "o", "Ø", "O", "ß", "ss").Replace(folded)
	folded = lower.String(folded)

	var b strings.Builder
	pendingSep := false
	for _, r := range folded {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r)
			pendingSep = false
		default:
			pendingSep = true
		}
	}
	return b.String()
}
