package chronicle

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Scorer decides whether a new entry repeats an earlier one. It is the
// pluggable strategy behind Manager.IsDuplicate.
type Scorer interface {
	Duplicate(candidate, prior Entry) bool
}

// TextSimilarity flags duplicates by normalized edit distance combined with
// event type, or by overlap of longer words.
type TextSimilarity struct {
	// EditThreshold is the similarity above which two summaries of the same
	// event type are duplicates.
	EditThreshold float64
	// OverlapThreshold is the shared-word ratio at or above which two
	// summaries are duplicates regardless of event type.
	OverlapThreshold float64
	// MinWordLen is the minimum rune length of words counted for overlap.
	MinWordLen int
}

// DefaultSimilarity is the scorer used when none is configured.
var DefaultSimilarity = TextSimilarity{EditThreshold: 0.8, OverlapThreshold: 0.6, MinWordLen: 4}

var _ Scorer = TextSimilarity{}

func (s TextSimilarity) Duplicate(candidate, prior Entry) bool {
	a, b := normalizeText(candidate.Summary), normalizeText(prior.Summary)
	if Similarity(a, b) > s.EditThreshold && candidate.BaseEventType() == prior.BaseEventType() {
		return true
	}
	return WordOverlap(a, b, s.MinWordLen) >= s.OverlapThreshold
}

// Similarity returns 1 - levenshtein(a,b)/max(len(a),len(b)) over runes.
func Similarity(a, b string) float64 {
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	longest := max(la, lb)
	if longest == 0 {
		return 1
	}
	return 1 - float64(Levenshtein(a, b))/float64(longest)
}

// Levenshtein computes the edit distance between a and b over runes.
func Levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}

// WordOverlap returns shared words / min(word count), counting only unique
// words of at least minLen runes.
func WordOverlap(a, b string, minLen int) float64 {
	wa, wb := wordSet(a, minLen), wordSet(b, minLen)
	smaller := min(len(wa), len(wb))
	if smaller == 0 {
		return 0
	}
	shared := 0
	for w := range wa {
		if _, ok := wb[w]; ok {
			shared++
		}
	}
	return float64(shared) / float64(smaller)
}

func normalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func wordSet(s string, minLen int) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range words(s) {
		if utf8.RuneCountInString(w) >= minLen {
			set[w] = struct{}{}
		}
	}
	return set
}
