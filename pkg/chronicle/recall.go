package chronicle

import (
	"slices"
	"sort"
	"strings"

	"github.com/jwebster45206/chronicle-engine/pkg/entity"
)

const (
	// EssentialRecent is how many of the newest active entries are always recalled.
	EssentialRecent = 3
	// EssentialScore is the score at or above which an active entry is always recalled.
	EssentialScore = 8
)

// Relevance weights.
const (
	weightNPCPresence  = 10.0
	weightEventKeyword = 6.0
	weightWordOverlap  = 1.5
	maxWordOverlap     = 6.0
	weightStatMention  = 4.0
	weightEmotion      = 3.0
	weightLocation     = 4.0
	weightRecency      = 2.0
	weightSignificance = 0.1
)

// RecallState is the slice of world state recall scoring looks at.
type RecallState struct {
	StatNames     []string
	LocationNames []string
}

var eventKeywords = map[string][]string{
	"combat":    {"attack", "fight", "strike", "kill", "sword", "battle", "duel", "đánh", "chém", "giết", "chiến"},
	"romance":   {"kiss", "love", "embrace", "court", "flirt", "hôn", "yêu", "ôm"},
	"discovery": {"search", "explore", "examine", "investigate", "find", "tìm", "khám phá", "điều tra"},
	"betrayal":  {"betray", "deceive", "lie", "trick", "phản bội", "lừa"},
	"alliance":  {"ally", "join", "pact", "oath", "bargain", "liên minh", "thề"},
	"death":     {"grave", "funeral", "corpse", "mourn", "chết", "mộ", "tang"},
	"travel":    {"travel", "journey", "ride", "sail", "leave", "đi", "hành trình"},
	"dialogue":  {"ask", "talk", "speak", "tell", "persuade", "hỏi", "nói", "thuyết phục"},
	"mystery":   {"secret", "clue", "riddle", "hidden", "bí mật", "manh mối"},
	"power":     {"train", "cultivate", "meditate", "breakthrough", "technique", "tu luyện", "đột phá"},
	"trade":     {"buy", "sell", "trade", "barter", "pay", "mua", "bán"},
}

var emotionKeywords = []string{
	"love", "hate", "trust", "fear", "anger", "grief", "jealous", "revenge", "promise", "debt", "forgive", "shame",
	"yêu", "hận", "thù", "tin tưởng", "sợ", "giận", "ghen", "báo thù", "hứa", "nợ", "tha thứ",
}

type scored struct {
	index int
	score float64
}

// SelectContext picks the chronicle entries to inject into the next prompt.
// The newest EssentialRecent active entries and every active entry scoring
// EssentialScore or more are always included. Up to maxRecalls of the
// remaining active entries are added by relevance to the player's action.
// Results keep chronological order.
func SelectContext(entries []Entry, action string, presentNPCIDs []string, st RecallState, maxRecalls int) []Entry {
	var active []int
	for i, e := range entries {
		if !e.IsArchived() {
			active = append(active, i)
		}
	}

	chosen := make(map[int]struct{})
	for j := len(active) - 1; j >= 0 && len(active)-j <= EssentialRecent; j-- {
		chosen[active[j]] = struct{}{}
	}
	for _, i := range active {
		if entries[i].PlotSignificanceScore >= EssentialScore {
			chosen[i] = struct{}{}
		}
	}

	present := make(map[string]struct{}, len(presentNPCIDs))
	for _, id := range presentNPCIDs {
		present[entity.CanonicalID(id)] = struct{}{}
	}
	act := strings.ToLower(action)

	var ranked []scored
	for _, i := range active {
		if _, ok := chosen[i]; ok {
			continue
		}
		ranked = append(ranked, scored{index: i, score: relevance(entries[i], i, len(entries), act, present, st)})
	}
	sort.SliceStable(ranked, func(a, b int) bool {
		return ranked[a].score > ranked[b].score
	})
	for j := 0; j < len(ranked) && j < maxRecalls; j++ {
		chosen[ranked[j].index] = struct{}{}
	}

	idx := make([]int, 0, len(chosen))
	for i := range chosen {
		idx = append(idx, i)
	}
	slices.Sort(idx)
	out := make([]Entry, len(idx))
	for j, i := range idx {
		out[j] = entries[i].Clone()
	}
	return out
}

func relevance(e Entry, index, total int, action string, present map[string]struct{}, st RecallState) float64 {
	score := 0.0
	text := strings.ToLower(e.Summary + " " + e.KeyDetail + " " + e.PotentialConsequence)

	for _, id := range e.InvolvedNPCIDs {
		if _, ok := present[entity.CanonicalID(id)]; ok {
			score += weightNPCPresence
		}
	}

	for _, kw := range eventKeywords[e.BaseEventType()] {
		if containsWord(action, kw) {
			score += weightEventKeyword
			break
		}
	}

	score += min(maxWordOverlap, weightWordOverlap*float64(sharedWords(action, text)))

	for _, name := range st.StatNames {
		n := strings.ToLower(strings.TrimSpace(name))
		if n != "" && strings.Contains(text, n) && strings.Contains(action, n) {
			score += weightStatMention
		}
	}

	for _, kw := range emotionKeywords {
		if containsWord(action, kw) && (containsWord(text, kw) || len(e.RelationshipChanges) > 0) {
			score += weightEmotion
		}
	}

	for _, name := range st.LocationNames {
		n := strings.ToLower(strings.TrimSpace(name))
		if n != "" && strings.Contains(text, n) && strings.Contains(action, n) {
			score += weightLocation
		}
	}

	if total > 0 {
		score += weightRecency * float64(index+1) / float64(total)
	}
	score += weightSignificance * float64(e.PlotSignificanceScore)
	return score
}

func sharedWords(a, b string) int {
	wa, wb := wordSet(a, 4), wordSet(b, 4)
	n := 0
	for w := range wa {
		if _, ok := wb[w]; ok {
			n++
		}
	}
	return n
}

// containsWord matches kw as a whole word or phrase in s.
func containsWord(s, kw string) bool {
	if kw == "" {
		return false
	}
	padded := " " + strings.Join(words(s), " ") + " "
	return strings.Contains(padded, " "+strings.Join(words(kw), " ")+" ")
}
