package words

import (
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Blank 未揭示字母的占位符
const Blank = '_'

func maskable(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// Mask returns the fully hidden pattern: letters become underscores while
// spaces, hyphens and apostrophes stay visible.
func Mask(word string) string {
	var sb strings.Builder
	for _, r := range word {
		if maskable(r) {
			sb.WriteRune(Blank)
		} else {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// Hint 一次提示的结果
type Hint struct {
	Pattern  string `json:"pattern"`
	Position int    `json:"position"`
	Letter   string `json:"letter"`
}

// RevealHint discloses one more letter of word in pattern, every occurrence of
// it at once. Already revealed positions are never touched. ok is false when
// only one distinct letter is still hidden; the last letter is never given away.
func (b *Bank) RevealHint(word, pattern string) (Hint, bool) {
	return revealHint(word, pattern, b.intN)
}

func revealHint(word, pattern string, intN func(int) int) (Hint, bool) {
	w := []rune(word)
	p := []rune(pattern)
	if len(w) != len(p) {
		return Hint{}, false
	}

	var hidden []int
	distinct := map[rune]bool{}
	for i, r := range w {
		if p[i] == Blank && maskable(r) {
			hidden = append(hidden, i)
			distinct[unicode.ToLower(r)] = true
		}
	}
	if len(distinct) <= 1 {
		return Hint{}, false
	}

	pos := hidden[intN(len(hidden))]
	letter := unicode.ToLower(w[pos])
	for _, i := range hidden {
		if unicode.ToLower(w[i]) == letter {
			p[i] = w[i]
		}
	}
	return Hint{Pattern: string(p), Position: pos, Letter: string(w[pos])}, true
}

// HintSchedule spaces hints evenly across the drawing time, measured as an
// offset from the start of the turn.
func HintSchedule(drawTime time.Duration, hints int) []time.Duration {
	if hints <= 0 {
		return nil
	}
	out := make([]time.Duration, hints)
	for i := 1; i <= hints; i++ {
		out[i-1] = drawTime * time.Duration(i) / time.Duration(hints+1)
	}
	return out
}

// Normalize folds case and unicode form, trims, and collapses whitespace runs.
func Normalize(s string) string {
	s = norm.NFC.String(s)
	s = cases.Fold().String(s)
	return strings.Join(strings.Fields(s), " ")
}

func IsCorrect(guess, word string) bool {
	g := Normalize(guess)
	return g != "" && g == Normalize(word)
}

// IsClose reports a near miss: one edit away from a word longer than three letters.
func IsClose(guess, word string) bool {
	g, w := []rune(Normalize(guess)), []rune(Normalize(word))
	if len(w) <= 3 {
		return false
	}
	return editDistance(g, w) == 1
}

func editDistance(a, b []rune) int {
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

// Mentions reports whether text contains word as a whole-token run, so
// "it's a cat!" mentions "cat" but "category" does not.
func Mentions(text, word string) bool {
	w := strings.Join(tokens(word), " ")
	if w == "" {
		return false
	}
	return strings.Contains(" "+strings.Join(tokens(text), " ")+" ", " "+w+" ")
}
