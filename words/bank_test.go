package words

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/doodleserver/apperr"
	"github.com/wfunc/doodleserver/models"
)

func TestMask(t *testing.T) {
	tests := []struct {
		word string
		want string
	}{
		{"cat", "___"},
		{"ice cream", "___ _____"},
		{"jack-o'-lantern", "____-_'-_______"},
		{"déjà vu", "____ __"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Mask(tt.word), tt.word)
	}
}

func TestRevealHintIsMonotonic(t *testing.T) {
	b := Default(WithSeed(7))
	word := "butterfly"
	pattern := Mask(word)

	for {
		next, ok := b.RevealHint(word, pattern)
		if !ok {
			break
		}
		before, after := []rune(pattern), []rune(next.Pattern)
		newly := map[rune]bool{}
		for i := range before {
			if before[i] != Blank {
				require.Equal(t, before[i], after[i], "revealed position %d was re-masked", i)
				continue
			}
			if after[i] != Blank {
				newly[after[i]] = true
			}
		}
		// exactly one letter, with all of its occurrences
		require.Len(t, newly, 1)
		assert.Equal(t, string(after[next.Position]), next.Letter)
		for i, r := range []rune(word) {
			if string(r) == next.Letter {
				assert.Equal(t, r, after[i])
			}
		}
		pattern = next.Pattern
	}

	// the last distinct letter stays hidden
	assert.Contains(t, pattern, string(Blank))
}

func TestRevealHintSingleLetterWord(t *testing.T) {
	b := Default(WithSeed(1))
	_, ok := b.RevealHint("aaa", "___")
	assert.False(t, ok)
}

func TestHintSchedule(t *testing.T) {
	assert.Equal(t,
		[]time.Duration{20 * time.Second, 40 * time.Second},
		HintSchedule(60*time.Second, 2))
	assert.Nil(t, HintSchedule(60*time.Second, 0))
}

func TestNormalizeAndIsCorrect(t *testing.T) {
	assert.Equal(t, "ice cream", Normalize("  ICE \t  Cream "))
	assert.True(t, IsCorrect("  Ice   CREAM", "ice cream"))
	assert.False(t, IsCorrect("icecream", "ice cream"))
	assert.False(t, IsCorrect("   ", ""))
	assert.True(t, IsCorrect("DÉJÀ VU", "déjà vu"))
}

func TestIsClose(t *testing.T) {
	assert.True(t, IsClose("elephent", "elephant"))
	assert.True(t, IsClose("guitars", "guitar"))
	assert.False(t, IsClose("guitar", "guitar"))
	assert.False(t, IsClose("cot", "cat"))
}

func TestChoicesWeightingAndHardCap(t *testing.T) {
	b := Default(WithSeed(42))
	settings := models.RoomSettings{Language: "en", WordSource: models.WordSourceDefault}

	hardSet := map[string]bool{}
	for _, w := range defaultEnglish[Hard] {
		hardSet[Normalize(w)] = true
	}
	easySet := map[string]bool{}
	for _, w := range defaultEnglish[Easy] {
		easySet[Normalize(w)] = true
	}

	easyCount := 0
	for i := 0; i < 200; i++ {
		choices := b.Choices(settings, 3)
		require.Len(t, choices, 3)

		seen := map[string]bool{}
		hard := 0
		for _, c := range choices {
			require.False(t, seen[c], "duplicate choice %q", c)
			seen[c] = true
			if hardSet[c] || (strings.Contains(c, " ") && !easySet[c]) {
				hard++
			}
			if easySet[c] {
				easyCount++
			}
		}
		assert.LessOrEqual(t, hard, MaxHardChoices)
	}
	// easy words are weighted double and make up the largest share
	assert.Greater(t, easyCount, 200)
}

func TestChoicesCustomSource(t *testing.T) {
	b := Default(WithSeed(3))
	custom := []string{"Alpha", "bravo", "charlie", "delta", "echo"}
	settings := models.RoomSettings{WordSource: models.WordSourceCustom, CustomWords: custom}

	for i := 0; i < 20; i++ {
		for _, c := range b.Choices(settings, 3) {
			assert.Contains(t, []string{"alpha", "bravo", "charlie", "delta", "echo"}, c)
		}
	}
}

func TestChoicesUnknownLanguageFallsBack(t *testing.T) {
	b := Default(WithSeed(5))
	got := b.Choices(models.RoomSettings{Language: "xx"}, 3)
	assert.Len(t, got, 3)
}

func TestChoicesEmptyLanguageFallsBack(t *testing.T) {
	b := NewBank(map[string]List{
		"en": {Easy: {"cat"}},
		"fr": {},
		"de": {Easy: {}, Hard: nil},
	}, WithSeed(3))
	assert.Equal(t, []string{"cat"}, b.Choices(models.RoomSettings{Language: "fr"}, 3))
	assert.Equal(t, []string{"cat"}, b.Choices(models.RoomSettings{Language: "de"}, 3))

	// 默认语言也为空时用内置词表
	empty := NewBank(map[string]List{"en": {}}, WithSeed(3))
	assert.Len(t, empty.Choices(models.RoomSettings{Language: "en"}, 3), 3)
}

func TestMentions(t *testing.T) {
	assert.True(t, Mentions("the answer is CAT!", "cat"))
	assert.True(t, Mentions("i like ice  cream", "ice cream"))
	assert.False(t, Mentions("category", "cat"))
	assert.False(t, Mentions("ice", "ice cream"))
	assert.False(t, Mentions("anything", ""))
}

func TestContainsProfanityWordBoundary(t *testing.T) {
	b := Default()
	assert.True(t, b.ContainsProfanity("what the SHIT"))
	assert.True(t, b.ContainsProfanity("you ass!"))
	assert.False(t, b.ContainsProfanity("first class passage"))
	assert.False(t, b.ContainsProfanity("scrap metal"))
}

func TestSanitizeCustomWords(t *testing.T) {
	b := Default()
	got, err := b.SanitizeCustomWords([]string{
		" Pizza ", "pizza", "hot  dog", "x", "shit", "rock'n'roll", "123", "tea-pot", "sun", "moon",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"pizza", "hot dog", "rock'n'roll", "tea-pot", "sun", "moon"}, got)

	_, err = b.SanitizeCustomWords([]string{"one", "two", "shit"})
	assert.True(t, apperr.Is(err, apperr.InvalidSettings))
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "words.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
de:
  easy: [Hund, Katze, Haus]
  medium: [Fahrrad]
`), 0o644))

	b, err := LoadFile(path, WithSeed(9))
	require.NoError(t, err)

	for _, c := range b.Choices(models.RoomSettings{Language: "de"}, 3) {
		assert.Contains(t, []string{"hund", "katze", "haus", "fahrrad"}, c)
	}
	assert.Len(t, b.Choices(models.RoomSettings{Language: "en"}, 3), 3)
}
