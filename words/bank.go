package words

import (
	"fmt"
	"math/rand/v2"
	"os"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/wfunc/doodleserver/apperr"
	"github.com/wfunc/doodleserver/models"
	"gopkg.in/yaml.v3"
)

// Tier 难度分级
type Tier string

const (
	Easy   Tier = "easy"
	Medium Tier = "medium"
	Hard   Tier = "hard"
)

const (
	DefaultLanguage = "en"

	// MaxHardChoices caps hard or phrase entries offered in one selection.
	MaxHardChoices = 1

	MinCustomWords = 5
	MinWordLength  = 2
	MaxWordLength  = 30
)

var tierWeight = map[Tier]int{
	Easy:   2,
	Medium: 1,
	Hard:   1,
}

// List 一种语言的分级词表
type List map[Tier][]string

// Bank 词库服务。除随机源外无状态，可被所有房间共享。
type Bank struct {
	mu        sync.Mutex
	rng       *rand.Rand
	lists     map[string]List
	profanity map[string]struct{}
}

type Option func(*Bank)

// WithSeed makes sampling deterministic.
func WithSeed(seed uint64) Option {
	return func(b *Bank) {
		b.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

// WithProfanity replaces the built-in blocked word list.
func WithProfanity(words []string) Option {
	return func(b *Bank) {
		b.profanity = make(map[string]struct{}, len(words))
		for _, w := range words {
			b.profanity[Normalize(w)] = struct{}{}
		}
	}
}

func NewBank(lists map[string]List, opts ...Option) *Bank {
	now := uint64(time.Now().UnixNano())
	b := &Bank{
		rng:   rand.New(rand.NewPCG(now, now>>1)),
		lists: make(map[string]List, len(lists)),
	}
	for lang, l := range lists {
		clean := make(List, len(l))
		for tier, ws := range l {
			for _, w := range ws {
				if n := Normalize(w); n != "" {
					clean[tier] = append(clean[tier], n)
				}
			}
		}
		b.lists[strings.ToLower(lang)] = clean
	}
	WithProfanity(defaultProfanity)(b)
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Default 内置英文词库
func Default(opts ...Option) *Bank {
	return NewBank(map[string]List{DefaultLanguage: defaultEnglish}, opts...)
}

// LoadFile reads a YAML word bank of the form
// {language: {easy: [...], medium: [...], hard: [...]}}.
// Languages missing from the file fall back to the built-in English list.
func LoadFile(path string, opts ...Option) (*Bank, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read word bank: %w", err)
	}
	var lists map[string]List
	if err := yaml.Unmarshal(data, &lists); err != nil {
		return nil, fmt.Errorf("parse word bank %s: %w", path, err)
	}
	if _, ok := lists[DefaultLanguage]; !ok {
		lists[DefaultLanguage] = defaultEnglish
	}
	return NewBank(lists, opts...), nil
}

// list 选定语言的词表；缺失或为空时依次退回默认语言和内置英文词表
func (b *Bank) list(language string) List {
	if l := b.lists[strings.ToLower(language)]; l.size() > 0 {
		return l
	}
	if l := b.lists[DefaultLanguage]; l.size() > 0 {
		return l
	}
	return defaultEnglish
}

func (l List) size() int {
	n := 0
	for _, ws := range l {
		n += len(ws)
	}
	return n
}

func (b *Bank) intN(n int) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rng.IntN(n)
}

func (b *Bank) shuffle(n int, swap func(i, j int)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rng.Shuffle(n, swap)
}

type candidate struct {
	word   string
	weight int
	hard   bool
}

// Choices 为画手抽取 n 个不重复的候选词。
// 默认词库按难度加权（easy 约 2 倍），hard 最多 MaxHardChoices 个；
// custom 词表等概率抽取；mixed 两者合并且自定义词按 easy 权重。
func (b *Bank) Choices(settings models.RoomSettings, n int) []string {
	var pool []candidate
	seen := map[string]bool{}
	add := func(w string, weight int, hard bool) {
		if seen[w] {
			return
		}
		seen[w] = true
		pool = append(pool, candidate{word: w, weight: weight, hard: hard})
	}

	if settings.WordSource != models.WordSourceDefault && settings.WordSource != "" {
		for _, w := range settings.CustomWords {
			add(Normalize(w), tierWeight[Easy], false)
		}
	}
	if settings.WordSource != models.WordSourceCustom || len(pool) < n {
		for _, tier := range []Tier{Easy, Medium, Hard} {
			for _, w := range b.list(settings.Language)[tier] {
				add(w, tierWeight[tier], tier == Hard || strings.ContainsRune(w, ' '))
			}
		}
	}

	out := make([]string, 0, n)
	hardPicked := 0
	for len(out) < n && len(pool) > 0 {
		total := 0
		for _, c := range pool {
			total += c.weight
		}
		r := b.intN(total)
		idx := 0
		for i, c := range pool {
			if r < c.weight {
				idx = i
				break
			}
			r -= c.weight
		}
		picked := pool[idx]
		pool = append(pool[:idx], pool[idx+1:]...)
		out = append(out, picked.word)

		if picked.hard {
			hardPicked++
			if hardPicked >= MaxHardChoices {
				kept := pool[:0]
				for _, c := range pool {
					if !c.hard {
						kept = append(kept, c)
					}
				}
				pool = kept
			}
		}
	}
	b.shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

// ContainsProfanity screens text on word boundaries, so "class" does not
// match a blocked "ass".
func (b *Bank) ContainsProfanity(text string) bool {
	for _, tok := range tokens(text) {
		if _, bad := b.profanity[tok]; bad {
			return true
		}
	}
	return false
}

func tokens(text string) []string {
	return strings.FieldsFunc(Normalize(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// SanitizeCustomWords normalizes, validates and de-duplicates a host supplied
// word list. Entries with unsupported characters, bad length or profanity are
// dropped; fewer than MinCustomWords survivors is an InvalidSettings error.
func (b *Bank) SanitizeCustomWords(list []string) ([]string, error) {
	out := make([]string, 0, len(list))
	seen := map[string]bool{}
	for _, raw := range list {
		w := Normalize(raw)
		if !validWord(w) || b.ContainsProfanity(w) || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	if len(out) < MinCustomWords {
		return nil, apperr.Newf(apperr.InvalidSettings,
			"custom word list needs at least %d valid words, got %d", MinCustomWords, len(out))
	}
	return out, nil
}

func validWord(w string) bool {
	n := len([]rune(w))
	if n < MinWordLength || n > MaxWordLength {
		return false
	}
	letters := 0
	for _, r := range w {
		switch {
		case unicode.IsLetter(r):
			letters++
		case r == ' ' || r == '-' || r == '\'':
		default:
			return false
		}
	}
	return letters >= MinWordLength
}
