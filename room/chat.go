// room/chat.go
package room

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/wfunc/doodleserver/apperr"
	"github.com/wfunc/doodleserver/config"
	"github.com/wfunc/doodleserver/models"
	"github.com/wfunc/doodleserver/network"
	"github.com/wfunc/doodleserver/ratelimit"
	"github.com/wfunc/doodleserver/words"
)

const DefaultMaxMessageLength = 200

const (
	limitChat  = "chat"
	limitGuess = "guess"
)

type ChatRules struct {
	Chat      ratelimit.Rule
	Guess     ratelimit.Rule
	MaxLength int
}

// ChatModerator screens room text: length, rate limits and profanity.
// One instance is shared by all rooms; limits are keyed by player id.
type ChatModerator struct {
	chat      *ratelimit.Limiter
	guess     *ratelimit.Limiter
	bank      *words.Bank
	maxLength int
}

func NewChatModerator(bank *words.Bank, rules ChatRules, clock func() time.Time) *ChatModerator {
	if clock == nil {
		clock = time.Now
	}
	if rules.MaxLength <= 0 {
		rules.MaxLength = DefaultMaxMessageLength
	}
	return &ChatModerator{
		chat:      ratelimit.New(rules.Chat).WithClock(clock),
		guess:     ratelimit.New(rules.Guess).WithClock(clock),
		bank:      bank,
		maxLength: rules.MaxLength,
	}
}

// ChatRulesFromConfig maps the chat section onto limiter rules.
func ChatRulesFromConfig(cfg config.ChatConfig) ChatRules {
	return ChatRules{
		Chat:      ratelimit.Rule{Limit: cfg.Chat.Limit, Window: cfg.Chat.Window, Cooldown: cfg.Chat.Cooldown},
		Guess:     ratelimit.Rule{Limit: cfg.Guess.Limit, Window: cfg.Guess.Window, Cooldown: cfg.Guess.Cooldown},
		MaxLength: cfg.MaxLength,
	}
}

// SetRules 配置热更新时调整限流窗口
func (c *ChatModerator) SetRules(rules ChatRules) {
	c.chat.SetRule(rules.Chat)
	c.guess.SetRule(rules.Guess)
}

func (c *ChatModerator) Forget(playerID string) {
	c.chat.Forget(playerID)
	c.guess.Forget(playerID)
}

// clean trims the text and enforces the length bound.
func (c *ChatModerator) clean(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", apperr.New(apperr.InvalidMessage, "empty message")
	}
	if utf8.RuneCountInString(text) > c.maxLength {
		return "", apperr.Newf(apperr.InvalidMessage, "message longer than %d characters", c.maxLength)
	}
	return text, nil
}

func (c *ChatModerator) allow(kind, playerID string) (bool, time.Duration) {
	if kind == limitGuess {
		return c.guess.Allow(playerID)
	}
	return c.chat.Allow(playerID)
}

// SendMessage handles chat_message and guess_word. Text from a player who is
// still guessing is a guess; everything else is chat.
func (r *Room) SendMessage(playerID, text string) error {
	return r.doActivity("message", func() error {
		return r.handleText(playerID, text)
	})
}

// LobbyChat 大厅聊天；游戏进行中按普通消息处理，避免绕过猜词判定
func (r *Room) LobbyChat(playerID, text string) error {
	return r.doActivity("lobby_chat", func() error {
		if r.engine.Active() {
			return r.handleText(playerID, text)
		}
		p := r.Member(playerID)
		if p == nil {
			return apperr.New(apperr.NotInRoom)
		}
		mod := r.deps.Chat
		text, err := mod.clean(text)
		if err != nil {
			return err
		}
		if !r.admit(limitChat, playerID) {
			return nil
		}
		if mod.bank.ContainsProfanity(text) {
			return apperr.New(apperr.InvalidMessage, "message blocked")
		}
		r.Broadcast(network.MustMessage(network.EventLobbyMessage, r.chatLine(p, text, models.KindChat)))
		return nil
	})
}

func (r *Room) handleText(playerID, text string) error {
	p := r.Member(playerID)
	if p == nil {
		return apperr.New(apperr.NotInRoom)
	}
	mod := r.deps.Chat
	text, err := mod.clean(text)
	if err != nil {
		return err
	}

	guessing := r.engine.IsGuessing(playerID)
	kind := limitChat
	if guessing {
		kind = limitGuess
	}
	if !r.admit(kind, playerID) {
		return nil
	}
	if mod.bank.ContainsProfanity(text) {
		return apperr.New(apperr.InvalidMessage, "message blocked")
	}

	if guessing {
		out := r.engine.SubmitGuess(playerID, text)
		r.deps.Metrics.Guess(out.Correct)
		if out.Correct {
			// 猜中的内容就是答案，不能广播原文
			return nil
		}
		r.Broadcast(network.MustMessage(network.EventChatMessage, r.chatLine(p, text, models.KindGuess)))
		if out.Close {
			r.SendTo(playerID, network.MustMessage(network.EventCloseGuess, network.CloseGuessPayload{Guess: text}))
		}
		return nil
	}

	// 暂停中的猜词先扣下，恢复后再判定
	if r.engine.HoldGuess(playerID, text) {
		return nil
	}

	msg := network.MustMessage(network.EventChatMessage, r.chatLine(p, text, models.KindChat))
	if r.engine.WordHidden() && r.engine.HasGuessedOrDraws(playerID) {
		r.Multicast(r.knowers(), msg)
		return nil
	}
	r.Broadcast(msg)
	return nil
}

// admit applies the rate limit; a rejected message is answered to the sender
// only and never reaches the room.
func (r *Room) admit(kind, playerID string) bool {
	ok, retry := r.deps.Chat.allow(kind, playerID)
	if ok {
		return true
	}
	r.deps.Metrics.RateLimited(kind)
	r.SendTo(playerID, network.MustMessage(network.EventRateLimited, network.RateLimitedPayload{
		Type:         kind,
		RetryAfterMs: retry.Milliseconds(),
	}))
	return false
}

// knowers 本回合已经知道答案的成员（画手和已猜中的人）
func (r *Room) knowers() []string {
	var ids []string
	for _, p := range r.members {
		if r.engine.HasGuessedOrDraws(p.ID) {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

func (r *Room) chatLine(p *models.Player, text string, kind models.MessageKind) models.ChatMessage {
	return models.ChatMessage{
		AuthorID:   p.ID,
		AuthorName: p.DisplayName,
		Text:       text,
		Kind:       kind,
		Timestamp:  r.deps.Clock(),
	}
}

func (r *Room) systemLine(format string, args ...interface{}) models.ChatMessage {
	return models.ChatMessage{
		Text:      fmt.Sprintf(format, args...),
		Kind:      models.KindSystem,
		Timestamp: r.deps.Clock(),
	}
}
