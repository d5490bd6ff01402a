// Package ratelimit implements the per-player sliding message window used by
// chat and guess handling.
package ratelimit

import (
	"sync"
	"time"
)

// Rule N messages per Window; exceeding it starts a Cooldown.
type Rule struct {
	Limit    int
	Window   time.Duration
	Cooldown time.Duration
}

// Window is the state for one key: the accepted messages still inside the
// window, oldest first.
type Window struct {
	Count         int
	Sent          []time.Time
	CooldownUntil time.Time
}

// Limiter 按 key（玩家 id）计数。零值不可用，使用 New 创建。
type Limiter struct {
	mu      sync.Mutex
	rule    Rule
	windows map[string]*Window
	now     func() time.Time
}

func New(rule Rule) *Limiter {
	return &Limiter{
		rule:    rule,
		windows: make(map[string]*Window),
		now:     time.Now,
	}
}

// WithClock swaps the time source; used by tests and by callers that already
// hold a timestamp for the event.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Allow records one message for key. Any Limit+1 messages inside one Window
// trip the limit, wherever the window boundary falls. When it returns false the
// message must be dropped; retryAfter tells the sender how long the cooldown
// still runs.
func (l *Limiter) Allow(key string) (ok bool, retryAfter time.Duration) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, exists := l.windows[key]
	if !exists {
		w = &Window{}
		l.windows[key] = w
	}

	if !w.CooldownUntil.IsZero() {
		if now.Before(w.CooldownUntil) {
			return false, w.CooldownUntil.Sub(now)
		}
		// cooldown over: counting starts from zero
		w.CooldownUntil = time.Time{}
		w.Sent = w.Sent[:0]
	}

	keep := 0
	for keep < len(w.Sent) && now.Sub(w.Sent[keep]) >= l.rule.Window {
		keep++
	}
	w.Sent = append(w.Sent[:0], w.Sent[keep:]...)

	if len(w.Sent) >= l.rule.Limit {
		w.CooldownUntil = now.Add(l.rule.Cooldown)
		w.Count = len(w.Sent)
		return false, l.rule.Cooldown
	}
	w.Sent = append(w.Sent, now)
	w.Count = len(w.Sent)
	return true, 0
}

// SetRule applies a new rule to subsequent messages; existing windows keep
// their history.
func (l *Limiter) SetRule(rule Rule) {
	l.mu.Lock()
	l.rule = rule
	l.mu.Unlock()
}

// Snapshot returns a copy of the window for key.
func (l *Limiter) Snapshot(key string) (Window, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.windows[key]
	if !ok {
		return Window{}, false
	}
	cp := *w
	cp.Sent = append([]time.Time(nil), w.Sent...)
	return cp, true
}

// Forget drops state for key, e.g. when the player leaves the room.
func (l *Limiter) Forget(key string) {
	l.mu.Lock()
	delete(l.windows, key)
	l.mu.Unlock()
}
