package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newLimiter(clock *fakeClock) *Limiter {
	return New(Rule{Limit: 3, Window: 5 * time.Second, Cooldown: 10 * time.Second}).WithClock(clock.Now)
}

func TestAllowWithinLimit(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	l := newLimiter(clock)

	for i := 0; i < 3; i++ {
		ok, _ := l.Allow("p1")
		require.True(t, ok, "message %d", i+1)
		clock.Advance(time.Second)
	}
	// another key has its own window
	ok, _ := l.Allow("p2")
	assert.True(t, ok)
}

func TestExceedingStartsCooldown(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	l := newLimiter(clock)

	for i := 0; i < 3; i++ {
		ok, _ := l.Allow("p1")
		require.True(t, ok)
	}
	ok, retry := l.Allow("p1")
	assert.False(t, ok)
	assert.Equal(t, 10*time.Second, retry)

	// everything during cooldown is dropped, even after the window would have rolled
	clock.Advance(6 * time.Second)
	ok, retry = l.Allow("p1")
	assert.False(t, ok)
	assert.Equal(t, 4*time.Second, retry)

	clock.Advance(4 * time.Second)
	ok, _ = l.Allow("p1")
	assert.True(t, ok)

	w, found := l.Snapshot("p1")
	require.True(t, found)
	assert.Equal(t, 1, w.Count, "count restarts from zero after cooldown")
	assert.True(t, w.CooldownUntil.IsZero())
}

func TestWindowRollsOver(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	l := newLimiter(clock)

	for i := 0; i < 3; i++ {
		ok, _ := l.Allow("p1")
		require.True(t, ok)
	}
	clock.Advance(5 * time.Second)
	ok, _ := l.Allow("p1")
	assert.True(t, ok)
}

// Bursts straddling the point where a fixed window would reset still count
// against the same window.
func TestWindowSlidesAcrossBoundary(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	l := New(Rule{Limit: 5, Window: 5 * time.Second, Cooldown: 10 * time.Second}).WithClock(clock.Now)

	ok, _ := l.Allow("p1")
	require.True(t, ok)
	clock.Advance(4900 * time.Millisecond)
	for i := 0; i < 4; i++ {
		ok, _ := l.Allow("p1")
		require.True(t, ok, "message %d", i+2)
	}

	clock.Advance(200 * time.Millisecond)
	allowed := 0
	for i := 0; i < 5; i++ {
		if ok, _ := l.Allow("p1"); ok {
			allowed++
		}
	}
	assert.Equal(t, 1, allowed)

	w, found := l.Snapshot("p1")
	require.True(t, found)
	assert.Equal(t, 5, w.Count)
	assert.False(t, w.CooldownUntil.IsZero())
}

func TestForget(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	l := newLimiter(clock)
	for i := 0; i < 4; i++ {
		l.Allow("p1")
	}
	l.Forget("p1")
	ok, _ := l.Allow("p1")
	assert.True(t, ok)
}
