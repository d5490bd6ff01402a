package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/wfunc/doodleserver/models"
)

func TestGuesserPointsDecreaseWithOrder(t *testing.T) {
	budget := 60 * time.Second
	assert.Equal(t, 150, GuesserPoints(0, budget, budget))
	assert.Equal(t, 100, GuesserPoints(0, 0, budget))
	assert.Equal(t, 115, GuesserPoints(1, 30*time.Second, budget))

	prev := GuesserPoints(0, 40*time.Second, budget)
	for order := 1; order < 10; order++ {
		cur := GuesserPoints(order, 40*time.Second, budget)
		assert.LessOrEqual(t, cur, prev, "order %d", order)
		prev = cur
	}
	// 基础分有下限
	assert.Equal(t, 50, GuesserPoints(9, 0, budget))
}

func TestDrawerPoints(t *testing.T) {
	assert.Equal(t, 0, DrawerPoints(0))
	assert.Equal(t, 75, DrawerPoints(3))
}

func TestStandingsTieBreak(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	a := &models.Player{ID: "a", Score: 200, ScoreAchievedAt: base.Add(30 * time.Second), JoinedAt: base}
	b := &models.Player{ID: "b", Score: 200, ScoreAchievedAt: base.Add(10 * time.Second), JoinedAt: base.Add(time.Second)}
	c := &models.Player{ID: "c", Score: 300, ScoreAchievedAt: base.Add(50 * time.Second), JoinedAt: base.Add(2 * time.Second)}
	d := &models.Player{ID: "d", JoinedAt: base.Add(3 * time.Second)}

	got := Standings([]*models.Player{a, b, c, d})
	ids := make([]string, len(got))
	for i, s := range got {
		ids[i] = s.PlayerID
		assert.Equal(t, i+1, s.Rank)
	}
	assert.Equal(t, []string{"c", "b", "a", "d"}, ids)
}
