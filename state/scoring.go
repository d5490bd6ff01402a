package state

import (
	"math"
	"sort"
	"time"

	"github.com/wfunc/doodleserver/models"
)

const (
	guessBase      = 100
	guessStep      = 10
	guessFloor     = 50
	guessTimeBonus = 50
	drawerPerGuess = 25
)

// GuesserPoints 猜中得分：越早猜中基础分越高，剩余时间越多加成越高。
// order is 0 for the first correct guesser.
func GuesserPoints(order int, remaining, budget time.Duration) int {
	points := max(guessFloor, guessBase-guessStep*order)
	if budget > 0 && remaining > 0 {
		points += int(math.Round(guessTimeBonus * float64(remaining) / float64(budget)))
	}
	return points
}

// DrawerPoints 画手按猜中人数得分
func DrawerPoints(correctGuessers int) int {
	return drawerPerGuess * correctGuessers
}

// Standings ranks players by score. Equal scores go to whoever reached the
// score first, then to whoever joined first.
func Standings(players []*models.Player) []models.Standing {
	sorted := make([]*models.Player, len(players))
	copy(sorted, players)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.ScoreAchievedAt.Equal(b.ScoreAchievedAt) {
			return a.ScoreAchievedAt.Before(b.ScoreAchievedAt)
		}
		return a.JoinedAt.Before(b.JoinedAt)
	})

	out := make([]models.Standing, len(sorted))
	for i, p := range sorted {
		out[i] = models.Standing{
			PlayerID:    p.ID,
			DisplayName: p.DisplayName,
			Score:       p.Score,
			Rank:        i + 1,
		}
	}
	return out
}

func Scores(players []*models.Player) map[string]int {
	out := make(map[string]int, len(players))
	for _, p := range players {
		out[p.ID] = p.Score
	}
	return out
}
