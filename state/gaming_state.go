package state

import (
	"github.com/wfunc/doodleserver/models"
	"github.com/wfunc/doodleserver/network"
	"github.com/wfunc/doodleserver/words"
	"go.uber.org/zap"
)

// WordSelectionState 画手选词
type WordSelectionState struct {
	RoomStateBase
}

func (s *WordSelectionState) OnEnter() {
	e := s.engine
	t := e.turn
	now := s.Room.Now()

	if !e.resuming {
		t.Budget = e.timing.WordSelectTime
		t.Remaining = t.Budget
		s.Room.Broadcast(network.MustMessage(network.EventTurnStarting, network.TurnStartingPayload{
			Round:    t.Round,
			Turn:     t.Turn,
			DrawerID: t.DrawerID,
			TimeMs:   t.Budget.Milliseconds(),
		}))
	}
	t.resumedAt = now

	s.Room.SendTo(t.DrawerID, network.MustMessage(network.EventWordSelection, network.WordSelectionPayload{
		Choices:   t.Choices,
		TimeLimit: t.Remaining.Milliseconds(),
	}))

	// 超时自动选第一个候选词
	e.after(t.Remaining, func() {
		e.log.Debug("word selection timed out", zap.String("drawer", t.DrawerID))
		if len(t.Choices) == 0 {
			e.endTurn(EndTimeout)
			return
		}
		e.chooseWord(t.Choices[0])
	})
	e.every(e.timing.TimerUpdateInterval, e.sendTimerUpdate)
}

// DrawingState 作画与猜词
type DrawingState struct {
	RoomStateBase
}

func (s *DrawingState) OnEnter() {
	e := s.engine
	t := e.turn
	now := s.Room.Now()

	if !e.resuming {
		settings := s.Room.Settings()
		t.Budget = secondsOf(settings.DrawTime)
		t.Remaining = t.Budget
		t.Pattern = words.Mask(t.Word)
		t.HintAt = words.HintSchedule(t.Budget, settings.Hints)
		t.HintsShown = 0
		t.Canvas = models.CanvasState{Background: DefaultBackground, UpdatedAt: now}

		started := network.TurnStartedPayload{
			Round:    t.Round,
			Turn:     t.Turn,
			DrawerID: t.DrawerID,
			Pattern:  t.Pattern,
			DrawTime: t.Budget.Milliseconds(),
		}
		s.Room.Multicast(e.othersThan(t.DrawerID), network.MustMessage(network.EventTurnStarted, started))
		started.Word = t.Word
		s.Room.SendTo(t.DrawerID, network.MustMessage(network.EventTurnStarted, started))
	}
	t.resumedAt = now

	elapsed := t.Budget - t.Remaining
	for i := t.HintsShown; i < len(t.HintAt); i++ {
		e.after(t.HintAt[i]-elapsed, e.revealHint)
	}
	e.after(t.Remaining, func() { e.endTurn(EndTimeout) })
	e.every(e.timing.TimerUpdateInterval, e.sendTimerUpdate)
}

// TurnEndState 结算本回合
type TurnEndState struct {
	RoomStateBase
}

func (s *TurnEndState) OnEnter() {
	e := s.engine
	t := e.turn
	now := s.Room.Now()

	drawerPts := 0
	if drawer := s.Room.Member(t.DrawerID); drawer != nil {
		drawerPts = DrawerPoints(len(t.Guessed))
		if drawerPts > 0 {
			drawer.Score += drawerPts
			drawer.ScoreAchievedAt = now
		}
	}
	for _, p := range s.Room.Members() {
		p.Drawing = false
	}

	results := make([]network.GuessResult, 0, len(t.Guessed))
	for i, id := range t.Guessed {
		results = append(results, network.GuessResult{PlayerID: id, Order: i, Points: t.Points[id]})
	}
	scores := Scores(s.Room.Members())
	s.Room.Broadcast(network.MustMessage(network.EventTurnEnded, network.TurnEndedPayload{
		Round:     t.Round,
		Turn:      t.Turn,
		DrawerID:  t.DrawerID,
		Word:      t.Word,
		EndReason: t.EndReason,
		Results:   results,
		DrawerPts: drawerPts,
		Scores:    scores,
	}))
	s.Room.Broadcast(network.MustMessage(network.EventScoreUpdate, network.ScoreUpdatePayload{Scores: scores}))

	e.log.Info("turn ended",
		zap.Int("round", t.Round),
		zap.Int("turn", t.Turn),
		zap.String("reason", t.EndReason),
		zap.Int("guessed", len(t.Guessed)))

	e.after(e.timing.TurnEndDelay, func() {
		if !e.nextTurn() {
			e.transition(PhaseRoundEnd)
		}
	})
}

// RoundEndState 一轮结束
type RoundEndState struct {
	RoomStateBase
}

func (s *RoundEndState) OnEnter() {
	e := s.engine
	s.Room.Broadcast(network.MustMessage(network.EventRoundEnded, network.RoundEndedPayload{
		Round:  e.round,
		Scores: Scores(s.Room.Members()),
	}))

	e.after(e.timing.RoundEndDelay, func() {
		e.round++
		if e.round > s.Room.Settings().Rounds {
			e.transition(PhaseFinished)
			return
		}
		e.buildOrder()
		if !e.nextTurn() {
			e.transition(PhaseFinished)
		}
	})
}
