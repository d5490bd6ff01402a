package state

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/wfunc/doodleserver/models"
	"github.com/wfunc/doodleserver/network"
	"github.com/wfunc/doodleserver/timer"
	"github.com/wfunc/doodleserver/words"
)

// fakeRoom records everything the engine sends and drives timers by hand.
type fakeRoom struct {
	settings models.RoomSettings
	members  []*models.Player
	status   models.RoomStatus
	clock    *timer.Manual
	bank     *words.Bank
	inbox    map[string][]*network.Message
	finished *models.MatchResult
}

func newFakeRoom(settings models.RoomSettings, ids ...string) *fakeRoom {
	r := &fakeRoom{
		settings: settings,
		clock:    timer.NewManual(),
		bank:     words.NewBank(map[string]words.List{"en": {words.Easy: {"cat"}}}, words.WithSeed(7)),
		inbox:    make(map[string][]*network.Message),
	}
	for i, id := range ids {
		p := models.NewPlayer(id, id, "")
		p.JoinedAt = r.clock.Now().Add(time.Duration(i) * time.Second)
		p.Attach("conn-" + id)
		r.members = append(r.members, p)
	}
	return r
}

func (r *fakeRoom) GetID() string                      { return "room-1" }
func (r *fakeRoom) Settings() models.RoomSettings      { return r.settings }
func (r *fakeRoom) Members() []*models.Player          { return r.members }
func (r *fakeRoom) SetStatus(status models.RoomStatus) { r.status = status }
func (r *fakeRoom) Now() time.Time                     { return r.clock.Now() }
func (r *fakeRoom) Words() *words.Bank                 { return r.bank }
func (r *fakeRoom) GameFinished(res *models.MatchResult) {
	r.finished = res
}

func (r *fakeRoom) Member(id string) *models.Player {
	for _, p := range r.members {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (r *fakeRoom) remove(id string) {
	for i, p := range r.members {
		if p.ID == id {
			r.members = append(r.members[:i], r.members[i+1:]...)
			return
		}
	}
}

func (r *fakeRoom) Broadcast(msg *network.Message) {
	for _, p := range r.members {
		r.inbox[p.ID] = append(r.inbox[p.ID], msg)
	}
}

func (r *fakeRoom) Multicast(ids []string, msg *network.Message) {
	for _, id := range ids {
		r.inbox[id] = append(r.inbox[id], msg)
	}
}

func (r *fakeRoom) SendTo(id string, msg *network.Message) {
	r.inbox[id] = append(r.inbox[id], msg)
}

func (r *fakeRoom) Schedule(delay, interval time.Duration, fn func()) int64 {
	return r.clock.AddTimer(delay, interval, fn)
}

func (r *fakeRoom) Cancel(id int64) { r.clock.RemoveTimer(id) }

func (r *fakeRoom) events(id, event string) []*network.Message {
	var out []*network.Message
	for _, m := range r.inbox[id] {
		if m.Type == event {
			out = append(out, m)
		}
	}
	return out
}

func decode[T any](t *testing.T, msg *network.Message) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(msg.Data, &v))
	return v
}

type EngineTestSuite struct {
	suite.Suite
	room   *fakeRoom
	engine *Engine
}

func (s *EngineTestSuite) setup(settings models.RoomSettings, ids ...string) {
	s.room = newFakeRoom(settings, ids...)
	s.engine = NewEngine(s.room, DefaultTiming())
}

func defaultSettings() models.RoomSettings {
	return models.RoomSettings{MaxPlayers: 8, Rounds: 2, DrawTime: 60, Language: "en", Hints: 2}
}

// startToDrawing runs the countdown and picks the word.
func (s *EngineTestSuite) startToDrawing() {
	s.Require().NoError(s.engine.Start())
	s.room.clock.Advance(3 * time.Second)
	s.Require().Equal(PhaseWordSelection, s.engine.Phase())
	s.Require().NoError(s.engine.SelectWord(s.engine.Turn().DrawerID, "cat"))
	s.Require().Equal(PhaseDrawing, s.engine.Phase())
}

func (s *EngineTestSuite) TestStartRunsCountdownThenWordSelection() {
	s.setup(defaultSettings(), "p1", "p2")

	s.Require().NoError(s.engine.Start())
	s.Equal(PhaseStarting, s.engine.Phase())
	s.Equal(models.StatusStarting, s.room.status)
	s.Len(s.room.events("p2", network.EventGameStarting), 1)

	s.room.clock.Advance(3 * time.Second)
	s.Equal(PhaseWordSelection, s.engine.Phase())
	s.Equal(models.StatusActive, s.room.status)
	s.Equal("p1", s.engine.Turn().DrawerID, "first joiner draws first")
	s.True(s.room.Member("p1").Drawing)

	sel := s.room.events("p1", network.EventWordSelection)
	s.Require().Len(sel, 1)
	s.Equal([]string{"cat"}, decode[network.WordSelectionPayload](s.T(), sel[0]).Choices)
	s.Empty(s.room.events("p2", network.EventWordSelection))
	s.Len(s.room.events("p2", network.EventTurnStarting), 1)

	s.ErrorContains(s.engine.Start(), "GAME_IN_PROGRESS")
}

func (s *EngineTestSuite) TestSelectWordValidation() {
	s.setup(defaultSettings(), "p1", "p2")
	s.Error(s.engine.SelectWord("p1", "cat"), "no selection before the game")

	s.engine.Start()
	s.room.clock.Advance(3 * time.Second)

	s.ErrorContains(s.engine.SelectWord("p2", "cat"), "NOT_DRAWER")
	s.ErrorContains(s.engine.SelectWord("p1", "dog"), "INVALID_WORD")
	s.Equal(PhaseWordSelection, s.engine.Phase())

	s.NoError(s.engine.SelectWord("p1", "  CAT "))
	s.Equal("cat", s.engine.Turn().Word)
}

func (s *EngineTestSuite) TestWordSelectionTimesOut() {
	s.setup(defaultSettings(), "p1", "p2")
	s.engine.Start()
	s.room.clock.Advance(3 * time.Second)

	s.room.clock.Advance(15 * time.Second)
	s.Equal(PhaseDrawing, s.engine.Phase())
	s.Equal("cat", s.engine.Turn().Word)
}

func (s *EngineTestSuite) TestTurnStartedHidesWordFromGuessers() {
	s.setup(defaultSettings(), "p1", "p2")
	s.startToDrawing()

	drawer := decode[network.TurnStartedPayload](s.T(), s.room.events("p1", network.EventTurnStarted)[0])
	guesser := decode[network.TurnStartedPayload](s.T(), s.room.events("p2", network.EventTurnStarted)[0])
	s.Equal("cat", drawer.Word)
	s.Empty(guesser.Word)
	s.Equal("___", guesser.Pattern)
	s.Equal(int64(60000), guesser.DrawTime)
}

func (s *EngineTestSuite) TestCorrectGuessEndsTurnWhenAllGuessed() {
	s.setup(defaultSettings(), "p1", "p2")
	s.startToDrawing()

	s.False(s.engine.IsGuessing("p1"))
	s.True(s.engine.IsGuessing("p2"))

	out := s.engine.SubmitGuess("p2", "Cat")
	s.True(out.Correct)
	s.Equal(0, out.Order)
	s.Equal(150, out.Points)

	s.Len(s.room.events("p2", network.EventCorrectGuess), 1)
	s.Len(s.room.events("p1", network.EventPlayerGuessed), 1)
	s.Equal(PhaseTurnEnd, s.engine.Phase())

	ended := decode[network.TurnEndedPayload](s.T(), s.room.events("p1", network.EventTurnEnded)[0])
	s.Equal(EndAllGuessed, ended.EndReason)
	s.Equal("cat", ended.Word)
	s.Equal(25, ended.DrawerPts)
	s.Equal(map[string]int{"p1": 25, "p2": 150}, ended.Scores)

	// the draw timer was cancelled with the turn
	s.room.clock.Advance(2 * time.Second)
	s.Len(s.room.events("p1", network.EventTurnEnded), 1)
}

func (s *EngineTestSuite) TestGuessOrderScoring() {
	s.setup(defaultSettings(), "p1", "p2", "p3")
	s.startToDrawing()

	s.room.clock.Advance(10 * time.Second)
	first := s.engine.SubmitGuess("p3", "cat")
	second := s.engine.SubmitGuess("p2", "cat")

	s.Equal(0, first.Order)
	s.Equal(1, second.Order)
	s.GreaterOrEqual(first.Points, second.Points)
	s.Equal(PhaseTurnEnd, s.engine.Phase())
}

func (s *EngineTestSuite) TestWrongAndRepeatedGuesses() {
	s.setup(defaultSettings(), "p1", "p2", "p3")
	s.startToDrawing()

	out := s.engine.SubmitGuess("p2", "dog")
	s.True(out.Accepted)
	s.False(out.Correct)
	s.False(out.Close, "three letter words never count as close")

	s.True(s.engine.SubmitGuess("p2", "cat").Correct)
	again := s.engine.SubmitGuess("p2", "cat")
	s.False(again.Accepted, "an already-correct player is not scored twice")
	s.Equal(150, s.room.Member("p2").Score)

	s.False(s.engine.SubmitGuess("p1", "cat").Accepted, "the drawer cannot guess")
}

func (s *EngineTestSuite) TestTimeoutEndsTurn() {
	s.setup(defaultSettings(), "p1", "p2")
	s.startToDrawing()

	s.room.clock.Advance(60 * time.Second)
	s.Equal(PhaseTurnEnd, s.engine.Phase())
	ended := decode[network.TurnEndedPayload](s.T(), s.room.events("p2", network.EventTurnEnded)[0])
	s.Equal(EndTimeout, ended.EndReason)
	s.Equal(0, ended.DrawerPts)
}

func (s *EngineTestSuite) TestHintsAndTimerUpdates() {
	settings := defaultSettings()
	s.setup(settings, "p1", "p2")
	s.startToDrawing()

	s.room.clock.Advance(20 * time.Second)
	hints := s.room.events("p2", network.EventHintRevealed)
	s.Require().Len(hints, 1)
	first := decode[network.HintRevealedPayload](s.T(), hints[0])
	s.Equal(s.engine.Turn().Pattern, first.Pattern)

	s.room.clock.Advance(20 * time.Second)
	// 最后一个未揭示的字母永远不会给出
	s.Contains(s.engine.Turn().Pattern, "_")
	for i, r := range first.Pattern {
		if r != '_' {
			s.Equal(string(r), string([]rune(s.engine.Turn().Pattern)[i]), "revealed letters stay revealed")
		}
	}

	s.NotEmpty(s.room.events("p2", network.EventTimerUpdate))
}

func (s *EngineTestSuite) TestFullGameFinishes() {
	settings := defaultSettings()
	settings.Rounds = 1
	s.setup(settings, "p1", "p2")
	s.startToDrawing()

	s.engine.SubmitGuess("p2", "cat")
	s.room.clock.Advance(5 * time.Second)
	s.Equal(PhaseWordSelection, s.engine.Phase())
	s.Equal("p2", s.engine.Turn().DrawerID)

	s.Require().NoError(s.engine.SelectWord("p2", "cat"))
	s.room.clock.Advance(6 * time.Second)
	s.engine.SubmitGuess("p1", "cat")
	s.room.clock.Advance(5 * time.Second)
	s.Equal(PhaseRoundEnd, s.engine.Phase())

	s.room.clock.Advance(5 * time.Second)
	s.Equal(PhaseFinished, s.engine.Phase())
	s.Equal(models.StatusFinished, s.room.status)
	s.Nil(s.engine.Turn())

	s.Require().NotNil(s.room.finished)
	s.Len(s.room.finished.Standings, 2)
	// p2: 150 + 25, p1: 25 + 145
	s.Equal("p2", s.room.finished.Standings[0].PlayerID)
	s.Equal(175, s.room.finished.Standings[0].Score)
	s.Equal(170, s.room.finished.Standings[1].Score)

	s.engine.Reset()
	s.Equal(PhaseWaiting, s.engine.Phase())
	s.Equal(0, s.room.Member("p1").Score)
}

func (s *EngineTestSuite) TestDrawerDisconnectPausesAndResumes() {
	s.setup(defaultSettings(), "p1", "p2", "p3")
	s.startToDrawing()
	s.room.clock.Advance(20 * time.Second)

	s.room.Member("p1").Detach()
	s.engine.PlayerDisconnected("p1")
	s.Equal(PhasePaused, s.engine.Phase())
	paused := decode[network.GamePausedPayload](s.T(), s.room.events("p2", network.EventGamePaused)[0])
	s.Equal(int64(40000), paused.RemainingMs)
	s.Equal(PauseDrawerDisconnected, paused.Reason)

	// 暂停期间计时停止
	s.room.clock.Advance(2 * time.Minute)
	s.Equal(PhasePaused, s.engine.Phase())

	s.room.Member("p1").Attach("conn-p1b")
	s.engine.PlayerReconnected("p1")
	s.Equal(PhaseDrawing, s.engine.Phase())
	s.Len(s.room.events("p2", network.EventGameResumed), 1)
	s.Equal(40*time.Second, s.engine.Remaining())

	s.room.clock.Advance(40 * time.Second)
	s.Equal(PhaseTurnEnd, s.engine.Phase())
}

func (s *EngineTestSuite) TestDrawerLeavingEndsTurn() {
	s.setup(defaultSettings(), "p1", "p2", "p3")
	s.startToDrawing()

	s.room.remove("p1")
	s.engine.PlayerLeft("p1")
	s.Equal(PhaseTurnEnd, s.engine.Phase())
	ended := decode[network.TurnEndedPayload](s.T(), s.room.events("p2", network.EventTurnEnded)[0])
	s.Equal(EndDrawerLeft, ended.EndReason)

	s.room.clock.Advance(5 * time.Second)
	s.Equal("p2", s.engine.Turn().DrawerID)
}

func (s *EngineTestSuite) TestGuesserLeavingCompletesTurn() {
	s.setup(defaultSettings(), "p1", "p2", "p3")
	s.startToDrawing()

	s.engine.SubmitGuess("p2", "cat")
	s.Equal(PhaseDrawing, s.engine.Phase())

	s.room.remove("p3")
	s.engine.PlayerLeft("p3")
	s.Equal(PhaseTurnEnd, s.engine.Phase())
}

func (s *EngineTestSuite) TestGuesserDisconnectPausesUntilGraceExpires() {
	s.setup(defaultSettings(), "p1", "p2")
	s.startToDrawing()

	s.room.Member("p2").Detach()
	s.engine.PlayerDisconnected("p2")
	s.Equal(PhasePaused, s.engine.Phase())
	s.Equal(models.StatusActive, s.room.status)
	paused := decode[network.GamePausedPayload](s.T(), s.room.events("p1", network.EventGamePaused)[0])
	s.Equal(PauseNotEnoughPlayers, paused.Reason)
	s.Empty(s.room.events("p1", network.EventGameEnded))

	// 宽限期到期，玩家真正离开后才取消
	s.room.remove("p2")
	s.engine.PlayerLeft("p2")
	s.Equal(PhaseWaiting, s.engine.Phase())
	s.Equal(models.StatusWaiting, s.room.status)

	ended := decode[network.GameEndedPayload](s.T(), s.room.events("p1", network.EventGameEnded)[0])
	s.True(ended.Cancelled)
	s.Equal("not_enough_players", ended.Reason)
	s.Nil(s.engine.Turn())

	// nothing left over fires later
	s.room.clock.Advance(5 * time.Minute)
	s.Equal(PhaseWaiting, s.engine.Phase())
}

func (s *EngineTestSuite) TestGuesserReconnectKeepsScoreAndResumes() {
	s.setup(defaultSettings(), "p1", "p2", "p3")
	s.startToDrawing()
	s.room.clock.Advance(10 * time.Second)
	s.True(s.engine.SubmitGuess("p2", "cat").Correct)
	score := s.room.Member("p2").Score
	s.Positive(score)

	s.room.Member("p2").Detach()
	s.engine.PlayerDisconnected("p2")
	s.room.Member("p3").Detach()
	s.engine.PlayerDisconnected("p3")
	s.Equal(PhasePaused, s.engine.Phase())

	s.room.clock.Advance(time.Minute)
	s.Equal(PhasePaused, s.engine.Phase())

	s.room.Member("p3").Attach("conn-p3b")
	s.engine.PlayerReconnected("p3")
	s.Equal(PhaseDrawing, s.engine.Phase())
	s.Equal(50*time.Second, s.engine.Remaining())

	s.room.Member("p2").Attach("conn-p2b")
	s.engine.PlayerReconnected("p2")
	s.Equal(PhaseDrawing, s.engine.Phase())
	s.Equal(score, s.room.Member("p2").Score)
	s.True(s.room.Member("p2").HasGuessed)
}

func (s *EngineTestSuite) TestTurnStartsPausedWithOnePlayerOnline() {
	s.setup(defaultSettings(), "p1", "p2")
	s.room.Member("p2").Detach()
	s.engine.Start()
	s.room.clock.Advance(3 * time.Second)

	s.Equal(PhasePaused, s.engine.Phase())
	s.Equal("p1", s.engine.Turn().DrawerID)
	s.room.clock.Advance(time.Minute)
	s.Equal(PhasePaused, s.engine.Phase())

	s.room.Member("p2").Attach("conn-p2b")
	s.engine.PlayerReconnected("p2")
	s.Equal(PhaseWordSelection, s.engine.Phase())
}

func (s *EngineTestSuite) TestHeldGuessesReplayOnResume() {
	s.setup(defaultSettings(), "p1", "p2", "p3")
	s.startToDrawing()

	s.room.Member("p1").Detach()
	s.engine.PlayerDisconnected("p1")
	s.Require().Equal(PhasePaused, s.engine.Phase())
	s.True(s.engine.WordHidden())

	s.True(s.engine.HoldGuess("p3", "cat"))
	s.True(s.engine.HoldGuess("p2", "is it a cat?"))
	s.False(s.engine.HoldGuess("p2", "hello"))
	s.False(s.engine.HoldGuess("p1", "cat"))
	s.Empty(s.room.events("p3", network.EventCorrectGuess))

	s.room.Member("p1").Attach("conn-p1b")
	s.engine.PlayerReconnected("p1")
	s.Equal(PhaseDrawing, s.engine.Phase())

	correct := decode[network.CorrectGuessPayload](s.T(), s.room.events("p3", network.EventCorrectGuess)[0])
	s.Equal(0, correct.Order)
	s.True(s.room.Member("p3").HasGuessed)
	s.False(s.room.Member("p2").HasGuessed)
	s.False(s.engine.HoldGuess("p2", "cat"))
}

func (s *EngineTestSuite) TestCountdownCancelledIfPlayersDrop() {
	s.setup(defaultSettings(), "p1", "p2")
	s.engine.Start()
	s.room.remove("p2")
	s.engine.PlayerLeft("p2")
	s.Equal(PhaseWaiting, s.engine.Phase())

	s.room.clock.Advance(3 * time.Second)
	s.Equal(PhaseWaiting, s.engine.Phase())
}

func TestEngineTestSuite(t *testing.T) {
	suite.Run(t, new(EngineTestSuite))
}

func TestRemainingAtClampsToZero(t *testing.T) {
	now := time.Now()
	ts := &TurnState{Remaining: time.Second, resumedAt: now}
	assert.Equal(t, time.Second, ts.RemainingAt(now))
	assert.Equal(t, time.Duration(0), ts.RemainingAt(now.Add(time.Minute)))
}
