package state

import (
	"time"

	"github.com/google/uuid"
	"github.com/wfunc/doodleserver/apperr"
	"github.com/wfunc/doodleserver/logger"
	"github.com/wfunc/doodleserver/models"
	"github.com/wfunc/doodleserver/network"
	"github.com/wfunc/doodleserver/words"
	"go.uber.org/zap"
)

// 回合结束原因
const (
	EndAllGuessed = "all_guessed"
	EndTimeout    = "timeout"
	EndDrawerLeft = "drawer_left"
)

// 暂停原因
const (
	PauseDrawerDisconnected = "drawer_disconnected"
	PauseNotEnoughPlayers   = "not_enough_players"
)

const DefaultBackground = "#FFFFFF"

// Timing 回合引擎的各类时长
type Timing struct {
	WordChoices         int
	WordSelectTime      time.Duration
	StartCountdown      time.Duration
	TurnEndDelay        time.Duration
	RoundEndDelay       time.Duration
	TimerUpdateInterval time.Duration
}

func DefaultTiming() Timing {
	return Timing{
		WordChoices:         3,
		WordSelectTime:      15 * time.Second,
		StartCountdown:      3 * time.Second,
		TurnEndDelay:        5 * time.Second,
		RoundEndDelay:       5 * time.Second,
		TimerUpdateInterval: 5 * time.Second,
	}
}

// TurnState lives from word selection until the turn is settled.
type TurnState struct {
	Round    int
	Turn     int
	DrawerID string
	Choices  []string
	Word     string
	Pattern  string

	// Budget and Remaining describe the timed phase in progress (selection or
	// drawing). Remaining is measured at resumedAt.
	Budget    time.Duration
	Remaining time.Duration
	resumedAt time.Time

	Guessed    []string
	Points     map[string]int
	HintAt     []time.Duration
	HintsShown int
	Canvas     models.CanvasState
	EndReason  string
}

// RemainingAt 剩余时间
func (t *TurnState) RemainingAt(now time.Time) time.Duration {
	left := t.Remaining - now.Sub(t.resumedAt)
	if left < 0 {
		return 0
	}
	return left
}

type heldGuess struct {
	playerID string
	text     string
}

// GuessOutcome 猜词结果
type GuessOutcome struct {
	// Accepted is false when the text was not treated as a guess at all.
	Accepted bool
	Correct  bool
	Close    bool
	Order    int
	Points   int
}

// Engine 回合状态机。所有方法都只能在房间自己的 goroutine 中调用。
type Engine struct {
	room    RoomContext
	timing  Timing
	machine *BaseStateMachine
	states  map[string]State
	log     *zap.Logger

	round      int
	turnNumber int
	order      []string
	next       int
	turn       *TurnState
	startedAt  time.Time
	pausedFrom  string
	pauseReason string
	resuming    bool
	// held 暂停期间收到的疑似猜词，恢复后按到达顺序补判
	held []heldGuess

	// seq 每次转换递增，过期的定时器据此失效
	seq    uint64
	timers []int64
}

func NewEngine(room RoomContext, timing Timing) *Engine {
	e := &Engine{
		room:   room,
		timing: timing,
		log:    logger.WithModule("turn").With(zap.String("room", room.GetID())),
	}
	base := func(id string) RoomStateBase {
		return RoomStateBase{ID: id, Room: room, engine: e}
	}
	e.states = map[string]State{
		PhaseWaiting:       &WaitingState{base(PhaseWaiting)},
		PhaseStarting:      &StartingState{base(PhaseStarting)},
		PhaseWordSelection: &WordSelectionState{base(PhaseWordSelection)},
		PhaseDrawing:       &DrawingState{base(PhaseDrawing)},
		PhaseTurnEnd:       &TurnEndState{base(PhaseTurnEnd)},
		PhaseRoundEnd:      &RoundEndState{base(PhaseRoundEnd)},
		PhaseFinished:      &FinishedState{base(PhaseFinished)},
		PhasePaused:        &PausedState{base(PhasePaused)},
		PhaseCancelled:     &CancelledState{RoomStateBase: base(PhaseCancelled)},
	}
	e.machine = NewBaseStateMachine(e.states[PhaseWaiting])
	for from, targets := range transitions {
		for _, to := range targets {
			e.machine.AddTransition(e.states[from], e.states[to], nil)
		}
	}
	return e
}

func (e *Engine) Phase() string {
	return e.machine.GetCurrentState().GetID()
}

// Active reports whether a game is running (including its countdown).
func (e *Engine) Active() bool {
	switch e.Phase() {
	case PhaseWaiting, PhaseFinished, PhaseCancelled:
		return false
	}
	return true
}

func (e *Engine) Round() int { return e.round }

// Turn returns the running turn, nil between games.
func (e *Engine) Turn() *TurnState { return e.turn }

// Remaining 当前计时阶段的剩余时间
func (e *Engine) Remaining() time.Duration {
	if e.turn == nil {
		return 0
	}
	switch e.Phase() {
	case PhaseWordSelection, PhaseDrawing:
		return e.turn.RemainingAt(e.room.Now())
	case PhasePaused:
		return e.turn.Remaining
	}
	return 0
}

// Start moves a waiting room into the countdown.
func (e *Engine) Start() error {
	if e.Phase() != PhaseWaiting {
		return apperr.New(apperr.GameInProgress)
	}
	return e.transition(PhaseStarting)
}

// Reset returns a finished room to the lobby.
func (e *Engine) Reset() {
	if e.Phase() == PhaseFinished {
		e.transition(PhaseWaiting)
	}
}

// Stop cancels every pending timer; used when the room closes.
func (e *Engine) Stop() {
	e.cancelTimers()
	e.seq++
}

// Cancel abandons a running game and returns to the lobby.
func (e *Engine) Cancel(reason string) {
	if !e.Active() {
		return
	}
	e.log.Info("game cancelled", zap.String("reason", reason))
	e.states[PhaseCancelled].(*CancelledState).reason = reason
	e.held = nil
	if e.transition(PhaseCancelled) == nil {
		e.transition(PhaseWaiting)
	}
}

// SelectWord 画手选词
func (e *Engine) SelectWord(playerID, word string) error {
	if e.Phase() != PhaseWordSelection {
		return apperr.New(apperr.InvalidWord, "no word selection in progress")
	}
	if playerID != e.turn.DrawerID {
		return apperr.New(apperr.NotDrawer)
	}
	want := words.Normalize(word)
	for _, c := range e.turn.Choices {
		if words.Normalize(c) == want {
			e.chooseWord(c)
			return nil
		}
	}
	return apperr.New(apperr.InvalidWord, "not one of the offered choices")
}

// IsDrawer reports whether playerID may draw right now.
func (e *Engine) IsDrawer(playerID string) bool {
	return e.Phase() == PhaseDrawing && e.turn != nil && e.turn.DrawerID == playerID
}

// IsGuessing reports whether text from playerID counts as a guess: the turn
// is in drawing, the player is not the drawer and has not guessed yet.
func (e *Engine) IsGuessing(playerID string) bool {
	if e.Phase() != PhaseDrawing || e.turn.DrawerID == playerID {
		return false
	}
	p := e.room.Member(playerID)
	return p != nil && !p.HasGuessed
}

// HasGuessedOrDraws 本回合已知道答案的人
func (e *Engine) HasGuessedOrDraws(playerID string) bool {
	if e.turn == nil {
		return false
	}
	if e.turn.DrawerID == playerID {
		return true
	}
	p := e.room.Member(playerID)
	return p != nil && p.HasGuessed
}

// SubmitGuess scores a guess in arrival order. A correct guess ends the turn
// once every connected non-drawer has guessed.
func (e *Engine) SubmitGuess(playerID, text string) GuessOutcome {
	if !e.IsGuessing(playerID) {
		return GuessOutcome{}
	}
	t := e.turn
	out := GuessOutcome{Accepted: true}
	if !words.IsCorrect(text, t.Word) {
		out.Close = words.IsClose(text, t.Word)
		return out
	}

	now := e.room.Now()
	p := e.room.Member(playerID)
	order := len(t.Guessed)
	points := GuesserPoints(order, t.RemainingAt(now), t.Budget)

	p.HasGuessed = true
	p.Score += points
	p.ScoreAchievedAt = now
	t.Guessed = append(t.Guessed, playerID)
	t.Points[playerID] = points

	e.room.SendTo(playerID, network.MustMessage(network.EventCorrectGuess, network.CorrectGuessPayload{
		Word:   t.Word,
		Order:  order,
		Points: points,
	}))
	e.room.Broadcast(network.MustMessage(network.EventPlayerGuessed, network.PlayerGuessedPayload{
		PlayerID: playerID,
		Order:    order,
	}))
	e.room.Broadcast(network.MustMessage(network.EventScoreUpdate, network.ScoreUpdatePayload{
		Scores: Scores(e.room.Members()),
	}))

	if e.allGuessed() {
		e.endTurn(EndAllGuessed)
	}

	out.Correct = true
	out.Order = order
	out.Points = points
	return out
}

// PlayerDisconnected 玩家掉线（仍在宽限期内）。宽限期内的玩家仍算在局内，
// 所以这里只暂停，真正的取消留给 PlayerLeft。
func (e *Engine) PlayerDisconnected(playerID string) {
	if !e.Active() {
		return
	}
	switch e.Phase() {
	case PhaseWordSelection, PhaseDrawing:
	default:
		return
	}
	switch {
	case playerID == e.turn.DrawerID:
		e.pause(PauseDrawerDisconnected)
	case e.connectedCount() < 2:
		e.pause(PauseNotEnoughPlayers)
	case e.Phase() == PhaseDrawing && e.allGuessed():
		e.endTurn(EndAllGuessed)
	}
}

// PlayerReconnected 画手回来且在线人数足够时恢复计时
func (e *Engine) PlayerReconnected(playerID string) {
	if e.Phase() == PhasePaused && e.canResume() {
		e.resume()
	}
}

// PlayerLeft 玩家离开房间（主动离开或宽限期到期），此时成员已移除
func (e *Engine) PlayerLeft(playerID string) {
	if !e.Active() {
		return
	}
	if len(e.room.Members()) < 2 {
		e.Cancel("not_enough_players")
		return
	}
	if e.turn != nil && e.turn.DrawerID == playerID {
		e.endTurn(EndDrawerLeft)
		return
	}
	switch e.Phase() {
	case PhaseDrawing:
		if e.allGuessed() {
			e.endTurn(EndAllGuessed)
		}
	case PhasePaused:
		if e.canResume() {
			e.resume()
		}
	}
}

// WordHidden reports whether the current word must stay hidden from players
// who have not guessed it.
func (e *Engine) WordHidden() bool {
	if e.turn == nil || e.turn.Word == "" {
		return false
	}
	p := e.Phase()
	return p == PhaseDrawing || p == PhasePaused
}

// HoldGuess queues text that would be a guess while the turn is paused. It
// returns true when the text was held and must not be shown to anyone.
func (e *Engine) HoldGuess(playerID, text string) bool {
	if e.Phase() != PhasePaused || e.pausedFrom != PhaseDrawing || e.turn == nil {
		return false
	}
	if e.HasGuessedOrDraws(playerID) || e.room.Member(playerID) == nil {
		return false
	}
	if !words.IsCorrect(text, e.turn.Word) && !words.Mentions(text, e.turn.Word) {
		return false
	}
	e.held = append(e.held, heldGuess{playerID: playerID, text: text})
	return true
}

func (e *Engine) transition(phase string) error {
	next := e.states[phase]
	if !e.machine.CanChange(next) {
		e.log.Warn("transition rejected", zap.String("from", e.Phase()), zap.String("to", phase))
		return ErrTransitionNotAllowed
	}
	e.cancelTimers()
	e.seq++
	e.log.Debug("phase", zap.String("to", phase))
	return e.machine.ChangeState(next)
}

// after schedules fn inside the room; it is dropped if the phase has moved on.
func (e *Engine) after(delay time.Duration, fn func()) {
	seq := e.seq
	id := e.room.Schedule(delay, 0, func() {
		if e.seq != seq {
			return
		}
		fn()
	})
	e.timers = append(e.timers, id)
}

func (e *Engine) every(interval time.Duration, fn func()) {
	if interval <= 0 {
		return
	}
	seq := e.seq
	id := e.room.Schedule(interval, interval, func() {
		if e.seq != seq {
			return
		}
		fn()
	})
	e.timers = append(e.timers, id)
}

func (e *Engine) cancelTimers() {
	for _, id := range e.timers {
		e.room.Cancel(id)
	}
	e.timers = e.timers[:0]
}

func (e *Engine) beginGame() {
	if len(e.room.Members()) < 2 {
		e.Cancel("not_enough_players")
		return
	}
	e.room.SetStatus(models.StatusActive)
	e.round = 1
	e.turnNumber = 0
	e.startedAt = e.room.Now()
	for _, p := range e.room.Members() {
		p.Score = 0
		p.ScoreAchievedAt = time.Time{}
		p.HasGuessed = false
		p.Drawing = false
	}
	e.buildOrder()

	e.room.Broadcast(network.MustMessage(network.EventGameStarted, network.GameStartedPayload{
		Rounds:    e.room.Settings().Rounds,
		TurnOrder: e.order,
	}))
	e.log.Info("game started", zap.Int("players", len(e.order)))

	if !e.nextTurn() {
		e.Cancel("not_enough_players")
	}
}

// buildOrder 按加入时间排定本轮画手顺序，中途加入的玩家从下一轮开始作画
func (e *Engine) buildOrder() {
	members := e.room.Members()
	e.order = make([]string, 0, len(members))
	for _, p := range members {
		e.order = append(e.order, p.ID)
	}
	e.next = 0
}

// nextTurn starts word selection for the next connected player in the order.
// It returns false when the round has no drawer left.
func (e *Engine) nextTurn() bool {
	for e.next < len(e.order) {
		id := e.order[e.next]
		e.next++
		p := e.room.Member(id)
		if p == nil || !p.Connected() {
			continue
		}
		e.startTurn(p)
		return true
	}
	return false
}

func (e *Engine) startTurn(drawer *models.Player) {
	e.turnNumber++
	settings := e.room.Settings()
	choices := e.room.Words().Choices(settings, e.timing.WordChoices)

	for _, p := range e.room.Members() {
		p.Drawing = p.ID == drawer.ID
		p.HasGuessed = false
	}
	e.turn = &TurnState{
		Round:    e.round,
		Turn:     e.turnNumber,
		DrawerID: drawer.ID,
		Choices:  choices,
		Points:   make(map[string]int),
	}
	e.held = nil
	e.transition(PhaseWordSelection)
	if e.connectedCount() < 2 {
		e.pause(PauseNotEnoughPlayers)
	}
}

func (e *Engine) chooseWord(word string) {
	e.turn.Word = word
	e.transition(PhaseDrawing)
}

func (e *Engine) endTurn(reason string) {
	switch e.Phase() {
	case PhaseWordSelection, PhaseDrawing, PhasePaused:
	default:
		return
	}
	e.turn.EndReason = reason
	e.held = nil
	e.transition(PhaseTurnEnd)
}

func (e *Engine) pause(reason string) {
	e.turn.Remaining = e.turn.RemainingAt(e.room.Now())
	e.pausedFrom = e.Phase()
	e.pauseReason = reason
	e.log.Info("turn paused",
		zap.String("reason", reason),
		zap.String("drawer", e.turn.DrawerID),
		zap.Duration("remaining", e.turn.Remaining))
	e.transition(PhasePaused)
}

func (e *Engine) canResume() bool {
	if e.turn == nil || e.connectedCount() < 2 {
		return false
	}
	drawer := e.room.Member(e.turn.DrawerID)
	return drawer != nil && drawer.Connected()
}

func (e *Engine) resume() {
	e.room.Broadcast(network.MustMessage(network.EventGameResumed, network.GameResumedPayload{
		PlayerID:    e.turn.DrawerID,
		Phase:       e.pausedFrom,
		RemainingMs: e.turn.Remaining.Milliseconds(),
	}))
	e.resuming = true
	e.transition(e.pausedFrom)
	e.resuming = false

	held := e.held
	e.held = nil
	for _, g := range held {
		if e.Phase() != PhaseDrawing {
			return
		}
		out := e.SubmitGuess(g.playerID, g.text)
		if out.Close {
			e.room.SendTo(g.playerID, network.MustMessage(network.EventCloseGuess, network.CloseGuessPayload{Guess: g.text}))
		}
	}
	if e.Phase() == PhaseDrawing && e.allGuessed() {
		e.endTurn(EndAllGuessed)
	}
}

func (e *Engine) revealHint() {
	t := e.turn
	t.HintsShown++
	hint, ok := e.room.Words().RevealHint(t.Word, t.Pattern)
	if !ok {
		return
	}
	t.Pattern = hint.Pattern
	e.room.Broadcast(network.MustMessage(network.EventHintRevealed, network.HintRevealedPayload{
		Position: hint.Position,
		Letter:   hint.Letter,
		Pattern:  hint.Pattern,
	}))
}

func (e *Engine) sendTimerUpdate() {
	e.room.Broadcast(network.MustMessage(network.EventTimerUpdate, network.TimerUpdatePayload{
		Phase:       e.Phase(),
		RemainingMs: e.Remaining().Milliseconds(),
	}))
}

func (e *Engine) finish() {
	now := e.room.Now()
	members := e.room.Members()
	standings := Standings(members)
	for _, p := range members {
		p.Drawing = false
	}

	e.room.SetStatus(models.StatusFinished)
	e.room.Broadcast(network.MustMessage(network.EventGameEnded, network.GameEndedPayload{Standings: standings}))
	e.turn = nil

	e.room.GameFinished(&models.MatchResult{
		MatchID:    uuid.NewString(),
		RoomID:     e.room.GetID(),
		Rounds:     e.room.Settings().Rounds,
		Standings:  standings,
		StartedAt:  e.startedAt,
		FinishedAt: now,
		Duration:   now.Sub(e.startedAt),
	})
}

// allGuessed 所有在线的非画手玩家都已猜中
func (e *Engine) allGuessed() bool {
	guessers := 0
	for _, p := range e.room.Members() {
		if p.ID == e.turn.DrawerID || !p.Connected() {
			continue
		}
		if !p.HasGuessed {
			return false
		}
		guessers++
	}
	return guessers > 0
}

func (e *Engine) connectedCount() int {
	n := 0
	for _, p := range e.room.Members() {
		if p.Connected() {
			n++
		}
	}
	return n
}

func (e *Engine) othersThan(playerID string) []string {
	var ids []string
	for _, p := range e.room.Members() {
		if p.ID != playerID {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

func secondsOf(n int) time.Duration {
	return time.Duration(n) * time.Second
}
