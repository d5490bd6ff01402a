package state

import (
	"errors"
	"sync"

	"github.com/wfunc/doodleserver/models"
	"github.com/wfunc/doodleserver/network"
)

// 阶段
const (
	PhaseWaiting       = "waiting"
	PhaseStarting      = "starting"
	PhaseWordSelection = "word_selection"
	PhaseDrawing       = "drawing"
	PhaseTurnEnd       = "turn_end"
	PhaseRoundEnd      = "round_end"
	PhaseFinished      = "finished"
	PhasePaused        = "paused"
	PhaseCancelled     = "cancelled"
)

// 状态机接口
type StateMachine interface {
	ChangeState(state State) error
	GetCurrentState() State
	AddTransition(from State, to State, condition func() bool) error
}

// 状态接口
type State interface {
	OnEnter()
	OnExit()
	GetID() string
}

// ErrTransitionNotAllowed is returned when a state transition is not allowed.
var ErrTransitionNotAllowed = errors.New("state transition not allowed")

// 基础状态机实现。只允许已登记的转换。
type BaseStateMachine struct {
	currentState State
	transitions  map[string]map[string]func() bool // fromState -> toState -> condition
	mutex        sync.RWMutex
}

func NewBaseStateMachine(initialState State) *BaseStateMachine {
	machine := &BaseStateMachine{
		currentState: initialState,
		transitions:  make(map[string]map[string]func() bool),
	}
	initialState.OnEnter()
	return machine
}

// CanChange reports whether the current state may move to newState.
func (sm *BaseStateMachine) CanChange(newState State) bool {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()
	return sm.allowed(newState)
}

func (sm *BaseStateMachine) allowed(newState State) bool {
	conditions, ok := sm.transitions[sm.currentState.GetID()]
	if !ok {
		return false
	}
	condition, ok := conditions[newState.GetID()]
	if !ok {
		return false
	}
	return condition == nil || condition()
}

// ChangeState runs OnExit and OnEnter outside the lock so a state may read
// the machine (or request another transition) from its hooks.
func (sm *BaseStateMachine) ChangeState(newState State) error {
	sm.mutex.Lock()
	if !sm.allowed(newState) {
		sm.mutex.Unlock()
		return ErrTransitionNotAllowed
	}
	old := sm.currentState
	sm.mutex.Unlock()

	old.OnExit()

	sm.mutex.Lock()
	sm.currentState = newState
	sm.mutex.Unlock()

	newState.OnEnter()
	return nil
}

func (sm *BaseStateMachine) GetCurrentState() State {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()
	return sm.currentState
}

func (sm *BaseStateMachine) AddTransition(from State, to State, condition func() bool) error {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	fromID := from.GetID()
	toID := to.GetID()

	if _, exists := sm.transitions[fromID]; !exists {
		sm.transitions[fromID] = make(map[string]func() bool)
	}

	sm.transitions[fromID][toID] = condition
	return nil
}

// transitions 回合引擎的合法转换
var transitions = map[string][]string{
	PhaseWaiting:       {PhaseStarting},
	PhaseStarting:      {PhaseWordSelection, PhaseCancelled},
	PhaseWordSelection: {PhaseDrawing, PhaseTurnEnd, PhasePaused, PhaseCancelled},
	PhaseDrawing:       {PhaseTurnEnd, PhasePaused, PhaseCancelled},
	PhaseTurnEnd:       {PhaseWordSelection, PhaseRoundEnd, PhaseCancelled},
	PhaseRoundEnd:      {PhaseWordSelection, PhaseFinished, PhaseCancelled},
	PhasePaused:        {PhaseWordSelection, PhaseDrawing, PhaseTurnEnd, PhaseCancelled},
	PhaseFinished:      {PhaseWaiting},
	PhaseCancelled:     {PhaseWaiting},
}

// 房间状态基础结构
type RoomStateBase struct {
	ID     string
	Room   RoomContext
	engine *Engine
}

func (s *RoomStateBase) GetID() string {
	return s.ID
}

func (s *RoomStateBase) OnEnter() {
	// 默认实现
}

func (s *RoomStateBase) OnExit() {
	// 默认实现
}

// 等待状态：大厅阶段，准备与设置由房间处理
type WaitingState struct {
	RoomStateBase
}

func (s *WaitingState) OnEnter() {
	s.Room.SetStatus(models.StatusWaiting)
	for _, p := range s.Room.Members() {
		p.ResetGame()
	}
}

// 倒计时
type StartingState struct {
	RoomStateBase
}

func (s *StartingState) OnEnter() {
	e := s.engine
	s.Room.SetStatus(models.StatusStarting)
	s.Room.Broadcast(network.MustMessage(network.EventGameStarting, network.GameStartingPayload{
		CountdownMs: e.timing.StartCountdown.Milliseconds(),
	}))
	e.after(e.timing.StartCountdown, e.beginGame)
}

// 整局结束，房间保留一段时间作为赛后大厅
type FinishedState struct {
	RoomStateBase
}

func (s *FinishedState) OnEnter() {
	s.engine.finish()
}

// 暂停：画手掉线或在线人数不足，等待宽限期内重连
type PausedState struct {
	RoomStateBase
}

func (s *PausedState) OnEnter() {
	e := s.engine
	s.Room.Broadcast(network.MustMessage(network.EventGamePaused, network.GamePausedPayload{
		Reason:      e.pauseReason,
		PlayerID:    e.turn.DrawerID,
		Phase:       e.pausedFrom,
		RemainingMs: e.turn.Remaining.Milliseconds(),
	}))
}

// 取消：人数不足
type CancelledState struct {
	RoomStateBase
	reason string
}

func (s *CancelledState) OnEnter() {
	s.Room.Broadcast(network.MustMessage(network.EventGameEnded, network.GameEndedPayload{
		Standings: Standings(s.Room.Members()),
		Cancelled: true,
		Reason:    s.reason,
	}))
	s.engine.turn = nil
}
