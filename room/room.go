// room/room.go
package room

import (
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/wfunc/doodleserver/apperr"
	"github.com/wfunc/doodleserver/logger"
	"github.com/wfunc/doodleserver/models"
	"github.com/wfunc/doodleserver/network"
	"github.com/wfunc/doodleserver/state"
	"github.com/wfunc/doodleserver/words"
	"go.uber.org/zap"
)

type roomTask struct {
	name string
	fn   func() error
	done chan error
}

// Room 是游戏房间的核心结构。
// 所有状态修改都在 loop goroutine 里串行执行；对外只暴露提交任务的方法。
type Room struct {
	ID         string
	Visibility models.Visibility
	InviteCode string
	CreatedAt  time.Time
	seq        uint64

	// loop 独占
	hostID   string
	settings models.RoomSettings
	members  []*models.Player // 按加入顺序
	engine   *state.Engine
	linger   int64
	closing  bool

	// 供注册表在房间外读取的镜像
	mu         sync.RWMutex
	status     models.RoomStatus
	count      int
	capacity   int
	lastActive time.Time
	closed     bool

	tasks chan roomTask
	done  chan struct{}
	deps  *Deps
	log   *zap.Logger
}

func newRoom(id string, visibility models.Visibility, code, hostID string, settings models.RoomSettings, deps *Deps) *Room {
	now := deps.Clock()
	r := &Room{
		ID:         id,
		Visibility: visibility,
		InviteCode: code,
		CreatedAt:  now,
		hostID:     hostID,
		settings:   settings,
		capacity:   settings.MaxPlayers,
		lastActive: now,
		tasks:      make(chan roomTask, deps.Options.QueueSize),
		done:       make(chan struct{}),
		deps:       deps,
		log:        logger.WithModule("room").With(zap.String("room", id)),
	}
	// 状态机以房间自身作为上下文
	r.engine = state.NewEngine(r, deps.Options.Timing)
	go r.loop()
	deps.Metrics.RoomOpened(visibility)
	return r
}

func (r *Room) loop() {
	for t := range r.tasks {
		err := r.run(t)
		if t.done != nil {
			t.done <- err
		}
		if r.closing {
			r.finishClose()
			return
		}
	}
}

// run executes one task; a panic is logged and reported as an internal error
// without taking the room down.
func (r *Room) run(t roomTask) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.LogPanic(rec, debug.Stack(), zap.String("room", r.ID), zap.String("task", t.name))
			err = apperr.Wrap(fmt.Errorf("panic in %s: %v", t.name, rec), apperr.Internal)
		}
	}()
	return t.fn()
}

// do submits fn to the room and waits for its result.
func (r *Room) do(name string, fn func() error) error {
	t := roomTask{name: name, fn: fn, done: make(chan error, 1)}
	select {
	case r.tasks <- t:
	case <-r.done:
		return apperr.New(apperr.RoomClosed)
	}
	select {
	case err := <-t.done:
		return err
	case <-r.done:
		select {
		case err := <-t.done:
			return err
		default:
			return apperr.New(apperr.RoomClosed)
		}
	}
}

// doActivity is do for player initiated work; it refreshes the idle clock.
func (r *Room) doActivity(name string, fn func() error) error {
	return r.do(name, func() error {
		r.touch()
		return fn()
	})
}

func (r *Room) touch() {
	r.mu.Lock()
	r.lastActive = r.deps.Clock()
	r.mu.Unlock()
}

// Status 房间生命周期状态，可在任意 goroutine 读取
func (r *Room) Status() models.RoomStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

func (r *Room) PlayerCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}

func (r *Room) Closed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closed
}

// joinable reports whether matchmaking may place a player here.
func (r *Room) joinable() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return !r.closed && r.status == models.StatusWaiting && r.count < r.capacity
}

func (r *Room) idleFor(now time.Time) (time.Duration, models.RoomStatus) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return now.Sub(r.lastActive), r.status
}

func (r *Room) syncMirror() {
	r.mu.Lock()
	r.count = len(r.members)
	r.capacity = r.settings.MaxPlayers
	r.mu.Unlock()
}

// --- 实现 state.RoomContext 接口 ---

func (r *Room) GetID() string                 { return r.ID }
func (r *Room) Settings() models.RoomSettings { return r.settings }
func (r *Room) Members() []*models.Player     { return r.members }
func (r *Room) Now() time.Time                { return r.deps.Clock() }
func (r *Room) Words() *words.Bank            { return r.deps.Words }

func (r *Room) Member(playerID string) *models.Player {
	for _, p := range r.members {
		if p.ID == playerID {
			return p
		}
	}
	return nil
}

func (r *Room) SetStatus(status models.RoomStatus) {
	r.mu.Lock()
	prev := r.status
	r.status = status
	r.mu.Unlock()

	if status == models.StatusWaiting && prev == models.StatusActive {
		r.deps.Metrics.GameEnded(true)
	}
	if status == models.StatusActive && prev != models.StatusActive {
		r.deps.Metrics.GameStarted()
	}
}

func (r *Room) Broadcast(msg *network.Message) {
	r.deps.Broadcaster.Multicast(r.memberIDs(""), msg)
}

func (r *Room) Multicast(playerIDs []string, msg *network.Message) {
	if len(playerIDs) == 0 {
		return
	}
	r.deps.Broadcaster.Multicast(playerIDs, msg)
}

func (r *Room) SendTo(playerID string, msg *network.Message) {
	r.deps.Broadcaster.SendTo(playerID, msg)
}

// Schedule 定时器回调重新进入房间队列执行
func (r *Room) Schedule(delay, interval time.Duration, fn func()) int64 {
	return r.deps.Scheduler.AddTimer(delay, interval, func() {
		r.do("timer", func() error {
			fn()
			return nil
		})
	})
}

func (r *Room) Cancel(timerID int64) {
	r.deps.Scheduler.RemoveTimer(timerID)
}

// GameFinished persists the result and keeps the room as a post-game lobby
// for a while before returning it to waiting.
func (r *Room) GameFinished(result *models.MatchResult) {
	result.Visibility = r.Visibility
	r.deps.Metrics.GameEnded(false)
	if r.deps.Recorder != nil {
		r.deps.Recorder.RecordMatch(result)
	}
	r.log.Info("game finished", zap.String("match", result.MatchID), zap.Duration("duration", result.Duration))

	r.linger = r.Schedule(r.deps.Options.PostGameLinger, 0, func() {
		r.linger = 0
		if r.engine.Phase() != state.PhaseFinished {
			return
		}
		r.engine.Reset()
		r.Broadcast(network.MustMessage(network.EventRoomJoined, r.snapshot("", false)))
	})
}

// --- 房间核心逻辑 ---

// Join 加入房间。已在房间内的玩家重复加入只会重新收到快照。
func (r *Room) Join(p *models.Player, isNewRoom bool) error {
	return r.doActivity("join", func() error {
		if r.closing {
			return apperr.New(apperr.RoomClosed)
		}
		if r.Member(p.ID) != nil {
			r.SendTo(p.ID, network.MustMessage(network.EventRoomJoined, r.snapshot(p.ID, isNewRoom)))
			return nil
		}
		if len(r.members) >= r.settings.MaxPlayers {
			return apperr.New(apperr.RoomFull)
		}
		if r.engine.Active() && !r.settings.AllowMidGameJoin {
			return apperr.New(apperr.GameInProgress)
		}

		p.JoinedAt = r.deps.Clock()
		p.ResetGame()
		r.members = append(r.members, p)
		if r.Visibility == models.Private && r.hostID == "" {
			r.hostID = p.ID
		}
		r.syncMirror()

		r.Multicast(r.memberIDs(p.ID), network.MustMessage(network.EventPlayerJoined, network.PlayerJoinedPayload{
			Player: p.Info(r.hostID),
		}))
		r.SendTo(p.ID, network.MustMessage(network.EventRoomJoined, r.snapshot(p.ID, isNewRoom)))
		if r.engine.Phase() == state.PhaseDrawing {
			r.sendCanvas(p)
		}
		r.log.Debug("player joined", zap.String("player", p.ID), zap.Int("players", len(r.members)))
		return nil
	})
}

// Leave removes a player. The host role moves to the earliest remaining
// joiner; an empty room closes itself.
func (r *Room) Leave(playerID, reason string) error {
	return r.doActivity("leave", func() error {
		idx := -1
		for i, p := range r.members {
			if p.ID == playerID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return apperr.New(apperr.NotInRoom)
		}
		p := r.members[idx]
		r.members = append(r.members[:idx], r.members[idx+1:]...)
		p.ResetGame()
		r.syncMirror()

		r.SendTo(playerID, network.MustMessage(network.EventLeftRoom, network.PlayerLeftPayload{
			PlayerID: playerID,
			Reason:   reason,
		}))
		r.Broadcast(network.MustMessage(network.EventPlayerLeft, network.PlayerLeftPayload{
			PlayerID: playerID,
			Reason:   reason,
		}))

		if len(r.members) == 0 {
			r.log.Info("room empty, closing")
			r.closing = true
			return nil
		}

		if r.hostID == playerID {
			r.hostID = r.members[0].ID
			r.Broadcast(network.MustMessage(network.EventHostChanged, network.HostChangedPayload{HostID: r.hostID}))
		}
		r.engine.PlayerLeft(playerID)
		return nil
	})
}

// PlayerDisconnected keeps the player in the room while its grace window runs.
func (r *Room) PlayerDisconnected(playerID string) error {
	return r.do("disconnect", func() error {
		if r.Member(playerID) == nil {
			return apperr.New(apperr.NotInRoom)
		}
		r.Broadcast(network.MustMessage(network.EventPlayerDisconnected, network.PlayerLeftPayload{
			PlayerID: playerID,
			Reason:   "connection_lost",
		}))
		r.engine.PlayerDisconnected(playerID)
		return nil
	})
}

// PlayerReconnected re-subscribes a player that came back inside its grace window.
func (r *Room) PlayerReconnected(playerID string) error {
	return r.doActivity("reconnect", func() error {
		p := r.Member(playerID)
		if p == nil {
			return apperr.New(apperr.NotInRoom)
		}
		r.Multicast(r.memberIDs(playerID), network.MustMessage(network.EventPlayerReconnected, network.PlayerJoinedPayload{
			Player: p.Info(r.hostID),
		}))
		r.SendTo(playerID, network.MustMessage(network.EventRoomJoined, r.snapshot(playerID, false)))
		if r.engine.Turn() != nil {
			r.sendCanvas(p)
		}
		r.engine.PlayerReconnected(playerID)
		return nil
	})
}

// Snapshot 房间快照，viewer 决定是否能看到答案
func (r *Room) Snapshot(viewer string) (network.RoomSnapshot, error) {
	var snap network.RoomSnapshot
	err := r.do("snapshot", func() error {
		snap = r.snapshot(viewer, false)
		return nil
	})
	return snap, err
}

func (r *Room) snapshot(viewer string, isNewRoom bool) network.RoomSnapshot {
	players := make([]models.PlayerInfo, 0, len(r.members))
	for _, p := range r.members {
		players = append(players, p.Info(r.hostID))
	}
	snap := network.RoomSnapshot{
		RoomID:     r.ID,
		Visibility: r.Visibility,
		InviteCode: r.InviteCode,
		HostID:     r.hostID,
		Status:     r.Status(),
		Settings:   r.settings,
		Players:    players,
		Phase:      r.engine.Phase(),
		Round:      r.engine.Round(),
		IsNewRoom:  isNewRoom,
	}
	if t := r.engine.Turn(); t != nil {
		snap.DrawerID = t.DrawerID
		snap.Pattern = t.Pattern
		snap.Remaining = r.engine.Remaining().Milliseconds()
		if viewer != "" && t.Word != "" && r.engine.HasGuessedOrDraws(viewer) {
			snap.Word = t.Word
		}
	}
	return snap
}

// Close 关闭房间并通知成员，返回关闭时仍在房间内的玩家
func (r *Room) Close(reason string) ([]string, error) {
	var ids []string
	err := r.do("close", func() error {
		ids = r.memberIDs("")
		r.Broadcast(network.MustMessage(network.EventRoomClosed, network.RoomClosedPayload{Reason: reason}))
		for _, p := range r.members {
			p.ResetGame()
		}
		r.members = nil
		r.syncMirror()
		r.closing = true
		r.log.Info("room closed", zap.String("reason", reason))
		return nil
	})
	return ids, err
}

// finishClose runs on the loop goroutine once a task asked the room to close.
func (r *Room) finishClose() {
	r.engine.Stop()
	if r.linger != 0 {
		r.Cancel(r.linger)
	}
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	close(r.done)
	r.deps.Metrics.RoomClosed(r.Visibility)

	// 丢弃排队中的任务
	for {
		select {
		case t := <-r.tasks:
			if t.done != nil {
				t.done <- apperr.New(apperr.RoomClosed)
			}
		default:
			return
		}
	}
}

// Done is closed once the room has shut down.
func (r *Room) Done() <-chan struct{} { return r.done }

func (r *Room) memberIDs(except string) []string {
	ids := make([]string, 0, len(r.members))
	for _, p := range r.members {
		if p.ID != except {
			ids = append(ids, p.ID)
		}
	}
	return ids
}
