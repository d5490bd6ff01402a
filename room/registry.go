// room/registry.go
package room

import (
	"context"
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wfunc/doodleserver/apperr"
	"github.com/wfunc/doodleserver/config"
	"github.com/wfunc/doodleserver/logger"
	"github.com/wfunc/doodleserver/models"
	"github.com/wfunc/doodleserver/network"
	"github.com/wfunc/doodleserver/ratelimit"
	"github.com/wfunc/doodleserver/state"
	"github.com/wfunc/doodleserver/timer"
	"github.com/wfunc/doodleserver/words"
	"go.uber.org/zap"
)

// InviteAlphabet 邀请码字符集，去掉了 I O 0 1 这类易混字符
const InviteAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const joinAttempts = 5

// Options are the tunables shared by every room.
type Options struct {
	Defaults           models.RoomSettings
	Timing             state.Timing
	InactivityTimeout  time.Duration
	SweepInterval      time.Duration
	PostGameLinger     time.Duration
	InviteCodeLength   int
	InviteCodeAttempts int
	QueueSize          int
	MaxStrokes         int
	MaxStrokePoints    int
}

func DefaultOptions() Options {
	return Options{
		Defaults: models.RoomSettings{
			MaxPlayers: 8,
			Rounds:     3,
			DrawTime:   80,
			Language:   words.DefaultLanguage,
			Hints:      2,
			WordSource: models.WordSourceDefault,
		},
		Timing:             state.DefaultTiming(),
		InactivityTimeout:  10 * time.Minute,
		SweepInterval:      time.Minute,
		PostGameLinger:     15 * time.Second,
		InviteCodeLength:   6,
		InviteCodeAttempts: 5,
		QueueSize:          64,
		MaxStrokes:         1000,
		MaxStrokePoints:    2000,
	}
}

// OptionsFromConfig maps the room and game sections onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	opts := DefaultOptions()
	g := cfg.Game
	opts.Defaults.MaxPlayers = g.MaxPlayers
	opts.Defaults.Rounds = g.Rounds
	opts.Defaults.DrawTime = g.DrawTime
	opts.Defaults.Hints = g.Hints
	if g.Language != "" {
		opts.Defaults.Language = g.Language
	}
	opts.Timing = state.Timing{
		WordChoices:         g.WordChoices,
		WordSelectTime:      g.WordSelectTime,
		StartCountdown:      g.StartCountdown,
		TurnEndDelay:        g.TurnEndDelay,
		RoundEndDelay:       g.RoundEndDelay,
		TimerUpdateInterval: g.TimerUpdateInterval,
	}
	opts.MaxStrokes = g.MaxStrokes
	opts.MaxStrokePoints = g.MaxStrokePoints

	rc := cfg.Room
	opts.InactivityTimeout = rc.InactivityTimeout
	opts.SweepInterval = rc.SweepInterval
	opts.PostGameLinger = rc.PostGameLinger
	opts.InviteCodeLength = rc.InviteCodeLength
	opts.InviteCodeAttempts = rc.InviteCodeAttempts
	if rc.QueueSize > 0 {
		opts.QueueSize = rc.QueueSize
	}
	return opts
}

// Deps 房间运行所需的协作者，由注册表构造一次后被所有房间共享
type Deps struct {
	Broadcaster Broadcaster
	Scheduler   timer.Scheduler
	Words       *words.Bank
	Chat        *ChatModerator
	Recorder    MatchRecorder
	Metrics     Metrics
	Clock       func() time.Time
	Options     Options
}

// Registry owns every live room and the player to room mapping. Its lock is
// only held to select, create or forget a room, never while a room works.
type Registry struct {
	mutex       sync.RWMutex
	rooms       map[string]*Room
	codes       map[string]*Room
	playerRooms map[string]*Room
	seq         uint64

	deps *Deps
	log  *zap.Logger
}

func NewRegistry(deps Deps) *Registry {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Metrics == nil {
		deps.Metrics = nopMetrics{}
	}
	if deps.Options.QueueSize <= 0 {
		deps.Options.QueueSize = 64
	}
	if deps.Options.InviteCodeLength <= 0 {
		deps.Options.InviteCodeLength = 6
	}
	if deps.Options.InviteCodeAttempts <= 0 {
		deps.Options.InviteCodeAttempts = 5
	}
	if deps.Words == nil {
		deps.Words = words.Default()
	}
	if deps.Chat == nil {
		deps.Chat = NewChatModerator(deps.Words, ChatRules{
			Chat:  ratelimit.Rule{Limit: 5, Window: 5 * time.Second, Cooldown: 10 * time.Second},
			Guess: ratelimit.Rule{Limit: 10, Window: 5 * time.Second, Cooldown: 5 * time.Second},
		}, deps.Clock)
	}
	return &Registry{
		rooms:       make(map[string]*Room),
		codes:       make(map[string]*Room),
		playerRooms: make(map[string]*Room),
		deps:        &deps,
		log:         logger.WithModule("registry"),
	}
}

// Chat exposes the shared moderator so its limits can be reloaded.
func (m *Registry) Chat() *ChatModerator { return m.deps.Chat }

// JoinPublicGame places the player in the oldest public room still waiting
// for players, creating one when none has space.
func (m *Registry) JoinPublicGame(p *models.Player) (*Room, bool, error) {
	if cur := m.GetPlayerRoom(p.ID); cur != nil && cur.Visibility == models.Public && !cur.Closed() {
		return cur, false, cur.Join(p, false)
	}
	m.leaveCurrent(p.ID)

	for attempt := 0; attempt < joinAttempts; attempt++ {
		room, isNew := m.pickPublic(attempt >= 2)
		err := room.Join(p, isNew)
		if err == nil {
			m.assign(p.ID, room)
			return room, isNew, nil
		}
		switch apperr.CodeOf(err) {
		case apperr.RoomClosed, apperr.RoomFull, apperr.GameInProgress:
			m.log.Debug("public room lost race, retrying", zap.String("room", room.ID), zap.Error(err))
			continue
		}
		return nil, false, err
	}
	return nil, false, apperr.New(apperr.RoomNotFound, "no public room available")
}

// pickPublic 选择最早创建且仍可加入的公开房间，没有就新建
func (m *Registry) pickPublic(forceNew bool) (*Room, bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if !forceNew {
		var best *Room
		for _, r := range m.rooms {
			if r.Visibility != models.Public || !r.joinable() {
				continue
			}
			if best == nil || r.seq < best.seq {
				best = r
			}
		}
		if best != nil {
			return best, false
		}
	}
	return m.createLocked(models.Public, "", "", m.deps.Options.Defaults), true
}

func (m *Registry) createLocked(visibility models.Visibility, code, hostID string, settings models.RoomSettings) *Room {
	m.seq++
	r := newRoom(uuid.NewString(), visibility, code, hostID, settings, m.deps)
	r.seq = m.seq
	m.rooms[r.ID] = r
	if code != "" {
		m.codes[code] = r
	}
	m.log.Info("room created",
		zap.String("room", r.ID),
		zap.String("visibility", string(visibility)),
		zap.Int("rooms", len(m.rooms)))
	return r
}

// CreatePrivateRoom validates the settings, reserves an invite code and makes
// the creator the host.
func (m *Registry) CreatePrivateRoom(p *models.Player, patch models.SettingsPatch) (*Room, error) {
	settings, err := ValidateSettings(patch.Apply(m.deps.Options.Defaults), m.deps.Words)
	if err != nil {
		return nil, err
	}
	m.leaveCurrent(p.ID)

	m.mutex.Lock()
	code, err := m.newInviteCodeLocked()
	if err != nil {
		m.mutex.Unlock()
		return nil, err
	}
	room := m.createLocked(models.Private, code, p.ID, settings)
	m.mutex.Unlock()

	if err := room.Join(p, true); err != nil {
		room.Close("create_failed")
		m.removeRoom(room)
		return nil, err
	}
	m.assign(p.ID, room)
	m.deps.Broadcaster.SendTo(p.ID, network.MustMessage(network.EventRoomCreated, network.RoomCreatedPayload{
		RoomID:     room.ID,
		InviteCode: code,
	}))
	return room, nil
}

func (m *Registry) newInviteCodeLocked() (string, error) {
	n := m.deps.Options.InviteCodeLength
	for i := 0; i < m.deps.Options.InviteCodeAttempts; i++ {
		buf := make([]byte, n)
		if _, err := rand.Read(buf); err != nil {
			return "", apperr.Wrap(err, apperr.Internal)
		}
		for j := range buf {
			buf[j] = InviteAlphabet[int(buf[j])%len(InviteAlphabet)]
		}
		code := string(buf)
		if _, taken := m.codes[code]; !taken {
			return code, nil
		}
	}
	return "", apperr.New(apperr.Internal, "could not allocate an invite code")
}

// NormalizeInviteCode 邀请码不区分大小写
func NormalizeInviteCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (m *Registry) JoinPrivateRoom(p *models.Player, code string) (*Room, error) {
	code = NormalizeInviteCode(code)
	m.mutex.RLock()
	room := m.codes[code]
	m.mutex.RUnlock()
	if room == nil || room.Closed() {
		return nil, apperr.New(apperr.RoomNotFound)
	}

	if cur := m.GetPlayerRoom(p.ID); cur != room {
		m.leaveCurrent(p.ID)
	}
	if err := room.Join(p, false); err != nil {
		if apperr.Is(err, apperr.RoomClosed) {
			return nil, apperr.New(apperr.RoomNotFound)
		}
		return nil, err
	}
	m.assign(p.ID, room)
	return room, nil
}

// LeaveRoom removes the player from its room; an emptied room is forgotten.
func (m *Registry) LeaveRoom(playerID, reason string) error {
	room := m.GetPlayerRoom(playerID)
	if room == nil {
		return apperr.New(apperr.NotInRoom)
	}
	err := room.Leave(playerID, reason)

	m.mutex.Lock()
	if m.playerRooms[playerID] == room {
		delete(m.playerRooms, playerID)
	}
	m.mutex.Unlock()

	if room.PlayerCount() == 0 {
		m.removeRoom(room)
	}
	if apperr.Is(err, apperr.RoomClosed) {
		return nil
	}
	return err
}

func (m *Registry) leaveCurrent(playerID string) {
	if m.GetPlayerRoom(playerID) == nil {
		return
	}
	if err := m.LeaveRoom(playerID, "switched_room"); err != nil && !apperr.Is(err, apperr.NotInRoom) {
		m.log.Warn("leave previous room failed", zap.String("player", playerID), zap.Error(err))
	}
}

func (m *Registry) assign(playerID string, room *Room) {
	m.mutex.Lock()
	m.playerRooms[playerID] = room
	m.mutex.Unlock()
}

func (m *Registry) removeRoom(room *Room) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.rooms[room.ID] != room {
		return
	}
	delete(m.rooms, room.ID)
	if room.InviteCode != "" {
		delete(m.codes, room.InviteCode)
	}
	for pid, r := range m.playerRooms {
		if r == room {
			delete(m.playerRooms, pid)
		}
	}
	m.log.Info("room removed", zap.String("room", room.ID), zap.Int("rooms", len(m.rooms)))
}

func (m *Registry) GetPlayerRoom(playerID string) *Room {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.playerRooms[playerID]
}

func (m *Registry) GetRoom(id string) (*Room, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	r, ok := m.rooms[id]
	return r, ok
}

// RoomOf is GetPlayerRoom for request handlers: no room is a NotInRoom error.
func (m *Registry) RoomOf(playerID string) (*Room, error) {
	if r := m.GetPlayerRoom(playerID); r != nil {
		return r, nil
	}
	return nil, apperr.New(apperr.NotInRoom)
}

// GetStats 房间和玩家计数，供 /api/stats 与监控使用
func (m *Registry) GetStats() models.Stats {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	st := models.Stats{Rooms: len(m.rooms)}
	for _, r := range m.rooms {
		if r.Visibility == models.Public {
			st.PublicRooms++
		} else {
			st.PrivateRooms++
		}
		st.Players += r.PlayerCount()
		switch r.Status() {
		case models.StatusStarting, models.StatusActive:
			st.ActiveGames++
		}
	}
	return st
}

// PlayerDisconnected 连接断开但仍在宽限期
func (m *Registry) PlayerDisconnected(playerID string) {
	if room := m.GetPlayerRoom(playerID); room != nil {
		if err := room.PlayerDisconnected(playerID); err != nil {
			m.log.Debug("disconnect notice dropped", zap.String("player", playerID), zap.Error(err))
		}
	}
}

// PlayerReconnected re-subscribes the player and returns its room id, empty
// when it is not in a room.
func (m *Registry) PlayerReconnected(playerID string) string {
	room := m.GetPlayerRoom(playerID)
	if room == nil {
		return ""
	}
	if err := room.PlayerReconnected(playerID); err != nil {
		m.log.Debug("reconnect notice dropped", zap.String("player", playerID), zap.Error(err))
		return ""
	}
	return room.ID
}

// ForgetPlayer drops per-player bookkeeping once a player is gone for good.
func (m *Registry) ForgetPlayer(playerID string) {
	m.deps.Chat.Forget(playerID)
}

// Sweep closes rooms that sat idle in the lobby or post-game for too long.
func (m *Registry) Sweep(now time.Time) int {
	timeout := m.deps.Options.InactivityTimeout
	if timeout <= 0 {
		return 0
	}
	var idle []*Room
	m.mutex.RLock()
	for _, r := range m.rooms {
		since, status := r.idleFor(now)
		if since < timeout {
			continue
		}
		if status == models.StatusWaiting || status == models.StatusFinished {
			idle = append(idle, r)
		}
	}
	m.mutex.RUnlock()

	for _, r := range idle {
		m.closeRoom(r, "inactive")
	}
	return len(idle)
}

func (m *Registry) closeRoom(r *Room, reason string) {
	if _, err := r.Close(reason); err != nil && !apperr.Is(err, apperr.RoomClosed) {
		m.log.Warn("close room failed", zap.String("room", r.ID), zap.Error(err))
	}
	m.removeRoom(r)
}

// Run sweeps on SweepInterval until ctx is done.
func (m *Registry) Run(ctx context.Context) {
	interval := m.deps.Options.SweepInterval
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(m.deps.Clock()); n > 0 {
				m.log.Info("swept idle rooms", zap.Int("closed", n))
			}
		}
	}
}

// CloseAll 停服时关闭所有房间
func (m *Registry) CloseAll(reason string) {
	m.mutex.RLock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.mutex.RUnlock()

	for _, r := range rooms {
		m.closeRoom(r, reason)
	}
}
