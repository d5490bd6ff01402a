// session/session.go
package session

import (
	"sync"
	"time"

	"github.com/wfunc/doodleserver/logger"
	"github.com/wfunc/doodleserver/models"
	"github.com/wfunc/doodleserver/network"
	"github.com/wfunc/doodleserver/timer"
	"go.uber.org/zap"
)

// Session 一条已认证的连接
type Session struct {
	ID        string
	Conn      network.Connection
	PlayerID  string
	CreatedAt time.Time
	Tuner     *Tuner
}

// Manager 连接与玩家的唯一映射，以及断线重连宽限期。
type Manager struct {
	mutex     sync.Mutex
	sessions  map[string]*Session       // connectionID -> session
	players   map[string]*models.Player // playerID -> player
	live      map[string]*Session       // playerID -> current session
	grace     map[string]int64          // playerID -> pending grace timer
	scheduler timer.Scheduler
	window    time.Duration
	heartbeat time.Duration
	log       *zap.Logger
}

func NewManager(scheduler timer.Scheduler, graceWindow, heartbeat time.Duration) *Manager {
	return &Manager{
		sessions:  make(map[string]*Session),
		players:   make(map[string]*models.Player),
		live:      make(map[string]*Session),
		grace:     make(map[string]int64),
		scheduler: scheduler,
		window:    graceWindow,
		heartbeat: heartbeat,
		log:       logger.WithModule("session"),
	}
}

// BindResult 绑定结果
type BindResult struct {
	Session *Session
	Player  *models.Player
	// Resumed is true when an existing player record was picked up again,
	// either inside its grace window or from another live connection.
	Resumed bool
	// Replaced is the previous live connection of the same player, already
	// unbound; the caller should close it.
	Replaced network.Connection
}

// Bind attaches conn to the player identified by profile. A player still in
// its grace window gets the same record back with score and guess state intact.
func (m *Manager) Bind(conn network.Connection, profile *models.Profile) BindResult {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	res := BindResult{}
	player, exists := m.players[profile.UserID]
	if exists {
		res.Resumed = true
		if id, pending := m.grace[player.ID]; pending {
			m.scheduler.RemoveTimer(id)
			delete(m.grace, player.ID)
		}
		if old, ok := m.live[player.ID]; ok && old.ID != conn.ID() {
			delete(m.sessions, old.ID)
			res.Replaced = old.Conn
		}
	} else {
		player = models.NewPlayer(profile.UserID, profile.DisplayName, profile.Avatar)
		player.LifetimeScore = profile.LifetimeScore
		m.players[player.ID] = player
	}
	player.Attach(conn.ID())

	sess := &Session{
		ID:        conn.ID(),
		Conn:      conn,
		PlayerID:  player.ID,
		CreatedAt: time.Now(),
		Tuner:     NewTuner(m.heartbeat),
	}
	m.sessions[sess.ID] = sess
	m.live[player.ID] = sess

	res.Session = sess
	res.Player = player
	m.log.Debug("bound", zap.String("conn", conn.ID()), zap.String("player", player.ID), zap.Bool("resumed", res.Resumed))
	return res
}

// Unbind detaches a connection. The player record survives; the caller
// decides between BeginGrace and Remove. ok is false when the connection was
// already superseded by a newer one for the same player.
func (m *Manager) Unbind(connectionID string) (*models.Player, bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	sess, ok := m.sessions[connectionID]
	if !ok {
		return nil, false
	}
	delete(m.sessions, connectionID)

	player := m.players[sess.PlayerID]
	if cur, ok := m.live[sess.PlayerID]; ok && cur.ID == connectionID {
		delete(m.live, sess.PlayerID)
		if player != nil {
			player.Detach()
		}
	}
	return player, player != nil
}

// BeginGrace keeps a disconnected player's record for the grace window. On
// expiry the record is removed and onExpire runs; reconnecting first cancels it.
func (m *Manager) BeginGrace(playerID string, onExpire func()) {
	m.mutex.Lock()
	if m.window <= 0 {
		m.removeLocked(playerID)
		m.mutex.Unlock()
		onExpire()
		return
	}

	var id int64
	id = m.scheduler.AddTimer(m.window, 0, func() {
		m.mutex.Lock()
		if cur, ok := m.grace[playerID]; !ok || cur != id {
			m.mutex.Unlock()
			return
		}
		delete(m.grace, playerID)
		if _, live := m.live[playerID]; live {
			m.mutex.Unlock()
			return
		}
		delete(m.players, playerID)
		m.mutex.Unlock()

		m.log.Info("grace window expired", zap.String("player", playerID))
		onExpire()
	})
	m.grace[playerID] = id
	m.mutex.Unlock()
}

// InGrace reports whether the player is disconnected and still resumable.
func (m *Manager) InGrace(playerID string) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	_, ok := m.grace[playerID]
	return ok
}

// Remove drops the player record outright.
func (m *Manager) Remove(playerID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.removeLocked(playerID)
}

func (m *Manager) removeLocked(playerID string) {
	if id, ok := m.grace[playerID]; ok {
		m.scheduler.RemoveTimer(id)
		delete(m.grace, playerID)
	}
	if sess, ok := m.live[playerID]; ok {
		delete(m.sessions, sess.ID)
		delete(m.live, playerID)
	}
	delete(m.players, playerID)
}

func (m *Manager) Get(connectionID string) (*Session, bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	s, ok := m.sessions[connectionID]
	return s, ok
}

func (m *Manager) FindByPlayerID(playerID string) (*models.Player, bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	p, ok := m.players[playerID]
	return p, ok
}

// Connection returns the live connection of a player, if any.
func (m *Manager) Connection(playerID string) (network.Connection, bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	s, ok := m.live[playerID]
	if !ok {
		return nil, false
	}
	return s.Conn, true
}

// Connections 所有在线连接的快照
func (m *Manager) Connections() []network.Connection {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	out := make([]network.Connection, 0, len(m.live))
	for _, s := range m.live {
		out = append(out, s.Conn)
	}
	return out
}

// Count returns live sessions and known player records.
func (m *Manager) Count() (sessions, players int) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return len(m.sessions), len(m.players)
}

// ApplyHints stores tuned hints on the player so rooms can pick the stroke
// compression level for it.
func (m *Manager) ApplyHints(player *models.Player, h Hints, rtt time.Duration) {
	q := player.Quality()
	q.Level = h.Quality
	q.Compression = h.Compression
	if rtt > 0 {
		q.RTT = rtt
		q.RTTMillis = rtt.Milliseconds()
	}
	q.SampledAt = time.Now()
	player.SetQuality(q)
}
