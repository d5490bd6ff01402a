// gateway/gateway.go
package gateway

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wfunc/doodleserver/apperr"
	"github.com/wfunc/doodleserver/logger"
	"github.com/wfunc/doodleserver/models"
	"github.com/wfunc/doodleserver/network"
	"github.com/wfunc/doodleserver/room"
	"github.com/wfunc/doodleserver/session"
	"github.com/wfunc/doodleserver/timer"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// websocket 应用层关闭码
const (
	CloseAuthFailed = 4001
	CloseReplaced   = 4002
	CloseShutdown   = 4003
)

// TokenValidator 校验客户端令牌并返回用户 ID
type TokenValidator interface {
	ValidateToken(token string) (string, error)
}

// ProfileProvider 读取用户资料
type ProfileProvider interface {
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
}

// Metrics 连接侧观测点
type Metrics interface {
	ConnectionOpened()
	ConnectionClosed()
	AuthFailed()
	MessageReceived(event string)
}

type nopMetrics struct{}

func (nopMetrics) ConnectionOpened()      {}
func (nopMetrics) ConnectionClosed()      {}
func (nopMetrics) AuthFailed()            {}
func (nopMetrics) MessageReceived(string) {}

type Options struct {
	AuthTimeout    time.Duration
	ProfileTimeout time.Duration
	FloodRate      float64
	FloodBurst     int
}

func DefaultOptions() Options {
	return Options{
		AuthTimeout:    10 * time.Second,
		ProfileTimeout: 5 * time.Second,
		FloodRate:      40,
		FloodBurst:     80,
	}
}

// Gateway 驱动单条连接：认证、绑定会话、把客户端事件分发给房间。
type Gateway struct {
	sessions  *session.Manager
	rooms     *room.Registry
	tokens    TokenValidator
	profiles  ProfileProvider
	scheduler timer.Scheduler
	metrics   Metrics
	opts      Options
	clock     func() time.Time
	log       *zap.Logger
}

func New(sessions *session.Manager, rooms *room.Registry, tokens TokenValidator, profiles ProfileProvider, scheduler timer.Scheduler, opts Options) *Gateway {
	if opts.AuthTimeout <= 0 {
		opts.AuthTimeout = DefaultOptions().AuthTimeout
	}
	if opts.ProfileTimeout <= 0 {
		opts.ProfileTimeout = DefaultOptions().ProfileTimeout
	}
	return &Gateway{
		sessions:  sessions,
		rooms:     rooms,
		tokens:    tokens,
		profiles:  profiles,
		scheduler: scheduler,
		metrics:   nopMetrics{},
		opts:      opts,
		clock:     time.Now,
		log:       logger.WithModule("gateway"),
	}
}

func (g *Gateway) SetMetrics(m Metrics) {
	if m != nil {
		g.metrics = m
	}
}

// client 一条已认证连接的上下文。除 Tuner 外只在 Serve 的 goroutine 里使用，
// pong 回调可能来自别的 goroutine，所以 Tuner 单独加锁。
type client struct {
	conn    network.Connection
	sess    *session.Session
	player  *models.Player
	limiter *rate.Limiter
	tuneMu  sync.Mutex
}

// Serve blocks until conn is closed. The first frame must be authenticate.
func (g *Gateway) Serve(ctx context.Context, conn network.Connection) {
	g.metrics.ConnectionOpened()
	defer g.metrics.ConnectionClosed()

	c, err := g.authenticate(ctx, conn)
	if err != nil {
		g.metrics.AuthFailed()
		g.log.Info("authentication failed", zap.String("conn", conn.ID()), zap.Error(err))
		conn.Send(network.ErrorMessage(err))
		conn.Close(CloseAuthFailed, string(apperr.AuthenticationFailed))
		return
	}
	defer g.disconnect(c)

	for {
		msg, err := conn.ReadMessage()
		if errors.Is(err, network.ErrMalformed) {
			conn.Send(network.ErrorMessage(apperr.Wrap(err, apperr.InvalidMessage)))
			continue
		}
		if err != nil {
			if !errors.Is(err, network.ErrConnectionClosed) {
				g.log.Debug("read failed", zap.String("conn", conn.ID()), zap.Error(err))
			}
			return
		}
		c.player.Touch(g.clock())
		if !c.limiter.Allow() {
			conn.Send(network.MustMessage(network.EventRateLimited, network.RateLimitedPayload{
				Type:         "flood",
				RetryAfterMs: int64(time.Second / time.Millisecond),
			}))
			continue
		}
		g.metrics.MessageReceived(msg.Type)
		if err := g.handlePacket(ctx, c, msg); err != nil {
			if apperr.CodeOf(err) == apperr.Internal {
				g.log.Error("handle packet", zap.String("type", msg.Type), zap.String("player", c.player.ID), zap.Error(err))
			}
			conn.Send(network.ErrorMessage(err))
		}
	}
}

func (g *Gateway) authenticate(ctx context.Context, conn network.Connection) (*client, error) {
	deadline := g.scheduler.AddTimer(g.opts.AuthTimeout, 0, func() {
		g.log.Info("authentication timed out", zap.String("conn", conn.ID()))
		conn.Send(network.ErrorMessage(apperr.New(apperr.AuthenticationFailed, "authentication timed out")))
		conn.Close(CloseAuthFailed, string(apperr.AuthenticationFailed))
	})
	defer g.scheduler.RemoveTimer(deadline)

	msg, err := conn.ReadMessage()
	if err != nil {
		return nil, apperr.Wrap(err, apperr.AuthenticationFailed, "connection closed before authentication")
	}
	if msg.Type != network.EventAuthenticate {
		return nil, apperr.New(apperr.AuthenticationFailed, "authenticate must be the first message")
	}
	var req network.AuthenticateRequest
	if err := msg.Bind(&req); err != nil || req.Token == "" {
		return nil, apperr.New(apperr.AuthenticationFailed, "missing token")
	}
	userID, err := g.tokens.ValidateToken(req.Token)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.AuthenticationFailed, "invalid token")
	}

	pctx, cancel := context.WithTimeout(ctx, g.opts.ProfileTimeout)
	profile, err := g.profiles.GetProfile(pctx, userID)
	cancel()
	if err != nil {
		g.log.Warn("load profile", zap.String("user", userID), zap.Error(err))
		return nil, apperr.New(apperr.AuthenticationFailed, "profile unavailable")
	}
	if profile == nil || !profile.ProfileComplete {
		return nil, apperr.New(apperr.AuthenticationFailed, "profile incomplete")
	}

	// 认证成功后不再受超时约束
	g.scheduler.RemoveTimer(deadline)
	select {
	case <-conn.Done():
		return nil, apperr.New(apperr.AuthenticationFailed, "authentication timed out")
	default:
	}

	res := g.sessions.Bind(conn, profile)
	if res.Replaced != nil {
		g.log.Info("connection replaced", zap.String("player", res.Player.ID), zap.String("old", res.Replaced.ID()))
		res.Replaced.Send(network.ErrorMessage(apperr.New(apperr.ConnectionLost, "signed in elsewhere")))
		res.Replaced.Close(CloseReplaced, "signed in elsewhere")
	}

	c := &client{
		conn:    conn,
		sess:    res.Session,
		player:  res.Player,
		limiter: rate.NewLimiter(rate.Limit(g.floodRate()), g.floodBurst()),
	}
	c.player.Touch(g.clock())

	var roomID string
	if r := g.rooms.GetPlayerRoom(c.player.ID); r != nil {
		roomID = r.ID
	}
	conn.Send(network.MustMessage(network.EventAuthenticated, network.AuthenticatedPayload{
		Success:     true,
		PlayerID:    c.player.ID,
		DisplayName: c.player.DisplayName,
		Resumed:     res.Resumed,
		RoomID:      roomID,
	}))
	if res.Resumed && roomID != "" {
		g.rooms.PlayerReconnected(c.player.ID)
	}

	hints := c.sess.Tuner.Current()
	conn.SetHeartbeat(hints.Heartbeat)
	conn.OnRTT(func(rtt time.Duration) {
		g.observe(c, rtt, 0)
	})

	logger.Log.Infof("player %s authenticated on %s (resumed=%v)", c.player.ID, conn.ID(), res.Resumed)
	return c, nil
}

func (g *Gateway) floodRate() float64 {
	if g.opts.FloodRate <= 0 {
		return DefaultOptions().FloodRate
	}
	return g.opts.FloodRate
}

func (g *Gateway) floodBurst() int {
	if g.opts.FloodBurst <= 0 {
		return DefaultOptions().FloodBurst
	}
	return g.opts.FloodBurst
}

// disconnect 释放连接。仍在房间里的玩家进入宽限期，过期后才真正离开。
func (g *Gateway) disconnect(c *client) {
	c.conn.Close(1000, "")
	player, ok := g.sessions.Unbind(c.conn.ID())
	if !ok || player.Connected() {
		// 已被新连接接管
		return
	}
	pid := player.ID
	if g.rooms.GetPlayerRoom(pid) == nil {
		g.sessions.Remove(pid)
		g.rooms.ForgetPlayer(pid)
		return
	}
	g.rooms.PlayerDisconnected(pid)
	g.sessions.BeginGrace(pid, func() {
		if err := g.rooms.LeaveRoom(pid, "disconnected"); err != nil && !apperr.Is(err, apperr.NotInRoom) {
			g.log.Warn("leave after grace", zap.String("player", pid), zap.Error(err))
		}
		g.rooms.ForgetPlayer(pid)
	})
	logger.Log.Infof("player %s disconnected, grace window started", pid)
}

// CloseAll 停服时通知并断开所有连接
func (g *Gateway) CloseAll(reason string) {
	msg := network.MustMessage(network.EventRoomClosed, network.RoomClosedPayload{Reason: reason})
	for _, conn := range g.sessions.Connections() {
		conn.Send(msg)
		conn.Close(CloseShutdown, reason)
	}
}
