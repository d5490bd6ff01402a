package server

import (
	"context"
	"errors"
	"expvar"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/wfunc/doodleserver/gateway"
	"github.com/wfunc/doodleserver/logger"
	"github.com/wfunc/doodleserver/models"
	"github.com/wfunc/doodleserver/network"
	"github.com/wfunc/doodleserver/persistence"
	"github.com/wfunc/doodleserver/room"
	"github.com/wfunc/doodleserver/rpc"
	"github.com/wfunc/doodleserver/session"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const shutdownReason = "server_shutdown"

type Options struct {
	Addr            string
	Mode            string
	AllowedOrigins  []string
	ShutdownTimeout time.Duration
	WS              network.WSOptions
}

// StatsReader 玩家统计查询
type StatsReader interface {
	GetPlayerStats(ctx context.Context, userID string) (*models.PlayerStats, error)
}

// Pinger 存储探活
type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Gateway  *gateway.Gateway
	Registry *room.Registry
	Sessions *session.Manager
	Players  StatsReader
	Store    Pinger
	Metrics  http.Handler
	RPC      *rpc.Server
}

type GameServer struct {
	opts     Options
	deps     Deps
	engine   *gin.Engine
	http     *http.Server
	upgrader websocket.Upgrader
	baseCtx  context.Context
	cancel   context.CancelFunc
	log      *zap.Logger
}

func NewGameServer(opts Options, deps Deps) *GameServer {
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	if opts.Mode != "" {
		gin.SetMode(opts.Mode)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &GameServer{
		opts:    opts,
		deps:    deps,
		baseCtx: ctx,
		cancel:  cancel,
		log:     logger.WithModule("server"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(opts.AllowedOrigins),
		},
	}
	s.engine = s.setupRoutes()
	s.http = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}

func (s *GameServer) setupRoutes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.accessLog())

	corsCfg := cors.Config{
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{
			"Content-Type",
			"Authorization",
			"Upgrade",
			"Connection",
			"Sec-WebSocket-Key",
			"Sec-WebSocket-Version",
			"Sec-WebSocket-Extensions",
			"Sec-WebSocket-Protocol",
		},
		MaxAge: 12 * time.Hour,
	}
	if len(s.opts.AllowedOrigins) == 0 || containsWildcard(s.opts.AllowedOrigins) {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = s.opts.AllowedOrigins
		corsCfg.AllowCredentials = true
	}
	r.Use(cors.New(corsCfg))

	r.GET("/ws", s.handleWebSocket)
	r.GET("/health", s.healthCheck)
	if s.deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(s.deps.Metrics))
	}
	r.GET("/debug/vars", gin.WrapH(expvar.Handler()))

	api := r.Group("/api")
	{
		api.GET("/stats", s.stats)
		api.GET("/players/:id/stats", s.playerStats)
	}
	return r
}

func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}

// Handler 供测试直接挂到 httptest
func (s *GameServer) Handler() http.Handler { return s.engine }

func (s *GameServer) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if c.Request.URL.Path == "/ws" {
			return
		}
		s.log.Debug("http",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

func (s *GameServer) Start() error {
	if s.deps.RPC != nil {
		go s.deps.RPC.Start()
	}
	logger.Log.Infof("Game server listening on %s", s.opts.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown 先把健康检查置为 NOT_SERVING，再通知并断开所有连接、关闭房间，最后停监听。
func (s *GameServer) Shutdown(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.ShutdownTimeout)
		defer cancel()
	}

	var errs error
	if s.deps.RPC != nil {
		s.deps.RPC.SetServing(false)
	}
	if s.deps.Gateway != nil {
		s.deps.Gateway.CloseAll(shutdownReason)
	}
	if s.deps.Registry != nil {
		s.deps.Registry.CloseAll(shutdownReason)
	}
	s.cancel()

	if err := s.http.Shutdown(ctx); err != nil {
		errs = multierr.Append(errs, err)
	}
	if s.deps.RPC != nil {
		s.deps.RPC.Stop()
	}
	return errs
}

func (s *GameServer) handleWebSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Log.Infof("Failed to upgrade connection: %v", err)
		return
	}
	wsConn := network.NewWSConnection(uuid.New().String(), conn, s.opts.WS)
	logger.Log.Infof("New connection from %s, connection ID: %s", wsConn.RemoteAddr(), wsConn.ID())

	s.deps.Gateway.Serve(s.baseCtx, wsConn)
	logger.Log.Infof("Connection closed from %s, connection ID: %s", wsConn.RemoteAddr(), wsConn.ID())
}

func (s *GameServer) healthCheck(c *gin.Context) {
	status := gin.H{"status": "ok", "time": time.Now().Unix()}
	if s.deps.Store != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Store.Ping(ctx); err != nil {
			s.log.Warn("store unhealthy", zap.Error(err))
			status["status"] = "degraded"
			status["database"] = "unreachable"
			c.JSON(http.StatusServiceUnavailable, status)
			return
		}
		status["database"] = "ok"
	}
	c.JSON(http.StatusOK, status)
}

func (s *GameServer) stats(c *gin.Context) {
	st := s.deps.Registry.GetStats()
	if s.deps.Sessions != nil {
		st.Sessions, _ = s.deps.Sessions.Count()
	}
	c.JSON(http.StatusOK, st)
}

func (s *GameServer) playerStats(c *gin.Context) {
	if s.deps.Players == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "stats unavailable"})
		return
	}
	st, err := s.deps.Players.GetPlayerStats(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, persistence.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "player not found"})
	case err != nil:
		s.log.Error("player stats", zap.String("player", c.Param("id")), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	default:
		c.JSON(http.StatusOK, st)
	}
}
