package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wfunc/doodleserver/auth"
	"github.com/wfunc/doodleserver/broadcast"
	"github.com/wfunc/doodleserver/config"
	"github.com/wfunc/doodleserver/gateway"
	"github.com/wfunc/doodleserver/logger"
	"github.com/wfunc/doodleserver/models"
	"github.com/wfunc/doodleserver/monitor"
	"github.com/wfunc/doodleserver/network"
	"github.com/wfunc/doodleserver/persistence"
	"github.com/wfunc/doodleserver/room"
	"github.com/wfunc/doodleserver/rpc"
	"github.com/wfunc/doodleserver/server"
	"github.com/wfunc/doodleserver/services"
	"github.com/wfunc/doodleserver/session"
	"github.com/wfunc/doodleserver/timer"
	"github.com/wfunc/doodleserver/words"
	"go.uber.org/zap"
)

const statsInterval = 15 * time.Second

func main() {
	configPath := flag.String("config", ".", "directory containing config.yaml")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	if err := logger.Init(&cfg.Log); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Initialize Database
	store, err := persistence.Open(cfg.Database)
	if err != nil {
		logger.Log.Fatalf("Failed to connect to database: %v", err)
	}
	logger.Log.Infof("Database connection successful (%s/%s).", cfg.Database.Engine, cfg.Database.Driver)

	players := services.NewPlayerService(store, cfg.Database.QueryTimeout)
	matches := services.NewMatchService(store, cfg.Database.QueryTimeout)

	bank := words.Default()
	if cfg.Words.File != "" {
		if bank, err = words.LoadFile(cfg.Words.File); err != nil {
			logger.Log.Fatalf("Failed to load word bank: %v", err)
		}
	}

	scheduler := timer.NewTimerManager(50 * time.Millisecond)
	sessions := session.NewManager(scheduler, cfg.Session.ReconnectGrace, cfg.Session.HeartbeatInterval)
	chat := room.NewChatModerator(bank, room.ChatRulesFromConfig(cfg.Chat), nil)

	var registry *room.Registry
	mon := monitor.NewMonitor(cfg.Monitor.Namespace, func() models.Stats {
		st := registry.GetStats()
		st.Sessions, _ = sessions.Count()
		return st
	})
	registry = room.NewRegistry(room.Deps{
		Broadcaster: broadcast.NewSessionBroadcaster(sessions),
		Scheduler:   scheduler,
		Words:       bank,
		Chat:        chat,
		Recorder:    matches,
		Metrics:     mon.Metrics(),
		Options:     room.OptionsFromConfig(cfg),
	})

	jwt := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenExpiry)
	gwOpts := gateway.DefaultOptions()
	gwOpts.AuthTimeout = cfg.Auth.Timeout
	gwOpts.ProfileTimeout = cfg.Database.QueryTimeout
	gwOpts.FloodRate = cfg.Session.FloodRate
	gwOpts.FloodBurst = cfg.Session.FloodBurst
	gw := gateway.New(sessions, registry, jwt, players, scheduler, gwOpts)
	gw.SetMetrics(mon.Metrics())

	rpcServer, err := rpc.NewServer(cfg.Server.RPCAddress)
	if err != nil {
		logger.Log.Fatalf("Failed to listen for RPC: %v", err)
	}

	deps := server.Deps{
		Gateway:  gw,
		Registry: registry,
		Sessions: sessions,
		Players:  players,
		Store:    store,
		RPC:      rpcServer,
	}
	if cfg.Monitor.Enabled {
		deps.Metrics = mon.Handler()
	}
	gameServer := server.NewGameServer(server.Options{
		Addr:            cfg.Server.HTTPAddress,
		Mode:            cfg.Server.Mode,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		WS: network.WSOptions{
			SendBuffer:     cfg.Session.SendBuffer,
			WriteTimeout:   cfg.Session.WriteTimeout,
			MaxMessageSize: cfg.Session.MaxMessageSize,
			Heartbeat:      cfg.Session.HeartbeatInterval,
		},
	}, deps)

	config.Watch(func(next *config.Config) {
		logger.SetLevel(next.Log.Level)
		chat.SetRules(room.ChatRulesFromConfig(next.Chat))
		logger.Info("config reloaded", zap.String("level", next.Log.Level))
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go registry.Run(ctx)
	if cfg.Monitor.Enabled {
		go mon.Run(ctx, statsInterval)
	}

	// Start Server
	errCh := make(chan error, 1)
	go func() { errCh <- gameServer.Start() }()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Log.Infof("Received %s, shutting down", sig)
	case err := <-errCh:
		if err != nil {
			logger.Log.Errorf("Server stopped: %v", err)
		}
	}

	cancel()
	shutdownCtx, done := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer done()
	if err := gameServer.Shutdown(shutdownCtx); err != nil {
		logger.Log.Errorf("Shutdown: %v", err)
	}
	if err := matches.Close(shutdownCtx); err != nil {
		logger.Log.Warnf("Pending match results dropped: %v", err)
	}
	scheduler.Stop()
	if err := store.Close(); err != nil {
		logger.Log.Errorf("Close database: %v", err)
	}
	logger.Log.Info("Server exited.")
}
