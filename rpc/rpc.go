package rpc

import (
	"errors"
	"net"

	"github.com/wfunc/doodleserver/logger"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// GameService 健康检查里的服务名
const GameService = "doodle.Game"

// Server manages the gRPC admin listener.
type Server struct {
	listener net.Listener
	address  string
	grpc     *grpc.Server
	health   *health.Server
}

// NewServer creates a new gRPC server serving grpc.health.v1 and reflection.
func NewServer(addr string) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	gs := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	reflection.Register(gs)

	s := &Server{
		listener: listener,
		address:  listener.Addr().String(),
		grpc:     gs,
		health:   hs,
	}
	s.SetServing(true)
	return s, nil
}

// Addr 实际监听地址（端口为 0 时有用）
func (s *Server) Addr() string { return s.address }

// SetServing flips both the overall and the game service status.
func (s *Server) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(GameService, status)
}

// Start blocks serving requests until Stop.
func (s *Server) Start() {
	logger.Log.Infof("RPC server listening on %s", s.address)
	if err := s.grpc.Serve(s.listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		logger.Log.Errorf("RPC server error: %v", err)
		return
	}
	logger.Log.Info("RPC server listener closed.")
}

// Stop reports NOT_SERVING, then drains in-flight calls.
func (s *Server) Stop() {
	logger.Log.Info("Stopping RPC server.")
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
