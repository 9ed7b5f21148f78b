package server

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// LobbyService is the health service name reported for the match lobby.
const LobbyService = "duel.Lobby"

// Health serves the standard gRPC health protocol on the admin listener.
type Health struct {
	addr   string
	logger *zap.Logger
	grpc   *grpc.Server
	health *health.Server

	mu       sync.Mutex
	listener net.Listener
}

// NewHealth creates an admin health server bound to addr. The lobby starts in
// NOT_SERVING until SetServing is called.
//
// Precondition: addr must be a "host:port" string; logger must be non-nil.
func NewHealth(addr string, logger *zap.Logger) *Health {
	hs := health.NewServer()
	hs.SetServingStatus(LobbyService, healthpb.HealthCheckResponse_NOT_SERVING)

	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	return &Health{addr: addr, logger: logger, grpc: srv, health: hs}
}

// SetServing reports the lobby as serving or not serving.
func (h *Health) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus(LobbyService, status)
}

// Start listens on the configured address and serves until Stop.
func (h *Health) Start() error {
	lis, err := net.Listen("tcp", h.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", h.addr, err)
	}
	return h.Serve(lis)
}

// Serve serves health checks on lis until Stop.
func (h *Health) Serve(lis net.Listener) error {
	h.mu.Lock()
	h.listener = lis
	h.mu.Unlock()

	h.logger.Info("admin health listening", zap.String("addr", lis.Addr().String()))
	if err := h.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("serving grpc health: %w", err)
	}
	return nil
}

// Stop marks every service NOT_SERVING and stops the gRPC server.
func (h *Health) Stop() {
	h.health.Shutdown()
	h.grpc.GracefulStop()
}

// Addr returns the bound listener address, or empty string before Start.
func (h *Health) Addr() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.listener == nil {
		return ""
	}
	return h.listener.Addr().String()
}
