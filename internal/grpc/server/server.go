// Package server runs the gRPC endpoint that orchestrators probe for the
// provisioner's health.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/EternisAI/silo-sidecar/internal/signature"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ProvisionerService is the health service name that reports whether the
// signature key pair is available.
const ProvisionerService = "silo.sidecar.Provisioner"

type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	keys       signature.KeyManager
	port       int

	mu       sync.Mutex
	listener net.Listener
}

func NewServer(port int, keys signature.KeyManager, opts ...grpc.ServerOption) *Server {
	s := &Server{
		grpcServer: grpc.NewServer(opts...),
		health:     health.NewServer(),
		keys:       keys,
		port:       port,
	}
	healthpb.RegisterHealthServer(s.grpcServer, s.health)
	reflection.Register(s.grpcServer)

	s.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	s.health.SetServingStatus(ProvisionerService, healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// Listen binds the server port. Start calls it when needed.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return nil
	}
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", s.port, err)
	}
	s.listener = lis
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) Start() error {
	if err := s.Listen(); err != nil {
		return err
	}

	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.RefreshKeyStatus()

	slog.Info("Starting gRPC server", "addr", s.Addr().String())

	if err := s.grpcServer.Serve(s.listener); err != nil {
		return fmt.Errorf("failed to serve gRPC: %w", err)
	}

	return nil
}

// RefreshKeyStatus updates the provisioner service status from the key manager.
func (s *Server) RefreshKeyStatus() {
	status := healthpb.HealthCheckResponse_SERVING
	if s.keys == nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	} else if pair, err := s.keys.GetKeyPair(); err != nil || pair == nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus(ProvisionerService, status)
}

// WatchKeys refreshes the key status every interval until ctx is done.
func (s *Server) WatchKeys(ctx context.Context, interval time.Duration) {
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
			s.RefreshKeyStatus()
		}
	}
}

func (s *Server) Stop(ctx context.Context) error {
	slog.Info("Stopping gRPC server")
	s.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
		slog.Info("gRPC server stopped gracefully")
	case <-ctx.Done():
		slog.Warn("gRPC server stop timeout, forcing shutdown")
		s.grpcServer.Stop()
	}

	return nil
}

func (s *Server) StopWithTimeout(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.Stop(ctx)
}
