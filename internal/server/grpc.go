package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthgrpc "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthServer exposes the standard gRPC health service
type HealthServer struct {
	addr     string
	logger   *slog.Logger
	server   *grpc.Server
	health   *health.Server
	listener net.Listener
}

// NewHealthServer creates a health server bound to address:port. Status is
// NOT_SERVING until Listen succeeds.
func NewHealthServer(address string, port int, logger *slog.Logger) *HealthServer {
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthgrpc.RegisterHealthServer(grpcServer, healthServer)

	healthServer.SetServingStatus("", healthgrpc.HealthCheckResponse_NOT_SERVING)
	healthServer.SetServingStatus(ServiceName, healthgrpc.HealthCheckResponse_NOT_SERVING)

	return &HealthServer{
		addr:   net.JoinHostPort(address, strconv.Itoa(port)),
		logger: logger,
		server: grpcServer,
		health: healthServer,
	}
}

// Listen binds the port and marks the service SERVING
func (s *HealthServer) Listen() error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = lis

	s.health.SetServingStatus("", healthgrpc.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(ServiceName, healthgrpc.HealthCheckResponse_SERVING)

	s.logger.Info("gRPC health server started", slog.String("address", lis.Addr().String()))
	return nil
}

// Addr returns the bound address after Listen
func (s *HealthServer) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve blocks until Stop. Listen must have succeeded.
func (s *HealthServer) Serve() error {
	if s.listener == nil {
		return errors.New("health server not listening")
	}
	if err := s.server.Serve(s.listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("grpc server: %w", err)
	}
	return nil
}

// Stop reports NOT_SERVING and stops the server, forcing it after timeout
func (s *HealthServer) Stop(timeout time.Duration) {
	s.logger.Info("Stopping gRPC health server...")

	s.health.SetServingStatus(ServiceName, healthgrpc.HealthCheckResponse_NOT_SERVING)
	s.health.SetServingStatus("", healthgrpc.HealthCheckResponse_NOT_SERVING)

	stopped := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(timeout):
		s.logger.Warn("Graceful stop timed out, forcing stop")
		s.server.Stop()
	}
}
