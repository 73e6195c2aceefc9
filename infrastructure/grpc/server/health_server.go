// Package server exposes the gRPC surface of the chat node, which is
// limited to the standard health service.
package server

import (
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health entry of the chat service itself. The empty
// name reports the whole process.
const ServiceName = "market.chat.v1.Chat"

type HealthServer struct {
	log    *slog.Logger
	server *grpc.Server
	health *health.Server
}

// NewHealthServer starts NOT_SERVING until SetReady is called.
func NewHealthServer(log *slog.Logger) *HealthServer {
	s := &HealthServer{
		log:    log,
		server: grpc.NewServer(),
		health: health.NewServer(),
	}
	healthpb.RegisterHealthServer(s.server, s.health)
	s.SetReady(false)
	return s
}

func (s *HealthServer) SetReady(ready bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if ready {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// Serve blocks until Stop. A stopped server returns nil.
func (s *HealthServer) Serve(lis net.Listener) error {
	s.log.Info("Starting gRPC health server", "address", lis.Addr().String())
	if err := s.server.Serve(lis); err != nil && err != grpc.ErrServerStopped {
		return err
	}
	return nil
}

// Stop flips every status to NOT_SERVING, so watchers see the node leave,
// then drains in-flight calls.
func (s *HealthServer) Stop() {
	s.health.Shutdown()
	s.server.GracefulStop()
}
