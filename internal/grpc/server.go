// Package grpc exposes the service health over the standard gRPC health protocol.
package grpc

import (
	"context"
	"net"
	"time"

	"companion-chat/backend/pkg/health"
	"companion-chat/backend/pkg/logger"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health service name clients can probe besides ""
const ServiceName = "companion.chat.v2"

// Server serves gRPC health mirrored from the HTTP health checker
type Server struct {
	server  *grpc.Server
	health  *grpchealth.Server
	checker *health.Checker
	log     *logger.Logger
}

func NewServer(checker *health.Checker, log *logger.Logger) *Server {
	srv := grpc.NewServer()
	hs := grpchealth.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	s := &Server{server: srv, health: hs, checker: checker, log: log}
	s.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// Sync copies the checker's verdict into the gRPC health status
func (s *Server) Sync() {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if s.checker.IsSystemHealthy() {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.setStatus(status)
}

func (s *Server) setStatus(status healthpb.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// Serve blocks serving on lis, syncing health every period until ctx is done
func (s *Server) Serve(ctx context.Context, lis net.Listener, period time.Duration) error {
	go func() {
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			s.Sync()
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	s.log.Info("gRPC server listening", "addr", lis.Addr().String())
	return s.server.Serve(lis)
}

// Stop marks the service as not serving and drains connections
func (s *Server) Stop() {
	s.health.Shutdown()
	s.server.GracefulStop()
}
