// Package grpcserver exposes scraper health over the standard gRPC health
// checking protocol.
//
// Each source is a service named after it; the empty service name reports the
// process itself. HEALTHY and DEGRADED sources are SERVING, FAILED sources are
// NOT_SERVING.
package grpcserver

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"gigbot/discovery-service/internal/model"
)

// HealthReporter mirrors health records into a grpc health server.
type HealthReporter struct {
	hs     *health.Server
	logger *slog.Logger
}

// NewHealthReporter returns a reporter with the process marked SERVING.
func NewHealthReporter(logger *slog.Logger) *HealthReporter {
	if logger == nil {
		logger = slog.Default()
	}
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	return &HealthReporter{hs: hs, logger: logger}
}

// ServingStatus maps a scraper status onto the gRPC health enum.
func ServingStatus(s model.HealthStatus) healthpb.HealthCheckResponse_ServingStatus {
	switch s {
	case model.StatusHealthy, model.StatusDegraded:
		return healthpb.HealthCheckResponse_SERVING
	case model.StatusFailed:
		return healthpb.HealthCheckResponse_NOT_SERVING
	default:
		return healthpb.HealthCheckResponse_UNKNOWN
	}
}

// ObserveHealth updates the status of rec.Source.
func (r *HealthReporter) ObserveHealth(rec model.HealthRecord) {
	r.hs.SetServingStatus(rec.Source, ServingStatus(rec.Status))
}

// Seed registers sources as SERVING and then applies any stored records, so
// every enabled source is queryable before its first run.
func (r *HealthReporter) Seed(sources []string, records []model.HealthRecord) {
	for _, s := range sources {
		r.hs.SetServingStatus(s, healthpb.HealthCheckResponse_SERVING)
	}
	for _, rec := range records {
		r.ObserveHealth(rec)
	}
}

// Register attaches the health service to srv.
func (r *HealthReporter) Register(srv *grpc.Server) {
	healthpb.RegisterHealthServer(srv, r.hs)
}

// Check answers a health check in-process.
func (r *HealthReporter) Check(ctx context.Context, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	resp, err := r.hs.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	return resp.Status, nil
}

// Shutdown flips every service to NOT_SERVING ahead of a graceful stop.
func (r *HealthReporter) Shutdown() {
	r.hs.Shutdown()
}

// Server is the gRPC listener carrying the health service.
type Server struct {
	srv    *grpc.Server
	lis    net.Listener
	logger *slog.Logger
}

// Listen binds addr and registers reporter on a new gRPC server.
func Listen(addr string, reporter *HealthReporter, logger *slog.Logger) (*Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("grpc listen %s: %w", addr, err)
	}
	srv := grpc.NewServer()
	reporter.Register(srv)
	return &Server{srv: srv, lis: lis, logger: logger}, nil
}

// Addr is the bound address.
func (s *Server) Addr() net.Addr { return s.lis.Addr() }

// Serve blocks until the server stops.
func (s *Server) Serve() error {
	s.logger.Info("grpc health server listening", "addr", s.lis.Addr().String())
	if err := s.srv.Serve(s.lis); err != nil && err != grpc.ErrServerStopped {
		return err
	}
	return nil
}

// GracefulStop waits for in-flight RPCs to finish.
func (s *Server) GracefulStop() { s.srv.GracefulStop() }
