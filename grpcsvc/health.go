// Package grpcsvc runs the gRPC side of the service: the standard health service,
// driven by the store's reachability, and server reflection.
package grpcsvc

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthMonitor keeps the gRPC health status in line with the store.
type HealthMonitor struct {
	health  *health.Server
	pinger  Pinger
	service string
	logger  *slog.Logger
}

// NewServer builds a gRPC server with health and reflection registered.
func NewServer(serviceName string, pinger Pinger, logger *slog.Logger) (*grpc.Server, *HealthMonitor) {
	srv := grpc.NewServer()
	m := &HealthMonitor{
		health:  health.NewServer(),
		pinger:  pinger,
		service: serviceName,
		logger:  logger,
	}
	healthpb.RegisterHealthServer(srv, m.health)
	reflection.Register(srv) // Enable reflection for debugging
	return srv, m
}

// Check pings the store and publishes the result for the overall server and for
// the named service.
func (m *HealthMonitor) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	ctx, span := otel.Tracer("garage-service").Start(ctx, "GRPCHealthCheck")
	defer span.End()

	status := healthpb.HealthCheckResponse_SERVING
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := m.pinger.Ping(pingCtx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Store unreachable")
		m.logger.Error("Store unreachable, reporting NOT_SERVING", "error", err)
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	m.health.SetServingStatus("", status)
	m.health.SetServingStatus(m.service, status)
	return status
}

// Run re-checks the store every interval until ctx is done.
func (m *HealthMonitor) Run(ctx context.Context, interval time.Duration) {
	m.Check(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

// Shutdown reports NOT_SERVING for every service and ignores later updates.
func (m *HealthMonitor) Shutdown() {
	m.health.Shutdown()
}

// Health exposes the underlying health server.
func (m *HealthMonitor) Health() healthpb.HealthServer { return m.health }
