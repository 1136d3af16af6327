package grpcsvc

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type stubPinger struct{ err error }

func (p *stubPinger) Ping(context.Context) error { return p.err }

func TestHealthFollowsStore(t *testing.T) {
	ctx := context.Background()
	pinger := &stubPinger{}
	srv, monitor := NewServer("garage-service", pinger, slog.New(slog.NewTextHandler(io.Discard, nil)))
	defer srv.Stop()

	if got := monitor.Check(ctx); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("status = %v, want SERVING", got)
	}
	resp, err := monitor.Health().Check(ctx, &healthpb.HealthCheckRequest{Service: "garage-service"})
	if err != nil || resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("health check = %v, %v", resp, err)
	}

	pinger.err = errors.New("connection refused")
	monitor.Check(ctx)
	resp, err = monitor.Health().Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil || resp.GetStatus() != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("health check after failure = %v, %v", resp, err)
	}

	pinger.err = nil
	monitor.Shutdown()
	monitor.Check(ctx)
	resp, _ = monitor.Health().Check(ctx, &healthpb.HealthCheckRequest{Service: "garage-service"})
	if resp.GetStatus() != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("status after shutdown = %v", resp.GetStatus())
	}
}
