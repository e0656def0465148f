package api

import (
	"context"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// IngestionService is the health service name reporting the queue worker.
const IngestionService = "amilive.Ingestion"

// Health serves grpc.health.v1. Both the overall status and
// IngestionService follow whether the ingestion worker is running.
type Health struct {
	server *grpc.Server
	health *health.Server
	log    *slog.Logger
}

// NewHealth creates a gRPC server with the health service registered. It
// starts out NOT_SERVING.
func NewHealth(log *slog.Logger) *Health {
	if log == nil {
		log = slog.Default()
	}
	h := &Health{
		server: grpc.NewServer(),
		health: health.NewServer(),
		log:    log,
	}
	healthpb.RegisterHealthServer(h.server, h.health)
	h.SetServing(false)
	return h
}

// SetServing updates the reported status.
func (h *Health) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus("", status)
	h.health.SetServingStatus(IngestionService, status)
}

// Watch polls running every interval and mirrors it into the status until
// ctx is done.
func (h *Health) Watch(ctx context.Context, interval time.Duration, running func() bool) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := running()
	h.SetServing(last)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if now := running(); now != last {
				h.log.Info("[API] Ingestion status changed", "running", now)
				h.SetServing(now)
				last = now
			}
		}
	}
}

// Serve accepts connections on lis until Stop.
func (h *Health) Serve(lis net.Listener) error {
	h.log.Info("[API] gRPC health server listening", "addr", lis.Addr().String())
	return h.server.Serve(lis)
}

// Stop marks the service NOT_SERVING and stops gracefully.
func (h *Health) Stop() {
	h.health.Shutdown()
	h.server.GracefulStop()
}
