package server

import (
	"context"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// PipelineService is the health service name reported for the run.
const PipelineService = "datares.Pipeline"

// Health exposes the standard gRPC health protocol while a run is active.
type Health struct {
	srv    *grpc.Server
	hs     *health.Server
	logger *slog.Logger
}

func NewHealth(logger *slog.Logger) *Health {
	if logger == nil {
		logger = slog.Default()
	}
	srv := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(PipelineService, healthpb.HealthCheckResponse_NOT_SERVING)
	return &Health{srv: srv, hs: hs, logger: logger}
}

// SetRunning flips the pipeline service status.
func (h *Health) SetRunning(running bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if running {
		st = healthpb.HealthCheckResponse_SERVING
	}
	h.hs.SetServingStatus(PipelineService, st)
}

// Serve blocks on lis until ctx ends, then stops gracefully.
func (h *Health) Serve(ctx context.Context, lis net.Listener) error {
	errCh := make(chan error, 1)
	go func() { errCh <- h.srv.Serve(lis) }()
	h.logger.Info("grpc.serving", "addr", lis.Addr().String())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	h.hs.Shutdown()
	h.srv.GracefulStop()
	h.logger.Info("grpc.stopped")
	return nil
}

// ListenAndServe is Serve on a fresh TCP listener.
func (h *Health) ListenAndServe(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return h.Serve(ctx, lis)
}
