// Package grpc serves the standard gRPC health protocol so monitoring can
// tell a terminal receiving live pushes from one degraded to polling.
package grpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/fjod/go_pos/internal/channel"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// SyncService is the health service name reporting the push channel.
const SyncService = "pos.terminal.Sync"

type HealthServer struct {
	server *grpc.Server
	health *health.Server
	log    *slog.Logger
}

func NewHealthServer(log *slog.Logger) *HealthServer {
	if log == nil {
		log = slog.Default()
	}
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(SyncService, healthpb.HealthCheckResponse_NOT_SERVING)

	srv := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	return &HealthServer{server: srv, health: hs, log: log}
}

// ChannelStateChanged is meant for channel.Supervisor.OnStateChange.
func (h *HealthServer) ChannelStateChanged(state channel.ConnState) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if state == channel.StateOpen {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus(SyncService, status)
	h.log.Debug("sync health updated", "state", string(state), "status", status.String())
}

// Serve blocks until ctx is done or the listener fails.
func (h *HealthServer) Serve(ctx context.Context, lis net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		h.log.Info("gRPC health server listening", "addr", lis.Addr().String())
		errCh <- h.server.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		h.health.Shutdown()
		h.server.GracefulStop()
		<-errCh
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("serve grpc: %w", err)
		}
		return nil
	}
}
