// Package server builds the daemon's gRPC server.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"

	healthhandler "code-stats-daemon/internal/health/handler"
	"code-stats-daemon/internal/server/interceptors"
)

// Deps holds the services exposed over gRPC.
type Deps struct {
	// Health serves grpc.health.v1. If nil, no health service is registered.
	Health *healthhandler.Server
}

// RegisterServices registers every configured service with s.
func RegisterServices(s grpc.ServiceRegistrar, deps Deps) {
	if deps.Health != nil {
		deps.Health.Register(s)
	}
}

// New returns a gRPC server instrumented with OpenTelemetry and request logging.
func New(logger *slog.Logger, deps Deps) *grpc.Server {
	s := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(interceptors.LoggingUnary(logger, nil)),
	)
	RegisterServices(s, deps)
	return s
}

// Serve listens on addr and serves s until ctx is done, then stops gracefully.
func Serve(ctx context.Context, s *grpc.Server, addr string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", addr, err)
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("grpc: listening", "addr", lis.Addr().String())
		errCh <- s.Serve(lis)
	}()
	select {
	case <-ctx.Done():
		logger.Info("grpc: shutting down")
		s.GracefulStop()
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return fmt.Errorf("server: serve: %w", err)
	}
}
