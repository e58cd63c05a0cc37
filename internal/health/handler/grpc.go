// Package handler serves grpc.health.v1 for the daemon. Readiness follows a set of checks
// that are re-evaluated whenever Refresh is called.
package handler

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"code-stats-daemon/internal/config"
)

// ServiceName is the health service name reported for pulse delivery.
const ServiceName = "codestats.pulse"

// ErrNotConfigured is reported when the API URL or key is missing.
var ErrNotConfigured = errors.New("health: API URL or key not configured")

// Checker reports whether a dependency is ready. A nil error means ready.
type Checker interface {
	Check(ctx context.Context) error
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context) error

// Check calls f.
func (f CheckerFunc) Check(ctx context.Context) error { return f(ctx) }

// SettingsChecker is ready once both the API URL and key are configured.
func SettingsChecker(current func() config.Settings) Checker {
	return CheckerFunc(func(context.Context) error {
		if !current().HasRequiredSettings() {
			return ErrNotConfigured
		}
		return nil
	})
}

// Server wraps the gRPC health server; SERVING iff every check passes.
type Server struct {
	hs     *health.Server
	checks []Checker
	logger *slog.Logger

	mu   sync.Mutex
	last healthpb.HealthCheckResponse_ServingStatus
}

// NewServer returns a Server with status NOT_SERVING until the first Refresh.
func NewServer(logger *slog.Logger, checks ...Checker) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		hs:     health.NewServer(),
		checks: checks,
		logger: logger,
		last:   healthpb.HealthCheckResponse_NOT_SERVING,
	}
	s.hs.SetServingStatus("", s.last)
	s.hs.SetServingStatus(ServiceName, s.last)
	return s
}

// Register adds the health service to r.
func (s *Server) Register(r grpc.ServiceRegistrar) {
	healthpb.RegisterHealthServer(r, s.hs)
}

// Refresh runs every check and publishes the resulting status.
func (s *Server) Refresh(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	for _, c := range s.checks {
		if err := c.Check(ctx); err != nil {
			s.logger.Debug("health: check failed", "error", err)
			status = healthpb.HealthCheckResponse_NOT_SERVING
			break
		}
	}
	s.mu.Lock()
	changed := status != s.last
	s.last = status
	s.mu.Unlock()
	if changed {
		s.logger.Info("health: status changed", "status", status.String())
	}
	s.hs.SetServingStatus("", status)
	s.hs.SetServingStatus(ServiceName, status)
	return status
}

// Shutdown marks every service NOT_SERVING and ignores later updates.
func (s *Server) Shutdown() {
	s.hs.Shutdown()
}
