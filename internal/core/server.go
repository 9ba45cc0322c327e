// Package core provides the API chassis for the DMCA Guard platform.
// It creates a chi router and enforces cross-cutting concerns -- security,
// logging, observability, authentication, and the authorization boundary --
// before requests reach domain-specific handlers.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"dmcaguard/internal/config"
	"dmcaguard/internal/guard"
)

// MetricsCollector defines the interface for recording API telemetry.
// Implementations record request latency and count metrics to Prometheus
// or equivalent backends.
type MetricsCollector interface {
	// RecordRequest records API request metrics including latency and count.
	RecordRequest(method, endpoint, status string, duration time.Duration)
}

// Server encapsulates all dependencies for the DMCA Guard API, allowing for
// easy injection during testing and distinct configuration for different
// environments.
type Server struct {
	Config        *config.Config
	Logger        *slog.Logger
	Validator     *Validator
	Metrics       MetricsCollector
	Guard         *guard.Guard
	Authenticator Authenticator // Resolves API keys to Actors; injected for testability.

	// HealthProbes are the subsystem checks executed by GET /health.
	HealthProbes []HealthProbe

	// V1RouteRegistrars are populated by the application entry point with the
	// domain handler mounting functions. This indirection avoids import
	// cycles between core and handler packages.
	V1RouteRegistrars []func(chi.Router)

	// MetricsHandler serves GET /metrics when set (the Prometheus exposition
	// endpoint). Nil disables the route.
	MetricsHandler http.Handler

	// closers run in registration order during Shutdown.
	closers []namedCloser

	// Internal router
	router *chi.Mux
}

type namedCloser struct {
	name  string
	close func()
}

// NewServer initializes dependencies, sets up the router, and prepares the
// server for route mounting. It performs a "fail-fast" check on critical
// configuration.
//
// The caller is responsible for mounting routes (via MountRoutes) after
// construction. This separation allows tests to customize route registration.
func NewServer(
	cfg *config.Config,
	g *guard.Guard,
	logger *slog.Logger,
) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if g == nil {
		return nil, fmt.Errorf("guard must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	s := &Server{
		Config:    cfg,
		Guard:     g,
		Logger:    logger,
		Validator: NewValidator(logger),
		router:    chi.NewRouter(),
	}

	return s, nil
}

// Handler returns the http.Handler interface for the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for route registration.
// This is used internally by route-mounting methods and tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// RegisterCloser adds a named cleanup function executed during Shutdown.
// Closers run in registration order, so register outer resources (listeners)
// before the pools and clients they depend on.
func (s *Server) RegisterCloser(name string, close func()) {
	s.closers = append(s.closers, namedCloser{name: name, close: close})
}

// Shutdown performs a graceful termination of server resources: each
// registered closer runs in order (database pools, the Redis client, the SQS
// publisher). Shutdown never blocks past the caller's context deadline for
// logging, but individual closers are expected to be prompt.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.Info("server shutdown initiated")

	for _, c := range s.closers {
		select {
		case <-ctx.Done():
			s.Logger.Error("shutdown deadline exceeded",
				slog.String("pending", c.name),
			)
			return ctx.Err()
		default:
		}
		s.Logger.Info("closing resource", slog.String("resource", c.name))
		c.close()
	}

	s.Logger.Info("server shutdown complete")
	return nil
}
