// Package core provides the API chassis for the Droplink payments service.
// It builds the chi router and enforces cross-cutting concerns -- panic
// recovery, request correlation, logging, and error handling -- before
// requests reach domain-specific handlers.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"droplink/internal/config"
)

// defaultRequestTimeout is the soft deadline applied to request contexts when
// the configuration does not specify one.
const defaultRequestTimeout = 29 * time.Second

// defaultRedactedHeaders lists header names whose values are masked in request
// logs to prevent accidental leakage of credentials or webhook signatures.
var defaultRedactedHeaders = []string{
	"Authorization",
	"Cookie",
	"X-Droppay-Signature",
}

// Server encapsulates the shared dependencies for the payments API, allowing
// injection during testing and distinct configuration per environment.
type Server struct {
	Config    *config.Config
	Logger    *slog.Logger
	Validator *Validator

	// HealthProbes are executed by GET /health. Each probe represents a
	// critical dependency (currently the database) that must be operational.
	HealthProbes []HealthProbe

	// RouteRegistrars are invoked by MountRoutes to register domain handler
	// routes. This indirection avoids import cycles between core and the
	// handler packages.
	RouteRegistrars []func(chi.Router)

	// Closers are invoked in order during Shutdown (database pools, etc.).
	Closers []func()

	router *chi.Mux
}

// NewServer initializes dependencies and prepares the server for route
// mounting. The caller is responsible for appending RouteRegistrars and then
// calling MountRoutes; this separation allows tests to customize registration.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(),
		router:    chi.NewRouter(),
	}, nil
}

// Handler returns the http.Handler interface for the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for route registration in tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// MountRoutes registers the global middleware chain, domain handler routes,
// and the health endpoint.
//
// Middleware ordering (strict):
//  1. Recoverer       - outermost, catches all panics.
//  2. ContextTimeout  - soft deadline on the request context.
//  3. RequestID       - correlation ID for tracing.
//  4. RequestLogger   - structured logging with redacted headers.
func (s *Server) MountRoutes() {
	s.router.Use(s.Recoverer)
	s.router.Use(ContextTimeoutMiddleware(s.requestTimeout()))
	s.router.Use(RequestIDMiddleware)
	s.router.Use(RequestLogger(s.Logger, defaultRedactedHeaders))

	for _, registrar := range s.RouteRegistrars {
		registrar(s.router)
	}

	s.router.Get("/health", s.HandleHealth)
}

// requestTimeout returns the configured request timeout, falling back to the
// default when unset.
func (s *Server) requestTimeout() time.Duration {
	if s.Config != nil && s.Config.Server.RequestTimeout > 0 {
		return s.Config.Server.RequestTimeout
	}
	return defaultRequestTimeout
}

// Shutdown performs a graceful termination of server resources by invoking
// the registered closers (database pools, etc.).
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.Info("server shutdown initiated")

	for _, closeFn := range s.Closers {
		closeFn()
	}

	s.Logger.Info("server shutdown complete")
	return nil
}
