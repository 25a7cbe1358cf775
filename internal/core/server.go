// Package core provides the HTTP chassis for the weather archive read API.
// It creates a chi router and enforces cross-cutting concerns -- security
// headers, logging, observability, and error handling -- before requests
// reach domain-specific handlers.
package core

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// MetricsCollector receives one observation per finished request. The
// production collector batches to CloudWatch (internal/telemetry); a nil
// collector disables request metrics.
type MetricsCollector interface {
	RecordRequest(method, endpoint, status string, duration time.Duration)
}

// RouteRegistrar mounts a handler group onto a router. Entry points populate
// APIRouteRegistrars with these so core never imports handler packages.
type RouteRegistrar func(r chi.Router)

// Server carries every dependency of the archive API as a field, so tests
// and environments assemble exactly the stack they need.
type Server struct {
	Config    ServerOptions
	Logger    *slog.Logger
	Validator *Validator

	// Metrics is optional; a nil collector disables request metrics.
	Metrics MetricsCollector

	// HealthProbes are checked by GET /health. An empty list reports healthy.
	HealthProbes []HealthProbe

	// APIRouteRegistrars are mounted under /api by MountRoutes.
	APIRouteRegistrars []RouteRegistrar

	// router is populated by MountRoutes.
	router *chi.Mux
}

// ServerOptions is the subset of configuration the chassis needs. Entry
// points translate the loaded config into this; tests build it directly.
type ServerOptions struct {
	// Origins allowed to call the API from browsers. Empty means "*".
	CorsAllowedOrigins []string
}

// NewServer builds the chassis with an empty router. Routes are mounted in
// a second step (MountRoutes), which lets tests assemble a server with only
// the routes under test.
func NewServer(opts ServerOptions, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config:    opts,
		Logger:    logger,
		Validator: NewValidator(logger),
		router:    chi.NewRouter(),
	}, nil
}

// Handler returns the root handler an http.Server can serve.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router exposes the chi.Mux so route-mounting code and tests can attach
// to it.
func (s *Server) Router() *chi.Mux {
	return s.router
}
