package core

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"wxarchive/internal/types"
)

// defaultRedactedHeaders names the headers whose values never reach the
// request log. Anything that can carry a credential belongs here.
var defaultRedactedHeaders = []string{
	"Authorization",
	"Cookie",
}

// MountRoutes assembles the routing tree: the global middleware chain, the
// /api route group, and the top-level meta routes (root status, health
// check, ping).
func (s *Server) MountRoutes() {
	s.registerGlobalMiddleware()

	// Domain handler routes live under /api.
	s.router.Route("/api", s.mountAPI)

	// Top-Level Routes (outside the /api namespace)
	s.router.Get("/", s.HandleRoot)
	s.router.Get("/health", s.HandleHealth)
	s.router.Get("/ping", s.HandlePing)

	// Unknown paths get the same structured error shape as everything else.
	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		Error(w, r, types.NewAppError(
			types.ErrCodeNotFoundRoute,
			"route not found",
			nil,
		))
	})
}

// registerGlobalMiddleware wires the cross-cutting chain. The order is load
// bearing:
//
//  1. Recoverer       - outermost, so a panic below still becomes a JSON 500
//  2. RequestID       - before the logger, so every line carries the ID
//  3. SecurityHeaders - stamped even on error and preflight responses
//  4. CORS            - answers preflights before any handler work
//  5. RequestLogger   - wraps the rest to see the final status and timing
//  6. Metrics         - innermost, so latency excludes log formatting cost
func (s *Server) registerGlobalMiddleware() {
	s.router.Use(s.Recoverer)
	s.router.Use(RequestIDMiddleware)
	s.router.Use(s.SecurityHeadersMiddleware)
	s.router.Use(NewCORSMiddleware(s.corsAllowedOrigins()))
	s.router.Use(RequestLogger(s.Logger, s.redactedHeaders()))
	s.router.Use(s.MetricsMiddleware)
}

// mountAPI registers the domain endpoints. Handler routes are registered via
// APIRouteRegistrars, which are populated by the application entry point
// (main.go). This indirection avoids import cycles between core and handler
// packages.
func (s *Server) mountAPI(r chi.Router) {
	for _, registrar := range s.APIRouteRegistrars {
		registrar(r)
	}
}

// redactedHeaders returns the header names the request logger masks.
func (s *Server) redactedHeaders() []string {
	return defaultRedactedHeaders
}

// corsAllowedOrigins resolves the configured origins, defaulting to "*".
func (s *Server) corsAllowedOrigins() []string {
	if len(s.Config.CorsAllowedOrigins) > 0 {
		return s.Config.CorsAllowedOrigins
	}
	return []string{"*"}
}

// HandleRoot reports basic liveness at GET /. Load balancers and the smoke
// tests hit this before anything else.
func (s *Server) HandleRoot(w http.ResponseWriter, r *http.Request) {
	JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// HandlePing is a trivial reachability endpoint at GET /ping.
func (s *Server) HandlePing(w http.ResponseWriter, r *http.Request) {
	JSON(w, r, http.StatusOK, map[string]string{"ping": "pong"})
}

// requestIDHeader carries the correlation ID on both requests and responses.
const requestIDHeader = "X-Request-Id"

// RequestIDMiddleware attaches a correlation ID to every request. An
// incoming X-Request-Id is reused so IDs survive proxy hops; otherwise a
// fresh one is minted. The ID lands in the context for downstream handlers
// and in the response header for clients.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = generateRequestID()
		}

		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(types.WithRequestID(r.Context(), id)))
	})
}

// generateRequestID mints a random UUID, the same format the batch jobs use
// for run IDs.
func generateRequestID() string {
	return uuid.New().String()
}
