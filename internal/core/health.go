package core

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// healthCheckTimeout caps the whole probe round. Probes still running when
// it expires are reported as timed out rather than blocking the endpoint.
const healthCheckTimeout = 2 * time.Second

// HealthProbe is one critical dependency the health endpoint interrogates.
// For this service that is the observation database; anything registered
// here can turn /health red.
type HealthProbe interface {
	// Name identifies the probe in the response body (e.g. "database").
	Name() string

	// Check reports whether the dependency is usable. It must honor the
	// context deadline.
	Check(ctx context.Context) error
}

// componentStatus is the per-dependency entry in the health response.
type componentStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// healthResponse is the GET /health body.
type healthResponse struct {
	Status     string                     `json:"status"`
	Components map[string]componentStatus `json:"components,omitempty"`
}

// probeOutcome is one probe's result, sent from its goroutine.
type probeOutcome struct {
	name string
	err  error
}

// HandleHealth serves GET /health: every registered probe runs concurrently
// under a shared 2s deadline, and the endpoint answers 200 only when all of
// them pass. A probe that errors, panics, or outruns the deadline marks its
// component unhealthy and the overall answer 503.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if len(s.HealthProbes) == 0 {
		JSON(w, r, http.StatusOK, healthResponse{Status: "healthy"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	// Buffered to len(probes) so late finishers never block after the
	// collector has given up on them.
	outcomes := make(chan probeOutcome, len(s.HealthProbes))
	for _, probe := range s.HealthProbes {
		go func(p HealthProbe) {
			outcomes <- probeOutcome{name: p.Name(), err: runProbe(ctx, p)}
		}(probe)
	}

	// Collect until every probe has answered or the deadline fires.
	collected := make(map[string]error, len(s.HealthProbes))
collect:
	for range s.HealthProbes {
		select {
		case o := <-outcomes:
			collected[o.name] = o.err
		case <-ctx.Done():
			break collect
		}
	}

	components := make(map[string]componentStatus, len(s.HealthProbes))
	healthy := true
	for _, probe := range s.HealthProbes {
		name := probe.Name()
		err, done := collected[name]
		switch {
		case !done:
			healthy = false
			components[name] = componentStatus{Status: "unhealthy", Message: "health check timed out"}
		case err != nil:
			healthy = false
			components[name] = componentStatus{Status: "unhealthy", Message: err.Error()}
		default:
			components[name] = componentStatus{Status: "healthy"}
		}
	}

	if healthy {
		JSON(w, r, http.StatusOK, healthResponse{Status: "healthy", Components: components})
		return
	}
	JSON(w, r, http.StatusServiceUnavailable, healthResponse{Status: "unhealthy", Components: components})
}

// runProbe shields the handler from a panicking probe; a panic is just an
// unhealthy result.
func runProbe(ctx context.Context, p HealthProbe) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("probe panicked: %v", r)
		}
	}()
	return p.Check(ctx)
}
