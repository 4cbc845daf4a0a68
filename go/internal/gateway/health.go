package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

const healthTimeout = 5 * time.Second

// HealthCheck reports whether one dependency is usable.
type HealthCheck func(ctx context.Context) error

type namedCheck struct {
	name  string
	check HealthCheck
}

type HealthStatus struct {
	Healthy     bool              `json:"healthy"`
	Connections int               `json:"connections"`
	Checks      map[string]string `json:"checks"`
	Errors      []string          `json:"errors"`
}

// AddHealthCheck registers a dependency probed by GET /health. Register
// checks before serving.
func (s *Server) AddHealthCheck(name string, check HealthCheck) {
	s.checks = append(s.checks, namedCheck{name: name, check: check})
}

// Check probes every registered dependency.
func (s *Server) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Healthy:     true,
		Connections: s.connections.Count(),
		Checks:      make(map[string]string, len(s.checks)),
		Errors:      []string{},
	}
	for _, c := range s.checks {
		if err := c.check(ctx); err != nil {
			status.Healthy = false
			status.Checks[c.name] = "down"
			status.Errors = append(status.Errors, fmt.Sprintf("%s: %v", c.name, err))
			continue
		}
		status.Checks[c.name] = "ok"
	}
	return status
}

// HandleHealth handles GET /health
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	status := s.Check(ctx)
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}
