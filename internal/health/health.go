// SPDX-License-Identifier: MIT

// Package health provides health and readiness check functionality for
// production deployments. It supports Docker HEALTHCHECK and Kubernetes
// probes with detailed component status.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/ManuGH/abrctl/internal/log"
	"github.com/ManuGH/abrctl/internal/surface"
)

// Status represents the overall health/readiness status
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult represents the result of a component health check
type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// HealthResponse represents the full health check response
type HealthResponse struct {
	Status    Status                 `json:"status"`
	Version   string                 `json:"version,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// ReadinessResponse represents the readiness check response
type ReadinessResponse struct {
	Ready     bool                   `json:"ready"`
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// Checker defines the interface for health checks
type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
}

// Manager manages health and readiness checks
type Manager struct {
	version  string
	checkers []Checker
}

// NewManager creates a new health check manager
func NewManager(version string) *Manager {
	return &Manager{
		version:  version,
		checkers: make([]Checker, 0),
	}
}

// RegisterChecker adds a health checker to the manager
func (m *Manager) RegisterChecker(checker Checker) {
	m.checkers = append(m.checkers, checker)
}

// Health performs a health check (liveness probe).
// Returns 200 if the process is alive, regardless of service state.
func (m *Manager) Health(ctx context.Context, verbose bool) HealthResponse {
	resp := HealthResponse{
		Status:    StatusHealthy,
		Version:   m.version,
		Timestamp: time.Now(),
	}

	if verbose && len(m.checkers) > 0 {
		resp.Checks = make(map[string]CheckResult)
		hasUnhealthy := false
		hasDegraded := false

		for _, checker := range m.checkers {
			result := checker.Check(ctx)
			resp.Checks[checker.Name()] = result

			switch result.Status {
			case StatusUnhealthy:
				hasUnhealthy = true
			case StatusDegraded:
				hasDegraded = true
			}
		}

		if hasUnhealthy {
			resp.Status = StatusUnhealthy
		} else if hasDegraded {
			resp.Status = StatusDegraded
		}
	}

	return resp
}

// Ready performs a readiness check (readiness probe).
// Returns 200 if services are initialized and ready to serve traffic.
func (m *Manager) Ready(ctx context.Context, _ bool) ReadinessResponse {
	resp := ReadinessResponse{
		Ready:     true,
		Status:    StatusHealthy,
		Timestamp: time.Now(),
	}

	if len(m.checkers) == 0 {
		return resp
	}

	resp.Checks = make(map[string]CheckResult)
	hasUnhealthy := false
	hasDegraded := false

	for _, checker := range m.checkers {
		result := checker.Check(ctx)
		resp.Checks[checker.Name()] = result

		switch result.Status {
		case StatusUnhealthy:
			hasUnhealthy = true
			resp.Ready = false
		case StatusDegraded:
			hasDegraded = true
		}
	}

	if hasUnhealthy {
		resp.Status = StatusUnhealthy
	} else if hasDegraded {
		resp.Status = StatusDegraded
	}

	return resp
}

// ServeHealth handles HTTP health check requests
func (m *Manager) ServeHealth(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponentFromContext(r.Context(), "health")
	verbose := r.URL.Query().Get("verbose") == "true"

	resp := m.Health(r.Context(), verbose)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK) // Always 200 for liveness

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Error().Err(err).Str("event", "health.encode_error").Msg("failed to encode health response")
	}

	logger.Debug().
		Str("event", "health.checked").
		Str("status", string(resp.Status)).
		Bool("verbose", verbose).
		Msg("health check performed")
}

// ServeReady handles HTTP readiness check requests
func (m *Manager) ServeReady(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponentFromContext(r.Context(), "readiness")
	verbose := r.URL.Query().Get("verbose") == "true"

	resp := m.Ready(r.Context(), verbose)

	w.Header().Set("Content-Type", "application/json")
	if resp.Ready {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Error().Err(err).Str("event", "readiness.encode_error").Msg("failed to encode readiness response")
	}

	logger.Debug().
		Str("event", "readiness.checked").
		Str("status", string(resp.Status)).
		Bool("ready", resp.Ready).
		Bool("verbose", verbose).
		Msg("readiness check performed")
}

// controllerProbe is the controller surface the checker needs.
type controllerProbe interface {
	Healthy() bool
	QueueDepth() int
}

// ControllerChecker reports whether the playback control loop is alive
// and keeping up with its command queue.
type ControllerChecker struct {
	probe controllerProbe

	// degradedDepth is the queue depth above which the loop is considered
	// backed up but still functional.
	degradedDepth int
}

// NewControllerChecker creates a checker for the control loop.
func NewControllerChecker(probe controllerProbe, degradedDepth int) *ControllerChecker {
	if degradedDepth < 1 {
		degradedDepth = 16
	}
	return &ControllerChecker{probe: probe, degradedDepth: degradedDepth}
}

func (c *ControllerChecker) Name() string {
	return "controller"
}

func (c *ControllerChecker) Check(ctx context.Context) CheckResult {
	if !c.probe.Healthy() {
		return CheckResult{
			Status: StatusUnhealthy,
			Error:  "control loop stopped",
		}
	}
	if depth := c.probe.QueueDepth(); depth >= c.degradedDepth {
		return CheckResult{
			Status:  StatusDegraded,
			Message: "command queue backed up",
		}
	}
	return CheckResult{
		Status:  StatusHealthy,
		Message: "control loop running",
	}
}

// SurfaceChecker reports the renderer sink state. A placeholder sink is
// degraded, not unhealthy: playback continues without a visible surface.
type SurfaceChecker struct {
	gate *surface.Gate
}

// NewSurfaceChecker creates a checker for the renderer gate.
func NewSurfaceChecker(gate *surface.Gate) *SurfaceChecker {
	return &SurfaceChecker{gate: gate}
}

func (c *SurfaceChecker) Name() string {
	return "surface"
}

func (c *SurfaceChecker) Check(ctx context.Context) CheckResult {
	state, _ := c.gate.Current()
	switch state {
	case surface.StateAttached:
		return CheckResult{Status: StatusHealthy, Message: "surface attached"}
	case surface.StatePlaceholder:
		return CheckResult{Status: StatusDegraded, Message: "running on placeholder sink"}
	default:
		return CheckResult{Status: StatusDegraded, Message: "no surface attached yet"}
	}
}
