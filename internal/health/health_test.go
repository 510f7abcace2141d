// SPDX-License-Identifier: MIT

package health

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/abrctl/internal/surface"
)

type stubChecker struct {
	name   string
	result CheckResult
}

func (s stubChecker) Name() string                          { return s.name }
func (s stubChecker) Check(context.Context) CheckResult     { return s.result }

type stubProbe struct {
	healthy bool
	depth   int
}

func (s stubProbe) Healthy() bool   { return s.healthy }
func (s stubProbe) QueueDepth() int { return s.depth }

func TestHealthAlwaysReturns200(t *testing.T) {
	m := NewManager("test")
	m.RegisterChecker(stubChecker{name: "broken", result: CheckResult{Status: StatusUnhealthy}})

	req := httptest.NewRequest("GET", "/healthz?verbose=true", nil)
	rec := httptest.NewRecorder()
	m.ServeHealth(rec, req)

	require.Equal(t, 200, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, StatusUnhealthy, resp.Status)
	assert.Equal(t, "test", resp.Version)
}

func TestHealthWithoutVerboseSkipsChecks(t *testing.T) {
	m := NewManager("test")
	m.RegisterChecker(stubChecker{name: "broken", result: CheckResult{Status: StatusUnhealthy}})

	resp := m.Health(context.Background(), false)
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Empty(t, resp.Checks)
}

func TestReadyReturns503WhenUnhealthy(t *testing.T) {
	m := NewManager("test")
	m.RegisterChecker(stubChecker{name: "broken", result: CheckResult{Status: StatusUnhealthy, Error: "down"}})

	req := httptest.NewRequest("GET", "/readyz", nil)
	rec := httptest.NewRecorder()
	m.ServeReady(rec, req)

	require.Equal(t, 503, rec.Code)

	var resp ReadinessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Ready)
}

func TestReadyDegradedIsStillReady(t *testing.T) {
	m := NewManager("test")
	m.RegisterChecker(stubChecker{name: "slow", result: CheckResult{Status: StatusDegraded}})

	resp := m.Ready(context.Background(), false)
	assert.True(t, resp.Ready)
	assert.Equal(t, StatusDegraded, resp.Status)
}

func TestReadyNoCheckersIsReady(t *testing.T) {
	m := NewManager("test")
	resp := m.Ready(context.Background(), false)
	assert.True(t, resp.Ready)
	assert.Equal(t, StatusHealthy, resp.Status)
}

func TestControllerChecker(t *testing.T) {
	tests := []struct {
		name  string
		probe stubProbe
		want  Status
	}{
		{"running", stubProbe{healthy: true, depth: 0}, StatusHealthy},
		{"backed up", stubProbe{healthy: true, depth: 32}, StatusDegraded},
		{"stopped", stubProbe{healthy: false}, StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewControllerChecker(tt.probe, 16)
			assert.Equal(t, tt.want, c.Check(context.Background()).Status)
		})
	}
}

type nullHandle struct{}

func (nullHandle) Valid() bool { return true }
func (nullHandle) Release()    {}

func TestSurfaceChecker(t *testing.T) {
	gate := surface.NewGate(func() surface.Handle { return nullHandle{} })
	c := NewSurfaceChecker(gate)

	assert.Equal(t, StatusDegraded, c.Check(context.Background()).Status)

	gate.Attach(nullHandle{})
	assert.Equal(t, StatusHealthy, c.Check(context.Background()).Status)

	gate.Detach()
	assert.Equal(t, StatusDegraded, c.Check(context.Background()).Status)
}
