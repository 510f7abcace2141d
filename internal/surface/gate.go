// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package surface tracks the renderer resource the decoder writes into,
// independent of any windowing toolkit. The gate guarantees the decoder
// pipeline always has a sink: detaching the real surface swaps in a
// placeholder instead of tearing the renderer down.
package surface

import (
	"context"
	"sync"
	"time"

	"github.com/ManuGH/abrctl/internal/log"
	"github.com/ManuGH/abrctl/internal/metrics"
)

// State tags the gate's current sink.
type State string

const (
	// StateUnattached means no sink exists at all; only valid before the
	// first attach and after Release.
	StateUnattached State = "unattached"

	// StateAttached means the UI-provided surface is the sink.
	StateAttached State = "attached"

	// StatePlaceholder means an internally allocated stand-in keeps the
	// decoder alive while no visible surface exists.
	StatePlaceholder State = "placeholder"
)

// Handle is the opaque decode-target resource. The UI layer owns the
// concrete implementation; the gate only checks validity and releases
// placeholders it allocated itself.
type Handle interface {
	Valid() bool
	Release()
}

// PlaceholderFactory allocates a stand-in sink on demand.
type PlaceholderFactory func() Handle

// Gate serializes attach/detach from the UI side against readiness waits
// from the controller side.
type Gate struct {
	mu          sync.Mutex
	state       State
	handle      Handle
	placeholder PlaceholderFactory
	ready       chan struct{} // closed while an attached, valid surface exists
}

// NewGate creates a gate with no sink. The factory must not be nil.
func NewGate(factory PlaceholderFactory) *Gate {
	return &Gate{
		state:       StateUnattached,
		placeholder: factory,
		ready:       make(chan struct{}),
	}
}

// Attach installs the UI surface and wakes all readiness waiters. A
// previously allocated placeholder is released.
func (g *Gate) Attach(h Handle) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state == StatePlaceholder && g.handle != nil {
		g.handle.Release()
	}
	g.handle = h
	g.state = StateAttached

	select {
	case <-g.ready:
		// already signalled
	default:
		close(g.ready)
	}
	logger := log.WithComponent("surface")
	logger.Debug().
		Str(log.FieldEvent, "surface.attach").
		Str(log.FieldNewState, string(g.state)).
		Msg("renderer surface attached")
}

// Detach removes the UI surface. The decoder must never lose its sink, so
// a placeholder is allocated in its place and the readiness signal is
// re-armed for the next waiter.
func (g *Gate) Detach() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.handle = g.placeholder()
	g.state = StatePlaceholder
	g.ready = make(chan struct{})

	logger := log.WithComponent("surface")
	logger.Debug().
		Str(log.FieldEvent, "surface.detach").
		Str(log.FieldNewState, string(g.state)).
		Msg("renderer surface detached, placeholder installed")
}

// Release drops the sink entirely. Only valid during controller shutdown.
func (g *Gate) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state == StatePlaceholder && g.handle != nil {
		g.handle.Release()
	}
	g.handle = nil
	g.state = StateUnattached
	g.ready = make(chan struct{})
}

// Current returns the state tag and the handle.
func (g *Gate) Current() (State, Handle) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state, g.handle
}

// AwaitReady blocks until a valid attached surface exists, the timeout
// elapses, or ctx is canceled. Validity is checked synchronously first and
// re-checked once after the wait, covering the attach-just-before-timeout
// race. Returns true when a valid surface is present.
func (g *Gate) AwaitReady(ctx context.Context, timeout time.Duration) bool {
	if g.readyNow() {
		metrics.RecordSurfaceWait("ready")
		return true
	}

	g.mu.Lock()
	ch := g.ready
	g.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	outcome := "ready"
	select {
	case <-ch:
	case <-timer.C:
		outcome = "timeout"
	case <-ctx.Done():
		outcome = "canceled"
	}

	ok := g.readyNow()
	if ok {
		outcome = "ready"
	}
	metrics.RecordSurfaceWait(outcome)
	if !ok {
		logger := log.WithComponent("surface")
		logger.Debug().
			Str(log.FieldEvent, "surface.wait_gave_up").
			Str("outcome", outcome).
			Msg("renderer surface not ready, proceeding best effort")
	}
	return ok
}

func (g *Gate) readyNow() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state == StateAttached && g.handle != nil && g.handle.Valid()
}
