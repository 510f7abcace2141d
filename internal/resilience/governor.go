// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package resilience guards the recovery path against tight reload loops.
package resilience

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ManuGH/abrctl/internal/metrics"
)

// clock abstracts time operations for testability.
type clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// timerFactory schedules fn after d and returns a cancel function.
type timerFactory func(d time.Duration, fn func()) (cancel func())

func realTimer(d time.Duration, fn func()) func() {
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
}

// Option configuration pattern.
type Option func(*Governor)

// WithClock replaces the time source, for tests.
func WithClock(c clock) Option {
	return func(g *Governor) { g.clock = c }
}

// WithTimerFactory replaces the timer source, for tests.
func WithTimerFactory(f timerFactory) Option {
	return func(g *Governor) { g.newTimer = f }
}

// Governor schedules recovery reloads with a fixed backoff and a sustained
// rate cap, and drops work whose session generation has been superseded.
// A newly scheduled reload cancels any pending one: reloads within a
// session are totally ordered.
type Governor struct {
	mu       sync.Mutex
	backoff  time.Duration
	limiter  *rate.Limiter
	clock    clock
	newTimer timerFactory

	generation uint64
	pending    func() // cancel for the in-flight timer
}

// NewGovernor creates a governor. backoff is the base recovery delay;
// r/burst cap the sustained reload frequency.
func NewGovernor(backoff time.Duration, r rate.Limit, burst int, opts ...Option) *Governor {
	if burst < 1 {
		burst = 1
	}
	g := &Governor{
		backoff:  backoff,
		limiter:  rate.NewLimiter(r, burst),
		clock:    realClock{},
		newTimer: realTimer,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Advance moves the governor to a new session generation and cancels any
// pending reload from the superseded one.
func (g *Governor) Advance(generation uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.generation = generation
	g.cancelPendingLocked()
}

// Generation returns the current session generation.
func (g *Governor) Generation() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.generation
}

// Schedule runs fn after the given delay plus any rate-limit reservation,
// replacing a pending reload. immediate==true skips the backoff (format
// mismatch recovery reloads at once). Returns false when the generation is
// already stale and nothing was scheduled. fn runs on the timer goroutine;
// the caller is expected to hand it back to its own loop.
func (g *Governor) Schedule(generation uint64, immediate bool, fn func()) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if generation != g.generation {
		metrics.RecordReloadSuppressed("stale_generation")
		return false
	}

	delay := g.backoff
	if immediate {
		delay = 0
	}

	// The limiter stretches the delay instead of refusing outright: a
	// storm of reloads is spaced out, never silently dropped.
	res := g.limiter.ReserveN(g.clock.Now(), 1)
	if res.OK() {
		if wait := res.DelayFrom(g.clock.Now()); wait > delay {
			metrics.RecordReloadSuppressed("rate_limited")
			delay = wait
		}
	}

	g.cancelPendingLocked()

	g.pending = g.newTimer(delay, func() {
		g.mu.Lock()
		stale := generation != g.generation
		g.pending = nil
		g.mu.Unlock()

		if stale {
			metrics.RecordReloadSuppressed("stale_generation")
			return
		}
		fn()
	})
	return true
}

// Cancel stops any pending reload.
func (g *Governor) Cancel() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelPendingLocked()
}

func (g *Governor) cancelPendingLocked() {
	if g.pending != nil {
		g.pending()
		g.pending = nil
	}
}
