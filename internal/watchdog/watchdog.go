// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package watchdog samples playback progress and declares stalls. It is
// purely observational: it never touches the media engine, it only emits
// signals the controller consumes.
package watchdog

import (
	"context"
	"sync"
	"time"

	"github.com/ManuGH/abrctl/internal/log"
	"github.com/ManuGH/abrctl/internal/metrics"
)

// Sample is one progress observation.
type Sample struct {
	Position int64 // playback position in ms
	Buffered int64 // buffered horizon in ms
}

// Sampler reads the current progress from the engine.
type Sampler func() Sample

// Stall is emitted when the position stayed static for the configured
// number of consecutive samples.
type Stall struct {
	Generation uint64
	Position   int64
	Buffered   int64
}

// Ticker abstracts time.Ticker for deterministic tests.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFactory creates a ticker for the given interval.
type TickerFactory func(time.Duration) Ticker

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// Option configures the watchdog.
type Option func(*Watchdog)

// WithTickerFactory replaces the ticker source, for tests.
func WithTickerFactory(f TickerFactory) Option {
	return func(w *Watchdog) { w.newTicker = f }
}

// Watchdog runs one periodic sampling task while playback is expected to
// progress. It is restartable: Start cancels any previous run.
type Watchdog struct {
	interval  time.Duration
	samples   int
	sampler   Sampler
	newTicker TickerFactory

	signals chan Stall

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a stopped watchdog. samples is the number of consecutive
// static comparisons that declare a stall.
func New(interval time.Duration, samples int, sampler Sampler, opts ...Option) *Watchdog {
	if samples < 1 {
		samples = 1
	}
	w := &Watchdog{
		interval: interval,
		samples:  samples,
		sampler:  sampler,
		newTicker: func(d time.Duration) Ticker {
			return realTicker{t: time.NewTicker(d)}
		},
		signals: make(chan Stall, 1),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Signals returns the stall channel. Capacity one, latest stall wins.
func (w *Watchdog) Signals() <-chan Stall {
	return w.signals
}

// Start begins sampling for the given session generation, cancelling any
// previous run first.
func (w *Watchdog) Start(ctx context.Context, generation uint64) {
	w.Stop()

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	w.mu.Lock()
	w.cancel = cancel
	w.done = done
	w.mu.Unlock()

	go w.run(runCtx, generation, done)
}

// Stop cancels the sampling task and waits for it to exit.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	cancel := w.cancel
	done := w.done
	w.cancel = nil
	w.done = nil
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (w *Watchdog) run(ctx context.Context, generation uint64, done chan struct{}) {
	defer close(done)

	ticker := w.newTicker(w.interval)
	defer ticker.Stop()

	logger := log.WithComponent("watchdog")
	lastPos := int64(-1)
	static := 0

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			s := w.sampler()
			if s.Position == lastPos {
				static++
			} else {
				static = 0
				lastPos = s.Position
			}
			if static < w.samples {
				continue
			}
			static = 0

			metrics.RecordStallDetected()
			logger.Warn().
				Str(log.FieldEvent, "watchdog.stall").
				Uint64(log.FieldGeneration, generation).
				Int64(log.FieldPositionMs, s.Position).
				Int64("buffered_ms", s.Buffered).
				Msg("playback position static, declaring stall")

			st := Stall{Generation: generation, Position: s.Position, Buffered: s.Buffered}
			select {
			case w.signals <- st:
			default:
				// Drop the stale signal, keep the latest.
				select {
				case <-w.signals:
				default:
				}
				select {
				case w.signals <- st:
				default:
				}
			}
		}
	}
}
