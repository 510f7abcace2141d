// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package enginetest provides a scriptable in-memory media engine for
// controller tests and the simulator.
package enginetest

import (
	"context"
	"sync"
	"time"

	"github.com/ManuGH/abrctl/internal/classify"
	"github.com/ManuGH/abrctl/internal/engine"
)

// FakeEngine is a deterministic engine double. It never emits events on
// its own; tests and the simulator drive it through the Emit helpers,
// which stamp the generation of the currently loaded source.
type FakeEngine struct {
	mu       sync.Mutex
	loads    []engine.Source
	loadErrs []error
	position int64
	buffered int64
	duration int64
	playing  bool
	state    engine.State
	gen      uint64

	events  chan engine.Event
	loadsCh chan struct{}
}

// NewFakeEngine creates an idle fake engine.
func NewFakeEngine() *FakeEngine {
	return &FakeEngine{
		state:   engine.StateIdle,
		events:  make(chan engine.Event, 64),
		loadsCh: make(chan struct{}, 64),
	}
}

// FailNextLoad queues an error for the next Load call.
func (f *FakeEngine) FailNextLoad(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loadErrs = append(f.loadErrs, err)
}

// Load implements engine.Engine.
func (f *FakeEngine) Load(_ context.Context, src engine.Source) error {
	f.mu.Lock()
	if len(f.loadErrs) > 0 {
		err := f.loadErrs[0]
		f.loadErrs = f.loadErrs[1:]
		f.mu.Unlock()
		return err
	}
	f.loads = append(f.loads, src)
	f.gen = src.Generation
	f.state = engine.StateBuffering
	f.position = 0
	f.buffered = 0
	f.duration = src.DurationHintMs
	f.mu.Unlock()

	select {
	case f.loadsCh <- struct{}{}:
	default:
	}
	return nil
}

// Play implements engine.Engine.
func (f *FakeEngine) Play() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playing = true
}

// Pause implements engine.Engine.
func (f *FakeEngine) Pause() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playing = false
}

// Stop implements engine.Engine.
func (f *FakeEngine) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playing = false
	f.state = engine.StateIdle
}

// SeekTo implements engine.Engine.
func (f *FakeEngine) SeekTo(ms int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.position = ms
}

// SeekToDefault implements engine.Engine.
func (f *FakeEngine) SeekToDefault() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.position = f.duration
}

// Position implements engine.Engine.
func (f *FakeEngine) Position() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.position
}

// BufferedPosition implements engine.Engine.
func (f *FakeEngine) BufferedPosition() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.buffered
}

// Duration implements engine.Engine.
func (f *FakeEngine) Duration() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.duration
}

// Events implements engine.Engine.
func (f *FakeEngine) Events() <-chan engine.Event {
	return f.events
}

// EmitReady emits a ready state change stamped with the current source
// generation.
func (f *FakeEngine) EmitReady() {
	f.emitState(engine.StateReady)
}

// EmitBuffering emits a buffering state change.
func (f *FakeEngine) EmitBuffering() {
	f.emitState(engine.StateBuffering)
}

// EmitEnded emits an ended state change.
func (f *FakeEngine) EmitEnded() {
	f.emitState(engine.StateEnded)
}

func (f *FakeEngine) emitState(s engine.State) {
	f.mu.Lock()
	f.state = s
	gen := f.gen
	f.mu.Unlock()
	f.events <- engine.StateChanged{Generation: gen, State: s}
}

// EmitError emits an engine error stamped with the current generation.
func (f *FakeEngine) EmitError(err classify.EngineError) {
	f.mu.Lock()
	gen := f.gen
	f.mu.Unlock()
	f.events <- engine.ErrorEvent{Generation: gen, Err: err}
}

// EmitErrorForGeneration emits an error with an explicit generation stamp,
// simulating an event queued before a title switch.
func (f *FakeEngine) EmitErrorForGeneration(gen uint64, err classify.EngineError) {
	f.events <- engine.ErrorEvent{Generation: gen, Err: err}
}

// EmitFirstFrame emits a first-frame event.
func (f *FakeEngine) EmitFirstFrame() {
	f.mu.Lock()
	gen := f.gen
	f.mu.Unlock()
	f.events <- engine.FirstFrame{Generation: gen}
}

// SetProgress moves the playhead and buffered horizon.
func (f *FakeEngine) SetProgress(position, buffered int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.position = position
	f.buffered = buffered
}

// Playing reports whether Play was the last transport call.
func (f *FakeEngine) Playing() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.playing
}

// LoadCount returns the number of successful loads.
func (f *FakeEngine) LoadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.loads)
}

// Loads returns a copy of all loaded sources in order.
func (f *FakeEngine) Loads() []engine.Source {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]engine.Source(nil), f.loads...)
}

// LastLoad returns the most recent loaded source.
func (f *FakeEngine) LastLoad() (engine.Source, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.loads) == 0 {
		return engine.Source{}, false
	}
	return f.loads[len(f.loads)-1], true
}

// WaitForLoads blocks until at least n loads happened or the timeout
// elapses. Returns true when the count was reached.
func (f *FakeEngine) WaitForLoads(n int, timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		if f.LoadCount() >= n {
			return true
		}
		select {
		case <-f.loadsCh:
		case <-deadline.C:
			return f.LoadCount() >= n
		}
	}
}

var _ engine.Engine = (*FakeEngine)(nil)
