// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package engine defines the narrow contracts to the underlying media
// engine and source resolver. The controller is pure control logic over
// these abstractions; decoding, demuxing, and transport live behind them.
package engine

import (
	"context"
	"errors"

	"github.com/ManuGH/abrctl/internal/classify"
)

// State is the engine-level playback state.
type State string

const (
	StateIdle      State = "idle"
	StateBuffering State = "buffering"
	StateReady     State = "ready"
	StateEnded     State = "ended"
)

// IsValid checks whether the engine state is one of the defined values.
func (s State) IsValid() bool {
	switch s {
	case StateIdle, StateBuffering, StateReady, StateEnded:
		return true
	default:
		return false
	}
}

// Source is an engine-loadable descriptor produced by the resolver.
type Source struct {
	URI            string
	MimeType       string
	VideoKey       string
	AudioKey       string
	DurationHintMs int64

	// Generation tags the session the source belongs to. Engines must
	// echo it on every event they emit for this source so the controller
	// can drop stale events after a title change.
	Generation uint64
}

// Event is an engine-reported occurrence. Events are handed to the
// controller's loop as messages; engine callbacks never mutate controller
// state directly.
type Event interface {
	EventGeneration() uint64
}

// StateChanged reports an engine state transition.
type StateChanged struct {
	Generation uint64
	State      State
}

// EventGeneration implements Event.
func (e StateChanged) EventGeneration() uint64 { return e.Generation }

// ErrorEvent reports an engine fault.
type ErrorEvent struct {
	Generation uint64
	Err        classify.EngineError
}

// EventGeneration implements Event.
func (e ErrorEvent) EventGeneration() uint64 { return e.Generation }

// FirstFrame reports the first rendered video frame of the current source.
type FirstFrame struct {
	Generation uint64
}

// EventGeneration implements Event.
func (e FirstFrame) EventGeneration() uint64 { return e.Generation }

// Engine is the playback engine contract consumed by the controller.
type Engine interface {
	Load(ctx context.Context, src Source) error
	Play()
	Pause()
	Stop()
	SeekTo(ms int64)
	// SeekToDefault jumps to the default position: the live edge for live
	// streams, zero for on-demand.
	SeekToDefault()
	Position() int64
	BufferedPosition() int64
	Duration() int64
	Events() <-chan Event
}

// ErrUnresolvable is returned when no engine-loadable source exists for
// the requested rendition combination.
var ErrUnresolvable = errors.New("no loadable source for rendition")

// SourceResolver builds engine-loadable sources, handling the muxing of
// separate audio/video streams internally.
type SourceResolver interface {
	Resolve(videoKey, audioKey string, mimeType string, durationHintMs int64) (Source, error)
}
