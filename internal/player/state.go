// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package player

import (
	"sync"

	"github.com/ManuGH/abrctl/internal/classify"
	"github.com/ManuGH/abrctl/internal/types"
)

// PlaybackState is the observable snapshot produced by the controller.
// It is read-mostly: presentation consumes it, only the controller loop
// writes it.
type PlaybackState struct {
	SessionID  string            `json:"session_id"`
	VideoID    string            `json:"video_id"`
	Generation uint64            `json:"generation"`
	State      types.PlayerState `json:"state"`
	Mode       types.QualityMode `json:"mode"`

	IsPlaying   bool `json:"is_playing"`
	IsBuffering bool `json:"is_buffering"`
	IsPrepared  bool `json:"is_prepared"`
	HasEnded    bool `json:"has_ended"`
	Stalled     bool `json:"stalled"`

	EffectiveQualityHeight int     `json:"effective_quality_height"`
	BufferedFraction       float64 `json:"buffered_fraction"`

	RecoveryAttempted bool                `json:"recovery_attempted"`
	LastError         *classify.ErrorInfo `json:"last_error,omitempty"`
}

// Publisher is a last-value-cached broadcast of PlaybackState. Slow
// subscribers never block the controller: each subscription holds only
// the most recent snapshot.
type Publisher struct {
	mu   sync.RWMutex
	cur  PlaybackState
	subs map[int]chan PlaybackState
	next int
}

// NewPublisher creates a publisher with a zero snapshot.
func NewPublisher() *Publisher {
	return &Publisher{subs: make(map[int]chan PlaybackState)}
}

// State returns the latest snapshot.
func (p *Publisher) State() PlaybackState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cur
}

// Subscribe registers a listener. The channel immediately carries the
// current snapshot. The returned cancel function must be called to
// release the subscription.
func (p *Publisher) Subscribe() (<-chan PlaybackState, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.next
	p.next++
	ch := make(chan PlaybackState, 1)
	ch <- p.cur
	p.subs[id] = ch

	cancel := func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.subs, id)
	}
	return ch, cancel
}

// Publish replaces the snapshot and fans it out, overwriting any
// unconsumed value per subscriber.
func (p *Publisher) Publish(s PlaybackState) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.cur = s
	for _, ch := range p.subs {
		select {
		case ch <- s:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- s:
			default:
			}
		}
	}
}
