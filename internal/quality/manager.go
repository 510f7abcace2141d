// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package quality owns the adaptive/manual mode, the per-session failure
// ledger, and the two downgrade policies.
package quality

import (
	"errors"
	"sort"

	"github.com/ManuGH/abrctl/internal/catalog"
	"github.com/ManuGH/abrctl/internal/types"
)

var (
	// ErrHeightUnavailable is returned when a manual pin requests a height
	// the catalog does not carry. The caller falls back to adaptive mode.
	ErrHeightUnavailable = errors.New("requested height unavailable")

	// ErrExhausted is returned when no non-failed video rendition remains.
	ErrExhausted = errors.New("rendition candidates exhausted")

	// ErrManualMode is returned when an adaptive-only operation is invoked
	// while a manual pin is active.
	ErrManualMode = errors.New("quality mode is manual")

	// ErrNoLowerRendition is returned by the bandwidth downgrade when
	// nothing below the current height exists.
	ErrNoLowerRendition = errors.New("no rendition below current height")
)

// Manager tracks quality mode, the failure ledger, and the consecutive
// error count for the active rendition. All methods must be called from
// the controller's loop; the manager does no locking of its own.
type Manager struct {
	mode         types.QualityMode
	pinnedHeight int

	videos  []catalog.Rendition // descending by height, owned by the catalog
	failed  map[string]struct{}
	current *catalog.Rendition

	errorCount int
}

// NewManager returns a manager in adaptive mode with an empty ledger.
func NewManager() *Manager {
	return &Manager{
		mode:   types.QualityModeAdaptive,
		failed: make(map[string]struct{}),
	}
}

// Reset installs the rendition set of a new session. The ledger and error
// count are cleared; this is the only shrink path for the ledger. A sticky
// manual pin is re-resolved against the new set and silently dropped to
// adaptive when the height is gone.
func (m *Manager) Reset(videos []catalog.Rendition) {
	m.videos = videos
	m.failed = make(map[string]struct{})
	m.current = nil
	m.errorCount = 0

	if m.mode == types.QualityModeManual {
		if _, ok := m.byHeight(m.pinnedHeight); !ok {
			m.mode = types.QualityModeAdaptive
			m.pinnedHeight = 0
		}
	}
}

// Mode returns the active quality mode.
func (m *Manager) Mode() types.QualityMode {
	return m.mode
}

// PinnedHeight returns the manual pin, 0 when adaptive.
func (m *Manager) PinnedHeight() int {
	if m.mode != types.QualityModeManual {
		return 0
	}
	return m.pinnedHeight
}

// Current returns the active video rendition.
func (m *Manager) Current() (catalog.Rendition, bool) {
	if m.current == nil {
		return catalog.Rendition{}, false
	}
	return *m.current, true
}

// SetCurrent installs the active rendition. Switching to a different
// content key resets the consecutive error count.
func (m *Manager) SetCurrent(r catalog.Rendition) {
	if m.current == nil || m.current.ContentKey != r.ContentKey {
		m.errorCount = 0
	}
	cp := r
	m.current = &cp
}

// MarkFailed adds a content key to the ledger. Idempotent; the ledger only
// grows until the next Reset.
func (m *Manager) MarkFailed(contentKey string) {
	if contentKey == "" {
		return
	}
	m.failed[contentKey] = struct{}{}
}

// IsFailed reports whether the content key is in the ledger.
func (m *Manager) IsFailed(contentKey string) bool {
	_, ok := m.failed[contentKey]
	return ok
}

// FailedCount returns the ledger size.
func (m *Manager) FailedCount() int {
	return len(m.failed)
}

// RecordError increments and returns the consecutive error count for the
// active rendition.
func (m *Manager) RecordError() int {
	m.errorCount++
	return m.errorCount
}

// ResetErrors clears the consecutive error count.
func (m *Manager) ResetErrors() {
	m.errorCount = 0
}

// ErrorCount returns the current consecutive error count.
func (m *Manager) ErrorCount() int {
	return m.errorCount
}

// SwitchToManual pins playback to the rendition with the given height.
func (m *Manager) SwitchToManual(height int) (catalog.Rendition, error) {
	r, ok := m.byHeight(height)
	if !ok {
		return catalog.Rendition{}, ErrHeightUnavailable
	}
	m.mode = types.QualityModeManual
	m.pinnedHeight = height
	return r, nil
}

// SwitchToAdaptive clears a manual pin and re-initializes adaptation from
// the highest non-failed rendition.
func (m *Manager) SwitchToAdaptive() (catalog.Rendition, bool) {
	m.mode = types.QualityModeAdaptive
	m.pinnedHeight = 0
	for _, r := range m.videos {
		if !m.IsFailed(r.ContentKey) {
			return r, true
		}
	}
	return catalog.Rendition{}, false
}

// Downgrade selects the recovery rendition after a confirmed failure.
// Adaptive mode only. Candidates are the non-failed renditions, preferred
// by container compatibility first and then by the highest untested
// height, so recovery loses as little quality as the failure forces.
// Returns ErrExhausted when the ledger covers the whole set.
func (m *Manager) Downgrade() (catalog.Rendition, error) {
	if m.mode == types.QualityModeManual {
		return catalog.Rendition{}, ErrManualMode
	}
	if len(m.failed) >= len(m.videos) {
		return catalog.Rendition{}, ErrExhausted
	}

	candidates := make([]catalog.Rendition, 0, len(m.videos))
	for _, r := range m.videos {
		if !m.IsFailed(r.ContentKey) {
			candidates = append(candidates, r)
		}
	}
	if len(candidates) == 0 {
		return catalog.Rendition{}, ErrExhausted
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		ri, rj := candidates[i].ContainerRank(), candidates[j].ContainerRank()
		if ri != rj {
			return ri < rj
		}
		return candidates[i].Height > candidates[j].Height
	})
	return candidates[0], nil
}

// DowngradeForBandwidth is the watchdog's conservative one-step policy:
// the highest non-failed rendition strictly below the current height.
// Sustained buffering does not condemn the current rendition, so nothing
// is marked failed here.
func (m *Manager) DowngradeForBandwidth() (catalog.Rendition, error) {
	if m.mode == types.QualityModeManual {
		return catalog.Rendition{}, ErrManualMode
	}
	if m.current == nil {
		return catalog.Rendition{}, ErrNoLowerRendition
	}
	for _, r := range m.videos {
		if r.Height < m.current.Height && !m.IsFailed(r.ContentKey) {
			return r, nil
		}
	}
	return catalog.Rendition{}, ErrNoLowerRendition
}

// Snapshot reports the observable quality state.
type Snapshot struct {
	Mode          types.QualityMode
	PinnedHeight  int
	CurrentHeight int
	CurrentKey    string
	FailedCount   int
	ErrorCount    int
}

// Snapshot returns the current observable quality state.
func (m *Manager) Snapshot() Snapshot {
	s := Snapshot{
		Mode:         m.mode,
		PinnedHeight: m.PinnedHeight(),
		FailedCount:  len(m.failed),
		ErrorCount:   m.errorCount,
	}
	if m.current != nil {
		s.CurrentHeight = m.current.Height
		s.CurrentKey = m.current.ContentKey
	}
	return s
}

func (m *Manager) byHeight(height int) (catalog.Rendition, bool) {
	for _, r := range m.videos {
		if r.Height == height {
			return r, true
		}
	}
	return catalog.Rendition{}, false
}
