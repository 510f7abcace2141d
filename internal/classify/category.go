// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package classify maps opaque playback-engine errors into a small
// taxonomy that drives the recovery state machine.
package classify

import (
	"encoding/json"
	"fmt"
)

// Category is the classified kind of an engine error.
type Category string

const (
	// CategoryLiveEdgeLag means the stream fell behind a live window.
	// Recoverable by seeking to the default position; not counted against
	// the failure budget.
	CategoryLiveEdgeLag Category = "live_edge_lag"

	// CategoryFormatIncompatible means the container or manifest is
	// unsupported. Recoverable by an immediate alternate rendition; not
	// counted against the failure budget.
	CategoryFormatIncompatible Category = "format_incompatible"

	// CategoryStreamCorruption means a parser fault on an otherwise
	// compatible rendition. Counted against the rendition's budget.
	CategoryStreamCorruption Category = "stream_corruption"

	// CategoryTransientNetwork is the connectivity/timeout class. Counted
	// against the budget but retried on the same rendition first.
	CategoryTransientNetwork Category = "transient_network"

	// CategoryDecoderFailure is a codec or audio-track fault. Audio-scoped
	// faults get one alternate audio attempt; otherwise fatal.
	CategoryDecoderFailure Category = "decoder_failure"

	// CategoryDrmFailure is a content-protection fault. Always fatal.
	CategoryDrmFailure Category = "drm_failure"

	// CategoryUnclassified is the fallback, treated like transient network.
	CategoryUnclassified Category = "unclassified"
)

// String implements fmt.Stringer.
func (c Category) String() string {
	return string(c)
}

// IsValid checks whether the category is one of the defined values.
func (c Category) IsValid() bool {
	switch c {
	case CategoryLiveEdgeLag, CategoryFormatIncompatible, CategoryStreamCorruption,
		CategoryTransientNetwork, CategoryDecoderFailure, CategoryDrmFailure,
		CategoryUnclassified:
		return true
	default:
		return false
	}
}

// CountsAgainstBudget reports whether the category consumes the current
// rendition's consecutive failure budget.
func (c Category) CountsAgainstBudget() bool {
	switch c {
	case CategoryStreamCorruption, CategoryTransientNetwork, CategoryUnclassified:
		return true
	default:
		return false
	}
}

// AlwaysFatal reports whether the category terminates playback regardless
// of mode or remaining candidates.
func (c Category) AlwaysFatal() bool {
	return c == CategoryDrmFailure
}

// MarshalJSON implements json.Marshaler.
func (c Category) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(c))
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Category) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	cat := Category(str)
	if !cat.IsValid() {
		return fmt.Errorf("invalid error category: %q", str)
	}
	*c = cat
	return nil
}
