// SPDX-License-Identifier: MIT
package types

import (
	"encoding/json"
	"fmt"
)

// QualityMode selects between algorithmic and user-pinned rendition choice.
type QualityMode string

const (
	// QualityModeAdaptive lets the controller pick and downgrade renditions.
	QualityModeAdaptive QualityMode = "adaptive"

	// QualityModeManual pins playback to a user-selected height. The
	// controller never overrides a manual pin on its own.
	QualityModeManual QualityMode = "manual"
)

// String implements fmt.Stringer.
func (m QualityMode) String() string {
	return string(m)
}

// IsValid checks whether the quality mode is valid.
func (m QualityMode) IsValid() bool {
	switch m {
	case QualityModeAdaptive, QualityModeManual:
		return true
	default:
		return false
	}
}

// MarshalJSON implements json.Marshaler.
func (m QualityMode) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(m))
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *QualityMode) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}

	mode := QualityMode(str)
	if !mode.IsValid() {
		return fmt.Errorf("invalid quality mode: %q", str)
	}

	*m = mode
	return nil
}
