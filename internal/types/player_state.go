// SPDX-License-Identifier: MIT
package types

import (
	"encoding/json"
	"fmt"
)

// PlayerState represents the current state of the playback controller.
type PlayerState string

// Player state constants define all possible controller states.
const (
	// PlayerStateIdle indicates no title is loaded.
	PlayerStateIdle PlayerState = "idle"

	// PlayerStateLoading indicates a source is being prepared by the engine.
	PlayerStateLoading PlayerState = "loading"

	// PlayerStatePlaying indicates the engine is decoding and playback proceeds.
	PlayerStatePlaying PlayerState = "playing"

	// PlayerStateRecovering indicates an engine fault is being handled.
	PlayerStateRecovering PlayerState = "recovering"

	// PlayerStateShuttingDown indicates the controller reached a terminal
	// condition, either a fatal error or an explicit release.
	PlayerStateShuttingDown PlayerState = "shutting_down"
)

// String implements fmt.Stringer.
func (s PlayerState) String() string {
	return string(s)
}

// IsValid checks whether the player state is valid.
func (s PlayerState) IsValid() bool {
	switch s {
	case PlayerStateIdle, PlayerStateLoading, PlayerStatePlaying,
		PlayerStateRecovering, PlayerStateShuttingDown:
		return true
	default:
		return false
	}
}

// IsActive checks whether the controller is in a state with a live source.
func (s PlayerState) IsActive() bool {
	switch s {
	case PlayerStateLoading, PlayerStatePlaying, PlayerStateRecovering:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further events will be processed.
func (s PlayerState) IsTerminal() bool {
	return s == PlayerStateShuttingDown
}

// MarshalJSON implements json.Marshaler.
func (s PlayerState) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *PlayerState) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}

	state := PlayerState(str)
	if !state.IsValid() {
		return fmt.Errorf("invalid player state: %q", str)
	}

	*s = state
	return nil
}

// ParsePlayerState parses a string into a PlayerState.
func ParsePlayerState(s string) (PlayerState, error) {
	state := PlayerState(s)
	if !state.IsValid() {
		return "", fmt.Errorf("invalid player state: %q", s)
	}
	return state, nil
}

// AllPlayerStates returns all defined player states.
func AllPlayerStates() []PlayerState {
	return []PlayerState{
		PlayerStateIdle,
		PlayerStateLoading,
		PlayerStatePlaying,
		PlayerStateRecovering,
		PlayerStateShuttingDown,
	}
}
