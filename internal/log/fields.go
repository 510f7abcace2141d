// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldSessionID  = "session_id"
	FieldVideoID    = "video_id"
	FieldGeneration = "generation"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"

	// Media / rendition fields
	FieldContentKey = "content_key"
	FieldCodec      = "codec"
	FieldHeight     = "height"
	FieldBitrate    = "bitrate_bps"
	FieldLanguage   = "language"
	FieldMimeType   = "mime_type"

	// Error / recovery fields
	FieldCategory   = "category"
	FieldRawCode    = "raw_code"
	FieldAction     = "action"
	FieldAttempt    = "attempt"
	FieldPositionMs = "position_ms"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"
	FieldMode     = "mode"
)
