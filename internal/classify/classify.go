// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package classify

import (
	"errors"
	"fmt"
	"strings"
)

// Scope narrows a decoder fault to the track family it affects.
type Scope string

const (
	ScopeUnknown Scope = ""
	ScopeVideo   Scope = "video"
	ScopeAudio   Scope = "audio"
)

// Engine error code ranges. The concrete values mirror the underlying
// media engine's numbering; the classifier only depends on the ranges.
const (
	CodeBehindLiveWindow = 1002

	CodeIONetworkFailed = 2001
	CodeIOTimeout       = 2002
	CodeIOBadHTTPStatus = 2004

	CodeParsingContainerMalformed   = 3001
	CodeParsingManifestMalformed    = 3002
	CodeParsingContainerUnsupported = 3003
	CodeParsingManifestUnsupported  = 3004

	CodeDecoderInitFailed  = 4001
	CodeDecoderWriteFailed = 4002

	CodeAudioTrackInitFailed  = 5001
	CodeAudioTrackWriteFailed = 5002

	CodeDrmSchemeUnsupported = 6001
	CodeDrmLicenseFailed     = 6002
)

// EngineError is the raw fault surfaced by the media engine.
type EngineError struct {
	Code    int
	Message string
	Cause   error
	Scope   Scope
}

// Error implements the error interface.
func (e EngineError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("engine error %d", e.Code)
	}
	return fmt.Sprintf("engine error %d: %s", e.Code, e.Message)
}

// Unwrap exposes the cause chain.
func (e EngineError) Unwrap() error {
	return e.Cause
}

// ErrorInfo is the classified result consumed by the recovery coordinator
// and surfaced through PlaybackState.
type ErrorInfo struct {
	Category           Category `json:"category"`
	RawCode            int      `json:"raw_code"`
	Message            string   `json:"message,omitempty"`
	Scope              Scope    `json:"scope,omitempty"`
	AffectedContentKey string   `json:"affected_content_key,omitempty"`
}

// parserFaultSignatures are substrings that identify a parser fault hiding
// inside a generic I/O error. Some engines wrap container faults in their
// network error type; the signature scan takes precedence over the raw code.
var parserFaultSignatures = []string{
	"parserexception",
	"parser fault",
	"malformed",
	"truncated",
	"unexpected end of stream",
	"searched too many bytes",
	"invalid nal",
}

// Classify maps an engine error to its category. The function is total:
// every input yields a valid ErrorInfo.
func Classify(err EngineError) ErrorInfo {
	info := ErrorInfo{
		RawCode: err.Code,
		Message: err.Message,
		Scope:   err.Scope,
	}

	// Parser faults wrapped in I/O errors are stream corruption, not
	// network trouble. This reclassification wins over the raw code.
	if isIOCode(err.Code) && carriesParserSignature(err) {
		info.Category = CategoryStreamCorruption
		return info
	}

	switch {
	case err.Code == CodeBehindLiveWindow:
		info.Category = CategoryLiveEdgeLag
	case err.Code == CodeParsingContainerUnsupported || err.Code == CodeParsingManifestUnsupported:
		info.Category = CategoryFormatIncompatible
	case err.Code == CodeParsingContainerMalformed || err.Code == CodeParsingManifestMalformed:
		info.Category = CategoryStreamCorruption
	case isIOCode(err.Code):
		info.Category = CategoryTransientNetwork
	case err.Code >= 4000 && err.Code < 5000:
		info.Category = CategoryDecoderFailure
		if info.Scope == ScopeUnknown {
			info.Scope = ScopeVideo
		}
	case err.Code >= 5000 && err.Code < 6000:
		info.Category = CategoryDecoderFailure
		info.Scope = ScopeAudio
	case err.Code >= 6000 && err.Code < 7000:
		info.Category = CategoryDrmFailure
	default:
		info.Category = CategoryUnclassified
	}
	return info
}

func isIOCode(code int) bool {
	return code >= 2000 && code < 3000
}

// carriesParserSignature scans the message and the full cause chain for
// parser fault signatures.
func carriesParserSignature(err EngineError) bool {
	if matchesSignature(err.Message) {
		return true
	}
	for cause := err.Cause; cause != nil; cause = errors.Unwrap(cause) {
		if matchesSignature(cause.Error()) {
			return true
		}
	}
	return false
}

func matchesSignature(text string) bool {
	if text == "" {
		return false
	}
	lower := strings.ToLower(text)
	for _, sig := range parserFaultSignatures {
		if strings.Contains(lower, sig) {
			return true
		}
	}
	return false
}
