// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package catalog normalizes the set of renditions available for a title.
package catalog

import (
	"strings"

	"golang.org/x/text/language"
)

// Kind identifies what a rendition carries.
type Kind string

const (
	KindVideo    Kind = "video"
	KindAudio    Kind = "audio"
	KindSubtitle Kind = "subtitle"
)

// IsValid checks whether the kind is one of the defined values.
func (k Kind) IsValid() bool {
	switch k {
	case KindVideo, KindAudio, KindSubtitle:
		return true
	default:
		return false
	}
}

// Rendition is an immutable descriptor of one selectable stream variant.
// ContentKey is the opaque locator used for identity and deduplication.
type Rendition struct {
	ContentKey string
	Width      int
	Height     int
	BitrateBps int64
	MimeType   string
	Codec      string
	Kind       Kind
	Language   string

	// MuxedAudio is resolved once when the catalog is built: progressive
	// containers carry their own audio track, adaptive manifests do not.
	MuxedAudio bool
}

// Container preference ranks for the error-path downgrade. Lower is safer:
// progressive MP4 plays almost everywhere, adaptive manifests depend on
// more of the pipeline being healthy.
const (
	rankProgressive = 0
	rankHLS         = 1
	rankDASH        = 2
	rankUnknown     = 3
)

// ContainerRank returns the compatibility preference of the rendition's
// container; lower ranks are preferred when recovering from failures.
func (r Rendition) ContainerRank() int {
	switch strings.ToLower(strings.TrimSpace(r.MimeType)) {
	case "video/mp4", "video/webm", "video/3gpp", "audio/mp4", "audio/webm":
		return rankProgressive
	case "application/x-mpegurl", "application/vnd.apple.mpegurl":
		return rankHLS
	case "application/dash+xml":
		return rankDASH
	default:
		return rankUnknown
	}
}

func (r Rendition) muxedAudioResolved() bool {
	if r.Kind != KindVideo {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(r.MimeType)) {
	case "video/mp4", "video/webm", "video/3gpp":
		return true
	default:
		return false
	}
}

// normalizeLanguage canonicalizes a BCP-47 tag ("EN-us" -> "en-US").
// Unparseable tags are kept as-is, lowercased, rather than dropped.
func normalizeLanguage(lang string) string {
	lang = strings.TrimSpace(lang)
	if lang == "" {
		return ""
	}
	tag, err := language.Parse(lang)
	if err != nil {
		return strings.ToLower(lang)
	}
	return tag.String()
}
