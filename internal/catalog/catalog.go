// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package catalog

import (
	"sort"
)

// Catalog holds the deduplicated, ordered rendition sets for one title.
// It never mutates after construction and never touches the failure ledger;
// selection helpers take the ledger as a predicate.
type Catalog struct {
	videos    []Rendition // sorted descending by height
	audios    []Rendition // sorted descending by bitrate
	subtitles []Rendition
}

// New builds a catalog from raw rendition lists. Renditions without a
// content key are dropped, duplicates (by content key) keep the first
// occurrence, languages are canonicalized, and the muxed-audio flag is
// resolved from the container once, here.
func New(video, audio, subtitles []Rendition) *Catalog {
	c := &Catalog{
		videos:    normalize(video, KindVideo),
		audios:    normalize(audio, KindAudio),
		subtitles: normalize(subtitles, KindSubtitle),
	}

	sort.SliceStable(c.videos, func(i, j int) bool {
		return c.videos[i].Height > c.videos[j].Height
	})
	sort.SliceStable(c.audios, func(i, j int) bool {
		return c.audios[i].BitrateBps > c.audios[j].BitrateBps
	})
	return c
}

func normalize(in []Rendition, kind Kind) []Rendition {
	out := make([]Rendition, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, r := range in {
		if r.ContentKey == "" {
			continue
		}
		if _, dup := seen[r.ContentKey]; dup {
			continue
		}
		seen[r.ContentKey] = struct{}{}

		r.Kind = kind
		r.Language = normalizeLanguage(r.Language)
		r.MuxedAudio = r.muxedAudioResolved()
		out = append(out, r)
	}
	return out
}

// Videos returns the video renditions, highest first.
func (c *Catalog) Videos() []Rendition {
	return c.videos
}

// Audios returns the audio renditions, highest bitrate first.
func (c *Catalog) Audios() []Rendition {
	return c.audios
}

// Subtitles returns the subtitle renditions.
func (c *Catalog) Subtitles() []Rendition {
	return c.subtitles
}

// VideoByHeight returns the first video rendition with exactly the given
// height.
func (c *Catalog) VideoByHeight(height int) (Rendition, bool) {
	for _, r := range c.videos {
		if r.Height == height {
			return r, true
		}
	}
	return Rendition{}, false
}

// InitialPick selects the starting video rendition: an exact match for the
// target height if one exists and is not failed, otherwise the highest
// rendition whose content key the predicate does not reject. Pure function
// of the catalog and the predicate.
func (c *Catalog) InitialPick(targetHeight int, failed func(string) bool) (Rendition, bool) {
	if failed == nil {
		failed = func(string) bool { return false }
	}
	if targetHeight > 0 {
		if r, ok := c.VideoByHeight(targetHeight); ok && !failed(r.ContentKey) {
			return r, true
		}
	}
	for _, r := range c.videos {
		if !failed(r.ContentKey) {
			return r, true
		}
	}
	return Rendition{}, false
}

// AudioCandidates returns the audio renditions not rejected by the
// predicate, highest bitrate first.
func (c *Catalog) AudioCandidates(failed func(string) bool) []Rendition {
	if failed == nil {
		return c.audios
	}
	out := make([]Rendition, 0, len(c.audios))
	for _, r := range c.audios {
		if !failed(r.ContentKey) {
			out = append(out, r)
		}
	}
	return out
}
