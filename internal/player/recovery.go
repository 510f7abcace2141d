// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package player

import (
	"errors"

	"github.com/ManuGH/abrctl/internal/catalog"
	"github.com/ManuGH/abrctl/internal/classify"
	"github.com/ManuGH/abrctl/internal/engine"
	"github.com/ManuGH/abrctl/internal/log"
	"github.com/ManuGH/abrctl/internal/metrics"
	"github.com/ManuGH/abrctl/internal/quality"
	"github.com/ManuGH/abrctl/internal/types"
)

// handleEngineError runs the recovery decision for a same-generation
// engine fault. The playback position is captured before anything stops
// the engine so the resumed attempt lands where the failure happened.
func (c *Controller) handleEngineError(ev engine.ErrorEvent) {
	info := classify.Classify(ev.Err)
	metrics.RecordErrorClassified(string(info.Category))

	if info.AffectedContentKey == "" {
		if info.Scope == classify.ScopeAudio && c.currentAudio != nil {
			info.AffectedContentKey = c.currentAudio.ContentKey
		} else if cur, ok := c.quality.Current(); ok {
			info.AffectedContentKey = cur.ContentKey
		}
	}

	pos := c.eng.Position()

	c.logger.Warn().
		Err(ev.Err).
		Str(log.FieldEvent, "recovery.classified").
		Str(log.FieldCategory, string(info.Category)).
		Int(log.FieldRawCode, info.RawCode).
		Str(log.FieldContentKey, info.AffectedContentKey).
		Int64(log.FieldPositionMs, pos).
		Msg("engine error classified")

	c.dog.Stop()
	c.snap.LastError = &info
	c.snap.RecoveryAttempted = true
	c.snap.IsPlaying = false
	c.setState(types.PlayerStateRecovering)
	c.publish()

	switch info.Category {
	case classify.CategoryLiveEdgeLag:
		// The stream fell behind the live window: snap back to the edge
		// on the same rendition, no failure bookkeeping.
		metrics.RecordRecoveryAction("seek_live")
		c.eng.SeekToDefault()
		if c.playWhenReady {
			c.eng.Play()
			c.snap.IsPlaying = true
		}
		c.setState(types.PlayerStatePlaying)
		c.snap.Stalled = false
		c.publish()
		if c.sess != nil {
			c.dog.Start(c.loopCtx, c.sess.generation)
		}

	case classify.CategoryFormatIncompatible:
		// The rendition can never play here. Condemn it and move on
		// without backoff; waiting would not make the container parse.
		if cur, ok := c.quality.Current(); ok {
			c.quality.MarkFailed(cur.ContentKey)
		}
		c.recoverByDowngrade(0, true)

	case classify.CategoryStreamCorruption, classify.CategoryTransientNetwork, classify.CategoryUnclassified:
		c.recoverCountedError(pos)

	case classify.CategoryDecoderFailure:
		if info.Scope == classify.ScopeAudio {
			c.recoverAudioDecoder(pos)
			return
		}
		c.fatal("video decoder failure")

	case classify.CategoryDrmFailure:
		c.fatal("drm failure")

	default:
		c.recoverCountedError(pos)
	}
}

// recoverCountedError handles the budgeted categories: retry the same
// rendition until the consecutive error threshold, then condemn it and
// downgrade (adaptive) or reset the count and retry (manual pin).
func (c *Controller) recoverCountedError(pos int64) {
	cur, ok := c.quality.Current()
	if !ok {
		c.fatal("no active rendition")
		return
	}

	n := c.quality.RecordError()
	if n < c.cfg.ErrorThreshold {
		metrics.RecordRecoveryAction("retry_same")
		c.logger.Info().
			Str(log.FieldEvent, "recovery.retry_same").
			Str(log.FieldContentKey, cur.ContentKey).
			Int(log.FieldAttempt, n).
			Int64(log.FieldPositionMs, pos).
			Msg("retrying same rendition after backoff")
		c.reloadAt(cur, pos, false)
		return
	}

	if c.quality.Mode() == types.QualityModeManual {
		// The user pinned this rendition; never silently abandon it.
		// Reset the budget and keep retrying with backoff.
		c.quality.ResetErrors()
		metrics.RecordRecoveryAction("retry_same")
		c.logger.Info().
			Str(log.FieldEvent, "recovery.manual_retry").
			Str(log.FieldContentKey, cur.ContentKey).
			Msg("manual pin active, retrying pinned rendition")
		c.reloadAt(cur, pos, false)
		return
	}

	c.quality.MarkFailed(cur.ContentKey)
	c.recoverByDowngrade(pos, false)
}

// recoverByDowngrade selects the next rendition via the error-path
// downgrade policy and reloads, or terminates when exhausted.
func (c *Controller) recoverByDowngrade(pos int64, immediate bool) {
	next, err := c.quality.Downgrade()
	if err != nil {
		if errors.Is(err, quality.ErrManualMode) {
			// Manual pin with a condemned rendition: the pin is the user's
			// call, retry it anyway.
			if cur, ok := c.quality.Current(); ok {
				c.quality.ResetErrors()
				metrics.RecordRecoveryAction("retry_same")
				c.reloadAt(cur, pos, false)
				return
			}
		}
		c.fatal("rendition candidates exhausted")
		return
	}

	metrics.RecordRecoveryAction("downgrade")
	metrics.RecordDowngrade("error")
	c.logger.Info().
		Str(log.FieldEvent, "recovery.downgrade").
		Str(log.FieldContentKey, next.ContentKey).
		Int(log.FieldHeight, next.Height).
		Int64(log.FieldPositionMs, pos).
		Msg("switching to alternate rendition")
	c.reloadAt(next, pos, immediate)
}

// recoverAudioDecoder gives an audio-scoped decoder fault one alternate
// audio track before declaring the session fatal.
func (c *Controller) recoverAudioDecoder(pos int64) {
	if c.currentAudio != nil {
		c.quality.MarkFailed(c.currentAudio.ContentKey)
	}

	var next *catalog.Rendition
	if c.sess != nil {
		if cands := c.sess.catalog.AudioCandidates(c.quality.IsFailed); len(cands) > 0 {
			a := cands[0]
			next = &a
		}
	}
	if next == nil {
		c.fatal("no alternate audio track")
		return
	}

	c.currentAudio = next
	metrics.RecordRecoveryAction("audio_switch")
	c.logger.Info().
		Str(log.FieldEvent, "recovery.audio_switch").
		Str(log.FieldContentKey, next.ContentKey).
		Int64(log.FieldPositionMs, pos).
		Msg("switching to alternate audio track")

	if cur, ok := c.quality.Current(); ok {
		c.reloadAt(cur, pos, true)
		return
	}
	c.fatal("no active rendition for audio switch")
}

// fatal terminates the session. The renderer is parked on the placeholder
// so the decoder pipeline tears down cleanly, and no further events or
// reloads are processed for this session.
func (c *Controller) fatal(reason string) {
	metrics.RecordRecoveryAction("fatal")
	c.logger.Error().
		Str(log.FieldEvent, "recovery.fatal").
		Str("reason", reason).
		Msg("unrecoverable playback failure")

	c.dog.Stop()
	c.governor.Cancel()
	if c.sess != nil {
		c.sess.cancel()
	}
	c.eng.Stop()
	c.gate.Detach()

	c.setState(types.PlayerStateShuttingDown)
	c.snap.IsPlaying = false
	c.snap.IsBuffering = false
	c.publish()
}
