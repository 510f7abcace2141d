// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/ManuGH/abrctl/internal/catalog"
	"github.com/ManuGH/abrctl/internal/classify"
	"github.com/ManuGH/abrctl/internal/engine/enginetest"
	abrlog "github.com/ManuGH/abrctl/internal/log"
	"github.com/ManuGH/abrctl/internal/player"
)

// simLadder is the rendition set the scenario plays: an HLS ladder plus a
// progressive MP4 fallback and two audio tracks.
func simLadder() (videos, audios []catalog.Rendition) {
	videos = []catalog.Rendition{
		{ContentKey: "sim-1080", Width: 1920, Height: 1080, BitrateBps: 5_400_000, MimeType: "application/x-mpegURL", Kind: catalog.KindVideo},
		{ContentKey: "sim-720", Width: 1280, Height: 720, BitrateBps: 3_000_000, MimeType: "application/x-mpegURL", Kind: catalog.KindVideo},
		{ContentKey: "sim-480", Width: 854, Height: 480, BitrateBps: 1_400_000, MimeType: "video/mp4", Kind: catalog.KindVideo},
	}
	audios = []catalog.Rendition{
		{ContentKey: "sim-audio-main", BitrateBps: 192_000, MimeType: "audio/mp4", Kind: catalog.KindAudio, Language: "en"},
		{ContentKey: "sim-audio-alt", BitrateBps: 128_000, MimeType: "audio/mp4", Kind: catalog.KindAudio, Language: "de"},
	}
	return videos, audios
}

// runScenario drives the fake engine through the recovery paths in order:
// transient network retry, corruption-triggered downgrade, a bandwidth
// stall, a format incompatibility, and an audio track switch. The
// controller's reactions are visible on /api/state and /metrics while it
// runs.
func runScenario(ctx context.Context, ctrl *player.Controller, eng *enginetest.FakeEngine) error {
	logger := abrlog.WithComponent("scenario")

	videos, audios := simLadder()
	ctrl.SetRenditions("sim-title", videos, audios, nil, 1_800_000)

	// Progress pump: while not frozen, the playhead advances so the
	// watchdog stays quiet.
	var frozen atomic.Bool
	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		pos := int64(0)
		tk := time.NewTicker(200 * time.Millisecond)
		defer tk.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tk.C:
				if eng.Playing() && !frozen.Load() {
					pos += 200
					eng.SetProgress(pos, pos+10_000)
				}
			}
		}
	}()
	defer func() { <-pumpDone }()

	steps := []struct {
		name string
		run  func() error
	}{
		{"initial_load", func() error {
			return prepare(ctx, eng, 1)
		}},
		// Freeze the playhead on 1080: the watchdog steps down one rung
		// without condemning the rendition.
		{"bandwidth_stall", func() error {
			frozen.Store(true)
			if err := prepare(ctx, eng, 2); err != nil {
				return err
			}
			frozen.Store(false)
			return nil
		}},
		// First counted error on 720: retried on the same rendition.
		{"transient_network", func() error {
			eng.EmitError(classify.EngineError{Code: classify.CodeIOTimeout, Message: "read deadline exceeded"})
			return prepare(ctx, eng, 3)
		}},
		// Second counted error exhausts the budget: 720 is condemned and
		// the progressive MP4 wins the downgrade on container preference.
		{"stream_corruption", func() error {
			eng.EmitError(classify.EngineError{
				Code:    classify.CodeIONetworkFailed,
				Message: "source error",
				Cause:   errors.New("ParserException: unexpected end of stream"),
			})
			return prepare(ctx, eng, 4)
		}},
		// The MP4 turns out unplayable here: immediate switch to the last
		// untested rendition, no backoff.
		{"format_incompatible", func() error {
			eng.EmitError(classify.EngineError{Code: classify.CodeParsingManifestUnsupported, Message: "unsupported manifest"})
			return prepare(ctx, eng, 5)
		}},
		{"audio_decoder", func() error {
			eng.EmitError(classify.EngineError{Code: classify.CodeAudioTrackInitFailed, Message: "audio sink rejected format"})
			return prepare(ctx, eng, 6)
		}},
	}

	for _, step := range steps {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Info().
			Str(abrlog.FieldEvent, "scenario.step").
			Str("step", step.name).
			Msg("running scenario step")
		if err := step.run(); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			logger.Error().
				Err(err).
				Str(abrlog.FieldEvent, "scenario.step_failed").
				Str("step", step.name).
				Msg("scenario step failed")
			return err
		}
		st := ctrl.State()
		logger.Info().
			Str(abrlog.FieldEvent, "scenario.step_done").
			Str("step", step.name).
			Str(abrlog.FieldNewState, string(st.State)).
			Int(abrlog.FieldHeight, st.EffectiveQualityHeight).
			Msg("scenario step complete")
	}

	logger.Info().
		Str(abrlog.FieldEvent, "scenario.complete").
		Msg("all scenario steps complete, idling until shutdown")
	<-ctx.Done()
	return ctx.Err()
}

// prepare waits for the n-th engine load and answers it with a ready
// event, like a real engine finishing its prepare phase.
func prepare(ctx context.Context, eng *enginetest.FakeEngine, n int) error {
	deadline := time.After(30 * time.Second)
	for eng.LoadCount() < n {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return errors.New("timed out waiting for engine load")
		case <-time.After(20 * time.Millisecond):
		}
	}
	// Give the controller a beat, then report the source prepared.
	time.Sleep(100 * time.Millisecond)
	eng.EmitReady()
	return nil
}
