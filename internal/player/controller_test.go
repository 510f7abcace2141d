// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package player

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/abrctl/internal/catalog"
	"github.com/ManuGH/abrctl/internal/config"
	"github.com/ManuGH/abrctl/internal/engine/enginetest"
	"github.com/ManuGH/abrctl/internal/surface"
	"github.com/ManuGH/abrctl/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeHandle struct {
	valid    bool
	released atomic.Bool
}

func (h *fakeHandle) Valid() bool { return h.valid }
func (h *fakeHandle) Release()    { h.released.Store(true) }

func testConfig() config.Config {
	cfg := config.Defaults()
	cfg.SurfaceTimeout = 10 * time.Millisecond
	cfg.StallInterval = time.Hour // stall tests lower this explicitly
	cfg.StallSamples = 2
	cfg.ErrorThreshold = 2
	cfg.ReloadBackoff = time.Millisecond
	cfg.ReloadRate = 1000
	cfg.ReloadBurst = 100
	return cfg
}

func vid(key string, height int, mime string) catalog.Rendition {
	return catalog.Rendition{
		ContentKey: key,
		Width:      height * 16 / 9,
		Height:     height,
		BitrateBps: int64(height) * 5000,
		MimeType:   mime,
		Kind:       catalog.KindVideo,
	}
}

func aud(key string, bitrate int64) catalog.Rendition {
	return catalog.Rendition{
		ContentKey: key,
		BitrateBps: bitrate,
		MimeType:   "audio/mp4",
		Kind:       catalog.KindAudio,
		Language:   "en",
	}
}

func hlsLadder() []catalog.Rendition {
	return []catalog.Rendition{
		vid("v1080", 1080, "application/x-mpegURL"),
		vid("v720", 720, "application/x-mpegURL"),
		vid("v480", 480, "application/x-mpegURL"),
	}
}

type fixture struct {
	c    *Controller
	eng  *enginetest.FakeEngine
	res  *enginetest.FakeResolver
	gate *surface.Gate
}

func newFixture(t *testing.T, cfg config.Config) *fixture {
	t.Helper()
	eng := enginetest.NewFakeEngine()
	res := enginetest.NewFakeResolver()
	gate := surface.NewGate(func() surface.Handle { return &fakeHandle{valid: false} })
	gate.Attach(&fakeHandle{valid: true})

	c := New(cfg, Deps{Engine: eng, Resolver: res, Gate: gate})
	c.Start(context.Background())
	t.Cleanup(c.Release)

	return &fixture{c: c, eng: eng, res: res, gate: gate}
}

func (f *fixture) waitState(t *testing.T, want types.PlayerState) {
	t.Helper()
	require.Eventually(t, func() bool {
		return f.c.State().State == want
	}, 2*time.Second, 2*time.Millisecond, "expected state %s, last seen %s", want, f.c.State().State)
}

// startPlaying loads the ladder and drives the engine to ready.
func (f *fixture) startPlaying(t *testing.T, videos []catalog.Rendition, audios []catalog.Rendition) {
	t.Helper()
	f.c.SetRenditions("vid-1", videos, audios, nil, 600_000)
	require.True(t, f.eng.WaitForLoads(1, 2*time.Second))
	f.eng.EmitReady()
	f.waitState(t, types.PlayerStatePlaying)
}

func TestInitialLoadPicksHighestRendition(t *testing.T) {
	f := newFixture(t, testConfig())
	f.startPlaying(t, hlsLadder(), []catalog.Rendition{aud("a-main", 128_000)})

	src, ok := f.eng.LastLoad()
	require.True(t, ok)
	require.Equal(t, "v1080", src.VideoKey)
	require.Equal(t, "a-main", src.AudioKey)
	require.Equal(t, uint64(1), src.Generation)
	require.True(t, f.eng.Playing())

	st := f.c.State()
	require.Equal(t, 1080, st.EffectiveQualityHeight)
	require.Equal(t, types.QualityModeAdaptive, st.Mode)
	require.True(t, st.IsPlaying)
	require.True(t, st.IsPrepared)
}

func TestInitialLoadHonorsTargetHeight(t *testing.T) {
	cfg := testConfig()
	cfg.TargetHeight = 480
	f := newFixture(t, cfg)
	f.startPlaying(t, hlsLadder(), nil)

	src, ok := f.eng.LastLoad()
	require.True(t, ok)
	require.Equal(t, "v480", src.VideoKey)
}

func TestPauseAndPlay(t *testing.T) {
	f := newFixture(t, testConfig())
	f.startPlaying(t, hlsLadder(), nil)

	f.c.Pause()
	require.Eventually(t, func() bool { return !f.c.State().IsPlaying }, time.Second, 2*time.Millisecond)
	require.False(t, f.eng.Playing())

	f.c.Play()
	require.Eventually(t, func() bool { return f.c.State().IsPlaying }, time.Second, 2*time.Millisecond)
	require.True(t, f.eng.Playing())
}

func TestPauseBeforeReadySuppressesAutoplay(t *testing.T) {
	f := newFixture(t, testConfig())
	f.c.SetRenditions("vid-1", hlsLadder(), nil, nil, 600_000)
	require.True(t, f.eng.WaitForLoads(1, 2*time.Second))

	f.c.Pause()
	require.Eventually(t, func() bool { return f.c.QueueDepth() == 0 }, time.Second, 2*time.Millisecond)

	f.eng.EmitReady()
	f.waitState(t, types.PlayerStatePlaying)
	require.False(t, f.c.State().IsPlaying)
	require.False(t, f.eng.Playing())
}

func TestSetRenditionsSupersedesPreviousSession(t *testing.T) {
	f := newFixture(t, testConfig())
	f.startPlaying(t, hlsLadder(), nil)

	f.c.SetRenditions("vid-2", hlsLadder(), nil, nil, 300_000)
	require.True(t, f.eng.WaitForLoads(2, 2*time.Second))

	src, ok := f.eng.LastLoad()
	require.True(t, ok)
	require.Equal(t, uint64(2), src.Generation)

	f.eng.EmitReady()
	f.waitState(t, types.PlayerStatePlaying)
	st := f.c.State()
	require.Equal(t, "vid-2", st.VideoID)
	require.Equal(t, uint64(2), st.Generation)
	require.False(t, st.HasEnded)
}

func TestStaleEventFromOldSessionIsDropped(t *testing.T) {
	f := newFixture(t, testConfig())
	f.startPlaying(t, hlsLadder(), nil)

	f.c.SetRenditions("vid-2", hlsLadder(), nil, nil, 300_000)
	require.True(t, f.eng.WaitForLoads(2, 2*time.Second))
	f.eng.EmitReady()
	f.waitState(t, types.PlayerStatePlaying)

	// An error queued by the superseded session must not disturb the new one.
	f.eng.EmitErrorForGeneration(1, transientNetworkError())
	time.Sleep(20 * time.Millisecond)

	st := f.c.State()
	require.Equal(t, types.PlayerStatePlaying, st.State)
	require.Nil(t, st.LastError)
	require.Equal(t, 2, f.eng.LoadCount())
}

func TestEndedTransitionsToIdle(t *testing.T) {
	f := newFixture(t, testConfig())
	f.startPlaying(t, hlsLadder(), nil)

	f.eng.EmitEnded()
	f.waitState(t, types.PlayerStateIdle)
	st := f.c.State()
	require.True(t, st.HasEnded)
	require.False(t, st.IsPlaying)
}

func TestSeekWhileActive(t *testing.T) {
	f := newFixture(t, testConfig())
	f.startPlaying(t, hlsLadder(), nil)

	f.c.SeekTo(42_000)
	require.Eventually(t, func() bool { return f.eng.Position() == 42_000 }, time.Second, 2*time.Millisecond)
}

func TestSurfaceDetachDoesNotTouchPlayback(t *testing.T) {
	f := newFixture(t, testConfig())
	f.startPlaying(t, hlsLadder(), nil)

	f.c.DetachVideoSurface()

	state, handle := f.gate.Current()
	require.Equal(t, surface.StatePlaceholder, state)
	require.NotNil(t, handle)

	st := f.c.State()
	require.True(t, st.IsPlaying)
	require.Equal(t, types.PlayerStatePlaying, st.State)
	require.True(t, f.eng.Playing())

	// Re-attach releases the placeholder.
	ph := handle.(*fakeHandle)
	f.c.AttachVideoSurface(&fakeHandle{valid: true})
	require.True(t, ph.released.Load())
}

func TestLoadProceedsWithoutSurface(t *testing.T) {
	cfg := testConfig()
	f := newFixture(t, cfg)
	f.c.DetachVideoSurface() // placeholder only, never "ready"

	f.c.SetRenditions("vid-1", hlsLadder(), nil, nil, 600_000)
	require.True(t, f.eng.WaitForLoads(1, 2*time.Second), "load must happen after the surface timeout")
}

func TestResolverFailureDegradesToIdle(t *testing.T) {
	f := newFixture(t, testConfig())
	f.res.MarkUnresolvable("v1080")

	f.c.SetRenditions("vid-1", hlsLadder(), nil, nil, 600_000)

	require.Eventually(t, func() bool {
		st := f.c.State()
		return st.State == types.PlayerStateIdle && st.LastError != nil
	}, 2*time.Second, 2*time.Millisecond)
	require.Equal(t, "v1080", f.c.State().LastError.AffectedContentKey)
	require.Equal(t, 0, f.eng.LoadCount())
}

func TestSwitchQualityPinsManualMode(t *testing.T) {
	f := newFixture(t, testConfig())
	f.startPlaying(t, hlsLadder(), nil)
	f.eng.SetProgress(30_000, 60_000)

	f.c.SwitchQuality(480)
	require.True(t, f.eng.WaitForLoads(2, 2*time.Second))
	f.eng.EmitReady()
	f.waitState(t, types.PlayerStatePlaying)

	src, _ := f.eng.LastLoad()
	require.Equal(t, "v480", src.VideoKey)

	st := f.c.State()
	require.Equal(t, types.QualityModeManual, st.Mode)
	require.Equal(t, 480, st.EffectiveQualityHeight)

	// Position survives the quality switch.
	require.Eventually(t, func() bool { return f.eng.Position() == 30_000 }, time.Second, 2*time.Millisecond)
}

func TestSwitchQualityUnavailableHeightStaysAdaptive(t *testing.T) {
	f := newFixture(t, testConfig())
	f.startPlaying(t, hlsLadder(), nil)

	f.c.SwitchQuality(480)
	require.True(t, f.eng.WaitForLoads(2, 2*time.Second))
	f.eng.EmitReady()
	f.waitState(t, types.PlayerStatePlaying)

	// The pin is abandoned for adaptive selection, which reloads the
	// highest rendition.
	f.c.SwitchQuality(9999)
	require.True(t, f.eng.WaitForLoads(3, 2*time.Second))
	f.eng.EmitReady()
	f.waitState(t, types.PlayerStatePlaying)

	src, _ := f.eng.LastLoad()
	require.Equal(t, "v1080", src.VideoKey)
	require.Equal(t, types.QualityModeAdaptive, f.c.State().Mode)
}

func TestSwitchQualityUnavailableHeightKeepsCurrentLoad(t *testing.T) {
	f := newFixture(t, testConfig())
	f.startPlaying(t, hlsLadder(), nil)

	// Already adaptive and already on the adaptive pick: nothing to reload.
	f.c.SwitchQuality(9999)
	time.Sleep(20 * time.Millisecond)

	require.Equal(t, 1, f.eng.LoadCount())
	st := f.c.State()
	require.Equal(t, types.QualityModeAdaptive, st.Mode)
	require.Equal(t, types.PlayerStatePlaying, st.State)
}

func TestSwitchQualityAutoReturnsToAdaptive(t *testing.T) {
	f := newFixture(t, testConfig())
	f.startPlaying(t, hlsLadder(), nil)

	f.c.SwitchQuality(480)
	require.True(t, f.eng.WaitForLoads(2, 2*time.Second))
	f.eng.EmitReady()
	f.waitState(t, types.PlayerStatePlaying)

	f.c.SwitchQualityAuto()
	require.True(t, f.eng.WaitForLoads(3, 2*time.Second))
	f.eng.EmitReady()
	f.waitState(t, types.PlayerStatePlaying)

	src, _ := f.eng.LastLoad()
	require.Equal(t, "v1080", src.VideoKey)
	require.Equal(t, types.QualityModeAdaptive, f.c.State().Mode)
}

func TestSwitchAudioTrackReloadsWithNewKey(t *testing.T) {
	f := newFixture(t, testConfig())
	audios := []catalog.Rendition{aud("a-en", 192_000), aud("a-de", 128_000)}
	f.startPlaying(t, hlsLadder(), audios)

	src, _ := f.eng.LastLoad()
	require.Equal(t, "a-en", src.AudioKey)

	// Catalog orders audio by bitrate descending: index 1 is a-de.
	f.c.SwitchAudioTrack(1)
	require.True(t, f.eng.WaitForLoads(2, 2*time.Second))

	src, _ = f.eng.LastLoad()
	require.Equal(t, "a-de", src.AudioKey)
	require.Equal(t, "v1080", src.VideoKey)
}

func TestSwitchAudioTrackOutOfRangeIgnored(t *testing.T) {
	f := newFixture(t, testConfig())
	f.startPlaying(t, hlsLadder(), []catalog.Rendition{aud("a-en", 128_000)})

	f.c.SwitchAudioTrack(5)
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 1, f.eng.LoadCount())
}

func TestStallTriggersBandwidthDowngrade(t *testing.T) {
	cfg := testConfig()
	cfg.StallInterval = 5 * time.Millisecond
	cfg.StallSamples = 3
	f := newFixture(t, cfg)

	f.c.SetRenditions("vid-1", hlsLadder(), nil, nil, 600_000)
	require.True(t, f.eng.WaitForLoads(1, 2*time.Second))
	f.eng.SetProgress(45_000, 45_500)
	f.eng.EmitReady()
	f.waitState(t, types.PlayerStatePlaying)

	// Position never advances; the watchdog declares a stall and the
	// controller steps down one rung without condemning 1080.
	require.True(t, f.eng.WaitForLoads(2, 2*time.Second))
	src, _ := f.eng.LastLoad()
	require.Equal(t, "v720", src.VideoKey)

	f.eng.EmitReady()
	f.waitState(t, types.PlayerStatePlaying)
	require.Eventually(t, func() bool { return f.eng.Position() == 45_000 }, time.Second, 2*time.Millisecond)
}

func TestStallInManualModeOnlyReports(t *testing.T) {
	cfg := testConfig()
	cfg.StallInterval = 5 * time.Millisecond
	cfg.StallSamples = 3
	f := newFixture(t, cfg)

	// Keep the playhead moving while the manual pin is established so the
	// watchdog stays quiet until we freeze it.
	var frozen atomic.Bool
	stop := make(chan struct{})
	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		pos := int64(0)
		tk := time.NewTicker(2 * time.Millisecond)
		defer tk.Stop()
		for {
			select {
			case <-stop:
				return
			case <-tk.C:
				if !frozen.Load() {
					pos += 1000
					f.eng.SetProgress(pos, pos+5000)
				}
			}
		}
	}()
	defer func() { close(stop); <-pumpDone }()

	f.startPlaying(t, hlsLadder(), nil)

	f.c.SwitchQuality(720)
	require.True(t, f.eng.WaitForLoads(2, 2*time.Second))
	f.eng.EmitReady()
	f.waitState(t, types.PlayerStatePlaying)
	require.Equal(t, types.QualityModeManual, f.c.State().Mode)

	frozen.Store(true)
	require.Eventually(t, func() bool { return f.c.State().Stalled }, 2*time.Second, 2*time.Millisecond)
	require.Equal(t, 2, f.eng.LoadCount(), "manual pin must not be downgraded on stall")
	require.Equal(t, types.QualityModeManual, f.c.State().Mode)
}

func TestPauseStopsStallWatchdog(t *testing.T) {
	cfg := testConfig()
	cfg.StallInterval = 5 * time.Millisecond
	cfg.StallSamples = 3
	f := newFixture(t, cfg)

	// Keep the playhead moving until the pause has landed so the watchdog
	// stays quiet while playback is actually proceeding.
	var frozen atomic.Bool
	stop := make(chan struct{})
	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		pos := int64(0)
		tk := time.NewTicker(2 * time.Millisecond)
		defer tk.Stop()
		for {
			select {
			case <-stop:
				return
			case <-tk.C:
				if !frozen.Load() {
					pos += 1000
					f.eng.SetProgress(pos, pos+5000)
				}
			}
		}
	}()
	defer func() { close(stop); <-pumpDone }()

	f.startPlaying(t, hlsLadder(), nil)

	f.c.Pause()
	require.Eventually(t, func() bool { return !f.c.State().IsPlaying }, time.Second, 2*time.Millisecond)
	frozen.Store(true)

	// Many sampling intervals pass with a static position; a paused
	// playhead is not a stall.
	time.Sleep(100 * time.Millisecond)
	st := f.c.State()
	require.Equal(t, 1, f.eng.LoadCount(), "paused player must not auto-downgrade")
	require.False(t, st.Stalled)
	require.Equal(t, 1080, st.EffectiveQualityHeight)

	// Resuming rearms the watchdog: with the position still frozen the
	// stall now fires and adaptive playback steps down one rung.
	f.c.Play()
	require.True(t, f.eng.WaitForLoads(2, 2*time.Second))
	src, _ := f.eng.LastLoad()
	require.Equal(t, "v720", src.VideoKey)
}

func TestReleaseShutsDownCleanly(t *testing.T) {
	f := newFixture(t, testConfig())
	f.startPlaying(t, hlsLadder(), nil)

	f.c.Release()
	require.True(t, f.c.WaitReleased(time.Second))
	require.False(t, f.c.Healthy())

	st := f.c.State()
	require.Equal(t, types.PlayerStateShuttingDown, st.State)
	require.False(t, st.IsPlaying)

	state, _ := f.gate.Current()
	require.Equal(t, surface.StateUnattached, state)
}

func TestReleaseWithoutStart(t *testing.T) {
	eng := enginetest.NewFakeEngine()
	res := enginetest.NewFakeResolver()
	gate := surface.NewGate(func() surface.Handle { return &fakeHandle{} })

	c := New(testConfig(), Deps{Engine: eng, Resolver: res, Gate: gate})
	c.Release()
	require.False(t, c.Healthy())
}

func TestSnapshotValidBeforeStart(t *testing.T) {
	eng := enginetest.NewFakeEngine()
	res := enginetest.NewFakeResolver()
	gate := surface.NewGate(func() surface.Handle { return &fakeHandle{} })

	c := New(testConfig(), Deps{Engine: eng, Resolver: res, Gate: gate})
	defer c.Release()

	st := c.State()
	require.Equal(t, types.PlayerStateIdle, st.State)
	require.Equal(t, types.QualityModeAdaptive, st.Mode)

	ch, cancel := c.Subscribe()
	defer cancel()
	require.Equal(t, types.PlayerStateIdle, (<-ch).State)
}

func TestSubscribeDeliversLatestSnapshot(t *testing.T) {
	f := newFixture(t, testConfig())

	ch, cancel := f.c.Subscribe()
	defer cancel()

	// The subscription is primed with the current snapshot.
	first := <-ch
	require.Equal(t, types.PlayerStateIdle, first.State)

	f.startPlaying(t, hlsLadder(), nil)

	require.Eventually(t, func() bool {
		select {
		case st := <-ch:
			return st.State == types.PlayerStatePlaying
		default:
			return false
		}
	}, 2*time.Second, 2*time.Millisecond)
}
