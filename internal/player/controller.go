// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package player implements the adaptive playback resilience controller:
// rendition selection, failure classification, recovery, and the single
// control loop that serializes all session state.
package player

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/ManuGH/abrctl/internal/catalog"
	"github.com/ManuGH/abrctl/internal/classify"
	"github.com/ManuGH/abrctl/internal/config"
	"github.com/ManuGH/abrctl/internal/engine"
	"github.com/ManuGH/abrctl/internal/log"
	"github.com/ManuGH/abrctl/internal/metrics"
	"github.com/ManuGH/abrctl/internal/quality"
	"github.com/ManuGH/abrctl/internal/resilience"
	"github.com/ManuGH/abrctl/internal/surface"
	"github.com/ManuGH/abrctl/internal/types"
	"github.com/ManuGH/abrctl/internal/watchdog"
)

// noSeek marks "no pending position restore".
const noSeek = int64(-1)

// Deps are the collaborator handles the controller drives. All of them
// are required.
type Deps struct {
	Engine   engine.Engine
	Resolver engine.SourceResolver
	Gate     *surface.Gate
}

// Controller owns one playback session at a time. All session mutation is
// serialized through its control loop; public methods post commands onto
// the loop and return immediately.
type Controller struct {
	cfg      config.Config
	eng      engine.Engine
	resolver engine.SourceResolver
	gate     *surface.Gate

	quality  *quality.Manager
	governor *resilience.Governor
	dog      *watchdog.Watchdog
	pub      *Publisher

	cmds       chan func()
	done       chan struct{}
	loopCtx    context.Context
	loopCancel context.CancelFunc

	startOnce   sync.Once
	releaseOnce sync.Once

	// Loop-owned state. Never touched outside the control loop.
	state         types.PlayerState
	sess          *session
	currentAudio  *catalog.Rendition
	pendingSeek   int64
	playWhenReady bool
	snap          PlaybackState
	genCounter    uint64

	logger zerolog.Logger
}

// New constructs a controller. Lifecycle is explicit: Start launches the
// control loop, Release tears it down.
func New(cfg config.Config, deps Deps) *Controller {
	c := &Controller{
		cfg:      cfg,
		eng:      deps.Engine,
		resolver: deps.Resolver,
		gate:     deps.Gate,
		quality:  quality.NewManager(),
		governor: resilience.NewGovernor(cfg.ReloadBackoff, rate.Limit(cfg.ReloadRate), cfg.ReloadBurst),
		pub:      NewPublisher(),
		cmds:     make(chan func(), 64),
		done:     make(chan struct{}),

		state:         types.PlayerStateIdle,
		pendingSeek:   noSeek,
		playWhenReady: true,
		logger:        log.WithComponent("player"),
	}
	c.dog = watchdog.New(cfg.StallInterval, cfg.StallSamples, func() watchdog.Sample {
		return watchdog.Sample{
			Position: c.eng.Position(),
			Buffered: c.eng.BufferedPosition(),
		}
	})
	c.snap.State = types.PlayerStateIdle
	c.snap.Mode = types.QualityModeAdaptive
	// Seed the publisher so State and fresh subscriptions observe a valid
	// idle snapshot before the first event.
	c.pub.Publish(c.snap)
	return c
}

// Start launches the control loop. Safe to call once; subsequent calls
// are no-ops.
func (c *Controller) Start(ctx context.Context) {
	c.startOnce.Do(func() {
		c.loopCtx, c.loopCancel = context.WithCancel(ctx)
		go c.run()
	})
}

// Release cancels the watchdog, pending reloads, and the renderer
// attachment, then stops the loop. No events are processed afterwards.
func (c *Controller) Release() {
	c.releaseOnce.Do(func() {
		if c.loopCancel == nil {
			// Never started: there is no loop to drain.
			close(c.done)
			return
		}
		c.loopCancel()
		<-c.done
	})
}

// State returns the latest published snapshot.
func (c *Controller) State() PlaybackState {
	return c.pub.State()
}

// Subscribe returns a last-value-cached state stream.
func (c *Controller) Subscribe() (<-chan PlaybackState, func()) {
	return c.pub.Subscribe()
}

// Healthy reports whether the control loop is still running.
func (c *Controller) Healthy() bool {
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

// QueueDepth reports the number of commands waiting for the loop.
func (c *Controller) QueueDepth() int {
	return len(c.cmds)
}

// SetRenditions loads a new title: the previous session is superseded,
// the failure ledger cleared, and an initial load is scheduled.
func (c *Controller) SetRenditions(videoID string, video, audio, subtitles []catalog.Rendition, durationHintMs int64) {
	c.post(func() { c.doSetRenditions(videoID, video, audio, subtitles, durationHintMs) })
}

// Play requests playback to proceed. The stall watchdog is rearmed when
// an active session resumes.
func (c *Controller) Play() {
	c.post(func() {
		c.playWhenReady = true
		if c.state == types.PlayerStatePlaying {
			c.eng.Play()
			c.snap.IsPlaying = true
			c.dog.Start(c.loopCtx, c.sess.generation)
			c.publish()
		}
	})
}

// Pause suspends playback without touching the session. A paused position
// is legitimately static, so the watchdog stops with it.
func (c *Controller) Pause() {
	c.post(func() {
		c.playWhenReady = false
		c.dog.Stop()
		c.eng.Pause()
		c.snap.IsPlaying = false
		c.publish()
	})
}

// SeekTo moves the playhead.
func (c *Controller) SeekTo(ms int64) {
	c.post(func() {
		if c.state.IsActive() {
			c.eng.SeekTo(ms)
		}
	})
}

// SwitchQuality pins playback to the given height (manual mode). An
// unavailable height falls back to adaptive selection.
func (c *Controller) SwitchQuality(height int) {
	c.post(func() { c.doSwitchQuality(height) })
}

// SwitchQualityAuto re-enables adaptive selection.
func (c *Controller) SwitchQualityAuto() {
	c.post(func() { c.doSwitchQualityAuto() })
}

// SwitchAudioTrack selects the audio rendition at the given catalog index.
func (c *Controller) SwitchAudioTrack(index int) {
	c.post(func() { c.doSwitchAudioTrack(index) })
}

// AttachVideoSurface hands the renderer resource to the gate. Called from
// the UI thread; the gate is safe for concurrent use.
func (c *Controller) AttachVideoSurface(h surface.Handle) {
	c.gate.Attach(h)
}

// DetachVideoSurface swaps the renderer to a placeholder. Playback state
// is unaffected by the detach itself.
func (c *Controller) DetachVideoSurface() {
	c.gate.Detach()
}

func (c *Controller) post(fn func()) bool {
	select {
	case c.cmds <- fn:
		return true
	case <-c.done:
		return false
	}
}

func (c *Controller) run() {
	defer close(c.done)
	defer c.shutdown()

	for {
		select {
		case <-c.loopCtx.Done():
			return
		case fn := <-c.cmds:
			fn()
		case ev := <-c.eng.Events():
			c.handleEngineEvent(ev)
		case st := <-c.dog.Signals():
			c.handleStall(st)
		}
	}
}

// shutdown is the terminal cleanup, run exactly once when the loop exits.
func (c *Controller) shutdown() {
	c.dog.Stop()
	c.governor.Cancel()
	if c.sess != nil {
		c.sess.cancel()
	}
	c.eng.Stop()
	c.gate.Release()

	c.state = types.PlayerStateShuttingDown
	c.snap.State = c.state
	c.snap.IsPlaying = false
	c.publish()
	c.logger.Info().
		Str(log.FieldEvent, "player.released").
		Msg("controller released")
}

func (c *Controller) doSetRenditions(videoID string, video, audio, subtitles []catalog.Rendition, durationHintMs int64) {
	if c.sess != nil {
		c.sess.cancel()
	}
	c.dog.Stop()
	c.eng.Stop()

	c.genCounter++
	cat := catalog.New(video, audio, subtitles)
	c.sess = newSession(c.loopCtx, videoID, c.genCounter, cat, durationHintMs)
	c.governor.Advance(c.sess.generation)
	c.quality.Reset(cat.Videos())
	c.currentAudio = nil
	c.pendingSeek = noSeek

	c.snap = PlaybackState{
		SessionID:  c.sess.id,
		VideoID:    videoID,
		Generation: c.sess.generation,
		State:      types.PlayerStateIdle,
		Mode:       c.quality.Mode(),
	}
	c.state = types.PlayerStateIdle

	sessionLogger := log.WithContext(
		log.ContextWithGeneration(log.ContextWithSessionID(context.Background(), c.sess.id), c.sess.generation),
		log.WithComponent("player"),
	)
	c.logger = sessionLogger
	c.logger.Info().
		Str(log.FieldEvent, "session.reset").
		Str(log.FieldVideoID, videoID).
		Int("video_renditions", len(cat.Videos())).
		Int("audio_renditions", len(cat.Audios())).
		Msg("new playback session")

	if audios := cat.AudioCandidates(c.quality.IsFailed); len(audios) > 0 {
		a := audios[0]
		c.currentAudio = &a
	}

	pick, ok := cat.InitialPick(c.targetHeight(), c.quality.IsFailed)
	if !ok {
		c.logger.Warn().
			Str(log.FieldEvent, "session.no_renditions").
			Msg("no playable video rendition")
		c.publish()
		return
	}
	c.beginLoad(pick, noSeek)
}

func (c *Controller) targetHeight() int {
	if c.quality.Mode() == types.QualityModeManual {
		return c.quality.PinnedHeight()
	}
	return c.cfg.TargetHeight
}

func (c *Controller) doSwitchQuality(height int) {
	if c.sess == nil || c.state.IsTerminal() {
		return
	}
	r, err := c.quality.SwitchToManual(height)
	if errors.Is(err, quality.ErrHeightUnavailable) {
		c.logger.Warn().
			Str(log.FieldEvent, "quality.height_unavailable").
			Int(log.FieldHeight, height).
			Msg("requested height unavailable, staying adaptive")
		fallback, ok := c.quality.SwitchToAdaptive()
		c.snap.Mode = c.quality.Mode()
		if !ok {
			c.publish()
			return
		}
		if cur, has := c.quality.Current(); has && cur.ContentKey == fallback.ContentKey {
			// Already playing the adaptive choice; no reason to interrupt.
			c.publish()
			return
		}
		c.reloadAt(fallback, c.eng.Position(), true)
		return
	}
	c.snap.Mode = c.quality.Mode()
	c.reloadAt(r, c.eng.Position(), true)
}

func (c *Controller) doSwitchQualityAuto() {
	if c.sess == nil || c.state.IsTerminal() {
		return
	}
	r, ok := c.quality.SwitchToAdaptive()
	c.snap.Mode = c.quality.Mode()
	if !ok {
		c.publish()
		return
	}
	if cur, has := c.quality.Current(); has && cur.ContentKey == r.ContentKey {
		c.publish()
		return
	}
	c.reloadAt(r, c.eng.Position(), true)
}

func (c *Controller) doSwitchAudioTrack(index int) {
	if c.sess == nil || c.state.IsTerminal() {
		return
	}
	audios := c.sess.catalog.Audios()
	if index < 0 || index >= len(audios) {
		c.logger.Warn().
			Str(log.FieldEvent, "audio.index_out_of_range").
			Int("index", index).
			Msg("ignoring audio track switch")
		return
	}
	a := audios[index]
	c.currentAudio = &a
	if cur, ok := c.quality.Current(); ok {
		c.reloadAt(cur, c.eng.Position(), true)
	}
}

// beginLoad makes the given rendition current and starts the asynchronous
// load task. resumePos is restored after prepare; noSeek starts from zero.
func (c *Controller) beginLoad(video catalog.Rendition, resumePos int64) {
	c.quality.SetCurrent(video)
	c.pendingSeek = resumePos
	c.state = types.PlayerStateLoading
	c.snap.State = c.state
	c.snap.IsPrepared = false
	c.snap.IsBuffering = true
	c.snap.Stalled = false
	c.snap.EffectiveQualityHeight = video.Height
	c.publish()

	c.eng.Stop()

	gen := c.sess.generation
	sessCtx := c.sess.ctx
	audioKey := ""
	if !video.MuxedAudio && c.currentAudio != nil {
		audioKey = c.currentAudio.ContentKey
	}
	durationHint := c.sess.durationHintMs

	c.logger.Info().
		Str(log.FieldEvent, "load.begin").
		Str(log.FieldContentKey, video.ContentKey).
		Int(log.FieldHeight, video.Height).
		Int64(log.FieldPositionMs, resumePos).
		Msg("loading rendition")

	go c.loadTask(sessCtx, gen, video, audioKey, durationHint)
}

// loadTask runs off the loop: it waits for the renderer gate (best
// effort), resolves the source, and hands it to the engine. Results come
// back as engine events or posted commands.
func (c *Controller) loadTask(ctx context.Context, gen uint64, video catalog.Rendition, audioKey string, durationHint int64) {
	logger := log.WithComponent("player")
	// A missing surface must never starve prefetch: load proceeds after
	// the timeout either way.
	ready := c.gate.AwaitReady(ctx, c.cfg.SurfaceTimeout)
	if !ready {
		logger.Debug().
			Str(log.FieldEvent, "load.surface_best_effort").
			Uint64(log.FieldGeneration, gen).
			Msg("surface not ready, loading anyway")
	}
	if ctx.Err() != nil {
		return // session superseded mid-wait
	}

	src, err := c.resolver.Resolve(video.ContentKey, audioKey, video.MimeType, durationHint)
	if err != nil {
		c.post(func() { c.handleResolveFailure(gen, video, err) })
		return
	}
	src.Generation = gen

	if err := c.eng.Load(ctx, src); err != nil {
		c.post(func() { c.handleResolveFailure(gen, video, err) })
	}
}

// handleResolveFailure degrades the attempt instead of aborting: the
// session stays alive and a later operation may retry.
func (c *Controller) handleResolveFailure(gen uint64, video catalog.Rendition, err error) {
	if c.sess == nil || gen != c.sess.generation || c.state.IsTerminal() {
		return
	}
	c.logger.Warn().
		Err(err).
		Str(log.FieldEvent, "load.unresolvable").
		Str(log.FieldContentKey, video.ContentKey).
		Msg("source resolution failed, degrading attempt")

	c.state = types.PlayerStateIdle
	c.snap.State = c.state
	c.snap.IsBuffering = false
	c.snap.LastError = &classify.ErrorInfo{
		Category:           classify.CategoryUnclassified,
		Message:            err.Error(),
		AffectedContentKey: video.ContentKey,
	}
	c.publish()
}

func (c *Controller) handleEngineEvent(ev engine.Event) {
	if c.state.IsTerminal() {
		return
	}
	if c.sess == nil || ev.EventGeneration() != c.sess.generation {
		metrics.RecordStaleEventDropped()
		return
	}

	switch e := ev.(type) {
	case engine.StateChanged:
		c.handleStateChanged(e.State)
	case engine.ErrorEvent:
		c.handleEngineError(e)
	case engine.FirstFrame:
		c.logger.Debug().
			Str(log.FieldEvent, "engine.first_frame").
			Msg("first frame rendered")
	}
}

func (c *Controller) handleStateChanged(s engine.State) {
	switch s {
	case engine.StateReady:
		if c.state == types.PlayerStateLoading || c.state == types.PlayerStateRecovering {
			if c.pendingSeek > 0 {
				c.eng.SeekTo(c.pendingSeek)
			}
			c.pendingSeek = noSeek
			if c.playWhenReady {
				c.eng.Play()
			}
			c.setState(types.PlayerStatePlaying)
			c.snap.IsPrepared = true
			c.snap.IsPlaying = c.playWhenReady
			c.dog.Start(c.loopCtx, c.sess.generation)
		}
		c.snap.IsBuffering = false
		c.snap.Stalled = false
		c.updateBufferedFraction()
		c.publish()

	case engine.StateBuffering:
		c.snap.IsBuffering = true
		c.updateBufferedFraction()
		c.publish()

	case engine.StateEnded:
		c.dog.Stop()
		c.setState(types.PlayerStateIdle)
		c.snap.IsPlaying = false
		c.snap.IsBuffering = false
		c.snap.HasEnded = true
		c.publish()

	case engine.StateIdle:
		// Expected during reloads; the loop drives the next transition.
	}
}

func (c *Controller) handleStall(st watchdog.Stall) {
	if c.sess == nil || st.Generation != c.sess.generation || c.state != types.PlayerStatePlaying {
		return
	}
	if !c.playWhenReady {
		// A signal raised just before the pause stopped the watchdog may
		// still be queued; a paused playhead is not a stall.
		return
	}

	if c.quality.Mode() == types.QualityModeManual {
		// A manual pin is a user decision: report the stall, change nothing.
		c.snap.Stalled = true
		c.publish()
		return
	}

	r, err := c.quality.DowngradeForBandwidth()
	if err != nil {
		c.snap.Stalled = true
		c.publish()
		c.logger.Warn().
			Err(err).
			Str(log.FieldEvent, "stall.no_lower_rendition").
			Msg("stalled with no lower rendition available")
		return
	}

	metrics.RecordDowngrade("bandwidth")
	c.logger.Info().
		Str(log.FieldEvent, "stall.downgrade").
		Str(log.FieldContentKey, r.ContentKey).
		Int(log.FieldHeight, r.Height).
		Msg("stall detected, stepping down one rendition")

	// Leave Playing before the reload fires so a queued second stall
	// signal cannot double-downgrade.
	c.dog.Stop()
	c.setState(types.PlayerStateLoading)
	c.publish()
	c.reloadAt(r, st.Position, true)
}

// reloadAt schedules a reload through the governor. The position was
// captured by the caller before any stop.
func (c *Controller) reloadAt(video catalog.Rendition, resumePos int64, immediate bool) {
	gen := c.sess.generation
	scheduled := c.governor.Schedule(gen, immediate, func() {
		c.post(func() {
			if c.sess == nil || gen != c.sess.generation || c.state.IsTerminal() {
				return
			}
			c.beginLoad(video, resumePos)
		})
	})
	if !scheduled {
		c.logger.Debug().
			Str(log.FieldEvent, "reload.stale").
			Uint64(log.FieldGeneration, gen).
			Msg("reload request superseded")
	}
}

func (c *Controller) setState(s types.PlayerState) {
	if c.state == s {
		return
	}
	c.logger.Debug().
		Str(log.FieldEvent, "player.state").
		Str(log.FieldOldState, string(c.state)).
		Str(log.FieldNewState, string(s)).
		Msg("state transition")
	c.state = s
	c.snap.State = s
	metrics.SetPlayerState(string(s))
}

func (c *Controller) updateBufferedFraction() {
	if d := c.eng.Duration(); d > 0 {
		f := float64(c.eng.BufferedPosition()) / float64(d)
		if f < 0 {
			f = 0
		}
		if f > 1 {
			f = 1
		}
		c.snap.BufferedFraction = f
	}
}

func (c *Controller) publish() {
	c.snap.Mode = c.quality.Mode()
	c.pub.Publish(c.snap)
}

// WaitReleased blocks until the control loop has exited or the timeout
// elapses.
func (c *Controller) WaitReleased(timeout time.Duration) bool {
	select {
	case <-c.done:
		return true
	case <-time.After(timeout):
		return false
	}
}
