// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Command abrsim runs the playback resilience controller against a
// scripted fake engine: an end-to-end soak of the recovery paths with
// the full HTTP observability surface.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/abrctl/internal/config"
	"github.com/ManuGH/abrctl/internal/engine/enginetest"
	"github.com/ManuGH/abrctl/internal/health"
	abrlog "github.com/ManuGH/abrctl/internal/log"
	"github.com/ManuGH/abrctl/internal/player"
	"github.com/ManuGH/abrctl/internal/surface"
)

var (
	version   = "v0.3.0"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	// Configure logger with safe defaults until config is loaded.
	abrlog.Configure(abrlog.Config{
		Level:   "info",
		Service: "abrctl",
		Version: version,
	})
	logger := abrlog.WithComponent("abrsim")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration with precedence: ENV > File > Defaults.
	loader := config.NewLoader(*configPath)
	cfg, err := loader.Load()
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "config.load_failed").
			Str("config_path", *configPath).
			Msg("failed to load configuration")
	}

	// Re-configure logger with the loaded configuration.
	abrlog.Reconfigure(abrlog.Config{
		Level:   cfg.LogLevel,
		Service: "abrctl",
		Version: version,
	})

	if *configPath != "" {
		logger.Info().
			Str("event", "config.loaded").
			Str("source", "file").
			Str("path", *configPath).
			Msg("loaded configuration from file")
	} else {
		logger.Info().
			Str("event", "config.loaded").
			Str("source", "env+defaults").
			Msg("loaded configuration from environment and defaults")
	}

	logger.Info().
		Str("event", "startup").
		Str("version", version).
		Str("commit", commit).
		Str("build_date", buildDate).
		Str("addr", cfg.Listen).
		Msg("starting abrsim")

	// Log key configuration
	logger.Info().Msgf("→ Target height: %d (0 = highest available)", cfg.TargetHeight)
	logger.Info().Msgf("→ Error threshold: %d, reload backoff: %s", cfg.ErrorThreshold, cfg.ReloadBackoff)
	logger.Info().Msgf("→ Stall watchdog: %s interval, %d samples", cfg.StallInterval, cfg.StallSamples)
	logger.Info().Msgf("→ Surface timeout: %s", cfg.SurfaceTimeout)
	logger.Info().Msgf("→ Preferences: wifi_only=%v skip_silence=%v", cfg.WifiOnly, cfg.SkipSilence)

	// Wire the controller against the scriptable fake engine.
	eng := enginetest.NewFakeEngine()
	resolver := enginetest.NewFakeResolver()
	gate := surface.NewGate(func() surface.Handle { return simHandle{} })
	gate.Attach(simHandle{})

	ctrl := player.New(cfg, player.Deps{Engine: eng, Resolver: resolver, Gate: gate})
	ctrl.Start(ctx)

	hm := health.NewManager(version)
	hm.RegisterChecker(health.NewControllerChecker(ctrl, 32))
	hm.RegisterChecker(health.NewSurfaceChecker(gate))

	router := newRouter(ctrl, hm)
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().
			Str("event", "http.listen").
			Str("addr", cfg.Listen).
			Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return runScenario(gctx, ctrl, eng)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		ctrl.Release()
		logger.Fatal().
			Err(err).
			Str("event", "abrsim.failed").
			Msg("simulator failed")
	}

	ctrl.Release()
	logger.Info().Msg("abrsim exiting")
}

// simHandle is a trivially valid renderer sink for the simulator.
type simHandle struct{}

func (simHandle) Valid() bool { return true }
func (simHandle) Release()    {}

func newRouter(ctrl *player.Controller, hm *health.Manager) *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(chimw.RequestID)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", hm.ServeHealth)
	r.Get("/readyz", hm.ServeReady)

	r.Get("/api/state", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(ctrl.State()); err != nil {
			apiLogger := abrlog.WithComponentFromContext(req.Context(), "api")
			apiLogger.Error().Err(err).
				Str("event", "api.state.encode_error").
				Msg("failed to encode state snapshot")
		}
	})

	return r
}
