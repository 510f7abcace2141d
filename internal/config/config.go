// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package config loads playback controller configuration with the
// precedence ENV > file > defaults.
package config

import (
	"fmt"
	"time"

	"github.com/ManuGH/abrctl/internal/log"
)

// Environment variable keys.
const (
	EnvLogLevel       = "ABRCTL_LOG_LEVEL"
	EnvListen         = "ABRCTL_LISTEN"
	EnvTargetHeight   = "ABRCTL_TARGET_HEIGHT"
	EnvSurfaceTimeout = "ABRCTL_SURFACE_TIMEOUT"
	EnvStallInterval  = "ABRCTL_STALL_INTERVAL"
	EnvStallSamples   = "ABRCTL_STALL_SAMPLES"
	EnvErrorThreshold = "ABRCTL_ERROR_THRESHOLD"
	EnvReloadBackoff  = "ABRCTL_RELOAD_BACKOFF"
	EnvReloadRate     = "ABRCTL_RELOAD_RATE"
	EnvReloadBurst    = "ABRCTL_RELOAD_BURST"
	EnvWifiOnly       = "ABRCTL_WIFI_ONLY"
	EnvSkipSilence    = "ABRCTL_SKIP_SILENCE"
)

// Config holds all tunables of the playback controller and simulator.
type Config struct {
	LogLevel string
	Listen   string

	// TargetHeight is the preferred initial video height; 0 means highest.
	TargetHeight int

	// SurfaceTimeout bounds how long a load waits for the renderer surface
	// before proceeding best-effort.
	SurfaceTimeout time.Duration

	// StallInterval is the watchdog sampling cadence; StallSamples is the
	// number of consecutive static position samples that declare a stall.
	StallInterval time.Duration
	StallSamples  int

	// ErrorThreshold is the per-rendition consecutive error budget before
	// the adaptive path marks the rendition failed and downgrades.
	ErrorThreshold int

	// ReloadBackoff delays recovery reloads after transient faults.
	// ReloadRate/ReloadBurst cap the sustained reload frequency.
	ReloadBackoff time.Duration
	ReloadRate    float64
	ReloadBurst   int

	WifiOnly    bool
	SkipSilence bool
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		LogLevel:       "info",
		Listen:         ":8099",
		TargetHeight:   0,
		SurfaceTimeout: 2 * time.Second,
		StallInterval:  500 * time.Millisecond,
		StallSamples:   2,
		ErrorThreshold: 2,
		ReloadBackoff:  time.Second,
		ReloadRate:     2,
		ReloadBurst:    3,
	}
}

// Validate rejects configurations the controller cannot run with.
func (c Config) Validate() error {
	if c.TargetHeight < 0 {
		return fmt.Errorf("target height must not be negative, got %d", c.TargetHeight)
	}
	if c.SurfaceTimeout <= 0 {
		return fmt.Errorf("surface timeout must be positive, got %s", c.SurfaceTimeout)
	}
	if c.StallInterval <= 0 {
		return fmt.Errorf("stall interval must be positive, got %s", c.StallInterval)
	}
	if c.StallSamples < 1 {
		return fmt.Errorf("stall samples must be at least 1, got %d", c.StallSamples)
	}
	if c.ErrorThreshold < 1 {
		return fmt.Errorf("error threshold must be at least 1, got %d", c.ErrorThreshold)
	}
	if c.ReloadBackoff < 0 {
		return fmt.Errorf("reload backoff must not be negative, got %s", c.ReloadBackoff)
	}
	if c.ReloadRate <= 0 {
		return fmt.Errorf("reload rate must be positive, got %g", c.ReloadRate)
	}
	if c.ReloadBurst < 1 {
		return fmt.Errorf("reload burst must be at least 1, got %d", c.ReloadBurst)
	}
	return nil
}

func logEnvChoice(key, value, source string) {
	logger := log.WithComponent("config")
	logger.Debug().
		Str("key", key).
		Str("value", value).
		Str("source", source).
		Msg("configuration value resolved")
}

func logEnvInvalid(key, value string) {
	logger := log.WithComponent("config")
	logger.Warn().
		Str("key", key).
		Str("value", value).
		Msg("invalid value in environment variable, using default")
}
