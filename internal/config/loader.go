// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// FileConfig mirrors Config for YAML decoding. Pointer fields distinguish
// "absent" from "zero" so the file only overrides what it sets.
type FileConfig struct {
	LogLevel       *string        `yaml:"log_level"`
	Listen         *string        `yaml:"listen"`
	TargetHeight   *int           `yaml:"target_height"`
	SurfaceTimeout *time.Duration `yaml:"surface_timeout"`
	StallInterval  *time.Duration `yaml:"stall_interval"`
	StallSamples   *int           `yaml:"stall_samples"`
	ErrorThreshold *int           `yaml:"error_threshold"`
	ReloadBackoff  *time.Duration `yaml:"reload_backoff"`
	ReloadRate     *float64       `yaml:"reload_rate"`
	ReloadBurst    *int           `yaml:"reload_burst"`
	WifiOnly       *bool          `yaml:"wifi_only"`
	SkipSilence    *bool          `yaml:"skip_silence"`
}

// Loader handles configuration loading with precedence ENV > file > defaults.
type Loader struct {
	configPath string
}

// NewLoader creates a new configuration loader. An empty path skips the
// file stage.
func NewLoader(configPath string) *Loader {
	return &Loader{configPath: configPath}
}

// Load resolves the effective configuration and validates it.
func (l *Loader) Load() (Config, error) {
	cfg := Defaults()

	if l.configPath != "" {
		fileCfg, err := l.loadFile(l.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
		mergeFile(&cfg, fileCfg)
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (l *Loader) loadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from operator flag
	if err != nil {
		return nil, err
	}
	var fc FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil {
		if errors.Is(err, io.EOF) {
			return &fc, nil // empty file, nothing to override
		}
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	return &fc, nil
}

func mergeFile(cfg *Config, fc *FileConfig) {
	if fc == nil {
		return
	}
	if fc.LogLevel != nil {
		cfg.LogLevel = *fc.LogLevel
	}
	if fc.Listen != nil {
		cfg.Listen = *fc.Listen
	}
	if fc.TargetHeight != nil {
		cfg.TargetHeight = *fc.TargetHeight
	}
	if fc.SurfaceTimeout != nil {
		cfg.SurfaceTimeout = *fc.SurfaceTimeout
	}
	if fc.StallInterval != nil {
		cfg.StallInterval = *fc.StallInterval
	}
	if fc.StallSamples != nil {
		cfg.StallSamples = *fc.StallSamples
	}
	if fc.ErrorThreshold != nil {
		cfg.ErrorThreshold = *fc.ErrorThreshold
	}
	if fc.ReloadBackoff != nil {
		cfg.ReloadBackoff = *fc.ReloadBackoff
	}
	if fc.ReloadRate != nil {
		cfg.ReloadRate = *fc.ReloadRate
	}
	if fc.ReloadBurst != nil {
		cfg.ReloadBurst = *fc.ReloadBurst
	}
	if fc.WifiOnly != nil {
		cfg.WifiOnly = *fc.WifiOnly
	}
	if fc.SkipSilence != nil {
		cfg.SkipSilence = *fc.SkipSilence
	}
}

func applyEnv(cfg *Config) {
	cfg.LogLevel = ParseString(EnvLogLevel, cfg.LogLevel)
	cfg.Listen = ParseString(EnvListen, cfg.Listen)
	cfg.TargetHeight = ParseInt(EnvTargetHeight, cfg.TargetHeight)
	cfg.SurfaceTimeout = ParseDuration(EnvSurfaceTimeout, cfg.SurfaceTimeout)
	cfg.StallInterval = ParseDuration(EnvStallInterval, cfg.StallInterval)
	cfg.StallSamples = ParseInt(EnvStallSamples, cfg.StallSamples)
	cfg.ErrorThreshold = ParseInt(EnvErrorThreshold, cfg.ErrorThreshold)
	cfg.ReloadBackoff = ParseDuration(EnvReloadBackoff, cfg.ReloadBackoff)
	cfg.ReloadRate = ParseFloat(EnvReloadRate, cfg.ReloadRate)
	cfg.ReloadBurst = ParseInt(EnvReloadBurst, cfg.ReloadBurst)
	cfg.WifiOnly = ParseBool(EnvWifiOnly, cfg.WifiOnly)
	cfg.SkipSilence = ParseBool(EnvSkipSilence, cfg.SkipSilence)
}
