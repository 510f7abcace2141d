// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := NewLoader("").Load()
	require.NoError(t, err)

	assert.Equal(t, Defaults(), cfg)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
target_height: 720
stall_interval: 250ms
error_threshold: 3
wifi_only: true
`)

	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 720, cfg.TargetHeight)
	assert.Equal(t, 250*time.Millisecond, cfg.StallInterval)
	assert.Equal(t, 3, cfg.ErrorThreshold)
	assert.True(t, cfg.WifiOnly)
	// Untouched values keep defaults.
	assert.Equal(t, Defaults().SurfaceTimeout, cfg.SurfaceTimeout)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, "target_height: 720\n")
	t.Setenv(EnvTargetHeight, "480")
	t.Setenv(EnvSurfaceTimeout, "5s")

	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 480, cfg.TargetHeight)
	assert.Equal(t, 5*time.Second, cfg.SurfaceTimeout)
}

func TestLoadUnknownFileKeyRejected(t *testing.T) {
	path := writeConfigFile(t, "target_heigth: 720\n")

	_, err := NewLoader(path).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config file")
}

func TestLoadEmptyFile(t *testing.T) {
	path := writeConfigFile(t, "")

	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)
}

func TestLoadInvalidEnvFallsBack(t *testing.T) {
	t.Setenv(EnvErrorThreshold, "banana")

	cfg, err := NewLoader("").Load()
	require.NoError(t, err)
	assert.Equal(t, Defaults().ErrorThreshold, cfg.ErrorThreshold)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid defaults", func(*Config) {}, ""},
		{"negative target height", func(c *Config) { c.TargetHeight = -1 }, "target height"},
		{"zero stall interval", func(c *Config) { c.StallInterval = 0 }, "stall interval"},
		{"zero stall samples", func(c *Config) { c.StallSamples = 0 }, "stall samples"},
		{"zero error threshold", func(c *Config) { c.ErrorThreshold = 0 }, "error threshold"},
		{"zero surface timeout", func(c *Config) { c.SurfaceTimeout = 0 }, "surface timeout"},
		{"zero reload rate", func(c *Config) { c.ReloadRate = 0 }, "reload rate"},
		{"zero reload burst", func(c *Config) { c.ReloadBurst = 0 }, "reload burst"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}
