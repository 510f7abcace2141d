// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"os"
	"strconv"
	"time"
)

// ParseString reads a string from an environment variable or returns the
// default. Empty values fall back to the default.
func ParseString(key, defaultValue string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		logEnvChoice(key, v, "environment")
		return v
	}
	logEnvChoice(key, defaultValue, "default")
	return defaultValue
}

// ParseInt reads an integer from an environment variable or returns the
// default. Invalid values fall back to the default with a warning.
func ParseInt(key string, defaultValue int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			logEnvChoice(key, v, "environment")
			return i
		}
		logEnvInvalid(key, v)
		return defaultValue
	}
	logEnvChoice(key, strconv.Itoa(defaultValue), "default")
	return defaultValue
}

// ParseBool reads a boolean ("true"/"false"/"1"/"0") from an environment
// variable or returns the default.
func ParseBool(key string, defaultValue bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			logEnvChoice(key, v, "environment")
			return b
		}
		logEnvInvalid(key, v)
		return defaultValue
	}
	logEnvChoice(key, strconv.FormatBool(defaultValue), "default")
	return defaultValue
}

// ParseFloat reads a float from an environment variable or returns the default.
func ParseFloat(key string, defaultValue float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			logEnvChoice(key, v, "environment")
			return f
		}
		logEnvInvalid(key, v)
		return defaultValue
	}
	logEnvChoice(key, strconv.FormatFloat(defaultValue, 'g', -1, 64), "default")
	return defaultValue
}

// ParseDuration reads a Go duration (e.g. "500ms") from an environment
// variable or returns the default.
func ParseDuration(key string, defaultValue time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			logEnvChoice(key, v, "environment")
			return d
		}
		logEnvInvalid(key, v)
		return defaultValue
	}
	logEnvChoice(key, defaultValue.String(), "default")
	return defaultValue
}
