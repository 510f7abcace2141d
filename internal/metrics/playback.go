// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package metrics exposes Prometheus instrumentation for the playback
// controller. Label values are normalized through allowlists so that
// unexpected inputs cannot explode cardinality.
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	errorClassifiedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "abrctl_error_classified_total",
		Help: "Total engine errors by classified category",
	}, []string{"category"})

	recoveryActionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "abrctl_recovery_action_total",
		Help: "Total recovery decisions by resulting action",
	}, []string{"action"})

	downgradeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "abrctl_downgrade_total",
		Help: "Total rendition downgrades by trigger",
	}, []string{"trigger"})

	stallDetectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "abrctl_stall_detected_total",
		Help: "Total stalls declared by the watchdog",
	})

	surfaceWaitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "abrctl_surface_wait_total",
		Help: "Total renderer surface readiness waits by outcome",
	}, []string{"outcome"})

	staleEventDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "abrctl_stale_event_dropped_total",
		Help: "Total engine events dropped because their session generation was superseded",
	})

	reloadSuppressedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "abrctl_reload_suppressed_total",
		Help: "Total reload attempts suppressed by the reload governor",
	}, []string{"reason"})

	playerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "abrctl_player_state",
		Help: "Current controller state (1 for the active state, 0 otherwise)",
	}, []string{"state"})
)

// RecordErrorClassified records one classified engine error.
func RecordErrorClassified(category string) {
	errorClassifiedTotal.WithLabelValues(normalizeCategoryLabel(category)).Inc()
}

// RecordRecoveryAction records one recovery decision outcome.
func RecordRecoveryAction(action string) {
	recoveryActionTotal.WithLabelValues(normalizeActionLabel(action)).Inc()
}

// RecordDowngrade records one rendition downgrade.
func RecordDowngrade(trigger string) {
	downgradeTotal.WithLabelValues(normalizeTriggerLabel(trigger)).Inc()
}

// RecordStallDetected records one watchdog stall declaration.
func RecordStallDetected() {
	stallDetectedTotal.Inc()
}

// RecordSurfaceWait records one renderer gate wait outcome.
func RecordSurfaceWait(outcome string) {
	surfaceWaitTotal.WithLabelValues(normalizeOutcomeLabel(outcome)).Inc()
}

// RecordStaleEventDropped records one dropped stale-generation event.
func RecordStaleEventDropped() {
	staleEventDroppedTotal.Inc()
}

// RecordReloadSuppressed records one governor-suppressed reload.
func RecordReloadSuppressed(reason string) {
	reloadSuppressedTotal.WithLabelValues(normalizeSuppressReasonLabel(reason)).Inc()
}

// SetPlayerState marks the given state as active and all others inactive.
func SetPlayerState(state string) {
	for _, s := range []string{"idle", "loading", "playing", "recovering", "shutting_down"} {
		v := 0.0
		if s == state {
			v = 1.0
		}
		playerState.WithLabelValues(s).Set(v)
	}
}

func normalizeCategoryLabel(category string) string {
	switch strings.ToLower(strings.TrimSpace(category)) {
	case "live_edge_lag", "format_incompatible", "stream_corruption",
		"transient_network", "decoder_failure", "drm_failure", "unclassified":
		return strings.ToLower(strings.TrimSpace(category))
	default:
		return "unknown"
	}
}

func normalizeActionLabel(action string) string {
	switch strings.ToLower(strings.TrimSpace(action)) {
	case "retry_same", "downgrade", "audio_switch", "seek_live", "fatal":
		return strings.ToLower(strings.TrimSpace(action))
	default:
		return "unknown"
	}
}

func normalizeTriggerLabel(trigger string) string {
	switch strings.ToLower(strings.TrimSpace(trigger)) {
	case "error", "bandwidth":
		return strings.ToLower(strings.TrimSpace(trigger))
	default:
		return "unknown"
	}
}

func normalizeOutcomeLabel(outcome string) string {
	switch strings.ToLower(strings.TrimSpace(outcome)) {
	case "ready", "timeout", "canceled":
		return strings.ToLower(strings.TrimSpace(outcome))
	default:
		return "unknown"
	}
}

func normalizeSuppressReasonLabel(reason string) string {
	switch strings.ToLower(strings.TrimSpace(reason)) {
	case "stale_generation", "rate_limited", "canceled":
		return strings.ToLower(strings.TrimSpace(reason))
	default:
		return "unknown"
	}
}
