// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package player

import (
	"context"

	"github.com/google/uuid"

	"github.com/ManuGH/abrctl/internal/catalog"
)

// session is the per-title state. A new title resets the session and bumps
// the generation; events and timers stamped with an older generation are
// dropped, so nothing from a superseded title can touch the new one.
type session struct {
	id             string
	videoID        string
	generation     uint64
	catalog        *catalog.Catalog
	durationHintMs int64

	// ctx is canceled when the session is superseded or the controller
	// releases; it bounds the surface wait and the load task.
	ctx    context.Context
	cancel context.CancelFunc
}

func newSession(parent context.Context, videoID string, generation uint64, cat *catalog.Catalog, durationHintMs int64) *session {
	ctx, cancel := context.WithCancel(parent)
	return &session{
		id:             uuid.NewString(),
		videoID:        videoID,
		generation:     generation,
		catalog:        cat,
		durationHintMs: durationHintMs,
		ctx:            ctx,
		cancel:         cancel,
	}
}
