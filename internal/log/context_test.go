// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package log

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionIDRoundTrip(t *testing.T) {
	ctx := ContextWithSessionID(context.Background(), "abc-123")
	assert.Equal(t, "abc-123", SessionIDFromContext(ctx))

	assert.Empty(t, SessionIDFromContext(context.Background()))
	assert.Empty(t, SessionIDFromContext(nil)) //nolint:staticcheck // nil-tolerance is part of the contract
}

func TestGenerationRoundTrip(t *testing.T) {
	ctx := ContextWithGeneration(context.Background(), 7)
	gen, ok := GenerationFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, uint64(7), gen)

	_, ok = GenerationFromContext(context.Background())
	assert.False(t, ok)
}

func TestWithContextAddsFields(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	ctx := ContextWithSessionID(context.Background(), "sess-9")
	ctx = ContextWithGeneration(ctx, 3)

	annotated := WithContext(ctx, logger)
	annotated.Info().Msg("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "sess-9", entry[FieldSessionID])
	assert.Equal(t, float64(3), entry[FieldGeneration])
}

func TestWithContextNoFieldsReturnsSameLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	annotated := WithContext(context.Background(), logger)
	annotated.Info().Msg("plain")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	_, hasSession := entry[FieldSessionID]
	assert.False(t, hasSession)
}
