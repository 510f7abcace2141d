// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package surface

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHandle struct {
	valid    atomic.Bool
	released atomic.Bool
}

func newFakeHandle() *fakeHandle {
	h := &fakeHandle{}
	h.valid.Store(true)
	return h
}

func (h *fakeHandle) Valid() bool { return h.valid.Load() }
func (h *fakeHandle) Release()    { h.released.Store(true); h.valid.Store(false) }

func newTestGate() (*Gate, *atomic.Int32) {
	var allocs atomic.Int32
	g := NewGate(func() Handle {
		allocs.Add(1)
		return newFakeHandle()
	})
	return g, &allocs
}

func TestAwaitReadySynchronousFastPath(t *testing.T) {
	g, _ := newTestGate()
	g.Attach(newFakeHandle())

	start := time.Now()
	ok := g.AwaitReady(context.Background(), time.Second)
	require.True(t, ok)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestAwaitReadyWakesOnAttach(t *testing.T) {
	g, _ := newTestGate()

	done := make(chan bool, 1)
	go func() {
		done <- g.AwaitReady(context.Background(), 5*time.Second)
	}()

	time.Sleep(20 * time.Millisecond)
	g.Attach(newFakeHandle())

	select {
	case ok := <-done:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("AwaitReady did not wake on attach")
	}
}

func TestAwaitReadyTimeout(t *testing.T) {
	g, _ := newTestGate()

	ok := g.AwaitReady(context.Background(), 30*time.Millisecond)
	assert.False(t, ok)
}

func TestAwaitReadyCanceled(t *testing.T) {
	g, _ := newTestGate()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan bool, 1)
	go func() {
		done <- g.AwaitReady(ctx, 5*time.Second)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("AwaitReady did not observe cancellation")
	}
}

func TestAwaitReadyInvalidHandleIsNotReady(t *testing.T) {
	g, _ := newTestGate()
	h := newFakeHandle()
	h.valid.Store(false)
	g.Attach(h)

	ok := g.AwaitReady(context.Background(), 30*time.Millisecond)
	assert.False(t, ok)
}

func TestDetachInstallsPlaceholder(t *testing.T) {
	g, allocs := newTestGate()
	g.Attach(newFakeHandle())
	g.Detach()

	state, handle := g.Current()
	assert.Equal(t, StatePlaceholder, state)
	require.NotNil(t, handle)
	assert.Equal(t, int32(1), allocs.Load())

	// A placeholder keeps the sink alive but is not "ready".
	ok := g.AwaitReady(context.Background(), 30*time.Millisecond)
	assert.False(t, ok)
}

func TestReattachAfterDetachReleasesPlaceholder(t *testing.T) {
	g, _ := newTestGate()
	g.Attach(newFakeHandle())
	g.Detach()

	_, placeholder := g.Current()
	ph, isFake := placeholder.(*fakeHandle)
	require.True(t, isFake)

	g.Attach(newFakeHandle())
	assert.True(t, ph.released.Load())

	state, _ := g.Current()
	assert.Equal(t, StateAttached, state)
	assert.True(t, g.AwaitReady(context.Background(), time.Second))
}

func TestReleaseDropsSink(t *testing.T) {
	g, _ := newTestGate()
	g.Attach(newFakeHandle())
	g.Detach()
	g.Release()

	state, handle := g.Current()
	assert.Equal(t, StateUnattached, state)
	assert.Nil(t, handle)
}
