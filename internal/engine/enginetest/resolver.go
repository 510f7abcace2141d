// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package enginetest

import (
	"sync"

	"github.com/ManuGH/abrctl/internal/engine"
)

// FakeResolver resolves rendition keys into synthetic sources. Individual
// keys can be marked unresolvable.
type FakeResolver struct {
	mu          sync.Mutex
	unresolved  map[string]struct{}
	resolveFail int
}

// NewFakeResolver creates a resolver that succeeds for every key.
func NewFakeResolver() *FakeResolver {
	return &FakeResolver{unresolved: make(map[string]struct{})}
}

// MarkUnresolvable makes Resolve fail for the given video key.
func (r *FakeResolver) MarkUnresolvable(videoKey string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unresolved[videoKey] = struct{}{}
}

// FailNext makes the next n Resolve calls fail regardless of key.
func (r *FakeResolver) FailNext(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolveFail = n
}

// Resolve implements engine.SourceResolver.
func (r *FakeResolver) Resolve(videoKey, audioKey, mimeType string, durationHintMs int64) (engine.Source, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.resolveFail > 0 {
		r.resolveFail--
		return engine.Source{}, engine.ErrUnresolvable
	}
	if _, bad := r.unresolved[videoKey]; bad {
		return engine.Source{}, engine.ErrUnresolvable
	}
	return engine.Source{
		URI:            "fake://" + videoKey + "+" + audioKey,
		MimeType:       mimeType,
		VideoKey:       videoKey,
		AudioKey:       audioKey,
		DurationHintMs: durationHintMs,
	}, nil
}

var _ engine.SourceResolver = (*FakeResolver)(nil)
