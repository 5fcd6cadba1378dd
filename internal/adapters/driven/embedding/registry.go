// Package embedding wires the interchangeable embedding backends behind
// a closed-enum registry.
package embedding

import (
	"sync"

	"github.com/parcelly/kbrag/internal/core/domain"
	"github.com/parcelly/kbrag/internal/core/ports/driven"
)

// Ensure Registry implements the resolver port.
var _ driven.EmbeddingResolver = (*Registry)(nil)

// Factory lazily constructs a backend. Construction errors (typically a
// missing credential) surface at the first operation that actually
// needs the backend, so an unconfigured remote mode does not prevent
// startup with a different default.
type Factory func() (driven.EmbeddingService, error)

// Registry maps embed modes to backends.
type Registry struct {
	mu          sync.Mutex
	factories   map[domain.EmbedMode]Factory
	services    map[domain.EmbedMode]driven.EmbeddingService
	defaultMode domain.EmbedMode
}

// NewRegistry creates a registry with the given process-wide default.
func NewRegistry(defaultMode domain.EmbedMode) *Registry {
	return &Registry{
		factories:   make(map[domain.EmbedMode]Factory),
		services:    make(map[domain.EmbedMode]driven.EmbeddingService),
		defaultMode: defaultMode,
	}
}

// Register binds a mode to a backend factory.
func (r *Registry) Register(mode domain.EmbedMode, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[mode] = factory
}

// DefaultMode returns the process-wide default mode.
func (r *Registry) DefaultMode() domain.EmbedMode { return r.defaultMode }

// Resolve returns the backend for mode, constructing it on first use.
// The zero mode resolves to the default; an unregistered mode is a
// configuration error.
func (r *Registry) Resolve(mode domain.EmbedMode) (driven.EmbeddingService, error) {
	if mode == "" {
		mode = r.defaultMode
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if svc, ok := r.services[mode]; ok {
		return svc, nil
	}
	factory, ok := r.factories[mode]
	if !ok {
		return nil, &domain.ConfigError{
			Field:  "embed mode",
			Reason: "no backend registered for mode " + string(mode),
		}
	}
	svc, err := factory()
	if err != nil {
		return nil, err
	}
	r.services[mode] = svc
	return svc, nil
}
