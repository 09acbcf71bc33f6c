package ai

import (
	"fmt"
	"sync"
)

// Factory builds a Completer for one provider. Construction is where
// configuration errors (such as a missing credential) are raised, so a
// misconfigured provider fails the moment it is selected, before any query.
type Factory func() (Completer, error)

// Registry maps the closed set of provider ids to backend factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[ProviderID]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[ProviderID]Factory)}
}

func (r *Registry) Register(id ProviderID, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[id] = f
}

// New constructs the backend for the given provider id.
func (r *Registry) New(id ProviderID) (Completer, error) {
	r.mu.RLock()
	f, ok := r.factories[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, id)
	}
	return f()
}
