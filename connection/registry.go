package connection

import (
	"slices"
	"sync"

	"github.com/samber/lo"
)

// Factory creates the typed object for a freshly created remote object.
//
// The owner is already attached to its parent but not yet registered, so the
// factory must not send calls. Referenced objects from the initializer can be
// resolved with owner.Connection().Object.
type Factory func(owner *ChannelOwner) (Object, error)

// Registry maps remote object types to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// DefaultRegistry is used by connections that do not specify a registry.
var DefaultRegistry = NewRegistry()

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register sets the factory for a type, replacing any previous one.
func (r *Registry) Register(typ string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[typ] = factory
}

// Lookup returns the factory for a type.
func (r *Registry) Lookup(typ string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[typ]
	return f, ok
}

// Types returns the registered types in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := lo.Keys(r.factories)
	slices.Sort(types)
	return types
}

// Clone returns a copy that can be extended without affecting r.
func (r *Registry) Clone() *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return &Registry{
		factories: lo.Assign(r.factories),
	}
}
