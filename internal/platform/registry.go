package platform

import (
	"fmt"
	"strings"
	"sync"
)

// Registry holds all registered platform adapters. It must be created via
// NewRegistry and passed explicitly to components that need it.
type Registry struct {
	mu       sync.RWMutex
	adapters map[Type]Adapter
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters: map[Type]Adapter{},
	}
}

// Register adds an adapter to the registry.
func (r *Registry) Register(adapter Adapter) error {
	if adapter == nil {
		return fmt.Errorf("adapter is nil")
	}
	pt := normalizeType(adapter.Type().String())
	if pt == "" {
		return fmt.Errorf("platform type is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[pt]; exists {
		return fmt.Errorf("platform type already registered: %s", pt)
	}
	r.adapters[pt] = adapter
	return nil
}

// MustRegister calls Register and panics on error.
func (r *Registry) MustRegister(adapter Adapter) {
	if err := r.Register(adapter); err != nil {
		panic(err)
	}
}

// Get returns the adapter for the given platform type.
func (r *Registry) Get(platformType Type) (Adapter, bool) {
	pt := normalizeType(platformType.String())
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[pt]
	return adapter, ok
}

// Types lists the registered platform types.
func (r *Registry) Types() []Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]Type, 0, len(r.adapters))
	for pt := range r.adapters {
		types = append(types, pt)
	}
	return types
}

func normalizeType(raw string) Type {
	return Type(strings.ToLower(strings.TrimSpace(raw)))
}
