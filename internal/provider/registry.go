package provider

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds the configured providers by name. The cache-aside
// reader and scheduler resolve providers through it and depend only on
// the Provider interface.
type Registry struct {
	defaultName string

	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates a registry whose Get falls back to defaultName
// when no provider is requested.
func NewRegistry(defaultName string) *Registry {
	return &Registry{
		defaultName: defaultName,
		providers:   make(map[string]Provider),
	}
}

// Register adds a provider under its own name.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Get resolves a provider by name, or the default when name is empty.
func (r *Registry) Get(name string) (Provider, error) {
	if name == "" {
		name = r.defaultName
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("provider %q not available (have: %v)", name, r.names())
	}
	return p, nil
}

// names must be called with the lock held.
func (r *Registry) names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
