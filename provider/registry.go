package provider

import (
	"fmt"
	"sync"
)

// Registry holds the vendor handler implementations, keyed by capability
// and provider name. Which providers are actually tried, and in what
// order, is decided by the Catalog at call time; the registry only says
// what code exists for a given name.
type Registry struct {
	handlers map[string]map[string]Handler
	mu       sync.RWMutex
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]map[string]Handler),
	}
}

// Register adds a vendor handler for a capability. Registering the same
// capability/name pair twice replaces the previous handler.
func (r *Registry) Register(capability, name string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.handlers[capability] == nil {
		r.handlers[capability] = make(map[string]Handler)
	}
	r.handlers[capability][name] = handler
}

// Get retrieves the handler registered for a capability and provider name.
func (r *Registry) Get(capability, name string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handler, exists := r.handlers[capability][name]
	if !exists {
		return nil, fmt.Errorf("no handler registered for capability %q, provider %q", capability, name)
	}
	return handler, nil
}

// HandlersFor returns a copy of the handler map for a capability.
func (r *Registry) HandlersFor(capability string) map[string]Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]Handler, len(r.handlers[capability]))
	for name, h := range r.handlers[capability] {
		out[name] = h
	}
	return out
}

// RegisteredNames returns the provider names registered for a capability.
func (r *Registry) RegisteredNames(capability string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handlers[capability]))
	for name := range r.handlers[capability] {
		names = append(names, name)
	}
	return names
}

// DefaultRegistry is the global registry that vendor subpackages
// register into from their init functions.
var DefaultRegistry = NewRegistry()

// Register adds a handler to the default registry.
func Register(capability, name string, handler Handler) {
	DefaultRegistry.Register(capability, name, handler)
}

// Get retrieves a handler from the default registry.
func Get(capability, name string) (Handler, error) {
	return DefaultRegistry.Get(capability, name)
}
