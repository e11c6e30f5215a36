package transport

import (
	"fmt"
	"sync"
)

// Registry maps transport names to socket factories. The composing
// application owns it and passes it to the strategies it builds.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]SocketFactory
	order     []string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]SocketFactory)}
}

// Register adds a factory under name.
func (r *Registry) Register(name string, f SocketFactory) error {
	if name == "" || f == nil {
		return ErrInvalidName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.factories[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTransport, name)
	}
	r.factories[name] = f
	r.order = append(r.order, name)
	return nil
}

// Lookup returns the factory registered under name.
func (r *Registry) Lookup(name string) (SocketFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[name]
	return f, ok
}

// Names returns registered names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// IsSupported reports whether name is registered and its factory works in
// this environment.
func (r *Registry) IsSupported(name string) bool {
	f, ok := r.Lookup(name)
	return ok && f.IsSupported()
}

// New creates a Transport for name.
func (r *Registry) New(name string, opts Options) (*Transport, error) {
	f, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTransport, name)
	}
	return New(name, f, opts), nil
}
