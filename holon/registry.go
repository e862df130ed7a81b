package holon

import (
	"fmt"
	"sync"
)

// ServiceRegistry is the explicit wiring point replacing cyclic direct
// references between components (EB <-> SM <-> QM <-> PO <-> WO). At
// startup every module registers the interfaces it provides; every module
// that needs a collaborator looks it up here by name, typed via Lookup.
type ServiceRegistry struct {
	mu       sync.RWMutex
	services map[string]any
}

// NewServiceRegistry constructs an empty registry.
func NewServiceRegistry() *ServiceRegistry {
	return &ServiceRegistry{services: make(map[string]any)}
}

// Register adds a service under name. Re-registering the same name is an
// error — each component owns exactly one well-known name.
func (r *ServiceRegistry) Register(name string, svc any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.services[name]; exists {
		return NewError(KindInternal, fmt.Sprintf("service %q already registered", name))
	}
	r.services[name] = svc
	return nil
}

// Lookup returns the service registered under name, or ErrNotFound.
func (r *ServiceRegistry) Lookup(name string) (any, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	svc, ok := r.services[name]
	if !ok {
		return nil, NewError(KindNotFound, fmt.Sprintf("service %q not registered", name))
	}
	return svc, nil
}

// Lookup is a type-safe helper around (*ServiceRegistry).Lookup, returning
// a KindInternal error on a mismatched type.
func Lookup[T any](r *ServiceRegistry, name string) (T, error) {
	var zero T
	raw, err := r.Lookup(name)
	if err != nil {
		return zero, err
	}
	typed, ok := raw.(T)
	if !ok {
		return zero, NewError(KindInternal, fmt.Sprintf("service %q does not satisfy requested type", name))
	}
	return typed, nil
}
