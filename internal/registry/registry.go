// Package registry provides a generic named-instance container used to select
// strategies, audit drivers, generators, hashers and token types by name.
//
// The first instance registered becomes the default. Registries are built once by
// the composition root and are safe for concurrent readers afterwards.
package registry

import (
	"errors"
	"fmt"
	"sync"
)

// ErrNotRegistered is matched by every NotRegisteredError.
var ErrNotRegistered = errors.New("not registered")

// NotRegisteredError reports a lookup for a name that was never registered.
type NotRegisteredError struct {
	Kind string
	Name string
}

func (e *NotRegisteredError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("%s registry is empty", e.Kind)
	}
	return fmt.Sprintf("%s %q is not registered", e.Kind, e.Name)
}

// Unwrap allows errors.Is(err, ErrNotRegistered).
func (e *NotRegisteredError) Unwrap() error {
	return ErrNotRegistered
}

// Registry maps names to instances of T.
type Registry[T any] struct {
	kind        string
	mu          sync.RWMutex
	items       map[string]T
	order       []string
	defaultName string
}

// New creates an empty registry. kind names the registry in errors (e.g. "revocation strategy").
func New[T any](kind string) *Registry[T] {
	return &Registry[T]{
		kind:  kind,
		items: make(map[string]T),
	}
}

// Kind returns the registry kind used in error messages.
func (r *Registry[T]) Kind() string {
	return r.kind
}

// Register stores instance under name. The first registration becomes the default.
// Re-registering a name replaces the instance and keeps the current default.
func (r *Registry[T]) Register(name string, instance T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[name]; !exists {
		r.order = append(r.order, name)
	}
	r.items[name] = instance

	if r.defaultName == "" {
		r.defaultName = name
	}
}

// Get returns the instance registered under name.
func (r *Registry[T]) Get(name string) (T, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	instance, ok := r.items[name]
	if !ok {
		var zero T
		return zero, &NotRegisteredError{Kind: r.kind, Name: name}
	}
	return instance, nil
}

// Has reports whether name is registered.
func (r *Registry[T]) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.items[name]
	return ok
}

// Default returns the default instance.
func (r *Registry[T]) Default() (T, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.defaultName == "" {
		var zero T
		return zero, &NotRegisteredError{Kind: r.kind}
	}
	return r.items[r.defaultName], nil
}

// DefaultName returns the name of the default instance, or "" when empty.
func (r *Registry[T]) DefaultName() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultName
}

// SetDefault makes name the default instance.
func (r *Registry[T]) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[name]; !ok {
		return &NotRegisteredError{Kind: r.kind, Name: name}
	}
	r.defaultName = name
	return nil
}

// Resolve returns the instance for name, or the default when name is empty.
func (r *Registry[T]) Resolve(name string) (T, error) {
	if name == "" {
		return r.Default()
	}
	return r.Get(name)
}

// All returns registered names in registration order.
func (r *Registry[T]) All() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}
