// Package registry provides a concurrency-safe, keyed factory registry.
//
// A TypeRegistry maps a key to a zero-argument Factory and hands out a fresh
// product on every Create. Registrations are rejected when the key is taken;
// lookups of absent keys fail with ErrNotFound.
package registry

import (
	"errors"
	"fmt"
	"sync"

	"github.com/zjrosen/algomgr/internal/log"
)

var (
	// ErrNotFound is returned when no factory is registered under a key.
	ErrNotFound = errors.New("not found in registry")
	// ErrDuplicateKey is returned when a key is registered twice.
	ErrDuplicateKey = errors.New("already registered")
	// ErrNilFactory is returned when Subscribe is called without a factory.
	ErrNilFactory = errors.New("nil factory")
)

// Factory produces a new, independent product on every call.
type Factory[T any] func() T

// TypeRegistry maps keys to factories. The zero value is not usable; call New.
type TypeRegistry[K comparable, T any] struct {
	kind string

	mu        sync.RWMutex
	factories map[K]Factory[T]
	order     []K
}

// New creates an empty registry. kind names the products in errors and logs
// (e.g. "algorithm").
func New[K comparable, T any](kind string) *TypeRegistry[K, T] {
	return &TypeRegistry[K, T]{
		kind:      kind,
		factories: make(map[K]Factory[T]),
	}
}

// Subscribe registers f under key.
func (r *TypeRegistry[K, T]) Subscribe(key K, f Factory[T]) error {
	if f == nil {
		return fmt.Errorf("%s %v: %w", r.kind, key, ErrNilFactory)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[key]; exists {
		return fmt.Errorf("%s %v: %w", r.kind, key, ErrDuplicateKey)
	}
	r.factories[key] = f
	r.order = append(r.order, key)

	log.Debug(log.CatRegistry, "Subscribed factory", "kind", r.kind, "key", key)
	return nil
}

// Unsubscribe removes the factory registered under key.
func (r *TypeRegistry[K, T]) Unsubscribe(key K) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[key]; !exists {
		return fmt.Errorf("%s %v: %w", r.kind, key, ErrNotFound)
	}
	delete(r.factories, key)
	for i, k := range r.order {
		if k == key {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	log.Debug(log.CatRegistry, "Unsubscribed factory", "kind", r.kind, "key", key)
	return nil
}

// Create invokes the factory registered under key. The factory runs outside
// the registry lock, so it may itself consult the registry.
func (r *TypeRegistry[K, T]) Create(key K) (T, error) {
	r.mu.RLock()
	f, ok := r.factories[key]
	r.mu.RUnlock()

	if !ok {
		var zero T
		return zero, fmt.Errorf("%s %v: %w", r.kind, key, ErrNotFound)
	}
	return f(), nil
}

// Exists reports whether a factory is registered under key.
func (r *TypeRegistry[K, T]) Exists(key K) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[key]
	return ok
}

// Keys returns a snapshot of the registered keys in registration order.
func (r *TypeRegistry[K, T]) Keys() []K {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]K, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of registered factories.
func (r *TypeRegistry[K, T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.factories)
}

// Kind returns the product kind given to New.
func (r *TypeRegistry[K, T]) Kind() string {
	return r.kind
}
