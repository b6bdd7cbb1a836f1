// Package subscription provides the per-instance subscriber registries used
// for change, error and challenge notifications.
package subscription

import (
	"sync"

	"github.com/google/uuid"
)

// Registry holds subscribers keyed by a generated id, in registration order.
// It is safe for concurrent use.
type Registry[T any] struct {
	mu      sync.RWMutex
	entries []entry[T]
}

type entry[T any] struct {
	id    string
	value T
}

// New returns an empty registry.
func New[T any]() *Registry[T] {
	return &Registry[T]{}
}

// Register adds value and returns its id together with a closure that removes
// it again. Calling the closure more than once is a no-op.
func (r *Registry[T]) Register(value T) (string, func()) {
	id := uuid.NewString()

	r.mu.Lock()
	r.entries = append(r.entries, entry[T]{id: id, value: value})
	r.mu.Unlock()

	var once sync.Once
	return id, func() {
		once.Do(func() { r.Unregister(id) })
	}
}

// Unregister removes the subscriber with the given id and reports whether it
// was registered.
func (r *Registry[T]) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, e := range r.entries {
		if e.id == id {
			entries := make([]entry[T], 0, len(r.entries)-1)
			entries = append(entries, r.entries[:i]...)
			entries = append(entries, r.entries[i+1:]...)
			r.entries = entries
			return true
		}
	}
	return false
}

// First returns the earliest registered subscriber still present.
func (r *Registry[T]) First() (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.entries) == 0 {
		var zero T
		return zero, false
	}
	return r.entries[0].value, true
}

// Values returns the registered subscribers in registration order. The slice
// is a copy, subscribers may (un)register while it is being iterated.
func (r *Registry[T]) Values() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	values := make([]T, len(r.entries))
	for i, e := range r.entries {
		values[i] = e.value
	}
	return values
}

// Len reports the number of registered subscribers.
func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
