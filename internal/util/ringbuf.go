package util

import "sync"

// Ring is a fixed-capacity circular buffer that overwrites its oldest
// element when full. Safe for concurrent use.
type Ring[T any] struct {
	mu    sync.RWMutex
	items []T
	start int
	n     int
}

// NewRing creates a ring with the given capacity.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring[T]{items: make([]T, capacity)}
}

// Add appends an item, evicting the oldest when the ring is full.
func (r *Ring[T]) Add(item T) {
	r.mu.Lock()
	r.items[(r.start+r.n)%len(r.items)] = item
	if r.n == len(r.items) {
		r.start = (r.start + 1) % len(r.items)
	} else {
		r.n++
	}
	r.mu.Unlock()
}

// All returns a copy of the stored items, oldest first.
func (r *Ring[T]) All() []T {
	r.mu.RLock()
	out := make([]T, r.n)
	for i := range out {
		out[i] = r.items[(r.start+i)%len(r.items)]
	}
	r.mu.RUnlock()
	return out
}

// Len returns the number of stored items.
func (r *Ring[T]) Len() int {
	r.mu.RLock()
	n := r.n
	r.mu.RUnlock()
	return n
}
