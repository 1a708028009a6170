package utils

import "sync"

// Ring is a fixed-capacity buffer that drops its oldest entry when full.
type Ring[T any] struct {
	mu    sync.Mutex
	items []T
	start int
	size  int
}

func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{items: make([]T, capacity)}
}

// Push appends v and returns the number of entries held afterwards.
func (r *Ring[T]) Push(v T) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	end := (r.start + r.size) % len(r.items)
	r.items[end] = v
	if r.size == len(r.items) {
		r.start = (r.start + 1) % len(r.items)
	} else {
		r.size++
	}
	return r.size
}

func (r *Ring[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

func (r *Ring[T]) Cap() int {
	return len(r.items)
}

// Newest returns the entries from newest to oldest.
func (r *Ring[T]) Newest() []T {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]T, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.items[(r.start+r.size-1-i)%len(r.items)]
	}
	return out
}
