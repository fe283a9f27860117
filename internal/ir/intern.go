package ir

import "sync"

// Interner assigns small stable ids to values. The first Intern of a value
// allocates the next id; later Interns of an equal value return the same
// id. Ids are dense, starting at 0, and never reused, so they stay valid
// for the life of the interner.
//
// Safe for concurrent use.
type Interner[T comparable] struct {
	mu   sync.RWMutex
	ids  map[T]int32
	vals []T
}

// NewInterner returns an empty interner.
func NewInterner[T comparable]() *Interner[T] {
	return &Interner[T]{ids: make(map[T]int32)}
}

// Intern returns the id for v, assigning one if v is new.
func (in *Interner[T]) Intern(v T) int32 {
	in.mu.RLock()
	id, ok := in.ids[v]
	in.mu.RUnlock()
	if ok {
		return id
	}

	in.mu.Lock()
	defer in.mu.Unlock()
	if id, ok := in.ids[v]; ok {
		return id
	}
	id = int32(len(in.vals))
	in.ids[v] = id
	in.vals = append(in.vals, v)
	return id
}

// Lookup returns the value for id, or false if id was never assigned.
func (in *Interner[T]) Lookup(id int32) (T, bool) {
	in.mu.RLock()
	defer in.mu.RUnlock()
	if id < 0 || int(id) >= len(in.vals) {
		var zero T
		return zero, false
	}
	return in.vals[id], true
}

// Len reports how many distinct values have been interned.
func (in *Interner[T]) Len() int {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return len(in.vals)
}
