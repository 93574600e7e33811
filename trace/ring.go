package trace

import "sync"

// Ring is a thread-safe fixed size buffer keeping the most recent records.
type Ring[T any] struct {
	mu      sync.RWMutex
	records []T
	len     uint64
	next    uint64
}

// NewRing creates a ring holding up to capacity records.
func NewRing[T any](capacity uint64) *Ring[T] {
	if capacity == 0 {
		panic("capacity must be greater than 0")
	}
	return &Ring[T]{
		records: make([]T, capacity),
	}
}

// Add appends a record, overwriting the oldest one when full.
// It returns the overwritten record, if any.
func (r *Ring[T]) Add(record T) (evicted T, wasEvicted bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.add(record)
}

func (r *Ring[T]) add(record T) (evicted T, wasEvicted bool) {
	capacity := uint64(len(r.records))
	index := r.next % capacity
	if r.len == capacity {
		evicted, wasEvicted = r.records[index], true
	} else {
		r.len++
	}
	r.records[index] = record
	r.next++
	return evicted, wasEvicted
}

// Last returns up to n of the most recent records, oldest first.
func (r *Ring[T]) Last(n uint64) []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := min(n, r.len)
	result := make([]T, count)
	capacity := uint64(len(r.records))
	start := r.next - count
	for i := uint64(0); i < count; i++ {
		result[i] = r.records[(start+i)%capacity]
	}
	return result
}

// Len returns the number of records held.
func (r *Ring[T]) Len() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.len
}

// Cap returns the capacity.
func (r *Ring[T]) Cap() uint64 {
	return uint64(len(r.records))
}

// Clear drops all records.
func (r *Ring[T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.records)
	r.len = 0
	r.next = 0
}

// Identifiable records can be looked up by their identity in a LookupRing.
type Identifiable[K comparable] interface {
	Identity() K
}

// LookupRing is a Ring that also indexes its records by identity.
type LookupRing[T Identifiable[K], K comparable] struct {
	ring  *Ring[T]
	index map[K]T
}

// NewLookupRing creates a lookup ring holding up to capacity records.
func NewLookupRing[T Identifiable[K], K comparable](capacity uint64) *LookupRing[T, K] {
	return &LookupRing[T, K]{
		ring:  NewRing[T](capacity),
		index: make(map[K]T, capacity),
	}
}

// Add appends a record and indexes it. Evicted records are removed from the index.
func (r *LookupRing[T, K]) Add(record T) {
	r.ring.mu.Lock()
	defer r.ring.mu.Unlock()

	if evicted, ok := r.ring.add(record); ok {
		delete(r.index, evicted.Identity())
	}
	r.index[record.Identity()] = record
}

// Lookup returns the record with the given identity if it is still held.
func (r *LookupRing[T, K]) Lookup(identity K) (T, bool) {
	r.ring.mu.RLock()
	defer r.ring.mu.RUnlock()
	record, ok := r.index[identity]
	return record, ok
}

// Last returns up to n of the most recent records, oldest first.
func (r *LookupRing[T, K]) Last(n uint64) []T {
	return r.ring.Last(n)
}

// Len returns the number of records held.
func (r *LookupRing[T, K]) Len() uint64 {
	return r.ring.Len()
}

// Cap returns the capacity.
func (r *LookupRing[T, K]) Cap() uint64 {
	return r.ring.Cap()
}

// Clear drops all records.
func (r *LookupRing[T, K]) Clear() {
	r.ring.mu.Lock()
	defer r.ring.mu.Unlock()
	clear(r.ring.records)
	r.ring.len = 0
	r.ring.next = 0
	clear(r.index)
}
