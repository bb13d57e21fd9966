// Package cache provides the bounded result cache used across mockup.
//
// FIFO keeps at most Capacity entries in insertion order, newest first.
// Lookups never change the order: the oldest inserted entry is always the
// next one to go, regardless of how often it is read.
package cache

import (
	"sync"
	"sync/atomic"
)

// DefaultCapacity is used when New is called with a non-positive capacity.
const DefaultCapacity = 10

// entry is a stored fingerprint/payload pair.
type entry[K comparable, V any] struct {
	key   K
	value V
}

// FIFO is a fixed-capacity, most-recent-first store.
//
// Get is an O(N) scan over the stored entries only, so a cache holding
// fewer than Capacity entries can never report a hit on a slot that was
// not written.
//
// FIFO is safe for concurrent use.
type FIFO[K comparable, V any] struct {
	mu       sync.RWMutex
	entries  []entry[K, V] // entries[0] is the newest
	capacity int

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// New creates a FIFO cache holding at most capacity entries.
// If capacity <= 0, DefaultCapacity is used.
func New[K comparable, V any](capacity int) *FIFO[K, V] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &FIFO[K, V]{
		entries:  make([]entry[K, V], 0, capacity),
		capacity: capacity,
	}
}

// Get returns the value stored for key.
// Returns (value, true) if found, (zero, false) otherwise.
func (c *FIFO[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for i := range c.entries {
		if c.entries[i].key == key {
			c.hits.Add(1)
			return c.entries[i].value, true
		}
	}
	c.misses.Add(1)
	var zero V
	return zero, false
}

// Put inserts value at the front. An existing entry for key is replaced
// and moves to the front; otherwise the oldest entry is dropped once the
// capacity is exceeded.
func (c *FIFO[K, V]) Put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.entries {
		if c.entries[i].key == key {
			c.entries = append(c.entries[:i], c.entries[i+1:]...)
			break
		}
	}

	c.entries = append(c.entries, entry[K, V]{})
	copy(c.entries[1:], c.entries[:len(c.entries)-1])
	c.entries[0] = entry[K, V]{key: key, value: value}

	if len(c.entries) > c.capacity {
		// Clear the dropped slot so the value can be collected.
		c.entries[len(c.entries)-1] = entry[K, V]{}
		c.entries = c.entries[:c.capacity]
		c.evictions.Add(1)
	}
}

// Delete removes key. Returns true if it was present.
func (c *FIFO[K, V]) Delete(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.entries {
		if c.entries[i].key == key {
			copy(c.entries[i:], c.entries[i+1:])
			c.entries[len(c.entries)-1] = entry[K, V]{}
			c.entries = c.entries[:len(c.entries)-1]
			return true
		}
	}
	return false
}

// Clear removes all entries. Statistics are kept.
func (c *FIFO[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	clear(c.entries)
	c.entries = c.entries[:0]
}

// Keys returns the stored keys, newest first.
func (c *FIFO[K, V]) Keys() []K {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]K, len(c.entries))
	for i := range c.entries {
		keys[i] = c.entries[i].key
	}
	return keys
}

// Len returns the number of stored entries.
func (c *FIFO[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Capacity returns the maximum number of entries.
func (c *FIFO[K, V]) Capacity() int {
	return c.capacity
}

// Stats returns current cache statistics.
func (c *FIFO[K, V]) Stats() Stats {
	hits := c.hits.Load()
	misses := c.misses.Load()

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return Stats{
		Len:       c.Len(),
		Capacity:  c.capacity,
		Hits:      hits,
		Misses:    misses,
		HitRate:   hitRate,
		Evictions: c.evictions.Load(),
	}
}

// ResetStats resets all statistics counters to zero.
func (c *FIFO[K, V]) ResetStats() {
	c.hits.Store(0)
	c.misses.Store(0)
	c.evictions.Store(0)
}

// Stats contains cache statistics.
type Stats struct {
	// Len is the current number of entries.
	Len int
	// Capacity is the maximum number of entries.
	Capacity int
	// Hits is the number of successful lookups.
	Hits uint64
	// Misses is the number of failed lookups.
	Misses uint64
	// HitRate is Hits / (Hits + Misses), or 0 with no lookups.
	HitRate float64
	// Evictions is the number of entries dropped for capacity.
	Evictions uint64
}
