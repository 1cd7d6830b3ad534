package eviction

import "time"

/*
This file defines how the cache decides what to remove when it runs out of space.
*/

/*
Policy is the interface that all eviction strategies must follow.

The cache owns the entries; a Policy only tracks keys and their ordering
metadata. The cache calls these methods while holding its own lock, so a
Policy does not need to be safe for concurrent use.
*/
type Policy interface {

	// OnInsert is called whenever a key is written, new or not.
	// A rewrite is a full replacement, so the key's position is recomputed
	// from insertedAt.
	OnInsert(key string, insertedAt time.Time)

	// OnAccess is called whenever a key is served to a reader.
	// FIFO ignores this.
	OnAccess(key string)

	// Remove is called when a key leaves the cache for any reason other
	// than Evict (delete, expiry purge).
	Remove(key string)

	// Evict picks the victim, forgets it and returns its key.
	// It returns "" when nothing is tracked.
	Evict() string

	// Order returns the tracked keys, next victim first.
	Order() []string

	// Len is the number of tracked keys.
	Len() int

	// Reset forgets every key.
	Reset()
}

// PolicyType is a simple identifier for supported eviction strategies.
type PolicyType string

const (
	// FIFO evicts the oldest inserted key, regardless of access.
	// Keys inserted at the same instant are evicted in lexicographic order.
	FIFO PolicyType = "FIFO"

	// LRU evicts the key that has not been written or read for the longest time.
	LRU PolicyType = "LRU"
)

// Valid reports whether t names a known policy.
func (t PolicyType) Valid() bool {
	return t == FIFO || t == LRU
}

// NewEvictionPolicy is a small factory function.
// Given a PolicyType, it creates the correct eviction policy.
func NewEvictionPolicy(t PolicyType) Policy {
	switch t {
	case FIFO, "":
		return newFIFO()
	case LRU:
		return newLRU()
	default:
		panic("unknown eviction policy " + string(t))
	}
}
