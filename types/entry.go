package types

import "time"

/*
Entry is one cached value together with the bookkeeping the cache needs
for expiry and eviction.

Entries are never updated in place. A write for an existing key builds a
fresh Entry with a new InsertedAt and TTL and swaps it in.
*/
type Entry[V any] struct {
	Key        string
	Value      V
	InsertedAt time.Time
	TTL        time.Duration
}

// ExpiresAt is the first instant at which the entry is no longer served.
func (e *Entry[V]) ExpiresAt() time.Time {
	return e.InsertedAt.Add(e.TTL)
}

// Expired reports whether now - InsertedAt >= TTL.
func (e *Entry[V]) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt())
}

// Remaining returns the lifetime left at now, or zero once expired.
func (e *Entry[V]) Remaining(now time.Time) time.Duration {
	d := e.ExpiresAt().Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
