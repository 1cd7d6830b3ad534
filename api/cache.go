// Package api holds the interface consumers of the cache depend on.
package api

import (
	"context"
	"time"
)

// Producer computes a value on a cache miss. It may block and may fail.
type Producer[V any] func(ctx context.Context) (V, error)

/*
Cache defines the PUBLIC API of the bounded TTL cache.
Storage, eviction, expiration and the optional remote mirror are hidden
behind this interface, so callers (page loaders, API clients, the
translation loader) depend on nothing else.
*/
type Cache[V any] interface {

	/*
		Get returns the value for key.

		1. Live in memory: return it. Reads never refresh the entry's age.
		2. Expired in memory: purge it and report false.
		3. Not in memory: if a remote store is configured, ask it
		   (best-effort). Keys deleted or cleared locally are skipped until
		   the remote store has removed them too.
		4. Otherwise report false.
	*/
	Get(ctx context.Context, key string) (V, bool)

	// Has is Get without the value, including the purge side effect.
	Has(ctx context.Context, key string) bool

	// Set stores value with the cache's default TTL.
	Set(ctx context.Context, key string, value V) error

	/*
		SetWithTTL stores value with an explicit, positive TTL.

		If the key is new and the cache is full, exactly one entry (the
		oldest inserted) is evicted first. Writing an existing key is a full
		replacement: new value, new TTL, new insertion time.
	*/
	SetWithTTL(ctx context.Context, key string, value V, ttl time.Duration) error

	// Delete removes key. Removing a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Clear removes every entry.
	Clear(ctx context.Context)

	/*
		GetOrSet returns the cached value, or calls producer, stores its
		result with the default TTL and returns it.

		A failing producer's error is returned unchanged and nothing is cached.
		Concurrent misses for one key each call producer unless the cache was
		built with coalescing enabled.
	*/
	GetOrSet(ctx context.Context, key string, producer Producer[V]) (V, error)

	// GetOrSetWithTTL is GetOrSet with an explicit TTL for the produced value.
	GetOrSetWithTTL(ctx context.Context, key string, ttl time.Duration, producer Producer[V]) (V, error)

	// Expire rewrites a live key with a new TTL, restarting its lifetime.
	// It returns false if the key is absent or expired.
	Expire(ctx context.Context, key string, ttl time.Duration) bool

	// TTL returns the remaining lifetime of a live key.
	TTL(key string) (time.Duration, bool)

	// Close stops background work and flushes pending remote writes.
	Close() error
}
