// Package remote defines the contract between the cache and an optional
// shared store that mirrors local writes.
package remote

import (
	"context"
	"errors"
	"time"
)

/*
Store is the remote backstop a cache mirrors to.

The cache only ever calls Store best-effort:
  - Set, Delete and Clear are fire-and-forget copies of local writes.
  - Get is consulted when the key is not in local memory at all. Keys
    that expired locally, or whose delete has not landed yet, never reach it.

Any error returned here is logged by the caller and then dropped, so
implementations should return errors rather than retry internally.
Values are opaque bytes; the cache encodes and decodes them.
*/
type Store interface {

	// Get returns the stored bytes and true, or false when the key is absent.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key. ttl <= 0 means the store's own default.
	// A value must not be returned by Get once its ttl has passed.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Clear removes every key this store instance owns.
	Clear(ctx context.Context) error

	// Close releases resources held by the store instance.
	Close() error
}

// ErrEmptyKey is returned by stores for an empty key.
var ErrEmptyKey = errors.New("remote: key is required")

// ErrCorrupt is returned when stored bytes are not in the store's format.
var ErrCorrupt = errors.New("remote: corrupt value")
