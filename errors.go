package cache

import "errors"

var (
	// ErrEmptyKey is returned when a key argument is empty.
	ErrEmptyKey = errors.New("cache: key must not be empty")

	// ErrInvalidTTL is returned for a non-positive explicit TTL.
	ErrInvalidTTL = errors.New("cache: ttl must be positive")

	// ErrNilProducer is returned by GetOrSet when producer is nil.
	ErrNilProducer = errors.New("cache: producer must not be nil")

	// ErrInvalidConfig is returned by New for unusable settings.
	ErrInvalidConfig = errors.New("cache: invalid config")

	// ErrDuplicateCache is returned when a name is registered twice.
	ErrDuplicateCache = errors.New("cache: name already registered")

	// ErrUnknownCache is returned for a name that was never registered.
	ErrUnknownCache = errors.New("cache: unknown cache name")
)
