package types

import "sync/atomic"

// This file defines how the cache reports what it is doing.

/*
Metrics receives one call per cache event. The cache calls these methods
inline, so implementations must be cheap and safe for concurrent use.
*/
type Metrics interface {

	// Hit is called when a read is served from memory or from the remote store.
	Hit()

	// Miss is called when a read finds nothing usable.
	Miss()

	// Eviction is called when a key is removed because the cache is full.
	Eviction()

	// Expire is called when a key is purged because its TTL elapsed.
	Expire()

	// RemoteError is called when a call to the remote store fails.
	RemoteError()
}

// NoopMetrics ignores every event.
type NoopMetrics struct{}

func (NoopMetrics) Hit()         {}
func (NoopMetrics) Miss()        {}
func (NoopMetrics) Eviction()    {}
func (NoopMetrics) Expire()      {}
func (NoopMetrics) RemoteError() {}

/*
Counters is a Metrics implementation backed by atomic counters.
Every cache keeps one so Stats works without any user supplied hook.
*/
type Counters struct {
	hits         atomic.Int64
	misses       atomic.Int64
	evictions    atomic.Int64
	expirations  atomic.Int64
	remoteErrors atomic.Int64
}

func (c *Counters) Hit()         { c.hits.Add(1) }
func (c *Counters) Miss()        { c.misses.Add(1) }
func (c *Counters) Eviction()    { c.evictions.Add(1) }
func (c *Counters) Expire()      { c.expirations.Add(1) }
func (c *Counters) RemoteError() { c.remoteErrors.Add(1) }

// CounterSnapshot is a point-in-time copy of Counters.
type CounterSnapshot struct {
	Hits         int64 `json:"hits"`
	Misses       int64 `json:"misses"`
	Evictions    int64 `json:"evictions"`
	Expirations  int64 `json:"expirations"`
	RemoteErrors int64 `json:"remote_errors"`
}

// Snapshot reads all counters. The values are read one by one, so a
// snapshot taken under load is not a consistent cut.
func (c *Counters) Snapshot() CounterSnapshot {
	return CounterSnapshot{
		Hits:         c.hits.Load(),
		Misses:       c.misses.Load(),
		Evictions:    c.evictions.Load(),
		Expirations:  c.expirations.Load(),
		RemoteErrors: c.remoteErrors.Load(),
	}
}

// Fanout forwards every event to each of its members in order.
type Fanout []Metrics

func (f Fanout) Hit() {
	for _, m := range f {
		m.Hit()
	}
}

func (f Fanout) Miss() {
	for _, m := range f {
		m.Miss()
	}
}

func (f Fanout) Eviction() {
	for _, m := range f {
		m.Eviction()
	}
}

func (f Fanout) Expire() {
	for _, m := range f {
		m.Expire()
	}
}

func (f Fanout) RemoteError() {
	for _, m := range f {
		m.RemoteError()
	}
}
