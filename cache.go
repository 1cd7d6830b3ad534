package cache

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/krisalay/artcache/api"
	"github.com/krisalay/artcache/engine"
	"github.com/krisalay/artcache/eviction"
	"github.com/krisalay/artcache/expiration"
	"github.com/krisalay/artcache/internal/errs"
	"github.com/krisalay/artcache/types"
)

/*
Cache is a bounded in-memory cache with per-entry TTL.

This struct is the orchestrator that connects:
- the entry map
- eviction (FIFO by insertion time unless configured otherwise)
- lazy expiration, plus an optional janitor
- the engine (clock, metrics, remote mirror and fall-through)

All local operations take one mutex, so they are atomic with respect to
each other. Remote I/O and producers always run outside it.
*/
type Cache[V any] struct {
	mu       sync.Mutex
	entries  map[string]*types.Entry[V]
	eviction eviction.Policy

	cfg      Config
	engine   *engine.CacheEngine[V]
	counters *types.Counters
	janitor  *expiration.Janitor

	// sf is only used when cfg.Coalesce is set.
	sf singleflight.Group

	closeOnce sync.Once
	closeErr  error
}

var _ api.Cache[string] = (*Cache[string])(nil)

// New builds a cache from cfg. Zero fields of cfg get defaults.
func New[V any](cfg Config, opts ...Option) (*Cache[V], error) {
	cfg, err := cfg.Build()
	if err != nil {
		return nil, err
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	var codec types.Codec[V]
	if o.codec != nil {
		c, ok := o.codec.(types.Codec[V])
		if !ok {
			return nil, errs.Wrapf(ErrInvalidConfig, "codec %T does not match value type", o.codec)
		}
		codec = c
	}

	counters := &types.Counters{}
	metrics := types.Metrics(counters)
	if o.metrics != nil {
		metrics = types.Fanout{counters, o.metrics}
	}

	c := &Cache[V]{
		entries:  make(map[string]*types.Entry[V]),
		eviction: eviction.NewEvictionPolicy(cfg.Eviction),
		cfg:      cfg,
		counters: counters,
		engine: engine.NewCacheEngine(engine.Options[V]{
			Name:          cfg.Name,
			Clock:         o.clock,
			Metrics:       metrics,
			Remote:        o.remote,
			Mode:          cfg.MirrorMode,
			MirrorBuffer:  cfg.MirrorBuffer,
			RemoteTimeout: cfg.RemoteTimeout,
			Codec:         codec,
			Logger:        o.logger,
		}),
	}

	c.janitor = expiration.NewJanitor(c.engine.Clock, cfg.SweepInterval, c.Sweep)
	c.janitor.Start()

	return c, nil
}

// Config returns the effective settings.
func (c *Cache[V]) Config() Config {
	return c.cfg
}

func validateKey(key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	return nil
}

func validateTTL(ttl time.Duration) error {
	if ttl <= 0 {
		return errs.Wrapf(ErrInvalidTTL, "got %s", ttl)
	}
	return nil
}

/*
Get retrieves a value from the cache.

Only a key that is absent locally is looked up in the remote store. A key
that was present but expired is purged and reported as a miss.
*/
func (c *Cache[V]) Get(ctx context.Context, key string) (V, bool) {
	v, state := c.getLocal(key)
	if state == live {
		c.engine.Metrics.Hit()
		return v, true
	}

	if state == absent && key != "" {
		if v, ok := c.engine.Fallthrough(ctx, key); ok {
			c.engine.Metrics.Hit()
			return v, true
		}
	}

	c.engine.Metrics.Miss()
	var zero V
	return zero, false
}

// entryState is what a local lookup found.
type entryState int

const (
	absent entryState = iota
	expired
	live
)

func (c *Cache[V]) getLocal(key string) (V, entryState) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	ent, state := c.lookupLocked(key)
	if state != live {
		return zero, state
	}

	c.eviction.OnAccess(key)
	return ent.Value, live
}

// liveLocked returns the entry for key if it is not expired, purging it if it is.
func (c *Cache[V]) liveLocked(key string) (*types.Entry[V], bool) {
	ent, state := c.lookupLocked(key)
	return ent, state == live
}

func (c *Cache[V]) lookupLocked(key string) (*types.Entry[V], entryState) {
	ent, ok := c.entries[key]
	if !ok {
		return nil, absent
	}
	if ent.Expired(c.engine.Now()) {
		c.removeLocked(key)
		c.engine.Metrics.Expire()
		return nil, expired
	}
	return ent, live
}

func (c *Cache[V]) Has(ctx context.Context, key string) bool {
	_, ok := c.Get(ctx, key)
	return ok
}

/*
Set stores a value with the cache's default TTL.
*/
func (c *Cache[V]) Set(ctx context.Context, key string, value V) error {
	if err := validateKey(key); err != nil {
		return err
	}
	c.set(ctx, key, value, c.cfg.DefaultTTL)
	return nil
}

/*
SetWithTTL stores a value with an explicit TTL.
*/
func (c *Cache[V]) SetWithTTL(ctx context.Context, key string, value V, ttl time.Duration) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := validateTTL(ttl); err != nil {
		return err
	}
	c.set(ctx, key, value, ttl)
	return nil
}

func (c *Cache[V]) set(ctx context.Context, key string, value V, ttl time.Duration) {
	c.mu.Lock()
	c.storeLocked(key, value, ttl)
	c.mu.Unlock()

	// Mirror after the local write is visible; never under the lock.
	c.engine.OnWrite(ctx, key, value, ttl)
}

func (c *Cache[V]) storeLocked(key string, value V, ttl time.Duration) {
	now := c.engine.Now()

	// Only a new key can push the cache over capacity.
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.cfg.Capacity {
		if victim := c.eviction.Evict(); victim != "" {
			delete(c.entries, victim)
			c.engine.Metrics.Eviction()
		}
	}

	c.entries[key] = &types.Entry[V]{
		Key:        key,
		Value:      value,
		InsertedAt: now,
		TTL:        ttl,
	}
	c.eviction.OnInsert(key, now)
}

func (c *Cache[V]) removeLocked(key string) {
	delete(c.entries, key)
	c.eviction.Remove(key)
}

/*
Delete removes a key from the cache and from the remote store.

The remote delete is issued first so the key is tombstoned before the
local entry disappears; a concurrent Get never reads it back from remote.
*/
func (c *Cache[V]) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	c.engine.OnDelete(ctx, key)

	c.mu.Lock()
	c.removeLocked(key)
	c.mu.Unlock()
	return nil
}

func (c *Cache[V]) Clear(ctx context.Context) {
	c.engine.OnClear(ctx)

	c.mu.Lock()
	c.entries = make(map[string]*types.Entry[V])
	c.eviction.Reset()
	c.mu.Unlock()
}

func (c *Cache[V]) GetOrSet(ctx context.Context, key string, producer api.Producer[V]) (V, error) {
	return c.getOrSet(ctx, key, c.cfg.DefaultTTL, producer)
}

func (c *Cache[V]) GetOrSetWithTTL(ctx context.Context, key string, ttl time.Duration, producer api.Producer[V]) (V, error) {
	if err := validateTTL(ttl); err != nil {
		var zero V
		return zero, err
	}
	return c.getOrSet(ctx, key, ttl, producer)
}

/*
getOrSet runs the producer on a miss.

Without Coalesce, the lookup and the store are two separate critical
sections: concurrent misses each run producer and the last store wins.
With Coalesce, singleflight lets one caller per key run producer while
the others wait for its result. The shared call runs under the first
caller's context values but not its cancellation.
*/
func (c *Cache[V]) getOrSet(ctx context.Context, key string, ttl time.Duration, producer api.Producer[V]) (V, error) {
	var zero V
	if err := validateKey(key); err != nil {
		return zero, err
	}
	if producer == nil {
		return zero, ErrNilProducer
	}

	if v, ok := c.Get(ctx, key); ok {
		return v, nil
	}

	if !c.cfg.Coalesce {
		v, err := producer(ctx)
		if err != nil {
			return zero, err
		}
		c.set(ctx, key, v, ttl)
		return v, nil
	}

	res, err, _ := c.sf.Do(key, func() (any, error) {
		v, err := producer(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		c.set(ctx, key, v, ttl)
		return v, nil
	})
	if err != nil {
		return zero, err
	}
	v, _ := res.(V)
	return v, nil
}

/*
Expire rewrites a live key with a new TTL. Like any write, this gives the
entry a new insertion time.
*/
func (c *Cache[V]) Expire(ctx context.Context, key string, ttl time.Duration) bool {
	if key == "" || ttl <= 0 {
		return false
	}

	c.mu.Lock()
	ent, ok := c.liveLocked(key)
	if !ok {
		c.mu.Unlock()
		return false
	}
	value := ent.Value
	c.storeLocked(key, value, ttl)
	c.mu.Unlock()

	c.engine.OnWrite(ctx, key, value, ttl)
	return true
}

/*
TTL returns remaining time-to-live of a key.
*/
func (c *Cache[V]) TTL(key string) (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ent, ok := c.liveLocked(key)
	if !ok {
		return 0, false
	}
	return ent.Remaining(c.engine.Now()), true
}

// Len returns the number of stored entries, including expired entries
// that have not been purged yet.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Keys returns the live keys, next eviction victim first.
func (c *Cache[V]) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.engine.Now()
	order := c.eviction.Order()
	out := make([]string, 0, len(order))
	for _, k := range order {
		if ent, ok := c.entries[k]; ok && !ent.Expired(now) {
			out = append(out, k)
		}
	}
	return out
}

// GetMany looks up several keys. Missing keys are left out of the result.
func (c *Cache[V]) GetMany(ctx context.Context, keys []string) map[string]V {
	out := make(map[string]V, len(keys))
	for _, k := range keys {
		if v, ok := c.Get(ctx, k); ok {
			out[k] = v
		}
	}
	return out
}

// SetMany stores several values with one TTL; zero ttl means the default.
// Arguments are validated before anything is written. Keys are written in
// sorted order.
func (c *Cache[V]) SetMany(ctx context.Context, values map[string]V, ttl time.Duration) error {
	if ttl < 0 {
		return validateTTL(ttl)
	}
	if ttl == 0 {
		ttl = c.cfg.DefaultTTL
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		if err := validateKey(k); err != nil {
			return err
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		c.set(ctx, k, values[k], ttl)
	}
	return nil
}

// Sweep purges every expired entry now and returns how many were removed.
func (c *Cache[V]) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.engine.Now()
	removed := 0
	for k, ent := range c.entries {
		if ent.Expired(now) {
			c.removeLocked(k)
			c.engine.Metrics.Expire()
			removed++
		}
	}
	return removed
}

// Stats is a snapshot of a cache's size and activity.
type Stats struct {
	Name     string    `json:"name"`
	Len      int       `json:"len"`
	Capacity int       `json:"capacity"`
	Oldest   *time.Time `json:"oldest,omitempty"`
	Newest   *time.Time `json:"newest,omitempty"`

	types.CounterSnapshot
}

func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	s := Stats{
		Name:     c.cfg.Name,
		Len:      len(c.entries),
		Capacity: c.cfg.Capacity,
	}
	var oldest, newest time.Time
	for _, ent := range c.entries {
		if oldest.IsZero() || ent.InsertedAt.Before(oldest) {
			oldest = ent.InsertedAt
		}
		if ent.InsertedAt.After(newest) {
			newest = ent.InsertedAt
		}
	}
	c.mu.Unlock()

	if s.Len > 0 {
		s.Oldest, s.Newest = &oldest, &newest
	}

	s.CounterSnapshot = c.counters.Snapshot()
	return s
}

/*
Close stops the janitor, flushes the remote mirror and closes the remote
store. The in-memory store keeps working afterwards, but nothing is
mirrored any more. Close is safe to call more than once.
*/
func (c *Cache[V]) Close() error {
	c.closeOnce.Do(func() {
		c.janitor.Stop()
		c.closeErr = c.engine.Close()
	})
	return c.closeErr
}
