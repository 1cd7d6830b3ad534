package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/krisalay/artcache/internal/errs"
	"github.com/krisalay/artcache/internal/logging"
	"github.com/krisalay/artcache/remote"
	"github.com/krisalay/artcache/types"
	"github.com/krisalay/artcache/writepolicy"
)

/*
CacheEngine is the policy layer of a cache. It is responsible for the
"behavior" around storage, NOT storage itself.

It decides:
- What time it is (so tests can drive expiry with a mock clock)
- How writes are mirrored to the remote store
- How a local miss falls through to the remote store
- How remote failures are logged and counted
- Where metrics go

It does NOT:
- Store data
- Handle locking
- Decide eviction order
*/
type CacheEngine[V any] struct {

	// Name identifies the cache in logs.
	Name string

	Clock clock.Clock

	// Metrics always includes the cache's own counters.
	Metrics types.Metrics

	// Remote is the optional backstop. If nil, the cache is local only.
	Remote remote.Store

	// WritePolicy mirrors writes to Remote. Nil when Remote is nil.
	WritePolicy writepolicy.WritePolicy

	Codec types.Codec[V]

	Logger *slog.Logger

	// RemoteTimeout bounds each remote read.
	RemoteTimeout time.Duration

	pending *pendingRemovals
}

// Options configures NewCacheEngine. Zero fields get defaults.
type Options[V any] struct {
	Name          string
	Clock         clock.Clock
	Metrics       types.Metrics
	Remote        remote.Store
	Mode          writepolicy.Mode
	MirrorBuffer  int
	RemoteTimeout time.Duration
	Codec         types.Codec[V]
	Logger        *slog.Logger
}

func NewCacheEngine[V any](opts Options[V]) *CacheEngine[V] {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Metrics == nil {
		opts.Metrics = types.NoopMetrics{}
	}
	if opts.Codec == nil {
		opts.Codec = types.JSONCodec[V]{}
	}
	if opts.RemoteTimeout <= 0 {
		opts.RemoteTimeout = writepolicy.DefaultTimeout
	}

	e := &CacheEngine[V]{
		Name:          opts.Name,
		Clock:         opts.Clock,
		Metrics:       opts.Metrics,
		Remote:        opts.Remote,
		Codec:         opts.Codec,
		Logger:        opts.Logger,
		RemoteTimeout: opts.RemoteTimeout,
		pending:       newPendingRemovals(),
	}

	if e.Remote != nil {
		e.WritePolicy = writepolicy.New(opts.Mode, e.Remote, writepolicy.Options{
			Timeout: opts.RemoteTimeout,
			Buffer:  opts.MirrorBuffer,
			OnError: e.remoteFailed,
			Clock:   opts.Clock,
		})
	}

	return e
}

func (e *CacheEngine[V]) Now() time.Time {
	return e.Clock.Now()
}

/*
OnWrite is called after a value has been stored locally.
The value is encoded here, outside the cache lock, and handed to the
write policy. Encoding failures only skip the mirror.
*/
func (e *CacheEngine[V]) OnWrite(ctx context.Context, key string, value V, ttl time.Duration) {
	if e.WritePolicy == nil {
		return
	}

	payload, err := e.Codec.Marshal(value)
	if err != nil {
		e.remoteFailed(ctx, writepolicy.OpSet, key, errs.Wrap(err, "encode value"))
		return
	}
	seq := e.pending.write()
	e.WritePolicy.OnSet(ctx, key, payload, ttl, e.pending.done(writepolicy.OpSet, key, seq))
}

/*
OnDelete mirrors a local delete. The key is tombstoned first: Fallthrough
will not read it until the remote store confirms the delete, so the cache
should call this before the local entry disappears.
*/
func (e *CacheEngine[V]) OnDelete(ctx context.Context, key string) {
	if e.WritePolicy == nil {
		return
	}
	seq := e.pending.delete(key)
	e.WritePolicy.OnDelete(ctx, key, e.pending.done(writepolicy.OpDelete, key, seq))
}

// OnClear mirrors a local clear. Fallthrough is off until the remote
// store confirms it.
func (e *CacheEngine[V]) OnClear(ctx context.Context) {
	if e.WritePolicy == nil {
		return
	}
	seq := e.pending.clear()
	e.WritePolicy.OnClear(ctx, e.pending.done(writepolicy.OpClear, "", seq))
}

/*
Fallthrough asks the remote store for a key the local store does not have.

This is best-effort: any error (network, timeout, decode) is logged and
reported as a miss. A remote hit is returned as-is and not copied back
into local memory, so the local view stays the one this process wrote.
Keys with an unconfirmed delete or clear are a miss without a remote call.
*/
func (e *CacheEngine[V]) Fallthrough(ctx context.Context, key string) (V, bool) {
	var zero V
	if e.Remote == nil || e.pending.blocks(key) {
		return zero, false
	}

	rctx, cancel := context.WithTimeout(ctx, e.RemoteTimeout)
	defer cancel()

	payload, found, err := e.Remote.Get(rctx, key)
	if err != nil {
		e.remoteFailed(ctx, "get", key, err)
		return zero, false
	}
	if !found {
		return zero, false
	}

	v, err := e.Codec.Unmarshal(payload)
	if err != nil {
		e.remoteFailed(ctx, "get", key, errs.Wrap(err, "decode value"))
		return zero, false
	}
	return v, true
}

// Close flushes the write policy and closes the remote store.
func (e *CacheEngine[V]) Close() error {
	if e.WritePolicy != nil {
		e.WritePolicy.Close()
	}
	if e.Remote != nil {
		return e.Remote.Close()
	}
	return nil
}

func (e *CacheEngine[V]) remoteFailed(ctx context.Context, op writepolicy.Op, key string, err error) {
	e.Metrics.RemoteError()

	ctx = logging.WithLogger(ctx, e.Logger)
	logging.Warn(ctx, "remote cache operation failed",
		slog.String("cache", e.Name),
		slog.String("op", string(op)),
		slog.String("key", key),
		slog.Any("err", errs.Loggable(err)),
	)
}
