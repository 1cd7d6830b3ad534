package writepolicy

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/krisalay/artcache/remote"
)

/*
SyncPolicy writes to the remote store inline. The cache call returns only
after the remote write finished or timed out, so a slow store slows cache
writes down, but a failing one still cannot fail them.
*/
type SyncPolicy struct {
	store  remote.Store
	opts   Options
	closed atomic.Bool
}

func NewSyncPolicy(store remote.Store, opts Options) *SyncPolicy {
	return &SyncPolicy{store: store, opts: opts.normalized()}
}

func (w *SyncPolicy) OnSet(ctx context.Context, key string, value []byte, ttl time.Duration, done Done) {
	w.do(write{ctx: ctx, op: OpSet, key: key, value: value, ttl: ttl, done: done})
}

func (w *SyncPolicy) OnDelete(ctx context.Context, key string, done Done) {
	w.do(write{ctx: ctx, op: OpDelete, key: key, done: done})
}

func (w *SyncPolicy) OnClear(ctx context.Context, done Done) {
	w.do(write{ctx: ctx, op: OpClear, done: done})
}

func (w *SyncPolicy) do(req write) {
	if w.closed.Load() {
		finish(w.opts, req, ErrClosed)
		return
	}
	req.at = w.opts.Clock.Now()
	finish(w.opts, req, apply(w.store, w.opts, req))
}

// Close has no background work to flush.
func (w *SyncPolicy) Close() {
	w.closed.Store(true)
}
