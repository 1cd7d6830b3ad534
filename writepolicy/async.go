package writepolicy

import (
	"context"
	"sync"
	"time"

	"github.com/krisalay/artcache/remote"
)

/*
AsyncPolicy mirrors writes from a single background worker.

Writes are applied in the order they were queued. When the queue is full
the write is dropped and reported; the cache never waits on the remote store.
*/
type AsyncPolicy struct {
	store remote.Store
	opts  Options

	// mu guards closed and the channel close against concurrent sends.
	mu     sync.RWMutex
	closed bool
	ch     chan write
	wg     sync.WaitGroup
}

func NewAsyncPolicy(store remote.Store, opts Options) *AsyncPolicy {
	opts = opts.normalized()
	w := &AsyncPolicy{
		store: store,
		opts:  opts,
		ch:    make(chan write, opts.Buffer),
	}

	w.wg.Add(1)
	go w.worker()

	return w
}

func (w *AsyncPolicy) OnSet(ctx context.Context, key string, value []byte, ttl time.Duration, done Done) {
	w.enqueue(write{ctx: ctx, op: OpSet, key: key, value: value, ttl: ttl, done: done})
}

func (w *AsyncPolicy) OnDelete(ctx context.Context, key string, done Done) {
	w.enqueue(write{ctx: ctx, op: OpDelete, key: key, done: done})
}

func (w *AsyncPolicy) OnClear(ctx context.Context, done Done) {
	w.enqueue(write{ctx: ctx, op: OpClear, done: done})
}

func (w *AsyncPolicy) enqueue(req write) {
	req.at = w.opts.Clock.Now()

	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.closed {
		finish(w.opts, req, ErrClosed)
		return
	}

	select {
	case w.ch <- req:
	default:
		finish(w.opts, req, ErrQueueFull)
	}
}

func (w *AsyncPolicy) worker() {
	defer w.wg.Done()

	for req := range w.ch {
		finish(w.opts, req, apply(w.store, w.opts, req))
	}
}

// Close stops accepting writes and waits for the queue to drain.
func (w *AsyncPolicy) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.ch)
	w.mu.Unlock()

	w.wg.Wait()
}
