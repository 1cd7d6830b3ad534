package writepolicy

import (
	"context"
	"errors"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/krisalay/artcache/remote"
)

/*
This file defines what a "write policy" is: how local cache writes are
copied to the remote store.

The local cache is authoritative. A write policy must never make a local
write fail; remote problems are handed to the ErrorHandler and dropped.
*/

// WritePolicy is the contract that all mirror policies must follow.
type WritePolicy interface {

	// OnSet mirrors a stored value. ttl counts from the moment OnSet is
	// called, not from when the remote write lands.
	OnSet(ctx context.Context, key string, value []byte, ttl time.Duration, done Done)

	// OnDelete mirrors a removal.
	OnDelete(ctx context.Context, key string, done Done)

	// OnClear mirrors a full clear.
	OnClear(ctx context.Context, done Done)

	// Close flushes pending work. Calls after Close are ignored.
	Close()
}

// Op names the remote operation in error reports.
type Op string

const (
	OpSet    Op = "set"
	OpDelete Op = "delete"
	OpClear  Op = "clear"
)

// Done is called exactly once per write: with nil after the remote store
// applied it, or with the error that failed or dropped it. It may be nil.
type Done func(err error)

func (d Done) call(err error) {
	if d != nil {
		d(err)
	}
}

// ErrorHandler is told about every failed or dropped remote write.
type ErrorHandler func(ctx context.Context, op Op, key string, err error)

// ErrQueueFull is reported when the async queue drops a write.
var ErrQueueFull = errors.New("mirror queue full, write dropped")

// ErrClosed is reported for writes issued after Close.
var ErrClosed = errors.New("mirror closed, write dropped")

// Mode selects a WritePolicy implementation.
type Mode string

const (
	// ModeAsync queues writes to a background worker (fire-and-forget).
	ModeAsync Mode = "async"

	// ModeSync performs the remote write before the cache call returns.
	// Errors are still reported, never returned.
	ModeSync Mode = "sync"
)

func (m Mode) Valid() bool {
	return m == ModeAsync || m == ModeSync || m == ""
}

// Options is shared by both policies.
type Options struct {
	// Timeout bounds each remote call. Zero means DefaultTimeout.
	Timeout time.Duration

	// Buffer is the async queue length. Zero means DefaultBuffer.
	Buffer int

	OnError ErrorHandler

	// Clock measures how long a write waited before it was applied.
	Clock clock.Clock
}

const (
	DefaultTimeout = 2 * time.Second
	DefaultBuffer  = 1024
)

func (o Options) normalized() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Buffer <= 0 {
		o.Buffer = DefaultBuffer
	}
	if o.Clock == nil {
		o.Clock = clock.New()
	}
	if o.OnError == nil {
		o.OnError = func(context.Context, Op, string, error) {}
	}
	return o
}

// New builds the policy for mode.
func New(mode Mode, store remote.Store, opts Options) WritePolicy {
	if mode == ModeSync {
		return NewSyncPolicy(store, opts)
	}
	return NewAsyncPolicy(store, opts)
}

// write is one mirrored operation.
type write struct {
	ctx   context.Context
	op    Op
	key   string
	value []byte
	ttl   time.Duration
	at    time.Time
	done  Done
}

/*
apply runs one remote write detached from the caller's cancellation.

A set's ttl is shortened by the time the write spent waiting, so the remote
copy never outlives the local entry. A set that expired while queued is
turned into a delete, since the remote may still hold an older value.
*/
func apply(store remote.Store, opts Options, w write) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(w.ctx), opts.Timeout)
	defer cancel()

	switch w.op {
	case OpSet:
		ttl := w.ttl
		if ttl > 0 {
			ttl -= opts.Clock.Since(w.at)
			if ttl <= 0 {
				return store.Delete(ctx, w.key)
			}
		}
		return store.Set(ctx, w.key, w.value, ttl)
	case OpDelete:
		return store.Delete(ctx, w.key)
	case OpClear:
		return store.Clear(ctx)
	default:
		return errors.New("unknown mirror op " + string(w.op))
	}
}

// finish reports the outcome of w to the error handler and to its Done.
func finish(opts Options, w write, err error) {
	if err != nil {
		opts.OnError(w.ctx, w.op, w.key, err)
	}
	w.done.call(err)
}
