package writepolicy

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/krisalay/artcache/remote"
	"github.com/krisalay/artcache/remote/memstore"
)

type report struct {
	op  Op
	key string
	err error
}

type recorder struct {
	mu      sync.Mutex
	reports []report
}

func (r *recorder) handle(_ context.Context, op Op, key string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, report{op, key, err})
}

func (r *recorder) all() []report {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]report(nil), r.reports...)
}

// blockingStore parks Set calls until release is closed.
type blockingStore struct {
	remote.Store
	entered chan struct{}
	release chan struct{}
}

func (b *blockingStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	b.entered <- struct{}{}
	<-b.release
	return b.Store.Set(ctx, key, value, ttl)
}

type failingStore struct{ remote.Store }

var errDown = errors.New("store down")

func (failingStore) Set(context.Context, string, []byte, time.Duration) error { return errDown }
func (failingStore) Delete(context.Context, string) error                     { return errDown }
func (failingStore) Clear(context.Context) error                              { return errDown }

func TestAsyncPolicyFlushesOnClose(t *testing.T) {
	ctx := context.Background()
	store := memstore.New(nil)
	w := NewAsyncPolicy(store, Options{})

	w.OnSet(ctx, "a", []byte("1"), 0, nil)
	w.OnSet(ctx, "b", []byte("2"), 0, nil)
	w.OnDelete(ctx, "a", nil)
	w.Close()

	if keys := store.Keys(); len(keys) != 1 || keys[0] != "b" {
		t.Fatalf("expected only b mirrored, got %v", keys)
	}
}

func TestAsyncPolicyIgnoresCallerCancellation(t *testing.T) {
	store := memstore.New(nil)
	w := NewAsyncPolicy(store, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	w.OnSet(ctx, "k", []byte("v"), 0, nil)
	cancel()
	w.Close()

	if _, found, _ := store.Get(context.Background(), "k"); !found {
		t.Fatalf("expected write to survive caller cancellation")
	}
}

func TestAsyncPolicyDropsWhenQueueFull(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	store := &blockingStore{
		Store:   memstore.New(nil),
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	w := NewAsyncPolicy(store, Options{Buffer: 1, OnError: rec.handle})

	w.OnSet(ctx, "first", nil, 0, nil)
	<-store.entered // worker is now parked on first

	w.OnSet(ctx, "second", nil, 0, nil) // fills the buffer
	w.OnSet(ctx, "third", nil, 0, nil)  // dropped

	reports := rec.all()
	if len(reports) != 1 || reports[0].key != "third" || !errors.Is(reports[0].err, ErrQueueFull) {
		t.Fatalf("expected third to be dropped, got %+v", reports)
	}

	close(store.release)
	go func() {
		for range store.entered {
		}
	}()
	w.Close()
	close(store.entered)
}

func TestAsyncPolicyReportsErrorsAndLateWrites(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	w := NewAsyncPolicy(failingStore{}, Options{OnError: rec.handle})

	w.OnSet(ctx, "k", []byte("v"), 0, nil)
	w.OnClear(ctx, nil)
	w.Close()
	w.Close()
	w.OnDelete(ctx, "late", nil)

	reports := rec.all()
	if len(reports) != 3 {
		t.Fatalf("expected 3 reports, got %+v", reports)
	}
	if reports[0].op != OpSet || !errors.Is(reports[0].err, errDown) {
		t.Fatalf("unexpected first report %+v", reports[0])
	}
	if reports[1].op != OpClear {
		t.Fatalf("unexpected second report %+v", reports[1])
	}
	if reports[2].key != "late" || !errors.Is(reports[2].err, ErrClosed) {
		t.Fatalf("unexpected late report %+v", reports[2])
	}
}

func TestSyncPolicyWritesInline(t *testing.T) {
	ctx := context.Background()
	store := memstore.New(nil)
	w := New(ModeSync, store, Options{})

	w.OnSet(ctx, "k", []byte("v"), 0, nil)
	if _, found, _ := store.Get(ctx, "k"); !found {
		t.Fatalf("expected sync write to be visible immediately")
	}

	w.OnDelete(ctx, "k", nil)
	if _, found, _ := store.Get(ctx, "k"); found {
		t.Fatalf("expected sync delete to be visible immediately")
	}
}

func TestSyncPolicyReportsErrors(t *testing.T) {
	rec := &recorder{}
	w := NewSyncPolicy(failingStore{}, Options{OnError: rec.handle})

	w.OnDelete(context.Background(), "k", nil)
	w.Close()
	w.OnSet(context.Background(), "k", nil, 0, nil)

	reports := rec.all()
	if len(reports) != 2 || !errors.Is(reports[0].err, errDown) || !errors.Is(reports[1].err, ErrClosed) {
		t.Fatalf("unexpected reports %+v", reports)
	}
}

func TestDoneReportsOutcome(t *testing.T) {
	ctx := context.Background()
	store := memstore.New(nil)
	w := NewAsyncPolicy(store, Options{})

	applied := make(chan error, 3)
	done := func(err error) { applied <- err }

	w.OnSet(ctx, "k", []byte("v"), 0, done)
	w.OnDelete(ctx, "k", done)
	w.Close()
	w.OnClear(ctx, done)

	for i, want := range []error{nil, nil} {
		if err := <-applied; err != want {
			t.Fatalf("write %d: done(%v), want %v", i, err, want)
		}
	}
	if err := <-applied; !errors.Is(err, ErrClosed) {
		t.Fatalf("late clear: done(%v), want ErrClosed", err)
	}
}

func TestDoneReportsDrop(t *testing.T) {
	ctx := context.Background()
	store := &blockingStore{
		Store:   memstore.New(nil),
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	w := NewAsyncPolicy(store, Options{Buffer: 1})

	w.OnSet(ctx, "first", nil, 0, nil)
	<-store.entered
	w.OnSet(ctx, "second", nil, 0, nil)

	var dropped error
	w.OnDelete(ctx, "third", func(err error) { dropped = err })
	if !errors.Is(dropped, ErrQueueFull) {
		t.Fatalf("expected drop to be reported through done, got %v", dropped)
	}

	close(store.release)
	go func() {
		for range store.entered {
		}
	}()
	w.Close()
	close(store.entered)
}

func TestQueuedSetKeepsLocalDeadline(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewMock()
	store := &blockingStore{
		Store:   memstore.New(clk),
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	_ = store.Store.Set(ctx, "short", []byte("old"), 0)
	w := NewAsyncPolicy(store, Options{Clock: clk})

	w.OnSet(ctx, "slow", []byte("1"), 0, nil)
	<-store.entered

	w.OnSet(ctx, "short", []byte("2"), 10*time.Millisecond, nil)
	w.OnSet(ctx, "long", []byte("3"), time.Minute, nil)
	clk.Add(15 * time.Millisecond)

	go func() {
		for range store.entered {
		}
	}()
	close(store.release)
	w.Close()
	close(store.entered)

	if _, found, _ := store.Get(ctx, "short"); found {
		t.Fatalf("expected a set that expired in the queue to remove the older remote value")
	}
	if _, found, _ := store.Get(ctx, "long"); !found {
		t.Fatalf("expected long to be mirrored")
	}
	clk.Add(time.Minute - 15*time.Millisecond)
	if _, found, _ := store.Get(ctx, "long"); found {
		t.Fatalf("expected remote copy of long to expire with the local entry")
	}
}

func TestModeValid(t *testing.T) {
	if !ModeAsync.Valid() || !ModeSync.Valid() || Mode("").Valid() == false {
		t.Fatalf("expected known modes to be valid")
	}
	if Mode("eventual").Valid() {
		t.Fatalf("expected unknown mode to be invalid")
	}
}
