package engine

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/krisalay/artcache/internal/logging"
	"github.com/krisalay/artcache/remote/memstore"
	"github.com/krisalay/artcache/types"
	"github.com/krisalay/artcache/writepolicy"
)

type brokenCodec struct{}

var errCodec = errors.New("codec broken")

func (brokenCodec) Marshal(string) ([]byte, error)   { return nil, errCodec }
func (brokenCodec) Unmarshal([]byte) (string, error) { return "", errCodec }

func TestEngineWithoutRemote(t *testing.T) {
	e := NewCacheEngine(Options[string]{})

	if e.WritePolicy != nil {
		t.Fatalf("expected no write policy without a remote store")
	}

	// All remote hooks are no-ops.
	ctx := context.Background()
	e.OnWrite(ctx, "k", "v", time.Minute)
	e.OnDelete(ctx, "k")
	e.OnClear(ctx)

	if _, ok := e.Fallthrough(ctx, "k"); ok {
		t.Fatalf("expected a miss without a remote store")
	}
	if err := e.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestEngineMirrorsAndReadsBack(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewMock()
	store := memstore.New(clk)

	e := NewCacheEngine(Options[string]{
		Name:   "page",
		Clock:  clk,
		Remote: store,
		Mode:   writepolicy.ModeSync,
	})
	defer e.Close()

	if !e.Now().Equal(clk.Now()) {
		t.Fatalf("engine must read time from its clock")
	}

	e.OnWrite(ctx, "k", "hello", time.Minute)

	raw, ok, _ := store.Get(ctx, "k")
	if !ok || string(raw) != `"hello"` {
		t.Fatalf("expected JSON payload, got %q", raw)
	}

	v, ok := e.Fallthrough(ctx, "k")
	if !ok || v != "hello" {
		t.Fatalf("expected fall-through hit, got %q (ok=%v)", v, ok)
	}

	clk.Add(time.Minute)
	if _, ok := e.Fallthrough(ctx, "k"); ok {
		t.Fatalf("expected remote entry to expire with its ttl")
	}
}

func TestEngineReportsCodecFailures(t *testing.T) {
	ctx := context.Background()
	store := memstore.New(nil)
	store.Set(ctx, "k", []byte("x"), 0)

	var buf bytes.Buffer
	counters := &types.Counters{}

	e := NewCacheEngine(Options[string]{
		Name:    "api",
		Metrics: counters,
		Remote:  store,
		Mode:    writepolicy.ModeSync,
		Codec:   brokenCodec{},
		Logger:  logging.New(&buf, "warn"),
	})
	defer e.Close()

	e.OnWrite(ctx, "other", "v", time.Minute)
	if _, ok := e.Fallthrough(ctx, "k"); ok {
		t.Fatalf("expected an undecodable payload to be a miss")
	}

	if got := counters.Snapshot().RemoteErrors; got != 2 {
		t.Fatalf("expected 2 remote errors, got %d", got)
	}
	out := buf.String()
	for _, want := range []string{"remote cache operation failed", "cache=api", "codec broken"} {
		if !strings.Contains(out, want) {
			t.Fatalf("log output missing %q:\n%s", want, out)
		}
	}
}

// flakyStore fails removals while down is set.
type flakyStore struct {
	*memstore.Store
	down bool
}

func (f *flakyStore) Delete(ctx context.Context, key string) error {
	if f.down {
		return errors.New("store down")
	}
	return f.Store.Delete(ctx, key)
}

func (f *flakyStore) Clear(ctx context.Context) error {
	if f.down {
		return errors.New("store down")
	}
	return f.Store.Clear(ctx)
}

func TestFailedDeleteKeepsKeyHidden(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{Store: memstore.New(nil)}
	e := NewCacheEngine(Options[string]{
		Remote: store,
		Mode:   writepolicy.ModeSync,
		Logger: logging.New(io.Discard, "error"),
	})
	defer e.Close()

	e.OnWrite(ctx, "k", "v", time.Minute)
	store.down = true
	e.OnDelete(ctx, "k")

	if _, ok := e.Fallthrough(ctx, "k"); ok {
		t.Fatalf("expected a key whose remote delete failed to stay hidden")
	}

	// A later mirrored write makes the remote copy current again.
	store.down = false
	e.OnWrite(ctx, "k", "v2", time.Minute)
	if v, ok := e.Fallthrough(ctx, "k"); !ok || v != "v2" {
		t.Fatalf("expected v2 after a successful rewrite, got %q (ok=%v)", v, ok)
	}
}

func TestFailedClearDisablesFallthrough(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{Store: memstore.New(nil)}
	e := NewCacheEngine(Options[string]{
		Remote: store,
		Mode:   writepolicy.ModeSync,
		Logger: logging.New(io.Discard, "error"),
	})
	defer e.Close()

	e.OnWrite(ctx, "a", "1", time.Minute)
	store.down = true
	e.OnClear(ctx)

	if _, ok := e.Fallthrough(ctx, "a"); ok {
		t.Fatalf("expected no fall-through while a clear is unconfirmed")
	}

	store.down = false
	e.OnClear(ctx)
	e.OnWrite(ctx, "b", "2", time.Minute)
	if _, ok := e.Fallthrough(ctx, "a"); ok {
		t.Fatalf("expected a to be gone after the clear landed")
	}
	if v, ok := e.Fallthrough(ctx, "b"); !ok || v != "2" {
		t.Fatalf("expected fall-through to resume, got %q (ok=%v)", v, ok)
	}
}
