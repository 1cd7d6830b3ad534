package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	cache "github.com/krisalay/artcache"
	"github.com/krisalay/artcache/internal/logging"
)

func newTestServer(t *testing.T) (*Server, *cache.Registry) {
	t.Helper()

	reg := cache.NewRegistry()
	t.Cleanup(func() { reg.Close() })

	for _, name := range []string{"page", "user"} {
		c, err := cache.New[any](cache.Config{Capacity: 2, DefaultTTL: time.Minute})
		if err != nil {
			t.Fatalf("new cache: %v", err)
		}
		if err := reg.Register(name, c); err != nil {
			t.Fatalf("register: %v", err)
		}
	}

	return NewServer(reg, logging.New(io.Discard, "error")), reg
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("unexpected response %d %q", rec.Code, rec.Body.String())
	}
}

func TestEntryLifecycle(t *testing.T) {
	srv, reg := newTestServer(t)

	rec := do(t, srv, http.MethodPut, "/caches/page/entries/home?ttl=30s", `{"title":"Home"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("put: %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, srv, http.MethodGet, "/caches/page/entries/home", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get: %d %s", rec.Code, rec.Body.String())
	}
	got := decode[entryResponse](t, rec)
	value, _ := got.Value.(map[string]any)
	if got.Key != "home" || value["title"] != "Home" || got.TTL != "30s" {
		t.Fatalf("unexpected entry: %+v", got)
	}

	// Caches in the registry are isolated.
	if rec := do(t, srv, http.MethodGet, "/caches/user/entries/home", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 from another cache, got %d", rec.Code)
	}

	rec = do(t, srv, http.MethodDelete, "/caches/page/entries/home", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", rec.Code)
	}
	if rec := do(t, srv, http.MethodGet, "/caches/page/entries/home", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}

	page, _ := reg.Cache("page")
	if page.Len() != 0 {
		t.Fatalf("expected empty cache, len=%d", page.Len())
	}
}

func TestPutRejectsBadInput(t *testing.T) {
	srv, _ := newTestServer(t)

	cases := map[string]struct{ target, body string }{
		"bad ttl":      {"/caches/page/entries/k?ttl=soon", `1`},
		"negative ttl": {"/caches/page/entries/k?ttl=-1s", `1`},
		"bad json":     {"/caches/page/entries/k", `{`},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if rec := do(t, srv, http.MethodPut, tc.target, tc.body); rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestKeysStatsSweepAndClear(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, k := range []string{"a", "b", "c"} {
		if rec := do(t, srv, http.MethodPut, "/caches/page/entries/"+k, `"v"`); rec.Code != http.StatusOK {
			t.Fatalf("put %s: %d", k, rec.Code)
		}
	}

	keys := decode[keysResponse](t, do(t, srv, http.MethodGet, "/caches/page/keys", ""))
	if len(keys.Keys) != 2 {
		t.Fatalf("expected capacity to hold 2 keys, got %v", keys.Keys)
	}

	stats := decode[cache.Stats](t, do(t, srv, http.MethodGet, "/caches/page/stats", ""))
	if stats.Len != 2 || stats.Capacity != 2 || stats.Evictions != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	all := decode[[]cache.Stats](t, do(t, srv, http.MethodGet, "/caches", ""))
	if len(all) != 2 {
		t.Fatalf("expected 2 caches listed, got %d", len(all))
	}

	sweep := decode[sweepResponse](t, do(t, srv, http.MethodPost, "/caches/page/sweep", ""))
	if sweep.Removed != 0 {
		t.Fatalf("expected nothing to sweep, got %d", sweep.Removed)
	}

	if rec := do(t, srv, http.MethodDelete, "/caches/page", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("clear: %d", rec.Code)
	}
	stats = decode[cache.Stats](t, do(t, srv, http.MethodGet, "/caches/page/stats", ""))
	if stats.Len != 0 {
		t.Fatalf("expected empty cache after clear, got %d", stats.Len)
	}
}

func TestUnknownCache(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, target := range []string{"/caches/nope/stats", "/caches/nope/keys", "/caches/nope/entries/k"} {
		if rec := do(t, srv, http.MethodGet, target, ""); rec.Code != http.StatusNotFound {
			t.Fatalf("%s: expected 404, got %d", target, rec.Code)
		}
	}
}
