// Package memstore is an in-process remote.Store. It stands in for a real
// shared store in tests and in the demo command.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/krisalay/artcache/remote"
)

type item struct {
	value     []byte
	expiresAt time.Time // zero => no TTL
}

type Store struct {
	mu    sync.RWMutex
	clock clock.Clock
	data  map[string]item
}

var _ remote.Store = (*Store)(nil)

// New returns an empty store. A nil clk means the wall clock.
func New(clk clock.Clock) *Store {
	if clk == nil {
		clk = clock.New()
	}
	return &Store{clock: clk, data: make(map[string]item)}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if key == "" {
		return nil, false, remote.ErrEmptyKey
	}

	s.mu.RLock()
	it, ok := s.data[key]
	s.mu.RUnlock()

	if !ok {
		return nil, false, nil
	}
	if !it.expiresAt.IsZero() && !s.clock.Now().Before(it.expiresAt) {
		s.mu.Lock()
		delete(s.data, key)
		s.mu.Unlock()
		return nil, false, nil
	}
	return append([]byte(nil), it.value...), true, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if key == "" {
		return remote.ErrEmptyKey
	}

	it := item{value: append([]byte(nil), value...)}
	if ttl > 0 {
		it.expiresAt = s.clock.Now().Add(ttl)
	}

	s.mu.Lock()
	s.data[key] = it
	s.mu.Unlock()
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if key == "" {
		return remote.ErrEmptyKey
	}

	s.mu.Lock()
	delete(s.data, key)
	s.mu.Unlock()
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.data = make(map[string]item)
	s.mu.Unlock()
	return nil
}

func (s *Store) Close() error { return nil }

// Keys returns every stored key, expired or not, sorted.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.data))
	for k := range s.data {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
