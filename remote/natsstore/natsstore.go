// Package natsstore mirrors cache entries into a NATS JetStream key/value bucket.
package natsstore

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/krisalay/artcache/internal/errs"
	"github.com/krisalay/artcache/remote"
)

/*
Store maps one cache onto one KV bucket.

JetStream keys only allow a restricted alphabet, so cache keys are stored
base64url encoded. The bucket TTL bounds how long anything is kept; the
per-entry ttl is stored as an 8 byte deadline in front of the value and
checked on Get.
*/
type Store struct {
	kv    jetstream.KeyValue
	clock clock.Clock
}

var _ remote.Store = (*Store)(nil)

const headerLen = 8

// New wraps an existing bucket handle. A nil clk means the wall clock.
func New(kv jetstream.KeyValue, clk clock.Clock) *Store {
	if clk == nil {
		clk = clock.New()
	}
	return &Store{kv: kv, clock: clk}
}

// Open creates the bucket if needed (or updates its TTL) and returns a store on it.
func Open(ctx context.Context, js jetstream.JetStream, bucket string, ttl time.Duration) (*Store, error) {
	if strings.TrimSpace(bucket) == "" {
		return nil, errors.New("nats bucket is required")
	}

	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:  bucket,
		TTL:     ttl,
		History: 1,
	})
	if err != nil {
		return nil, errs.Wrapf(err, "open kv bucket %q", bucket)
	}
	return New(kv, nil), nil
}

func encodeKey(key string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(key))
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if key == "" {
		return nil, false, remote.ErrEmptyKey
	}

	entry, err := s.kv.Get(ctx, encodeKey(key))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, false, nil
		}
		return nil, false, errs.Wrap(err, "kv get")
	}

	raw := entry.Value()
	if len(raw) < headerLen {
		return nil, false, errs.Wrapf(remote.ErrCorrupt, "kv value for %q", key)
	}
	if deadline := int64(binary.BigEndian.Uint64(raw)); deadline != 0 && s.clock.Now().UnixNano() >= deadline {
		return nil, false, nil
	}
	return raw[headerLen:], true, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return remote.ErrEmptyKey
	}

	raw := make([]byte, headerLen+len(value))
	if ttl > 0 {
		binary.BigEndian.PutUint64(raw, uint64(s.clock.Now().Add(ttl).UnixNano()))
	}
	copy(raw[headerLen:], value)

	if _, err := s.kv.Put(ctx, encodeKey(key), raw); err != nil {
		return errs.Wrap(err, "kv put")
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if key == "" {
		return remote.ErrEmptyKey
	}

	if err := s.kv.Delete(ctx, encodeKey(key)); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return errs.Wrap(err, "kv delete")
	}
	return nil
}

// Clear purges every key in the bucket.
func (s *Store) Clear(ctx context.Context) error {
	keys, err := s.kv.Keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil
		}
		return errs.Wrap(err, "kv keys")
	}

	for _, k := range keys {
		if err := s.kv.Purge(ctx, k); err != nil {
			return errs.Wrapf(err, "kv purge %q", k)
		}
	}
	return nil
}

// Close is a no-op: the connection belongs to whoever opened it.
func (s *Store) Close() error { return nil }
