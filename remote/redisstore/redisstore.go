// Package redisstore mirrors cache entries into Redis.
package redisstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/krisalay/artcache/internal/errs"
	"github.com/krisalay/artcache/remote"
)

// clearBatch bounds how many keys one SCAN page and one DEL call carry.
const clearBatch = 256

/*
Store keeps every key under a prefix so several named caches can share one
Redis database without colliding, and so Clear only touches its own keys.
*/
type Store struct {
	client redis.UniversalClient
	prefix string
	owned  bool
}

var _ remote.Store = (*Store)(nil)

// New wraps an existing client. Close does not close it.
func New(client redis.UniversalClient, prefix string) *Store {
	return &Store{client: client, prefix: prefix}
}

// Options configures Dial.
type Options struct {
	Addr     string
	Username string
	Password string
	DB       int
	Prefix   string
}

// Dial connects to Redis and verifies the connection with PING.
// The returned store owns the client.
func Dial(ctx context.Context, opts Options) (*Store, error) {
	if strings.TrimSpace(opts.Addr) == "" {
		return nil, errors.New("redis addr is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Username: opts.Username,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errs.Wrapf(err, "ping redis %s", opts.Addr)
	}

	return &Store{client: client, prefix: opts.Prefix, owned: true}, nil
}

// WithPrefix returns a store sharing the same client under another prefix.
func (s *Store) WithPrefix(prefix string) *Store {
	return &Store{client: s.client, prefix: prefix}
}

func (s *Store) key(k string) string {
	return s.prefix + k
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if key == "" {
		return nil, false, remote.ErrEmptyKey
	}

	b, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, errs.Wrap(err, "redis get")
	}
	return b, true, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return remote.ErrEmptyKey
	}
	if ttl < 0 {
		ttl = 0
	}

	if err := s.client.Set(ctx, s.key(key), value, ttl).Err(); err != nil {
		return errs.Wrap(err, "redis set")
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if key == "" {
		return remote.ErrEmptyKey
	}

	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return errs.Wrap(err, "redis del")
	}
	return nil
}

// Clear deletes every key under the prefix. With an empty prefix it
// flushes the selected database.
func (s *Store) Clear(ctx context.Context) error {
	if s.prefix == "" {
		if err := s.client.FlushDB(ctx).Err(); err != nil {
			return errs.Wrap(err, "redis flushdb")
		}
		return nil
	}

	batch := make([]string, 0, clearBatch)
	iter := s.client.Scan(ctx, 0, s.prefix+"*", clearBatch).Iterator()
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == clearBatch {
			if err := s.client.Del(ctx, batch...).Err(); err != nil {
				return errs.Wrap(err, "redis del batch")
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return errs.Wrap(err, "redis scan")
	}
	if len(batch) > 0 {
		if err := s.client.Del(ctx, batch...).Err(); err != nil {
			return errs.Wrap(err, "redis del batch")
		}
	}
	return nil
}

func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.client.Close()
}
