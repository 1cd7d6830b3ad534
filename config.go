package cache

import (
	"log/slog"
	"strings"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/krisalay/artcache/eviction"
	"github.com/krisalay/artcache/internal/errs"
	"github.com/krisalay/artcache/remote"
	"github.com/krisalay/artcache/types"
	"github.com/krisalay/artcache/writepolicy"
)

const (
	DefaultCapacity = 1000
	DefaultTTL      = 5 * time.Minute
)

/*
Config holds the plain settings of one cache instance.

Zero values mean "use the default". Negative values are rejected by New.
*/
type Config struct {
	// Name identifies the cache in logs and in a Registry.
	Name string `mapstructure:"name" yaml:"name,omitempty"`

	// Capacity is the maximum number of stored entries.
	Capacity int `mapstructure:"capacity" yaml:"capacity"`

	// DefaultTTL applies to writes that do not pass their own TTL.
	DefaultTTL time.Duration `mapstructure:"default_ttl" yaml:"default_ttl"`

	// Eviction picks the victim when the cache is full. FIFO unless set.
	Eviction eviction.PolicyType `mapstructure:"eviction" yaml:"eviction"`

	// SweepInterval > 0 starts a janitor that purges expired entries
	// periodically. Expiry is always also checked lazily on access.
	SweepInterval time.Duration `mapstructure:"sweep_interval" yaml:"sweep_interval"`

	// Coalesce makes concurrent GetOrSet misses for one key share a
	// single producer call. Cancelling the caller that started it does
	// not cancel the shared call.
	Coalesce bool `mapstructure:"coalesce" yaml:"coalesce"`

	// MirrorMode selects how writes reach the remote store. Async unless set.
	MirrorMode writepolicy.Mode `mapstructure:"mirror_mode" yaml:"mirror_mode"`

	// MirrorBuffer is the async mirror queue length.
	MirrorBuffer int `mapstructure:"mirror_buffer" yaml:"mirror_buffer"`

	// RemoteTimeout bounds each remote call.
	RemoteTimeout time.Duration `mapstructure:"remote_timeout" yaml:"remote_timeout"`
}

// Build validates the config and fills in defaults.
func (c Config) Build() (Config, error) {
	if c.Capacity < 0 {
		return c, errs.Wrapf(ErrInvalidConfig, "capacity %d", c.Capacity)
	}
	if c.DefaultTTL < 0 {
		return c, errs.Wrapf(ErrInvalidConfig, "default ttl %s", c.DefaultTTL)
	}
	if c.SweepInterval < 0 {
		return c, errs.Wrapf(ErrInvalidConfig, "sweep interval %s", c.SweepInterval)
	}
	if c.MirrorBuffer < 0 || c.RemoteTimeout < 0 {
		return c, errs.Wrap(ErrInvalidConfig, "negative mirror settings")
	}
	c.Eviction = eviction.PolicyType(strings.ToUpper(string(c.Eviction)))
	c.MirrorMode = writepolicy.Mode(strings.ToLower(string(c.MirrorMode)))
	if c.Eviction != "" && !c.Eviction.Valid() {
		return c, errs.Wrapf(ErrInvalidConfig, "eviction policy %q", c.Eviction)
	}
	if !c.MirrorMode.Valid() {
		return c, errs.Wrapf(ErrInvalidConfig, "mirror mode %q", c.MirrorMode)
	}

	if c.Capacity == 0 {
		c.Capacity = DefaultCapacity
	}
	if c.DefaultTTL == 0 {
		c.DefaultTTL = DefaultTTL
	}
	if c.Eviction == "" {
		c.Eviction = eviction.FIFO
	}
	if c.MirrorMode == "" {
		c.MirrorMode = writepolicy.ModeAsync
	}
	if c.MirrorBuffer == 0 {
		c.MirrorBuffer = writepolicy.DefaultBuffer
	}
	if c.RemoteTimeout == 0 {
		c.RemoteTimeout = writepolicy.DefaultTimeout
	}
	return c, nil
}

// Option supplies a collaborator to New.
type Option func(*options)

type options struct {
	clock   clock.Clock
	remote  remote.Store
	metrics types.Metrics
	logger  *slog.Logger
	codec   any
}

// WithClock replaces the wall clock, typically with clock.NewMock() in tests.
func WithClock(clk clock.Clock) Option {
	return func(o *options) { o.clock = clk }
}

// WithRemote mirrors writes to store and consults it on local misses.
// The cache takes ownership and closes store on Close.
func WithRemote(store remote.Store) Option {
	return func(o *options) { o.remote = store }
}

// WithMetrics adds a metrics hook next to the cache's own counters.
func WithMetrics(m types.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithLogger sets the logger used for remote failures.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithCodec replaces the JSON codec used for remote payloads.
// Its type parameter must match the cache's value type.
func WithCodec[V any](c types.Codec[V]) Option {
	return func(o *options) { o.codec = c }
}
