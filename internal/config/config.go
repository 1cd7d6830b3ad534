package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"

	cache "github.com/krisalay/artcache"
	"github.com/krisalay/artcache/internal/errs"
	"github.com/krisalay/artcache/internal/logging"
	"github.com/krisalay/artcache/writepolicy"
)

// Remote drivers.
const (
	DriverNone   = "none"
	DriverMemory = "memory"
	DriverRedis  = "redis"
	DriverNATS   = "nats"
	DriverSQLite = "sqlite"
)

const EnvPrefix = "ARTCACHE"

type Config struct {
	HTTP   HTTPConfig              `mapstructure:"http" yaml:"http"`
	Log    LogConfig               `mapstructure:"log" yaml:"log"`
	Remote RemoteConfig            `mapstructure:"remote" yaml:"remote"`
	Caches map[string]cache.Config `mapstructure:"caches" yaml:"caches"`
}

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
}

// RemoteConfig selects the shared backstop every cache mirrors to.
// Mode, Buffer and Timeout apply to caches that do not set their own.
type RemoteConfig struct {
	Driver  string           `mapstructure:"driver" yaml:"driver"`
	Mode    writepolicy.Mode `mapstructure:"mode" yaml:"mode"`
	Buffer  int              `mapstructure:"buffer" yaml:"buffer"`
	Timeout time.Duration    `mapstructure:"timeout" yaml:"timeout"`

	Redis  RedisConfig  `mapstructure:"redis" yaml:"redis"`
	NATS   NATSConfig   `mapstructure:"nats" yaml:"nats"`
	SQLite SQLiteConfig `mapstructure:"sqlite" yaml:"sqlite"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Username string `mapstructure:"username" yaml:"username,omitempty"`
	Password string `mapstructure:"password" yaml:"-"`
	DB       int    `mapstructure:"db" yaml:"db"`
	// Prefix is prepended to "<cache name>:" for every key.
	Prefix string `mapstructure:"prefix" yaml:"prefix"`
}

type NATSConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
	// BucketPrefix is joined with the cache name to form one KV bucket per cache.
	BucketPrefix string        `mapstructure:"bucket_prefix" yaml:"bucket_prefix"`
	TTL          time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

type SQLiteConfig struct {
	DSN string `mapstructure:"dsn" yaml:"dsn"`
	// PurgeInterval > 0 deletes expired rows periodically; reads skip them either way.
	PurgeInterval time.Duration `mapstructure:"purge_interval" yaml:"purge_interval"`
}

func Load(ctx context.Context, configFile string) (Config, error) {
	if ctx == nil {
		return Config{}, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return Config{}, errs.Wrap(err, "check context")
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "config"))

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("artcache")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile == "" && errors.As(err, &notFound) {
			logging.Debug(logCtx, "config file not found, using defaults and env")
		} else {
			return Config{}, errs.Wrap(err, "read config")
		}
	} else {
		logging.Info(logCtx, "using config file", slog.String("path", v.ConfigFileUsed()))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errs.Wrap(err, "unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	logging.Debug(
		logCtx,
		"config loaded",
		slog.String("remote_driver", cfg.Remote.Driver),
		slog.Int("caches", len(cfg.Caches)),
	)
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.shutdown_timeout", 10*time.Second)
	v.SetDefault("log.level", "info")

	v.SetDefault("remote.driver", DriverNone)
	v.SetDefault("remote.mode", string(writepolicy.ModeAsync))
	v.SetDefault("remote.buffer", writepolicy.DefaultBuffer)
	v.SetDefault("remote.timeout", writepolicy.DefaultTimeout)
	v.SetDefault("remote.redis.addr", "localhost:6379")
	v.SetDefault("remote.redis.db", 0)
	v.SetDefault("remote.redis.prefix", "artcache")
	v.SetDefault("remote.redis.username", "")
	v.SetDefault("remote.redis.password", "")
	v.SetDefault("remote.nats.url", "nats://127.0.0.1:4222")
	v.SetDefault("remote.nats.bucket_prefix", "artcache")
	v.SetDefault("remote.nats.ttl", 24*time.Hour)
	v.SetDefault("remote.sqlite.dsn", ".artcache/remote.sqlite")
	v.SetDefault("remote.sqlite.purge_interval", 10*time.Minute)

	// Keys must exist as defaults for env overrides such as
	// ARTCACHE_CACHES_PAGE_CAPACITY to be picked up.
	for name, c := range cache.Presets() {
		prefix := "caches." + name + "."
		v.SetDefault(prefix+"capacity", c.Capacity)
		v.SetDefault(prefix+"default_ttl", c.DefaultTTL)
		v.SetDefault(prefix+"eviction", "")
		v.SetDefault(prefix+"sweep_interval", time.Duration(0))
		v.SetDefault(prefix+"coalesce", false)

		// Empty means "inherit from remote.*" in CacheConfigs.
		v.SetDefault(prefix+"mirror_mode", "")
		v.SetDefault(prefix+"mirror_buffer", 0)
		v.SetDefault(prefix+"remote_timeout", time.Duration(0))
	}
}

// Validate checks the driver and every cache's settings.
func (c Config) Validate() error {
	switch c.Remote.Driver {
	case DriverNone, DriverMemory, DriverRedis, DriverNATS, DriverSQLite:
	default:
		return fmt.Errorf("remote.driver %q is not one of none, memory, redis, nats, sqlite", c.Remote.Driver)
	}
	if !c.Remote.Mode.Valid() {
		return fmt.Errorf("remote.mode %q is not one of async, sync", c.Remote.Mode)
	}
	if len(c.Caches) == 0 {
		return errors.New("at least one cache is required")
	}

	for name, cc := range c.CacheConfigs() {
		if _, err := cc.Build(); err != nil {
			return errs.Wrapf(err, "caches.%s", name)
		}
	}
	return nil
}

// CacheConfigs returns the per-cache settings with names and remote
// defaults filled in.
func (c Config) CacheConfigs() map[string]cache.Config {
	out := make(map[string]cache.Config, len(c.Caches))
	for name, cc := range c.Caches {
		cc.Name = name
		if cc.MirrorMode == "" {
			cc.MirrorMode = c.Remote.Mode
		}
		if cc.MirrorBuffer == 0 {
			cc.MirrorBuffer = c.Remote.Buffer
		}
		if cc.RemoteTimeout == 0 {
			cc.RemoteTimeout = c.Remote.Timeout
		}
		out[name] = cc
	}
	return out
}

// CacheNames returns the configured cache names, sorted.
func (c Config) CacheNames() []string {
	names := make([]string, 0, len(c.Caches))
	for name := range c.Caches {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
