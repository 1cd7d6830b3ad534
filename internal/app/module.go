package app

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/fx"

	cache "github.com/krisalay/artcache"
	"github.com/krisalay/artcache/expiration"
	"github.com/krisalay/artcache/internal/config"
	"github.com/krisalay/artcache/internal/errs"
	"github.com/krisalay/artcache/internal/httpapi"
	"github.com/krisalay/artcache/internal/logging"
	"github.com/krisalay/artcache/remote"
	"github.com/krisalay/artcache/remote/memstore"
	"github.com/krisalay/artcache/remote/natsstore"
	"github.com/krisalay/artcache/remote/redisstore"
	"github.com/krisalay/artcache/remote/sqlitestore"
)

// App is what commands get once the module has started.
type App struct {
	Config   config.Config
	Logger   *slog.Logger
	Registry *cache.Registry
	Server   *http.Server
}

var Module = fx.Options(
	fx.Provide(provideConfig),
	fx.Provide(provideLogger),
	fx.Provide(provideStoreFactory),
	fx.Provide(provideRegistry),
	fx.Provide(provideHTTPServer),
	fx.Provide(provideApp),
)

// StoreFactory returns the remote store for one named cache, or nil when
// no remote is configured. Shared connections stay owned by the module.
type StoreFactory func(ctx context.Context, name string) (remote.Store, error)

type configParams struct {
	fx.In

	Ctx        context.Context
	ConfigFile string `name:"configFile"`
}

func provideConfig(p configParams) (config.Config, error) {
	ctx := logging.WithAttrs(p.Ctx, slog.String("component", "app.fx"))
	return config.Load(ctx, p.ConfigFile)
}

func provideLogger(cfg config.Config) *slog.Logger {
	return logging.New(os.Stderr, cfg.Log.Level)
}

func provideStoreFactory(lc fx.Lifecycle, ctx context.Context, cfg config.Config, logger *slog.Logger) (StoreFactory, error) {
	logCtx := logging.WithLogger(ctx, logger)
	logCtx = logging.WithAttrs(logCtx,
		slog.String("component", "app.remote"),
		slog.String("driver", cfg.Remote.Driver),
	)

	rc := cfg.Remote
	switch rc.Driver {
	case config.DriverMemory:
		logging.Info(logCtx, "remote store ready")
		return func(context.Context, string) (remote.Store, error) {
			return memstore.New(nil), nil
		}, nil

	case config.DriverRedis:
		base, err := redisstore.Dial(ctx, redisstore.Options{
			Addr:     rc.Redis.Addr,
			Username: rc.Redis.Username,
			Password: rc.Redis.Password,
			DB:       rc.Redis.DB,
		})
		if err != nil {
			return nil, errs.Wrap(err, "connect redis")
		}
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error { return base.Close() },
		})
		logging.Info(logCtx, "remote store ready", slog.String("addr", rc.Redis.Addr))

		return func(_ context.Context, name string) (remote.Store, error) {
			return base.WithPrefix(rc.Redis.Prefix + ":" + name + ":"), nil
		}, nil

	case config.DriverNATS:
		nc, err := nats.Connect(rc.NATS.URL, nats.Name("artcache"))
		if err != nil {
			return nil, errs.Wrapf(err, "connect nats %s", rc.NATS.URL)
		}
		js, err := jetstream.New(nc)
		if err != nil {
			nc.Close()
			return nil, errs.Wrap(err, "open jetstream")
		}
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error { return nc.Drain() },
		})
		logging.Info(logCtx, "remote store ready", slog.String("url", rc.NATS.URL))

		return func(ctx context.Context, name string) (remote.Store, error) {
			return natsstore.Open(ctx, js, rc.NATS.BucketPrefix+"_"+name, rc.NATS.TTL)
		}, nil

	case config.DriverSQLite:
		db, err := sqlitestore.Open(ctx, rc.SQLite.DSN)
		if err != nil {
			return nil, err
		}

		clk := clock.New()
		purger := expiration.NewJanitor(clk, rc.SQLite.PurgeInterval, func() int {
			n, err := sqlitestore.PurgeExpired(context.Background(), db, clk.Now())
			if err != nil {
				logging.Warn(logCtx, "purge expired rows failed", slog.Any("err", errs.Loggable(err)))
			}
			return int(n)
		})

		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				purger.Start()
				return nil
			},
			OnStop: func(context.Context) error {
				purger.Stop()
				sqlDB, err := db.DB()
				if err != nil {
					return err
				}
				return sqlDB.Close()
			},
		})
		logging.Info(logCtx, "remote store ready", slog.String("dsn", rc.SQLite.DSN))

		return func(_ context.Context, name string) (remote.Store, error) {
			return sqlitestore.New(db, name, clk), nil
		}, nil

	default:
		return func(context.Context, string) (remote.Store, error) { return nil, nil }, nil
	}
}

func provideRegistry(lc fx.Lifecycle, ctx context.Context, cfg config.Config, stores StoreFactory, logger *slog.Logger) (*cache.Registry, error) {
	reg := cache.NewRegistry()
	caches := cfg.CacheConfigs()

	for _, name := range cfg.CacheNames() {
		store, err := stores(ctx, name)
		if err != nil {
			_ = reg.Close()
			return nil, errs.Wrapf(err, "remote store for cache %q", name)
		}

		opts := []cache.Option{cache.WithLogger(logger)}
		if store != nil {
			opts = append(opts, cache.WithRemote(store))
		}

		c, err := cache.New[any](caches[name], opts...)
		if err != nil {
			_ = reg.Close()
			return nil, errs.Wrapf(err, "build cache %q", name)
		}
		if err := reg.Register(name, c); err != nil {
			_ = c.Close()
			_ = reg.Close()
			return nil, err
		}
	}

	// Appended after the store hooks, so it stops first and flushes
	// pending mirror writes while connections are still open.
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error { return reg.Close() },
	})
	return reg, nil
}

func provideHTTPServer(cfg config.Config, reg *cache.Registry, logger *slog.Logger) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           httpapi.NewServer(reg, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func provideApp(cfg config.Config, logger *slog.Logger, reg *cache.Registry, srv *http.Server) *App {
	return &App{
		Config:   cfg,
		Logger:   logger,
		Registry: reg,
		Server:   srv,
	}
}
