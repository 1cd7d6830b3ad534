package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/krisalay/artcache/internal/errs"
	"github.com/krisalay/artcache/internal/logging"
)

var (
	cfgFile string
	envFile string
)

var rootCmd = &cobra.Command{
	Use:          "artcache",
	Short:        "Bounded TTL caches with an optional shared backstop",
	Long:         "artcache runs named in-memory TTL caches with FIFO eviction, mirrored to Redis, NATS KV or SQLite when configured.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadEnvFile(cmd.Context(), envFile)
	},
}

// Execute runs the root command. It is called once by main.
func Execute(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}

	logger := logging.New(rootCmd.ErrOrStderr(), os.Getenv("ARTCACHE_LOG_LEVEL"))
	ctx = logging.WithLogger(ctx, logger)
	ctx = logging.WithAttrs(ctx, slog.String("app", "artcache"))

	rootCmd.SetContext(ctx)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logging.Error(ctx, "command execution failed", slog.Any("err", errs.Loggable(err)))
		return errs.Wrap(err, "execute root command")
	}
	return nil
}

// loadEnvFile populates the environment from path before config is read.
// A missing file is fine; existing variables win.
func loadEnvFile(ctx context.Context, path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logging.Debug(ctx, "env file not found", slog.String("path", path))
			return nil
		}
		return errs.Wrapf(err, "load env file %s", path)
	}
	logging.Debug(ctx, "environment loaded", slog.String("path", path))
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file path (default: ./configs/artcache.yaml or ./artcache.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Env file loaded before the config")
}
