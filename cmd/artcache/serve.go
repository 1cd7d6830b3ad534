package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/krisalay/artcache/internal/app"
	"github.com/krisalay/artcache/internal/errs"
	"github.com/krisalay/artcache/internal/logging"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the configured caches behind the HTTP admin API",
	RunE: withApp(func(cmd *cobra.Command, a *app.App) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		ctx = logging.WithLogger(ctx, a.Logger)
		ctx = logging.WithAttrs(ctx, slog.String("component", "serve"))

		errCh := make(chan error, 1)
		go func() {
			logging.Info(ctx, "http server listening",
				slog.String("addr", a.Server.Addr),
				slog.Any("caches", a.Registry.Names()),
				slog.String("remote", a.Config.Remote.Driver),
			)
			if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err, ok := <-errCh:
			if ok {
				return errs.Wrap(err, "http server")
			}
			return nil
		case <-ctx.Done():
		}

		logging.Info(ctx, "shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.Config.HTTP.ShutdownTimeout)
		defer cancel()
		if err := a.Server.Shutdown(shutdownCtx); err != nil {
			return errs.Wrap(err, "shutdown http server")
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
