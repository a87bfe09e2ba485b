package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"cencori/internal/app"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}

			slog.Info("starting cencori", "version", version, "commit", commit, "build_date", date)

			application, err := app.New(cmd.Context(), app.Config{AppConfig: cfg})
			if err != nil {
				return err
			}

			done := make(chan struct{})
			go func() {
				defer close(done)
				quit := make(chan os.Signal, 1)
				signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
				<-quit

				ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				if err := application.Shutdown(ctx); err != nil {
					slog.Error("shutdown error", "error", err)
				}
			}()

			if err := application.Start(":" + cfg.Server.Port); err != nil {
				_ = application.Shutdown(context.Background())
				return err
			}
			// Start returns once Shutdown has closed the listener; wait for the
			// request log to drain.
			<-done
			return nil
		},
	}
}
