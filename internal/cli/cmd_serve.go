package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/scopesync/internal/api"
	"github.com/randalmurphal/scopesync/internal/connection"
	"github.com/randalmurphal/scopesync/internal/db"
	"github.com/randalmurphal/scopesync/internal/events"
	"github.com/randalmurphal/scopesync/internal/lock"
	"github.com/randalmurphal/scopesync/internal/storage"
	"github.com/randalmurphal/scopesync/internal/teamwork"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the connection API server",
		Long: `Run the internal connection API.

The server stores connections in the configured database, reads through to
Teamwork on behalf of a stored connection, and streams connection changes
over a websocket at /api/connections/feed. Only one server may use a SQLite
database at a time; a serve.pid file next to it records the owner.

Example:
  scopesync serve
  scopesync serve --addr :9000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if dir, ok := db.FileDir(cfg.Dialect(), cfg.Database.DSN); ok {
				guard := lock.NewPIDGuard(dir)
				if err := guard.Acquire(); err != nil {
					return err
				}
				defer guard.Release()
			}

			pub := events.NewMemoryPublisher(events.WithEvictSlowSubscribers())
			defer pub.Close()

			backend, err := storage.Open(ctx, cfg.Dialect(), cfg.Database.DSN, pub, logger)
			if err != nil {
				return fmt.Errorf("open storage: %w", err)
			}
			defer func() { _ = backend.Close() }()

			tw, err := teamwork.NewClient(cfg.ClientConfig(logger))
			if err != nil {
				return fmt.Errorf("create teamwork client: %w", err)
			}

			server, err := api.New(api.Config{
				Addr:            cfg.Server.Addr,
				Service:         connection.NewService(tw, backend, logger),
				Feed:            backend,
				Logger:          logger,
				ShutdownTimeout: cfg.Server.ShutdownTimeout,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Serving connections on http://%s (%s)\n", cfg.Server.Addr, cfg.Database.Dialect)
			fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl+C to stop")
			return server.StartContext(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}

// commandContext bounds a client command by the --timeout flag.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	if timeout <= 0 {
		return ctx, stop
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}
