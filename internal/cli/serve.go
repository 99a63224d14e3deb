package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vedvix/ledgersync/internal/server"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		Long: `Run the HTTP API server.

Serves the profile and invoice API and, unless disabled, runs the
scheduled retry sweep for retriable sync failures.

Example:
  ledgersync serve --db ledgersync.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), rootOpts)
		},
	}
	return cmd
}

func runServe(ctx context.Context, opts *RootOptions) error {
	s, err := openSetup(opts)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if s.cfg.Sweep.Enabled {
		go runSweepLoop(ctx, s)
	}

	srv := &http.Server{
		Addr:    s.cfg.Addr(),
		Handler: server.New(s.store, s.engine).Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("api server listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return WrapExitError(ExitCommandError, "shutdown", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return WrapExitError(ExitCommandError, "serve", err)
	}
}

// runSweepLoop re-attempts retriable sync failures on a fixed interval
// until the context is cancelled.
func runSweepLoop(ctx context.Context, s *setup) {
	ticker := time.NewTicker(s.cfg.Sweep.Interval)
	defer ticker.Stop()

	slog.Info("retry sweep scheduled", "interval", s.cfg.Sweep.Interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.engine.RetrySweep(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("retry sweep failed", "error", err)
			}
		}
	}
}
