package cli

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/vedvix/ledgersync/internal/config"
	"github.com/vedvix/ledgersync/internal/engine"
	"github.com/vedvix/ledgersync/internal/erp"
	"github.com/vedvix/ledgersync/internal/store"
)

// setup holds the wired dependencies shared by the commands.
type setup struct {
	cfg    *config.Config
	store  *store.Store
	engine *engine.Engine
}

// openSetup loads configuration, opens the store and builds the engine.
// The --db flag overrides the configured database path.
func openSetup(opts *RootOptions) (*setup, error) {
	cfg := config.Load()
	if opts.DBPath != "" {
		cfg.DatabasePath = opts.DBPath
	}

	if opts.Verbose {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	s, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open database", err)
	}

	client := erp.NewHTTPClient(cfg.ERP.BaseURL, cfg.ERP.APIKey, &http.Client{Timeout: cfg.ERP.Timeout})
	e := engine.New(s, client, engine.WithSyncTimeout(cfg.ERP.Timeout))

	return &setup{cfg: cfg, store: s, engine: e}, nil
}

func (s *setup) Close() {
	if err := s.store.Close(); err != nil {
		slog.Warn("close store", "error", err)
	}
}
