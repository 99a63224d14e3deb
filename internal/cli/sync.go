package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vedvix/ledgersync/internal/engine"
)

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync <invoice-id>",
		Short: "Run one sync attempt for an approved invoice",
		Long: `Run one sync attempt for an approved invoice.

The attempt is idempotent: an invoice that already has an external
record is reported as synced without contacting the accounting system.

Exit code 1 indicates the attempt failed (incomplete mapping, rejected
payload, transport failure); the invoice and attempt log carry the
detail.

Example:
  ledgersync sync 7c0e5c1a-...`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, rootOpts, args[0])
		},
	}
	return cmd
}

func runSync(cmd *cobra.Command, opts *RootOptions, invoiceID string) error {
	s, err := openSetup(opts)
	if err != nil {
		return err
	}
	defer s.Close()

	inv, err := s.engine.AttemptSync(cmd.Context(), invoiceID, engine.TriggerOperator)
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}

	if err != nil {
		code := inv.LastSyncErrorCode
		if code == "" {
			code = "SYNC_FAILED"
		}
		_ = out.Error(code, err.Error(), nil)
		return WrapExitError(ExitFailure, "sync failed", err)
	}

	if opts.Format == "json" {
		return out.Success(inv)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "invoice %s synced (external record %s, attempt %d)\n",
		inv.ID, inv.ExternalRecordID, inv.SyncAttempts)
	return nil
}

// NewSweepCommand creates the sweep command.
func NewSweepCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "sweep",
		Short:         "Re-attempt all retriable sync failures once",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep(cmd, rootOpts)
		},
	}
	return cmd
}

func runSweep(cmd *cobra.Command, opts *RootOptions) error {
	s, err := openSetup(opts)
	if err != nil {
		return err
	}
	defer s.Close()

	res, err := s.engine.RetrySweep(cmd.Context())
	if err != nil {
		return WrapExitError(ExitCommandError, "sweep", err)
	}

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	if opts.Format == "json" {
		return out.Success(res)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "sweep: attempted %d, synced %d, failed %d\n",
		res.Attempted, res.Synced, res.Failed)

	if res.Failed > 0 {
		return WrapExitError(ExitFailure, fmt.Sprintf("%d invoices still failing", res.Failed), nil)
	}
	return nil
}
