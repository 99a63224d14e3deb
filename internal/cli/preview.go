package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vedvix/ledgersync/internal/engine"
	"github.com/vedvix/ledgersync/internal/profileio"
)

// PreviewOptions holds flags for the preview command.
type PreviewOptions struct {
	*RootOptions
	BagPath string
}

// NewPreviewCommand creates the preview command.
func NewPreviewCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PreviewOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "preview <profile-id>",
		Short: "Run a profile against a sample field bag without syncing",
		Long: `Run a profile against a sample field bag without syncing.

Resolves every rule of the profile against the fields in --bag and
prints the assembled payload and per-rule trace. Nothing is persisted
and the accounting system is never contacted.

Exit code 1 indicates required destination fields stayed unresolved.

Example:
  ledgersync preview prof-123 --bag extracted.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPreview(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.BagPath, "bag", "", "YAML file with sample extracted fields (required)")
	_ = cmd.MarkFlagRequired("bag")

	return cmd
}

func runPreview(cmd *cobra.Command, opts *PreviewOptions, profileID string) error {
	bag, err := profileio.LoadBag(opts.BagPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "load field bag", err)
	}

	s, err := openSetup(opts.RootOptions)
	if err != nil {
		return err
	}
	defer s.Close()

	profile, err := s.store.GetProfile(cmd.Context(), profileID)
	if err != nil {
		return WrapExitError(ExitCommandError, "load profile", err)
	}

	payload, execErr := engine.PreviewProfile(profile, bag)

	if opts.Format == "json" {
		out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
		if err := out.Success(map[string]any{
			"payload":             payload,
			"unresolved_required": payload.UnresolvedRequired(),
			"complete":            execErr == nil,
		}); err != nil {
			return err
		}
	} else {
		for _, res := range payload.Trace {
			line := fmt.Sprintf("%-24s %-24s %q", res.Target, res.Outcome, res.Value)
			if res.Detail != "" {
				line += "  (" + res.Detail + ")"
			}
			fmt.Fprintln(cmd.OutOrStdout(), line)
		}
		values, _ := json.MarshalIndent(payload.Values, "", "  ")
		fmt.Fprintf(cmd.OutOrStdout(), "\npayload: %s\n", values)
	}

	if execErr != nil {
		return WrapExitError(ExitFailure, "mapping incomplete", execErr)
	}
	return nil
}
