package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/vedvix/ledgersync/internal/profileio"
)

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <profiles.yaml>",
		Short: "Import mapping profiles from a YAML document",
		Long: `Import mapping profiles from a YAML document.

The document names the owning organization and one or more profiles.
Profiles are validated before anything is written; a name collision
with an existing profile aborts the import.

Example:
  ledgersync import profiles.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, rootOpts, args[0])
		},
	}
	return cmd
}

func runImport(cmd *cobra.Command, opts *RootOptions, path string) error {
	doc, err := profileio.Load(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "load profile document", err)
	}

	s, err := openSetup(opts)
	if err != nil {
		return err
	}
	defer s.Close()

	results, err := profileio.Import(cmd.Context(), s.store, doc)
	if err != nil {
		return WrapExitError(ExitFailure, "import", err)
	}

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	if opts.Format == "json" {
		return out.Success(results)
	}

	for _, r := range results {
		fmt.Fprintf(cmd.OutOrStdout(), "imported %q (id=%s, version=%d)\n", r.Profile.Name, r.Profile.ID, r.Profile.Version)
		for _, w := range r.Warnings {
			fmt.Fprintf(cmd.OutOrStdout(), "  warning [%s]: %s\n", w.Code, w.Message)
		}
	}
	return nil
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <organization-id>",
		Short: "Export an organization's mapping profiles as YAML",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, rootOpts, args[0])
		},
	}
	return cmd
}

func runExport(cmd *cobra.Command, opts *RootOptions, orgArg string) error {
	org, err := strconv.ParseInt(orgArg, 10, 64)
	if err != nil {
		return WrapExitError(ExitCommandError, "organization id must be an integer", err)
	}

	s, err := openSetup(opts)
	if err != nil {
		return err
	}
	defer s.Close()

	doc, err := profileio.Export(cmd.Context(), s.store, org)
	if err != nil {
		return WrapExitError(ExitCommandError, "export", err)
	}

	data, err := profileio.Marshal(doc)
	if err != nil {
		return WrapExitError(ExitCommandError, "marshal", err)
	}

	_, err = cmd.OutOrStdout().Write(data)
	return err
}
