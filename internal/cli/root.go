package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string

	// Deps is built from the configuration on first use unless a caller
	// (tests, embedding programs) supplies it.
	Deps *Deps
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the psrinfo CLI.
func NewRootCommand() *cobra.Command {
	return NewRootCommandWithDeps(nil)
}

// NewRootCommandWithDeps creates the root command with preconfigured
// collaborators.
func NewRootCommandWithDeps(deps *Deps) *cobra.Command {
	opts := &RootOptions{Deps: deps}

	cmd := &cobra.Command{
		Use:   "psrinfo",
		Short: "Pulsar positions, proper motions and distances",
		Long: `Query the ATNF pulsar catalogue, express positions and proper motions in
equatorial, ecliptic and galactic frames with propagated uncertainties,
predict positions at other epochs and estimate DM distances.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if opts.Deps != nil {
				return opts.Deps.Close()
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to a psrinfo YAML config file")

	cmd.AddCommand(NewFetchCommand(opts))
	cmd.AddCommand(NewDescribeCommand(opts))
	cmd.AddCommand(NewPredictCommand(opts))
	cmd.AddCommand(NewTrackCommand(opts))
	cmd.AddCommand(NewDistCommand(opts))
	cmd.AddCommand(NewDMCommand(opts))
	cmd.AddCommand(NewSetPMCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}
