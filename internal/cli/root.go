// Package cli implements the genflow command line. The binary is a
// development companion to the coordinator library: it runs simulated
// generation rounds, validates style presets, and inspects the
// generation archive.
package cli

import (
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Config  string
}

// NewRootCommand creates the root command for the genflow CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "genflow",
		Short: "genflow - image generation job coordination",
		Long:  "Coordinates asynchronous image-generation jobs for interactive editing sessions.",
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Config, "config", "genflow.yaml", "settings file")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewStylesCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))

	return cmd
}
