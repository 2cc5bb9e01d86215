package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fhaviland/genflow/internal/config"
	"github.com/fhaviland/genflow/internal/style"
)

// NewStylesCommand creates the styles command group.
func NewStylesCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "styles",
		Short: "Manage style presets",
	}
	cmd.AddCommand(newStylesValidateCommand(opts))
	return cmd
}

func newStylesValidateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [dir]",
		Short: "Validate style preset files against the schema",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.Load(opts.Config)
			if err != nil {
				return err
			}
			dir := settings.StylesDir
			if len(args) == 1 {
				dir = args[0]
			}

			styles, err := style.Load(dir)
			if err != nil {
				return err
			}
			for _, s := range styles {
				fmt.Fprintf(cmd.OutOrStdout(), "%-24s checkpoint=%s steps=%d\n", s.Name, s.Checkpoint, s.Steps)
			}
			return nil
		},
	}
}
