package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fhaviland/genflow/internal/config"
	"github.com/fhaviland/genflow/internal/history"
)

// NewHistoryCommand creates the history command group.
func NewHistoryCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect the generation archive",
	}
	cmd.AddCommand(newHistoryListCommand(opts))
	return cmd
}

func newHistoryListCommand(opts *RootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List archived generations, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.Load(opts.Config)
			if err != nil {
				return err
			}
			if settings.HistoryDB == "" {
				return errors.New("no history_db configured")
			}

			store, err := history.Open(settings.HistoryDB)
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, r := range records {
				fmt.Fprintf(out, "%s  %-32q style=%s results=%d (%d bytes)\n",
					r.FinishedAt.Format("2006-01-02 15:04"), r.Prompt, r.Style, r.ResultCount, r.ResultBytes)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum rows")
	return cmd
}
