package cli

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/fhaviland/genflow/internal/client"
	"github.com/fhaviland/genflow/internal/config"
	"github.com/fhaviland/genflow/internal/document"
	"github.com/fhaviland/genflow/internal/generation"
	"github.com/fhaviland/genflow/internal/history"
	"github.com/fhaviland/genflow/internal/image"
	"github.com/fhaviland/genflow/internal/style"
)

// NewRunCommand creates the run command: one simulated generation
// round against an in-memory document, end to end through the
// coordinator.
func NewRunCommand(opts *RootOptions) *cobra.Command {
	var (
		prompt   string
		strength float64
		width    int
		height   int
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one simulated generation round",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.Load(opts.Config)
			if err != nil {
				return err
			}
			logger := newLogger(cmd, opts)

			styles, err := style.Load(settings.StylesDir)
			if err != nil {
				return err
			}

			sessionOpts := []generation.SessionOption{generation.WithStyles(styles)}
			if settings.HistoryDB != "" {
				store, err := history.Open(settings.HistoryDB)
				if err != nil {
					return err
				}
				defer store.Close()
				sessionOpts = append(sessionOpts, generation.WithArchive(store))
			}

			doc := document.NewMemDoc(image.Extent{Width: width, Height: height})
			sim := client.NewSim()
			session := generation.NewSession(doc, sim, settings, logger, sessionOpts...)
			sim.Notify(session.HandleMessage)

			session.SetPrompt(prompt)
			session.SetStrength(strength)

			task := session.Generate()
			if task == nil {
				return errors.New(session.Error())
			}
			task.Wait()
			if session.HasError() {
				return errors.New(session.Error())
			}

			job := sim.LastJob()
			logger.Info("job accepted", "id", job.ID, "operation", string(job.Descriptor.Operation))

			// Drive the simulated server through a full round.
			for _, p := range []float64{0.25, 0.5, 0.75} {
				sim.Progress(job.ID, p)
			}
			sim.Finish(job.ID, image.Collection{image.New(doc.Extent())})

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "finished %q with style %q\n", session.Prompt(), session.Style().Name)
			fmt.Fprintf(out, "history: %d job(s), %.1f MB retained\n",
				len(session.History()), session.Jobs().MemoryUsage())
			if layer := session.PreviewLayer(); layer != nil {
				fmt.Fprintf(out, "preview layer: %s\n", layer.Name())
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&prompt, "prompt", "p", "a castle on a hill", "positive prompt")
	cmd.Flags().Float64Var(&strength, "strength", 1.0, "denoise strength in [0, 1]")
	cmd.Flags().IntVar(&width, "width", 512, "document width")
	cmd.Flags().IntVar(&height, "height", 512, "document height")
	return cmd
}

func newLogger(cmd *cobra.Command, opts *RootOptions) *slog.Logger {
	level := slog.LevelWarn
	if opts.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}
