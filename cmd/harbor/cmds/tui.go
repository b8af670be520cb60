package cmds

import (
	"context"
	stderrors "errors"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/eduard-lt/Harbor/pkg/tui"
	"github.com/eduard-lt/Harbor/pkg/tui/models"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newTuiCmd() *cobra.Command {
	var (
		refresh   time.Duration
		altScreen bool
	)

	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Live dashboard of the recorded services",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := getRootOptions(cmd)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			bus, err := tui.NewInMemoryBus()
			if err != nil {
				return err
			}
			tui.RegisterDomainToUITransformer(bus)

			programOptions := []tea.ProgramOption{
				tea.WithInput(cmd.InOrStdin()),
				tea.WithOutput(cmd.OutOrStdout()),
				tea.WithContext(ctx),
			}
			if altScreen {
				programOptions = append(programOptions, tea.WithAltScreen())
			}
			program := tea.NewProgram(models.NewRootModel(), programOptions...)
			tui.RegisterUIForwarder(bus, program)

			watcher := &tui.StateWatcher{
				StatePath: opts.StatePath,
				Source:    newOrchestrator(opts, "", nil),
				Interval:  refresh,
				Pub:       bus.Publisher,
			}

			eg, egCtx := errgroup.WithContext(ctx)
			eg.Go(func() error {
				return ignoreCanceled(bus.Run(egCtx))
			})
			eg.Go(func() error {
				select {
				case <-bus.Running():
				case <-egCtx.Done():
					return nil
				}
				return ignoreCanceled(watcher.Run(egCtx))
			})
			eg.Go(func() error {
				_, err := program.Run()
				cancel()
				if stderrors.Is(err, tea.ErrProgramKilled) {
					return nil
				}
				return ignoreCanceled(err)
			})

			if err := eg.Wait(); err != nil {
				return errors.Wrap(err, "tui")
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&refresh, "refresh", time.Second, "How often to poll the state document")
	cmd.Flags().BoolVar(&altScreen, "alt-screen", true, "Use the terminal alternate screen buffer")
	return cmd
}

func ignoreCanceled(err error) error {
	if stderrors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
