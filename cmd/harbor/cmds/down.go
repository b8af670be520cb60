package cmds

import (
	"fmt"
	"time"

	"github.com/eduard-lt/Harbor/pkg/history"
	"github.com/spf13/cobra"
)

func newDownCmd() *cobra.Command {
	var noHistory bool

	cmd := &cobra.Command{
		Use:   "down",
		Short: "Stop every recorded service and delete the state document",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := getRootOptions(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			st, err := newOrchestrator(opts, "", nil).Down(ctx)
			if err != nil {
				return err
			}
			if st == nil {
				_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "nothing to stop")
				return nil
			}
			if !noHistory {
				withHistory(ctx, opts, func(s *history.Store) error {
					return s.RecordDown(ctx, st.RunID, time.Now())
				})
			}
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "stopped %d services\n", len(st.Services))
			return nil
		},
	}
	cmd.Flags().BoolVar(&noHistory, "no-history", false, "Do not record the stop in the history database")
	return cmd
}
