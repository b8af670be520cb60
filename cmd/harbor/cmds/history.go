package cmds

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/eduard-lt/Harbor/pkg/history"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newHistoryCmd() *cobra.Command {
	var (
		limit  int
		output string
	)

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List past runs, or show the services of one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := getRootOptions(cmd)
			if err != nil {
				return err
			}
			if err := checkOutput(output, "table", "json"); err != nil {
				return err
			}
			ctx := cmd.Context()

			store, err := history.Open(ctx, history.DefaultPath(opts.BaseDir))
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			var runs []history.Run
			if len(args) == 1 {
				r, err := store.Get(ctx, args[0])
				if err != nil {
					return err
				}
				if r == nil {
					return errors.Errorf("no run %q", args[0])
				}
				runs = []history.Run{*r}
			} else {
				runs, err = store.List(ctx, limit)
				if err != nil {
					return err
				}
			}

			w := cmd.OutOrStdout()
			if output == "json" {
				b, err := json.MarshalIndent(runs, "", "  ")
				if err != nil {
					return errors.Wrap(err, "marshal history")
				}
				_, _ = fmt.Fprintln(w, string(b))
				return nil
			}
			if len(args) == 1 {
				renderRunServices(w, runs[0])
				return nil
			}
			renderRuns(w, runs)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "How many runs to list")
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format: table or json")
	return cmd
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func renderRuns(w io.Writer, runs []history.Run) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Run", "Started", "Stopped", "Outcome", "Base dir", "Error"})
	for _, r := range runs {
		t.AppendRow(table.Row{r.ID, formatTime(r.StartedAt), formatTime(r.StoppedAt), r.Outcome, r.BaseDir, r.Error})
	}
	t.Render()
}

func renderRunServices(w io.Writer, r history.Run) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle("run %s (%s)", r.ID, r.Outcome)
	t.AppendHeader(table.Row{"Service", "PID", "Stdout log", "Stderr log"})
	for _, s := range r.Services {
		t.AppendRow(table.Row{s.Name, s.PID, s.StdoutLog, s.StderrLog})
	}
	t.Render()
}
