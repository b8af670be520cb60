package cmds

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/eduard-lt/Harbor/pkg/orchestrator"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show whether each recorded service is alive",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := getRootOptions(cmd)
			if err != nil {
				return err
			}
			if err := checkOutput(output, "text", "table", "json"); err != nil {
				return err
			}

			rep, err := newOrchestrator(opts, "", nil).Status(cmd.Context(), output != "text")
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			switch output {
			case "json":
				b, err := json.MarshalIndent(rep, "", "  ")
				if err != nil {
					return errors.Wrap(err, "marshal status")
				}
				_, _ = fmt.Fprintln(w, string(b))
			case "table":
				renderStatusTable(w, rep, time.Now())
			default:
				for _, s := range rep.Services {
					_, _ = fmt.Fprintf(w, "%s %d %s\n", s.Name, s.PID, aliveWord(s.Alive))
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", "Output format: text, table or json")
	return cmd
}

func aliveWord(alive bool) string {
	if alive {
		return "alive"
	}
	return "dead"
}

func checkOutput(got string, allowed ...string) error {
	for _, a := range allowed {
		if got == a {
			return nil
		}
	}
	return errors.Errorf("unknown output %q (want one of %v)", got, allowed)
}

func renderStatusTable(w io.Writer, rep *orchestrator.StatusReport, now time.Time) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Service", "PID", "Status", "CPU %", "RSS MB", "Uptime", "Stderr log"})
	for _, s := range rep.Services {
		status := text.FgRed.Sprint(aliveWord(s.Alive))
		if s.Alive {
			status = text.FgGreen.Sprint(aliveWord(s.Alive))
		}
		cpu, mem, uptime := "-", "-", "-"
		if s.Stats != nil {
			cpu = strconv.FormatFloat(s.Stats.CPUPercent, 'f', 1, 64)
			mem = strconv.FormatUint(s.Stats.MemoryMB, 10)
		}
		if s.Alive && !s.StartedAt.IsZero() {
			uptime = now.Sub(s.StartedAt).Truncate(time.Second).String()
		}
		t.AppendRow(table.Row{s.Name, s.PID, status, cpu, mem, uptime, s.StderrLog})
	}
	if rep.RunID != "" {
		t.SetCaption("run %s", rep.RunID)
	}
	t.Render()
}
