package cmds

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/eduard-lt/Harbor/pkg/logjs"
	"github.com/eduard-lt/Harbor/pkg/orchestrator"
	"github.com/eduard-lt/Harbor/pkg/state"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newLogsCmd() *cobra.Command {
	var (
		stream      string
		tail        int
		since       string
		script      string
		hookTimeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "logs <service>",
		Short: "Print a service's captured stdout or stderr",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := getRootOptions(cmd)
			if err != nil {
				return err
			}
			name := args[0]
			s, err := orchestrator.ParseStream(stream)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()

			if tail <= 0 && since == "" && script == "" {
				b, err := orchestrator.Logs(opts.LogsDir, name, s)
				if err != nil {
					return err
				}
				_, err = w.Write(b)
				return errors.Wrap(err, "write logs")
			}

			lines, err := readLines(orchestrator.LogPath(opts.LogsDir, name, s), tail)
			if err != nil {
				return err
			}
			if since != "" {
				cutoff, err := logjs.ParseSince(since, time.Now())
				if err != nil {
					return errors.Wrapf(err, "parse --since %q", since)
				}
				lines = linesSince(lines, cutoff)
			}

			if script == "" {
				for _, l := range lines {
					_, _ = fmt.Fprintln(w, l)
				}
				return nil
			}

			m, err := logjs.LoadFromFile(cmd.Context(), script, logjs.Options{HookTimeout: hookTimeout})
			if err != nil {
				return err
			}
			for i, l := range lines {
				evs, err := m.ProcessLine(cmd.Context(), l, name, string(s), int64(i+1))
				if err != nil {
					return err
				}
				for _, ev := range evs {
					_, _ = fmt.Fprintln(w, ev.String())
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&stream, "stream", string(orchestrator.Stdout), "Stream to show: stdout or stderr")
	cmd.Flags().IntVar(&tail, "tail", 0, "Only show the last N lines")
	cmd.Flags().StringVar(&since, "since", "", "Only show lines stamped at or after this time (duration like 15m, or a timestamp)")
	cmd.Flags().StringVar(&script, "js", "", "Filter and transform lines through a JavaScript script")
	cmd.Flags().DurationVar(&hookTimeout, "js-timeout", 50*time.Millisecond, "Time limit for each script hook call")
	return cmd
}

func readLines(path string, tail int) ([]string, error) {
	if tail > 0 {
		return state.TailLines(path, tail)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open log")
	}
	defer func() { _ = f.Close() }()
	return scanLines(f)
}

func scanLines(r io.Reader) ([]string, error) {
	var lines []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4<<20)
	for sc.Scan() {
		lines = append(lines, strings.TrimSuffix(sc.Text(), "\r"))
	}
	return lines, errors.Wrap(sc.Err(), "read log")
}

// linesSince keeps lines stamped at or after cutoff. A line without a
// timestamp belongs to the stamped line before it, so continuation lines
// follow their head; leading unstamped lines are dropped.
func linesSince(lines []string, cutoff time.Time) []string {
	var out []string
	keep := false
	for _, l := range lines {
		if t, ok := logjs.LineTime(l); ok {
			keep = !t.Before(cutoff)
		}
		if keep {
			out = append(out, l)
		}
	}
	return out
}
