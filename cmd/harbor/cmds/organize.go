package cmds

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eduard-lt/Harbor/pkg/organizer"
	"github.com/spf13/cobra"
)

func newOrganizeCmd() *cobra.Command {
	var (
		rulesPath string
		watch     bool
		interval  time.Duration
		cleanup   bool
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "organize",
		Short: "Move finished downloads into per-rule folders",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := getRootOptions(cmd)
			if err != nil {
				return err
			}
			path := under(opts.BaseDir, rulesPath, organizer.DefaultPath(opts.BaseDir))
			cfg, err := organizer.LoadConfig(path)
			if err != nil {
				return err
			}
			o, err := organizer.New(cfg)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()

			if cleanup {
				n, err := o.CleanupSymlinks()
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "removed %d symlinks\n", n)
				return nil
			}

			report := func(actions []organizer.Action) {
				printActions(w, actions, asJSON)
			}

			if !watch {
				actions, err := o.MoveOnce()
				report(actions)
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return o.Run(ctx, interval, report)
		},
	}

	cmd.Flags().StringVar(&rulesPath, "rules", "", "Organizer rules file (defaults to "+organizer.DefaultFilename+" under base-dir)")
	cmd.Flags().BoolVar(&watch, "watch", false, "Keep running and organize as files arrive")
	cmd.Flags().DurationVar(&interval, "interval", 5*time.Second, "Polling interval in watch mode")
	cmd.Flags().BoolVar(&cleanup, "cleanup-symlinks", false, "Remove symlinks left behind by earlier moves and exit")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print one JSON object per move")
	return cmd
}

func printActions(w io.Writer, actions []organizer.Action, asJSON bool) {
	for _, a := range actions {
		if asJSON {
			b, err := json.Marshal(a)
			if err != nil {
				continue
			}
			_, _ = fmt.Fprintln(w, string(b))
			continue
		}
		line := fmt.Sprintf("[%s] %s -> %s", a.Rule, a.From, a.To)
		if a.SymlinkError != "" {
			line += " (symlink failed: " + a.SymlinkError + ")"
		}
		_, _ = fmt.Fprintln(w, line)
	}
}

