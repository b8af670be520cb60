package cmds

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/eduard-lt/Harbor/pkg/config"
	"github.com/eduard-lt/Harbor/pkg/history"
	"github.com/eduard-lt/Harbor/pkg/metrics"
	"github.com/eduard-lt/Harbor/pkg/orchestrator"
	"github.com/eduard-lt/Harbor/pkg/state"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newUpCmd() *cobra.Command {
	var (
		force       bool
		policy      string
		metricsFile string
		noHistory   bool
		progress    string
	)

	cmd := &cobra.Command{
		Use:   "up",
		Short: "Start every service in dependency order and wait for readiness",
		Long: `Start every service in dependency order and wait for readiness.

The resulting state document replaces any prior one. If a state document
already exists, up refuses to run unless --force is given, in which case
the recorded services are stopped first.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := getRootOptions(cmd)
			if err != nil {
				return err
			}
			pol, err := orchestrator.ParsePolicy(policy)
			if err != nil {
				return err
			}
			switch progress {
			case "auto", "always", "never":
			default:
				return errors.Errorf("unknown --progress %q (want auto, always or never)", progress)
			}
			ctx := cmd.Context()

			cfg, err := config.LoadAndValidate(opts.Config)
			if err != nil {
				return err
			}

			if state.Exists(opts.StatePath) {
				if !force {
					return errors.Errorf("state exists at %s; run harbor down first or use --force", opts.StatePath)
				}
				log.Info().Msg("existing state found; stopping first (--force)")
				prev, err := newOrchestrator(opts, pol, nil).Down(ctx)
				if err != nil {
					return err
				}
				if prev != nil && !noHistory {
					withHistory(ctx, opts, func(s *history.Store) error {
						return s.RecordDown(ctx, prev.RunID, time.Now())
					})
				}
			}

			var observers orchestrator.Observers
			var rec *metrics.Recorder
			if metricsFile != "" {
				rec = metrics.NewRecorder()
				observers = append(observers, rec)
			}
			showProgress := progress == "always" || (progress == "auto" && isTerminal(cmd.ErrOrStderr()))
			if showProgress {
				observers = append(observers, newProgressObserver(cmd.ErrOrStderr()))
			}

			upCtx := ctx
			if opts.Timeout > 0 {
				var cancel context.CancelFunc
				upCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
				defer cancel()
			}

			started := time.Now()
			st, upErr := newOrchestrator(opts, pol, observers).Up(upCtx, cfg.Services)

			if rec != nil {
				if err := rec.WriteTextfile(metricsFile); err != nil {
					log.Warn().Err(err).Str("path", metricsFile).Msg("write metrics")
				}
			}
			if !noHistory {
				withHistory(ctx, opts, func(s *history.Store) error {
					return s.RecordUp(ctx, historyRun(opts, st, started, upErr))
				})
			}
			if upErr != nil {
				return upErr
			}

			b, err := json.MarshalIndent(st, "", "  ")
			if err != nil {
				return errors.Wrap(err, "marshal state")
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(b))
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Stop the services of an existing state document first")
	cmd.Flags().StringVar(&policy, "health-policy", string(orchestrator.FailClosed), "What a failed readiness probe does: fail-closed or fail-open")
	cmd.Flags().StringVar(&metricsFile, "metrics-file", "", "Write Prometheus text metrics for this run to the given file")
	cmd.Flags().BoolVar(&noHistory, "no-history", false, "Do not record this run in the history database")
	cmd.Flags().StringVar(&progress, "progress", "auto", "Show a progress spinner: auto, always or never")
	return cmd
}

func historyRun(opts rootOptions, st *state.State, started time.Time, upErr error) history.Run {
	if upErr != nil {
		return history.Run{
			ID:        uuid.NewString(),
			BaseDir:   opts.BaseDir,
			StartedAt: started,
			Outcome:   history.OutcomeFailed,
			Error:     upErr.Error(),
		}
	}
	return history.Run{
		ID:        st.RunID,
		BaseDir:   opts.BaseDir,
		StartedAt: started,
		Outcome:   history.OutcomeReady,
		Services:  st.Services,
	}
}
