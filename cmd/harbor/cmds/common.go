package cmds

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/eduard-lt/Harbor/pkg/config"
	"github.com/eduard-lt/Harbor/pkg/history"
	"github.com/eduard-lt/Harbor/pkg/orchestrator"
	"github.com/eduard-lt/Harbor/pkg/state"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "HARBOR"

// settings holds the global flags of the most recently built root command,
// layered over HARBOR_* environment variables.
var settings = viper.New()

type rootOptions struct {
	BaseDir   string
	Config    string
	StatePath string
	LogsDir   string
	Timeout   time.Duration
}

func AddRootFlags(root *cobra.Command) error {
	fs := root.PersistentFlags()
	fs.String("base-dir", "", "Base directory for relative paths (defaults to current directory)")
	fs.String("config", "", "Services document (defaults to "+config.DefaultConfigFilename+" under base-dir)")
	fs.String("state", "", "State document (defaults to .harbor/state.json under base-dir)")
	fs.String("logs-dir", "", "Service log directory (defaults to logs under base-dir)")
	fs.Duration("timeout", 0, "Bound on up's readiness waits and down's stop grace period (0: defaults)")

	settings = viper.New()
	settings.SetEnvPrefix(envPrefix)
	settings.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	settings.AutomaticEnv()

	var err error
	fs.VisitAll(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		switch f.Name {
		case "base-dir", "config", "state", "logs-dir", "timeout":
			err = settings.BindPFlag(f.Name, f)
		}
	})
	return errors.Wrap(err, "bind flags")
}

func getRootOptions(cmd *cobra.Command) (rootOptions, error) {
	baseDir := settings.GetString("base-dir")
	if baseDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return rootOptions{}, errors.Wrap(err, "getwd")
		}
		baseDir = wd
	}
	baseDir, err := filepath.Abs(baseDir)
	if err != nil {
		return rootOptions{}, errors.Wrap(err, "resolve base dir")
	}

	timeout := settings.GetDuration("timeout")
	if timeout < 0 {
		return rootOptions{}, errors.New("timeout must be >= 0")
	}

	return rootOptions{
		BaseDir:   baseDir,
		Config:    under(baseDir, settings.GetString("config"), config.DefaultPath(baseDir)),
		StatePath: under(baseDir, settings.GetString("state"), state.DefaultPath(baseDir)),
		LogsDir:   under(baseDir, settings.GetString("logs-dir"), state.DefaultLogsDir(baseDir)),
		Timeout:   timeout,
	}, nil
}

// under resolves p against base, falling back to def when p is empty.
func under(base, p, def string) string {
	switch {
	case p == "":
		return def
	case filepath.IsAbs(p):
		return p
	default:
		return filepath.Join(base, p)
	}
}

func newOrchestrator(opts rootOptions, policy orchestrator.Policy, obs orchestrator.Observer) *orchestrator.Orchestrator {
	return orchestrator.New(orchestrator.Options{
		BaseDir:         opts.BaseDir,
		LogsDir:         opts.LogsDir,
		StatePath:       opts.StatePath,
		Policy:          policy,
		ShutdownTimeout: opts.Timeout,
		Observer:        obs,
	})
}

// withHistory runs fn against the run history database. History is
// best effort: failing to open or write it is logged, not returned.
func withHistory(ctx context.Context, opts rootOptions, fn func(*history.Store) error) {
	store, err := history.Open(ctx, history.DefaultPath(opts.BaseDir))
	if err != nil {
		log.Warn().Err(err).Msg("open run history")
		return
	}
	defer func() { _ = store.Close() }()
	if err := fn(store); err != nil {
		log.Warn().Err(err).Msg("record run history")
	}
}
