// Package orchestrator drives up, down and status. An Orchestrator lives for
// a single invocation; the state document is the only thing that carries
// over between invocations.
package orchestrator

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/eduard-lt/Harbor/pkg/config"
	"github.com/eduard-lt/Harbor/pkg/graph"
	"github.com/eduard-lt/Harbor/pkg/health"
	"github.com/eduard-lt/Harbor/pkg/proc"
	"github.com/eduard-lt/Harbor/pkg/state"
	"github.com/eduard-lt/Harbor/pkg/supervise"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Policy decides what a failed readiness probe does to the rest of Up.
type Policy string

const (
	// FailClosed stops Up at the first service that never becomes ready.
	FailClosed Policy = "fail-closed"
	// FailOpen logs the failure and starts the next service anyway.
	FailOpen Policy = "fail-open"
)

func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", FailClosed:
		return FailClosed, nil
	case FailOpen:
		return FailOpen, nil
	default:
		return "", errors.Errorf("unknown health policy %q (want %s or %s)", s, FailClosed, FailOpen)
	}
}

const DefaultShutdownTimeout = 3 * time.Second

type Options struct {
	BaseDir         string
	LogsDir         string
	StatePath       string
	Policy          Policy
	ShutdownTimeout time.Duration
	Rotation        supervise.Rotation
	Observer        Observer
}

type Orchestrator struct {
	opts     Options
	launcher *supervise.Launcher
	phase    Phase
}

func New(opts Options) *Orchestrator {
	if opts.BaseDir == "" {
		opts.BaseDir = "."
	}
	if abs, err := filepath.Abs(opts.BaseDir); err == nil {
		opts.BaseDir = abs
	}
	if opts.LogsDir == "" {
		opts.LogsDir = state.DefaultLogsDir(opts.BaseDir)
	}
	if opts.StatePath == "" {
		opts.StatePath = state.DefaultPath(opts.BaseDir)
	}
	if opts.Policy == "" {
		opts.Policy = FailClosed
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = DefaultShutdownTimeout
	}
	if opts.Observer == nil {
		opts.Observer = NopObserver{}
	}
	return &Orchestrator{
		opts: opts,
		launcher: supervise.New(supervise.Options{
			BaseDir:  opts.BaseDir,
			LogsDir:  opts.LogsDir,
			Rotation: opts.Rotation,
		}),
		phase: PhaseIdle,
	}
}

func (o *Orchestrator) Options() Options { return o.opts }

func (o *Orchestrator) Phase() Phase { return o.phase }

func (o *Orchestrator) setPhase(p Phase) {
	o.phase = p
	o.opts.Observer.PhaseChanged(p)
}

// HealthCheckError reports a service that never became ready under
// FailClosed.
type HealthCheckError struct {
	Service string
	Result  health.Result
}

func (e *HealthCheckError) Error() string {
	return fmt.Sprintf("service %s not ready: %s probe failed after %d attempt(s): %v",
		e.Service, e.Result.Kind, e.Result.Attempts, e.Result.Err)
}

func (e *HealthCheckError) Unwrap() error { return e.Result.Err }

func (e *HealthCheckError) Is(target error) bool { return target == health.ErrNotReady }

// Up starts services in dependency order, waiting on each declared probe
// before moving on, and persists the resulting state. On any error nothing
// is persisted and the services started so far are stopped again. A
// cancelled ctx aborts the run under either policy.
func (o *Orchestrator) Up(ctx context.Context, services []config.Service) (*state.State, error) {
	o.setPhase(PhaseResolving)
	order, err := graph.Resolve(services)
	if err != nil {
		o.setPhase(PhaseFailed)
		return nil, err
	}

	o.setPhase(PhaseLaunching)
	st := &state.State{
		RunID:     uuid.NewString(),
		BaseDir:   o.opts.BaseDir,
		CreatedAt: time.Now(),
		Services:  make([]state.ServiceRecord, 0, len(order)),
	}

	for _, svc := range order {
		o.opts.Observer.ServiceStarting(svc)
		rec, err := o.launcher.Spawn(ctx, svc)
		if err != nil {
			return nil, o.abort(st, err)
		}
		st.Services = append(st.Services, rec)
		o.opts.Observer.ServiceStarted(rec)

		spec, ok := svc.Probe(svc.Dir(o.opts.BaseDir))
		if !ok {
			continue
		}
		res, err := health.WaitReady(ctx, spec)
		o.opts.Observer.ProbeFinished(svc, res)
		if err == nil {
			log.Info().Str("service", svc.Name).Int("attempts", res.Attempts).Dur("elapsed", res.Elapsed).Msg("service ready")
			continue
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, o.abort(st, errors.Wrapf(ctxErr, "waiting for %s", svc.Name))
		}
		if o.opts.Policy == FailOpen {
			log.Warn().Err(err).Str("service", svc.Name).Msg("service not ready, continuing")
			continue
		}
		return nil, o.abort(st, &HealthCheckError{Service: svc.Name, Result: res})
	}

	if err := state.Write(o.opts.StatePath, st); err != nil {
		return nil, o.abort(st, err)
	}
	o.setPhase(PhaseReady)
	return st, nil
}

func (o *Orchestrator) abort(st *state.State, cause error) error {
	o.setPhase(PhaseFailed)
	if len(st.Services) > 0 {
		log.Warn().Err(cause).Int("started", len(st.Services)).Msg("up failed, stopping started services")
		ctx, cancel := context.WithTimeout(context.Background(), o.opts.ShutdownTimeout+5*time.Second)
		defer cancel()
		_ = o.launcher.StopAll(ctx, st.Services, o.opts.ShutdownTimeout)
	}
	return cause
}

// Down stops every recorded service in reverse start order and deletes the
// state document. A missing document is a no-op. Stop failures are logged,
// never returned.
func (o *Orchestrator) Down(ctx context.Context) (*state.State, error) {
	st, err := state.Read(o.opts.StatePath)
	if err != nil {
		return nil, err
	}
	if st == nil {
		log.Debug().Str("state", o.opts.StatePath).Msg("no state, nothing to stop")
		return nil, nil
	}

	for i := len(st.Services) - 1; i >= 0; i-- {
		rec := st.Services[i]
		if !proc.Valid(rec.PID) {
			log.Warn().Str("service", rec.Name).Int("pid", rec.PID).Msg("invalid pid, skipping")
			continue
		}
		if !proc.Matches(ctx, rec.PID, rec.CreateTime) {
			log.Debug().Str("service", rec.Name).Int("pid", rec.PID).Msg("process gone or replaced, skipping")
			continue
		}
		if err := supervise.Terminate(ctx, rec.PID, o.opts.ShutdownTimeout); err != nil {
			log.Warn().Err(err).Str("service", rec.Name).Int("pid", rec.PID).Msg("stop failed")
			continue
		}
		log.Info().Str("service", rec.Name).Int("pid", rec.PID).Msg("service stopped")
	}

	if err := state.Remove(o.opts.StatePath); err != nil {
		return st, err
	}
	return st, nil
}

type ServiceStatus struct {
	Name      string      `json:"name"`
	PID       int         `json:"pid"`
	Alive     bool        `json:"alive"`
	StartedAt time.Time   `json:"started_at,omitzero"`
	StdoutLog string      `json:"stdout_log"`
	StderrLog string      `json:"stderr_log"`
	Stats     *proc.Stats `json:"stats,omitempty"`
}

type StatusReport struct {
	RunID    string          `json:"run_id,omitempty"`
	Services []ServiceStatus `json:"services"`
}

// Status reports liveness of every recorded service. A missing state
// document yields an empty report.
func (o *Orchestrator) Status(ctx context.Context, withStats bool) (*StatusReport, error) {
	st, err := state.Read(o.opts.StatePath)
	if err != nil {
		return nil, err
	}
	rep := &StatusReport{Services: []ServiceStatus{}}
	if st == nil {
		return rep, nil
	}
	rep.RunID = st.RunID
	for _, rec := range st.Services {
		s := ServiceStatus{
			Name:      rec.Name,
			PID:       rec.PID,
			Alive:     proc.Matches(ctx, rec.PID, rec.CreateTime),
			StartedAt: rec.StartedAt,
			StdoutLog: rec.StdoutLog,
			StderrLog: rec.StderrLog,
		}
		if s.Alive && withStats {
			if stats, err := proc.ReadStats(ctx, rec.PID); err == nil {
				s.Stats = stats
			}
		}
		rep.Services = append(rep.Services, s)
	}
	return rep, nil
}

type Stream string

const (
	Stdout Stream = "stdout"
	Stderr Stream = "stderr"
)

func ParseStream(s string) (Stream, error) {
	switch Stream(s) {
	case "", Stdout:
		return Stdout, nil
	case Stderr:
		return Stderr, nil
	default:
		return "", errors.Errorf("unknown stream %q (want stdout or stderr)", s)
	}
}

// LogPath is the log file of service name for stream under logsDir.
func LogPath(logsDir, name string, stream Stream) string {
	out, errPath := supervise.LogPaths(logsDir, name)
	if stream == Stderr {
		return errPath
	}
	return out
}

// OpenLog opens the log file of service name for reading.
func OpenLog(logsDir, name string, stream Stream) (*os.File, error) {
	path := LogPath(logsDir, name, stream)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Errorf("no %s log for service %s at %s", stream, name, path)
		}
		return nil, errors.Wrap(err, "open log")
	}
	return f, nil
}

// Logs returns the whole log file of service name.
func Logs(logsDir, name string, stream Stream) ([]byte, error) {
	f, err := OpenLog(logsDir, name, stream)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	b, err := io.ReadAll(f)
	if err != nil {
		return nil, errors.Wrap(err, "read log")
	}
	return b, nil
}
