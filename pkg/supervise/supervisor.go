package supervise

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/eduard-lt/Harbor/pkg/config"
	"github.com/eduard-lt/Harbor/pkg/proc"
	"github.com/eduard-lt/Harbor/pkg/state"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	lj "gopkg.in/natefinch/lumberjack.v2"
)

// ErrSpawn is matched by every failure to create a service process.
var ErrSpawn = errors.New("spawn error")

type SpawnError struct {
	Service string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s: %v", e.Service, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

func (e *SpawnError) Is(target error) bool { return target == ErrSpawn }

const (
	DefaultMaxLogBytes = 10 << 20
	DefaultMaxBackups  = 3
	DefaultMaxAgeDays  = 7
)

// Rotation bounds the service log files. A log larger than MaxBytes is
// rotated aside before the service is started again.
type Rotation struct {
	MaxBytes   int64
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

type Options struct {
	BaseDir  string
	LogsDir  string
	Rotation Rotation
}

type Launcher struct {
	opts Options
}

func New(opts Options) *Launcher {
	if opts.LogsDir == "" && opts.BaseDir != "" {
		opts.LogsDir = state.DefaultLogsDir(opts.BaseDir)
	}
	if opts.Rotation.MaxBytes <= 0 {
		opts.Rotation.MaxBytes = DefaultMaxLogBytes
	}
	if opts.Rotation.MaxBackups <= 0 {
		opts.Rotation.MaxBackups = DefaultMaxBackups
	}
	if opts.Rotation.MaxAgeDays <= 0 {
		opts.Rotation.MaxAgeDays = DefaultMaxAgeDays
	}
	return &Launcher{opts: opts}
}

func LogPaths(logsDir, name string) (stdout string, stderr string) {
	return filepath.Join(logsDir, name+".out.log"), filepath.Join(logsDir, name+".err.log")
}

// Spawn starts svc through sh -c in its own process group and returns as
// soon as the process exists. Output is appended to the service log files.
func (l *Launcher) Spawn(ctx context.Context, svc config.Service) (state.ServiceRecord, error) {
	if svc.Name == "" {
		return state.ServiceRecord{}, &SpawnError{Err: errors.New("service name is required")}
	}
	if l.opts.LogsDir == "" {
		return state.ServiceRecord{}, &SpawnError{Service: svc.Name, Err: errors.New("missing logs dir")}
	}
	if err := os.MkdirAll(l.opts.LogsDir, 0o755); err != nil {
		return state.ServiceRecord{}, &SpawnError{Service: svc.Name, Err: errors.Wrap(err, "mkdir logs dir")}
	}

	stdoutPath, stderrPath := LogPaths(l.opts.LogsDir, svc.Name)

	stdoutFile, err := l.openLog(stdoutPath)
	if err != nil {
		return state.ServiceRecord{}, &SpawnError{Service: svc.Name, Err: errors.Wrap(err, "open stdout log")}
	}
	defer func() { _ = stdoutFile.Close() }()

	stderrFile, err := l.openLog(stderrPath)
	if err != nil {
		return state.ServiceRecord{}, &SpawnError{Service: svc.Name, Err: errors.Wrap(err, "open stderr log")}
	}
	defer func() { _ = stderrFile.Close() }()

	// Not CommandContext: services must outlive this invocation.
	// #nosec G204 -- command comes from the services document.
	cmd := exec.Command("sh", "-c", svc.Command)
	cmd.Dir = svc.Dir(l.opts.BaseDir)
	cmd.Env = mergeEnv(os.Environ(), svc.Env)
	cmd.Stdout = stdoutFile
	cmd.Stderr = stderrFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return state.ServiceRecord{}, &SpawnError{Service: svc.Name, Err: errors.Wrap(err, "start service")}
	}

	pid := cmd.Process.Pid
	startedAt := time.Now()
	go func() { _ = cmd.Wait() }()

	createTime, err := proc.CreateTime(ctx, pid)
	if err != nil {
		log.Debug().Err(err).Str("service", svc.Name).Int("pid", pid).Msg("could not read process create time")
	}
	log.Info().Str("service", svc.Name).Int("pid", pid).Str("cwd", cmd.Dir).Msg("service started")

	return state.ServiceRecord{
		Name:       svc.Name,
		PID:        pid,
		StdoutLog:  stdoutPath,
		StderrLog:  stderrPath,
		StartedAt:  startedAt,
		CreateTime: createTime,
	}, nil
}

// openLog rotates path aside when it has grown past the limit, then opens it
// for appending.
func (l *Launcher) openLog(path string) (*os.File, error) {
	if fi, err := os.Stat(path); err == nil && fi.Size() > l.opts.Rotation.MaxBytes {
		if err := l.rotate(path); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("log rotation failed")
		}
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

func (l *Launcher) rotate(path string) error {
	r := l.opts.Rotation
	w := &lj.Logger{
		Filename:   path,
		MaxSize:    int((r.MaxBytes + (1 << 20) - 1) >> 20),
		MaxBackups: r.MaxBackups,
		MaxAge:     r.MaxAgeDays,
		Compress:   r.Compress,
	}
	if err := w.Rotate(); err != nil {
		return errors.Wrap(err, "rotate log")
	}
	log.Debug().Str("path", path).Msg("rotated service log")
	return w.Close()
}

// StopAll terminates recs in reverse start order. Failures are logged and the
// last one is returned.
func (l *Launcher) StopAll(ctx context.Context, recs []state.ServiceRecord, grace time.Duration) error {
	var lastErr error
	for i := len(recs) - 1; i >= 0; i-- {
		rec := recs[i]
		if err := Terminate(ctx, rec.PID, grace); err != nil {
			log.Warn().Err(err).Str("service", rec.Name).Int("pid", rec.PID).Msg("stop failed")
			lastErr = err
		}
	}
	return lastErr
}

func mergeEnv(base []string, extra map[string]string) []string {
	if len(extra) == 0 {
		return base
	}
	out := append([]string{}, base...)
	return append(out, config.EnvPairs(extra)...)
}
