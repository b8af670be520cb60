package state

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
)

const (
	StateDirName  = ".harbor"
	StateFilename = "state.json"
	LogsDirName   = "logs"
)

// ErrState is matched by every error caused by a state document that exists
// but cannot be understood.
var ErrState = errors.New("state error")

// State is the only artifact shared between an `up` invocation and the
// `down`/`status` invocations that follow it.
type State struct {
	RunID     string          `json:"run_id,omitempty"`
	BaseDir   string          `json:"base_dir,omitempty"`
	CreatedAt time.Time       `json:"created_at,omitzero"`
	Services  []ServiceRecord `json:"services"`
}

type ServiceRecord struct {
	Name      string    `json:"name"`
	PID       int       `json:"pid"`
	StdoutLog string    `json:"stdout_log"`
	StderrLog string    `json:"stderr_log"`
	StartedAt time.Time `json:"started_at,omitzero"`

	// CreateTime is the OS-reported creation time of PID in unix
	// milliseconds, captured at spawn. Zero when it could not be read.
	CreateTime int64 `json:"create_time,omitempty"`
}

type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("state %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func (e *ParseError) Is(target error) bool { return target == ErrState }

func DefaultPath(baseDir string) string {
	return filepath.Join(baseDir, StateDirName, StateFilename)
}

func DefaultLogsDir(baseDir string) string {
	return filepath.Join(baseDir, LogsDirName)
}

// Read loads the state document at path. A missing document is not an
// error: it returns (nil, nil). A PID outside the kernel's range makes the
// document a ParseError.
func Read(path string) (*State, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "read state")
	}
	var s State
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, &ParseError{Path: path, Err: errors.Wrap(err, "parse state json")}
	}
	for _, rec := range s.Services {
		if rec.PID < 0 || rec.PID > math.MaxInt32 {
			return nil, &ParseError{Path: path, Err: errors.Errorf("service %s: pid %d out of range", rec.Name, rec.PID)}
		}
	}
	if s.Services == nil {
		s.Services = []ServiceRecord{}
	}
	return &s, nil
}

func Write(path string, s *State) error {
	if s == nil {
		return errors.New("nil state")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "mkdir state dir")
	}
	if s.Services == nil {
		s.Services = []ServiceRecord{}
	}
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal state")
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return errors.Wrap(err, "write state")
	}
	return nil
}

func Remove(path string) error {
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap(err, "remove state")
	}
	return nil
}

func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
