package tui

import (
	"time"

	"github.com/eduard-lt/Harbor/pkg/orchestrator"
)

// StateSnapshot is what the dashboard renders: the status report for the
// state document at StatePath, taken at At.
type StateSnapshot struct {
	StatePath string                     `json:"state_path"`
	At        time.Time                  `json:"at"`
	Exists    bool                       `json:"exists"`
	Report    *orchestrator.StatusReport `json:"report,omitempty"`
	Error     string                     `json:"error,omitempty"`
}

// Alive counts the live services in the snapshot.
func (s StateSnapshot) Alive() (alive, total int) {
	if s.Report == nil {
		return 0, 0
	}
	for _, svc := range s.Report.Services {
		if svc.Alive {
			alive++
		}
	}
	return alive, len(s.Report.Services)
}

type ServiceExitObserved struct {
	Name   string    `json:"name"`
	PID    int       `json:"pid"`
	When   time.Time `json:"when"`
	Reason string    `json:"reason,omitempty"`
}

type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

type EventLogEntry struct {
	At     time.Time `json:"at"`
	Source string    `json:"source,omitempty"`
	Level  LogLevel  `json:"level,omitempty"`
	Text   string    `json:"text"`
}
