package orchestrator

import (
	"github.com/eduard-lt/Harbor/pkg/config"
	"github.com/eduard-lt/Harbor/pkg/health"
	"github.com/eduard-lt/Harbor/pkg/state"
)

type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseResolving Phase = "resolving"
	PhaseLaunching Phase = "launching"
	PhaseReady     Phase = "ready"
	PhaseFailed    Phase = "failed"
)

// Observer receives progress from Up. Calls happen on the goroutine running
// Up, in order.
type Observer interface {
	PhaseChanged(p Phase)
	ServiceStarting(svc config.Service)
	ServiceStarted(rec state.ServiceRecord)
	ProbeFinished(svc config.Service, res health.Result)
}

// NopObserver ignores everything.
type NopObserver struct{}

func (NopObserver) PhaseChanged(Phase)                          {}
func (NopObserver) ServiceStarting(config.Service)              {}
func (NopObserver) ServiceStarted(state.ServiceRecord)          {}
func (NopObserver) ProbeFinished(config.Service, health.Result) {}

// Observers fans every call out to each element.
type Observers []Observer

func (obs Observers) PhaseChanged(p Phase) {
	for _, o := range obs {
		o.PhaseChanged(p)
	}
}

func (obs Observers) ServiceStarting(svc config.Service) {
	for _, o := range obs {
		o.ServiceStarting(svc)
	}
}

func (obs Observers) ServiceStarted(rec state.ServiceRecord) {
	for _, o := range obs {
		o.ServiceStarted(rec)
	}
}

func (obs Observers) ProbeFinished(svc config.Service, res health.Result) {
	for _, o := range obs {
		o.ProbeFinished(svc, res)
	}
}
