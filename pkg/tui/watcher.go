package tui

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/eduard-lt/Harbor/pkg/orchestrator"
	"github.com/eduard-lt/Harbor/pkg/state"
	"github.com/pkg/errors"
)

// StatusSource is the read side of the orchestrator.
type StatusSource interface {
	Status(ctx context.Context, withStats bool) (*orchestrator.StatusReport, error)
}

// StateWatcher polls a StatusSource and publishes a snapshot every
// Interval, plus an exit event for each service that was alive on the
// previous poll and is not anymore.
type StateWatcher struct {
	StatePath string
	Source    StatusSource
	Interval  time.Duration
	Pub       message.Publisher

	lastAlive map[string]bool
}

func (w *StateWatcher) Run(ctx context.Context) error {
	if w.Source == nil {
		return errors.New("missing status source")
	}
	if w.Pub == nil {
		return errors.New("missing publisher")
	}
	if w.Interval <= 0 {
		w.Interval = time.Second
	}

	t := time.NewTicker(w.Interval)
	defer t.Stop()

	for {
		if err := w.Poll(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

// Poll takes one snapshot and publishes it. Errors reading the state end
// up in the snapshot; only publish failures are returned.
func (w *StateWatcher) Poll(ctx context.Context) error {
	now := time.Now()
	snap := StateSnapshot{StatePath: w.StatePath, At: now, Exists: state.Exists(w.StatePath)}

	if !snap.Exists {
		w.lastAlive = nil
		return publish(w.Pub, TopicHarborEvents, DomainTypeStateSnapshot, snap)
	}

	rep, err := w.Source.Status(ctx, true)
	if err != nil {
		w.lastAlive = nil
		snap.Error = err.Error()
		return publish(w.Pub, TopicHarborEvents, DomainTypeStateSnapshot, snap)
	}
	snap.Report = rep

	alive := make(map[string]bool, len(rep.Services))
	for _, svc := range rep.Services {
		alive[svc.Name] = svc.Alive
		if w.lastAlive[svc.Name] && !svc.Alive {
			ev := ServiceExitObserved{Name: svc.Name, PID: svc.PID, When: now, Reason: "process not alive"}
			if err := publish(w.Pub, TopicHarborEvents, DomainTypeServiceExit, ev); err != nil {
				return err
			}
		}
	}
	w.lastAlive = alive

	return publish(w.Pub, TopicHarborEvents, DomainTypeStateSnapshot, snap)
}
