// Package metrics records one up run as Prometheus collectors and exports
// them in the node-exporter textfile format.
package metrics

import (
	"os"
	"path/filepath"
	"time"

	"github.com/eduard-lt/Harbor/pkg/config"
	"github.com/eduard-lt/Harbor/pkg/health"
	"github.com/eduard-lt/Harbor/pkg/orchestrator"
	"github.com/eduard-lt/Harbor/pkg/state"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "harbor"

// Recorder is an orchestrator.Observer backed by a private registry.
type Recorder struct {
	reg *prometheus.Registry

	starts        *prometheus.CounterVec
	probeAttempts *prometheus.CounterVec
	probeFailures *prometheus.CounterVec
	probeDuration *prometheus.HistogramVec
	ready         *prometheus.GaugeVec
	phase         *prometheus.GaugeVec
	runDuration   prometheus.Gauge

	runStart time.Time
}

var _ orchestrator.Observer = (*Recorder)(nil)

func NewRecorder() *Recorder {
	r := &Recorder{
		reg: prometheus.NewRegistry(),
		starts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "service",
			Name:      "starts_total",
			Help:      "Number of service processes spawned.",
		}, []string{"service"}),
		probeAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "probe",
			Name:      "attempts_total",
			Help:      "Readiness probe attempts.",
		}, []string{"service", "kind"}),
		probeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "probe",
			Name:      "failures_total",
			Help:      "Readiness probes that never succeeded.",
		}, []string{"service", "kind"}),
		probeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "probe",
			Name:      "wait_seconds",
			Help:      "Time spent waiting for a service to become ready.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"service"}),
		ready: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "service",
			Name:      "ready",
			Help:      "1 when the service passed its readiness probe (or has none).",
		}, []string{"service"}),
		phase: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "phase",
			Help:      "Current orchestrator phase (1 = active).",
		}, []string{"phase"}),
		runDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "duration_seconds",
			Help:      "Wall time of the up run until it reached ready or failed.",
		}),
	}
	r.reg.MustRegister(r.starts, r.probeAttempts, r.probeFailures, r.probeDuration, r.ready, r.phase, r.runDuration)
	return r
}

func (r *Recorder) Registry() *prometheus.Registry { return r.reg }

func (r *Recorder) PhaseChanged(p orchestrator.Phase) {
	if p == orchestrator.PhaseResolving {
		r.runStart = time.Now()
	}
	for _, known := range []orchestrator.Phase{
		orchestrator.PhaseIdle,
		orchestrator.PhaseResolving,
		orchestrator.PhaseLaunching,
		orchestrator.PhaseReady,
		orchestrator.PhaseFailed,
	} {
		v := 0.0
		if known == p {
			v = 1
		}
		r.phase.WithLabelValues(string(known)).Set(v)
	}
	if (p == orchestrator.PhaseReady || p == orchestrator.PhaseFailed) && !r.runStart.IsZero() {
		r.runDuration.Set(time.Since(r.runStart).Seconds())
	}
}

func (r *Recorder) ServiceStarting(config.Service) {}

func (r *Recorder) ServiceStarted(rec state.ServiceRecord) {
	r.starts.WithLabelValues(rec.Name).Inc()
	r.ready.WithLabelValues(rec.Name).Set(1)
}

func (r *Recorder) ProbeFinished(svc config.Service, res health.Result) {
	kind := string(res.Kind)
	r.probeAttempts.WithLabelValues(svc.Name, kind).Add(float64(res.Attempts))
	r.probeDuration.WithLabelValues(svc.Name).Observe(res.Elapsed.Seconds())
	if res.Ready() {
		r.ready.WithLabelValues(svc.Name).Set(1)
		return
	}
	r.probeFailures.WithLabelValues(svc.Name, kind).Inc()
	r.ready.WithLabelValues(svc.Name).Set(0)
}

// WriteTextfile writes the current values to path, replacing it atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "mkdir metrics dir")
	}
	if err := prometheus.WriteToTextfile(path, r.reg); err != nil {
		return errors.Wrap(err, "write metrics textfile")
	}
	return nil
}
