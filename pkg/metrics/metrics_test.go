package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/eduard-lt/Harbor/pkg/config"
	"github.com/eduard-lt/Harbor/pkg/health"
	"github.com/eduard-lt/Harbor/pkg/orchestrator"
	"github.com/eduard-lt/Harbor/pkg/state"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

// value returns the counter or gauge value of the first series of name
// carrying labels.
func value(t *testing.T, r *Recorder, name string, labels map[string]string) float64 {
	t.Helper()
	mfs, err := r.Registry().Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
	series:
		for _, m := range mf.GetMetric() {
			got := map[string]string{}
			for _, lp := range m.GetLabel() {
				got[lp.GetName()] = lp.GetValue()
			}
			for k, v := range labels {
				if got[k] != v {
					continue series
				}
			}
			if c := m.GetCounter(); c != nil {
				return c.GetValue()
			}
			return m.GetGauge().GetValue()
		}
	}
	t.Fatalf("series %s%v not found", name, labels)
	return 0
}

func TestRecorder_CountsStartsAndProbes(t *testing.T) {
	r := NewRecorder()

	r.PhaseChanged(orchestrator.PhaseResolving)
	r.PhaseChanged(orchestrator.PhaseLaunching)
	r.ServiceStarted(state.ServiceRecord{Name: "db"})
	r.ProbeFinished(config.Service{Name: "db"}, health.Result{Kind: health.KindTCP, Attempts: 3, Elapsed: 900 * time.Millisecond})
	r.ServiceStarted(state.ServiceRecord{Name: "api"})
	r.ProbeFinished(config.Service{Name: "api"}, health.Result{Kind: health.KindHTTP, Attempts: 10, Err: errors.New("http 503")})
	r.PhaseChanged(orchestrator.PhaseFailed)

	require.Equal(t, 1.0, value(t, r, "harbor_service_starts_total", map[string]string{"service": "db"}))
	require.Equal(t, 3.0, value(t, r, "harbor_probe_attempts_total", map[string]string{"service": "db", "kind": "tcp"}))
	require.Equal(t, 1.0, value(t, r, "harbor_probe_failures_total", map[string]string{"service": "api", "kind": "http"}))
	require.Equal(t, 1.0, value(t, r, "harbor_service_ready", map[string]string{"service": "db"}))
	require.Equal(t, 0.0, value(t, r, "harbor_service_ready", map[string]string{"service": "api"}))
	require.Equal(t, 1.0, value(t, r, "harbor_run_phase", map[string]string{"phase": "failed"}))
	require.Equal(t, 0.0, value(t, r, "harbor_run_phase", map[string]string{"phase": "launching"}))
}

func TestRecorder_WriteTextfile(t *testing.T) {
	r := NewRecorder()
	r.PhaseChanged(orchestrator.PhaseResolving)
	r.ServiceStarted(state.ServiceRecord{Name: "web"})
	r.PhaseChanged(orchestrator.PhaseReady)

	path := filepath.Join(t.TempDir(), "textfile", "harbor.prom")
	require.NoError(t, r.WriteTextfile(path))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(b)
	require.True(t, strings.Contains(text, `harbor_service_starts_total{service="web"} 1`), text)
	require.Contains(t, text, "harbor_run_duration_seconds")
	require.Contains(t, text, `harbor_run_phase{phase="ready"} 1`)
}
