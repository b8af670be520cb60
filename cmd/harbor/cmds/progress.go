package cmds

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/eduard-lt/Harbor/pkg/config"
	"github.com/eduard-lt/Harbor/pkg/health"
	"github.com/eduard-lt/Harbor/pkg/orchestrator"
	"github.com/eduard-lt/Harbor/pkg/state"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
)

// progressObserver shows a spinner while each service starts and prints a
// line once its probe settles.
type progressObserver struct {
	orchestrator.NopObserver
	out io.Writer
	s   *spinner.Spinner
}

func newProgressObserver(out io.Writer) *progressObserver {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(out))
	return &progressObserver{out: out, s: s}
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (p *progressObserver) ServiceStarting(svc config.Service) {
	p.s.Suffix = " starting " + svc.Name
	if !p.s.Active() {
		p.s.Start()
	}
}

func (p *progressObserver) ServiceStarted(rec state.ServiceRecord) {
	p.s.Suffix = fmt.Sprintf(" waiting for %s (pid %d)", rec.Name, rec.PID)
}

func (p *progressObserver) ProbeFinished(svc config.Service, res health.Result) {
	p.s.Stop()
	if res.Err == nil {
		_, _ = fmt.Fprintf(p.out, "%s %s ready (%s, %d attempts, %s)\n",
			text.FgGreen.Sprint("✓"), svc.Name, res.Kind, res.Attempts, res.Elapsed.Round(time.Millisecond))
		return
	}
	_, _ = fmt.Fprintf(p.out, "%s %s not ready after %d attempts: %v\n",
		text.FgRed.Sprint("✗"), svc.Name, res.Attempts, res.Err)
}

func (p *progressObserver) PhaseChanged(ph orchestrator.Phase) {
	if ph == orchestrator.PhaseReady || ph == orchestrator.PhaseFailed {
		p.s.Stop()
	}
}
