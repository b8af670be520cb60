package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/eduard-lt/Harbor/pkg/orchestrator"
	"github.com/eduard-lt/Harbor/pkg/state"
	"github.com/eduard-lt/Harbor/pkg/tui"
	"github.com/eduard-lt/Harbor/pkg/tui/styles"
	"github.com/eduard-lt/Harbor/pkg/tui/widgets"
)

const tailLines = 8

type tailLoadedMsg struct {
	service string
	stream  orchestrator.Stream
	lines   []string
	err     error
}

// DashboardModel shows one table row per recorded service and the tail of
// the selected service's log below it.
type DashboardModel struct {
	last   *tui.StateSnapshot
	table  table.Model
	stream orchestrator.Stream

	tail    []string
	tailErr error

	width  int
	height int
}

func NewDashboardModel() DashboardModel {
	theme := styles.DefaultTheme()
	t := table.New(
		table.WithColumns(dashboardColumns(80)),
		table.WithFocused(true),
		table.WithHeight(6),
	)
	s := table.DefaultStyles()
	s.Header = theme.TableHeader
	s.Selected = theme.Selected
	t.SetStyles(s)
	return DashboardModel{table: t, stream: orchestrator.Stderr}
}

func dashboardColumns(width int) []table.Column {
	name := max(width-2-4-8-8-8-10-12, 12)
	return []table.Column{
		{Title: "", Width: 2},
		{Title: "SERVICE", Width: name},
		{Title: "PID", Width: 8},
		{Title: "STATUS", Width: 8},
		{Title: "CPU%", Width: 8},
		{Title: "MEM MB", Width: 10},
		{Title: "UPTIME", Width: 12},
	}
}

func (m DashboardModel) WithSize(width, height int) DashboardModel {
	m.width, m.height = width, height
	m.table.SetColumns(dashboardColumns(width))
	m.table.SetHeight(max(height-tailLines-10, 3))
	return m
}

func (m DashboardModel) WithSnapshot(s tui.StateSnapshot) DashboardModel {
	m.last = &s
	m.table.SetRows(snapshotRows(s, time.Now()))
	return m
}

func snapshotRows(s tui.StateSnapshot, now time.Time) []table.Row {
	if s.Report == nil {
		return nil
	}
	rows := make([]table.Row, 0, len(s.Report.Services))
	for _, svc := range s.Report.Services {
		status, cpu, mem, uptime := "dead", "-", "-", "-"
		if svc.Alive {
			status = "alive"
			if !svc.StartedAt.IsZero() {
				uptime = now.Sub(svc.StartedAt).Truncate(time.Second).String()
			}
		}
		if svc.Stats != nil {
			cpu = strconv.FormatFloat(svc.Stats.CPUPercent, 'f', 1, 64)
			mem = strconv.FormatUint(svc.Stats.MemoryMB, 10)
		}
		rows = append(rows, table.Row{
			styles.StatusIcon(svc.Alive),
			svc.Name,
			strconv.Itoa(svc.PID),
			status,
			cpu,
			mem,
			uptime,
		})
	}
	return rows
}

// Selected returns the service under the cursor.
func (m DashboardModel) Selected() (orchestrator.ServiceStatus, bool) {
	if m.last == nil || m.last.Report == nil {
		return orchestrator.ServiceStatus{}, false
	}
	i := m.table.Cursor()
	if i < 0 || i >= len(m.last.Report.Services) {
		return orchestrator.ServiceStatus{}, false
	}
	return m.last.Report.Services[i], true
}

// LoadTail returns a command reading the end of the selected service's log.
func (m DashboardModel) LoadTail() tea.Cmd {
	svc, ok := m.Selected()
	if !ok {
		return nil
	}
	stream := m.stream
	path := svc.StderrLog
	if stream == orchestrator.Stdout {
		path = svc.StdoutLog
	}
	return func() tea.Msg {
		lines, err := state.TailLines(path, tailLines)
		return tailLoadedMsg{service: svc.Name, stream: stream, lines: lines, err: err}
	}
}

func (m DashboardModel) Update(msg tea.Msg) (DashboardModel, tea.Cmd) {
	switch v := msg.(type) {
	case tailLoadedMsg:
		if svc, ok := m.Selected(); ok && svc.Name == v.service && v.stream == m.stream {
			m.tail, m.tailErr = v.lines, v.err
		}
		return m, nil
	case tea.KeyMsg:
		if v.String() == "o" {
			if m.stream == orchestrator.Stderr {
				m.stream = orchestrator.Stdout
			} else {
				m.stream = orchestrator.Stderr
			}
			m.tail, m.tailErr = nil, nil
			return m, m.LoadTail()
		}
		prev := m.table.Cursor()
		var cmd tea.Cmd
		m.table, cmd = m.table.Update(v)
		if m.table.Cursor() != prev {
			m.tail, m.tailErr = nil, nil
			return m, tea.Batch(cmd, m.LoadTail())
		}
		return m, cmd
	}
	return m, nil
}

func (m DashboardModel) View() string {
	theme := styles.DefaultTheme()
	if m.last == nil {
		return theme.TitleMuted.Render("Loading state...") + "\n"
	}

	s := m.last
	var b strings.Builder
	switch {
	case !s.Exists:
		b.WriteString(theme.TitleMuted.Render("Stopped: no state at " + s.StatePath))
		return b.String() + "\n"
	case s.Error != "":
		b.WriteString(theme.StatusDead.Render("State error: " + s.Error))
		return b.String() + "\n"
	}

	alive, total := s.Alive()
	summary := fmt.Sprintf("%d/%d alive", alive, total)
	summaryStyle := theme.StatusAlive
	if alive < total {
		summaryStyle = theme.StatusWarn
	}
	header := lipgloss.JoinHorizontal(lipgloss.Left,
		theme.Title.Render("Run "+s.Report.RunID),
		"  ",
		summaryStyle.Render(summary),
		"  ",
		theme.TitleMuted.Render("updated "+s.At.Format("15:04:05")),
	)
	b.WriteString(header + "\n\n")
	b.WriteString(m.table.View() + "\n")

	title := "Log"
	content := theme.TitleMuted.Render("(empty)")
	if svc, ok := m.Selected(); ok {
		title = fmt.Sprintf("%s %s", svc.Name, m.stream)
	}
	switch {
	case m.tailErr != nil:
		content = theme.StatusDead.Render(m.tailErr.Error())
	case len(m.tail) > 0:
		content = strings.Join(m.tail, "\n")
	}
	box := widgets.NewBox(title).
		WithTitleRight("[o] stdout/stderr").
		WithContent(content).
		WithSize(m.width, tailLines+3)
	b.WriteString(box.Render())
	return b.String()
}
