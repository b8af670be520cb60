package models

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/eduard-lt/Harbor/pkg/tui"
	"github.com/eduard-lt/Harbor/pkg/tui/styles"
	"github.com/eduard-lt/Harbor/pkg/tui/widgets"
)

const maxEvents = 200

// EventLogModel is a scrollable, filterable list of watcher events. Only
// the newest maxEvents entries are kept.
type EventLogModel struct {
	entries []tui.EventLogEntry

	width  int
	height int

	searching bool
	search    textinput.Model
	filter    string

	vp viewport.Model
}

func NewEventLogModel() EventLogModel {
	search := textinput.New()
	search.Placeholder = "filter"
	search.Prompt = "/ "
	search.CharLimit = 200
	return EventLogModel{search: search, vp: viewport.New(0, 0)}
}

func (m EventLogModel) WithSize(width, height int) EventLogModel {
	m.width, m.height = width, height
	m.vp.Width = max(0, width-2)
	m.vp.Height = max(height-6, 3)
	return m.refresh(false)
}

// Entries returns the entries matching the current filter.
func (m EventLogModel) Entries() []tui.EventLogEntry {
	if m.filter == "" {
		return m.entries
	}
	needle := strings.ToLower(m.filter)
	var out []tui.EventLogEntry
	for _, e := range m.entries {
		if strings.Contains(strings.ToLower(e.Text), needle) || strings.Contains(strings.ToLower(e.Source), needle) {
			out = append(out, e)
		}
	}
	return out
}

func (m EventLogModel) Searching() bool { return m.searching }

func (m EventLogModel) Update(msg tea.Msg) (EventLogModel, tea.Cmd) {
	v, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	if m.searching {
		switch v.String() {
		case "esc":
			m.searching = false
			m.search.Blur()
			return m, nil
		case "enter":
			m.filter = strings.TrimSpace(m.search.Value())
			m.searching = false
			m.search.Blur()
			return m.refresh(true), nil
		}
		var cmd tea.Cmd
		m.search, cmd = m.search.Update(v)
		return m, cmd
	}

	switch v.String() {
	case "/":
		m.searching = true
		m.search.SetValue(m.filter)
		m.search.CursorEnd()
		return m, m.search.Focus()
	case "ctrl+l":
		m.filter = ""
		m.search.SetValue("")
		return m.refresh(true), nil
	case "c":
		m.entries = nil
		return m.refresh(true), nil
	}
	var cmd tea.Cmd
	m.vp, cmd = m.vp.Update(v)
	return m, cmd
}

func (m EventLogModel) Append(e tui.EventLogEntry) EventLogModel {
	m.entries = append(m.entries, e)
	if len(m.entries) > maxEvents {
		m.entries = append([]tui.EventLogEntry(nil), m.entries[len(m.entries)-maxEvents:]...)
	}
	return m.refresh(true)
}

func (m EventLogModel) View() string {
	theme := styles.DefaultTheme()

	hints := "[/] filter  [c] clear"
	if m.filter != "" {
		hints = fmt.Sprintf("filter=%q  %s", m.filter, hints)
	}

	var sections []string
	if m.searching {
		sections = append(sections, m.search.View())
	}

	content := m.vp.View()
	height := m.vp.Height + 3
	if len(m.entries) == 0 {
		content = theme.TitleMuted.Render("(no events yet)")
		height = 5
	}
	box := widgets.NewBox(fmt.Sprintf("Events (%d)", len(m.entries))).
		WithTitleRight(hints).
		WithContent(content).
		WithSize(m.width, height)
	sections = append(sections, box.Render())

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m EventLogModel) refresh(gotoBottom bool) EventLogModel {
	theme := styles.DefaultTheme()

	entries := m.Entries()
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		source := e.Source
		if source == "" {
			source = "harbor"
		}
		level := e.Level
		if level == "" {
			level = tui.LogLevelInfo
		}

		style := theme.TitleMuted
		switch level {
		case tui.LogLevelError:
			style = theme.StatusDead
		case tui.LogLevelWarn:
			style = theme.StatusWarn
		}

		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Center,
			style.Render(styles.LogLevelIcon(string(level))),
			" ",
			theme.TitleMuted.Render(e.At.Format("15:04:05")),
			" ",
			theme.TitleMuted.Render("["+source+"]"),
			"  ",
			style.Render(e.Text),
		))
	}
	m.vp.SetContent(strings.Join(lines, "\n"))
	if gotoBottom {
		m.vp.GotoBottom()
	}
	return m
}
