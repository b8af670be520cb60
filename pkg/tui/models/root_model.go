package models

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/eduard-lt/Harbor/pkg/tui"
	"github.com/eduard-lt/Harbor/pkg/tui/styles"
	"github.com/eduard-lt/Harbor/pkg/tui/widgets"
)

type ViewID string

const (
	ViewDashboard ViewID = "dashboard"
	ViewEvents    ViewID = "events"
)

type RootModel struct {
	width  int
	height int

	active ViewID

	dashboard DashboardModel
	events    EventLogModel
}

func NewRootModel() RootModel {
	return RootModel{
		active:    ViewDashboard,
		dashboard: NewDashboardModel(),
		events:    NewEventLogModel(),
	}
}

func (m RootModel) Active() ViewID { return m.active }

func (m RootModel) Init() tea.Cmd { return nil }

func (m RootModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch v := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = v.Width, v.Height
		m.dashboard = m.dashboard.WithSize(v.Width, v.Height-3)
		m.events = m.events.WithSize(v.Width, v.Height-3)
		return m, nil
	case tea.KeyMsg:
		if m.active == ViewEvents && m.events.Searching() {
			var cmd tea.Cmd
			m.events, cmd = m.events.Update(v)
			return m, cmd
		}
		switch v.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "tab":
			if m.active == ViewDashboard {
				m.active = ViewEvents
			} else {
				m.active = ViewDashboard
			}
			return m, nil
		}
		var cmd tea.Cmd
		if m.active == ViewEvents {
			m.events, cmd = m.events.Update(v)
		} else {
			m.dashboard, cmd = m.dashboard.Update(v)
		}
		return m, cmd
	case tui.StateSnapshotMsg:
		m.dashboard = m.dashboard.WithSnapshot(v.Snapshot)
		return m, m.dashboard.LoadTail()
	case tui.EventLogAppendMsg:
		m.events = m.events.Append(v.Entry)
		return m, nil
	case tailLoadedMsg:
		var cmd tea.Cmd
		m.dashboard, cmd = m.dashboard.Update(v)
		return m, cmd
	}
	return m, nil
}

func (m RootModel) View() string {
	theme := styles.DefaultTheme()
	title := theme.Title.Render("harbor") + theme.TitleMuted.Render("  "+string(m.active))

	body := m.dashboard.View()
	if m.active == ViewEvents {
		body = m.events.View()
	}

	footer := widgets.NewFooter([]widgets.Keybind{
		{Key: "tab", Label: "switch view"},
		{Key: "↑/↓", Label: "select"},
		{Key: "q", Label: "quit"},
	}).WithWidth(m.width)

	return lipgloss.JoinVertical(lipgloss.Left, title, "", body, footer.Render())
}
