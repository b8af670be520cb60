package widgets

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/eduard-lt/Harbor/pkg/tui/styles"
)

type Keybind struct {
	Key   string
	Label string
}

func RenderKeybinds(keybinds []Keybind, theme styles.Theme) string {
	parts := make([]string, 0, len(keybinds))
	for _, kb := range keybinds {
		parts = append(parts, theme.KeybindKey.Render("["+kb.Key+"]")+theme.Keybind.Render(" "+kb.Label))
	}
	return strings.Join(parts, "  ")
}

// Footer is a separator rule above a centered row of key hints.
type Footer struct {
	Keybinds []Keybind
	Width    int
	theme    styles.Theme
}

func NewFooter(keybinds []Keybind) Footer {
	return Footer{Keybinds: keybinds, theme: styles.DefaultTheme()}
}

func (f Footer) WithWidth(w int) Footer {
	f.Width = w
	return f
}

func (f Footer) Render() string {
	width := f.Width
	if width <= 0 {
		width = 80
	}
	rule := lipgloss.NewStyle().Foreground(f.theme.Muted).Render(strings.Repeat("━", width))
	hints := lipgloss.PlaceHorizontal(width, lipgloss.Center, RenderKeybinds(f.Keybinds, f.theme))
	return lipgloss.JoinVertical(lipgloss.Left, rule, hints)
}
