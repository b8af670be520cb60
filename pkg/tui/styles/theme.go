package styles

import "github.com/charmbracelet/lipgloss"

// Theme is the dashboard palette and the styles built from it.
type Theme struct {
	Primary   lipgloss.Color
	Secondary lipgloss.Color
	Success   lipgloss.Color
	Warning   lipgloss.Color
	Error     lipgloss.Color
	Muted     lipgloss.Color
	Text      lipgloss.Color
	TextDim   lipgloss.Color

	Border      lipgloss.Style
	Title       lipgloss.Style
	TitleMuted  lipgloss.Style
	Selected    lipgloss.Style
	TableHeader lipgloss.Style
	Keybind     lipgloss.Style
	KeybindKey  lipgloss.Style
	StatusAlive lipgloss.Style
	StatusDead  lipgloss.Style
	StatusWarn  lipgloss.Style
}

func DefaultTheme() Theme {
	primary := lipgloss.Color("#2563EB")
	secondary := lipgloss.Color("#06B6D4")
	success := lipgloss.Color("#22C55E")
	warning := lipgloss.Color("#EAB308")
	errorC := lipgloss.Color("#EF4444")
	muted := lipgloss.Color("#6B7280")
	text := lipgloss.Color("#F9FAFB")
	textDim := lipgloss.Color("#9CA3AF")

	return Theme{
		Primary:   primary,
		Secondary: secondary,
		Success:   success,
		Warning:   warning,
		Error:     errorC,
		Muted:     muted,
		Text:      text,
		TextDim:   textDim,

		Border: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(muted),
		Title:      lipgloss.NewStyle().Bold(true).Foreground(text),
		TitleMuted: lipgloss.NewStyle().Foreground(textDim),
		Selected: lipgloss.NewStyle().
			Bold(true).
			Foreground(text).
			Background(primary),
		TableHeader: lipgloss.NewStyle().
			Bold(true).
			Foreground(secondary).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(muted),
		Keybind:     lipgloss.NewStyle().Foreground(textDim),
		KeybindKey:  lipgloss.NewStyle().Bold(true).Foreground(secondary),
		StatusAlive: lipgloss.NewStyle().Foreground(success),
		StatusDead:  lipgloss.NewStyle().Foreground(errorC),
		StatusWarn:  lipgloss.NewStyle().Foreground(warning),
	}
}
