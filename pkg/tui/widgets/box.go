package widgets

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/eduard-lt/Harbor/pkg/tui/styles"
)

// Box is a rounded border with a header line carrying a title on the left
// and hints on the right.
type Box struct {
	Title      string
	TitleRight string
	Content    string
	Width      int
	Height     int
	theme      styles.Theme
}

func NewBox(title string) Box {
	return Box{Title: title, theme: styles.DefaultTheme()}
}

func (b Box) WithContent(content string) Box {
	b.Content = content
	return b
}

func (b Box) WithTitleRight(text string) Box {
	b.TitleRight = text
	return b
}

func (b Box) WithSize(width, height int) Box {
	b.Width = width
	b.Height = height
	return b
}

func (b Box) Render() string {
	inner := max(b.Width-2, 0)

	left := b.theme.Title.Render(b.Title)
	right := b.theme.TitleMuted.Render(b.TitleRight)
	gap := max(inner-lipgloss.Width(left)-lipgloss.Width(right), 1)
	header := left + lipgloss.NewStyle().Width(gap).Render("") + right

	style := b.theme.Border
	if b.Width > 0 {
		style = style.Width(inner)
	}
	if b.Height > 0 {
		// borders and header line
		style = style.Height(max(b.Height-3, 0))
	}
	return style.Render(header + "\n" + b.Content)
}
