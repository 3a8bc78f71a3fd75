package tui

import "github.com/charmbracelet/lipgloss"

var (
	muted = lipgloss.Color("#64748b")
	text  = lipgloss.Color("#e2e8f0")
	blue  = lipgloss.Color("#60a5fa")
	pink  = lipgloss.Color("#f472b6")
)

type styles struct {
	header     lipgloss.Style
	subheader  lipgloss.Style
	body       lipgloss.Style
	typing     lipgloss.Style
	status     lipgloss.Style
	errStatus  lipgloss.Style
	inputPanel lipgloss.Style
	empty      lipgloss.Style
}

func newStyles() styles {
	return styles{
		header: lipgloss.NewStyle().
			Foreground(text).
			Bold(true).
			Padding(0, 1),
		subheader:  lipgloss.NewStyle().Foreground(muted).Padding(0, 1),
		body:       lipgloss.NewStyle().Foreground(text),
		typing:     lipgloss.NewStyle().Foreground(muted).Italic(true),
		status:     lipgloss.NewStyle().Foreground(blue).Bold(true),
		errStatus:  lipgloss.NewStyle().Foreground(pink).Bold(true),
		inputPanel: lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(muted).Padding(0, 1),
		empty:      lipgloss.NewStyle().Foreground(muted).Italic(true),
	}
}

// nameStyle colours a speaker by its participant colour.
func nameStyle(color string) lipgloss.Style {
	s := lipgloss.NewStyle().Bold(true)
	if color == "" {
		return s.Foreground(text)
	}
	return s.Foreground(lipgloss.Color(color))
}
