package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Theme is the session's color scheme.
type Theme struct {
	Primary lipgloss.Color
	Dim     lipgloss.Color
	Busy    lipgloss.Color
	Error   lipgloss.Color
}

// DefaultTheme is bright green on the terminal default.
var DefaultTheme = Theme{
	Primary: lipgloss.Color("#00ff9f"),
	Dim:     lipgloss.Color("#6e7681"),
	Busy:    lipgloss.Color("#e3b341"),
	Error:   lipgloss.Color("#ff5f5f"),
}

// Styles holds the styles derived from a Theme.
type Styles struct {
	Title  lipgloss.Style
	Label  lipgloss.Style
	Help   lipgloss.Style
	Border lipgloss.Style
	Idle   lipgloss.Style
	Active lipgloss.Style
	Busy   lipgloss.Style
	Error  lipgloss.Style
}

// NewStyles derives Styles from t.
func NewStyles(t Theme) Styles {
	return Styles{
		Title:  lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Label:  lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Help:   lipgloss.NewStyle().Foreground(t.Dim),
		Border: lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(t.Primary).Padding(0, 1),
		Idle:   lipgloss.NewStyle().Foreground(t.Dim),
		Active: lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Busy:   lipgloss.NewStyle().Foreground(t.Busy),
		Error:  lipgloss.NewStyle().Bold(true).Foreground(t.Error),
	}
}

// State renders a workflow state name, colored by kind.
func (s Styles) State(name string) string {
	switch name {
	case "Idle":
		return s.Idle.Render(name)
	case "Playing":
		return s.Active.Render(name)
	case "Error":
		return s.Error.Render(name)
	}
	return s.Busy.Render(name)
}

// Section is one labeled block of a Panel. Sections without lines are not
// rendered.
type Section struct {
	Label string
	Lines []string
}

// Panel renders a bordered summary box.
type Panel struct {
	Styles   Styles
	Title    string
	Status   string
	Sections []Section
	// Width is the outer width; 0 selects 80.
	Width int
}

// Render returns the panel as a string.
func (p Panel) Render() string {
	width := p.Width
	if width <= 0 {
		width = 80
	}
	inner := max(width-4, 10)
	wrap := lipgloss.NewStyle().Width(inner)

	blocks := []string{p.Styles.Title.Render(p.Title) + "  " + p.Status}
	for _, sec := range p.Sections {
		if len(sec.Lines) == 0 {
			continue
		}
		blocks = append(blocks, "", p.Styles.Label.Render(sec.Label), wrap.Render(strings.Join(sec.Lines, "\n")))
	}
	return p.Styles.Border.Width(width - 2).Render(strings.Join(blocks, "\n"))
}
