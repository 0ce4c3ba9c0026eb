package tui

import (
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
)

// Styles holds the lipgloss styles of the registration view.
type Styles struct {
	Title       lipgloss.Style
	Pane        lipgloss.Style
	FocusedPane lipgloss.Style
	Status      lipgloss.Style
	Notice      lipgloss.Style
	Error       lipgloss.Style
	Help        lipgloss.Style
}

// DefaultStyles returns the default styles.
func DefaultStyles() Styles {
	border := lipgloss.RoundedBorder()
	return Styles{
		Title:       lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4")).MarginBottom(1),
		Pane:        lipgloss.NewStyle().Border(border).BorderForeground(lipgloss.Color("240")).Padding(0, 1),
		FocusedPane: lipgloss.NewStyle().Border(border).BorderForeground(lipgloss.Color("#7D56F4")).Padding(0, 1),
		Status:      lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		Notice:      lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		Error:       lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		Help:        lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
	}
}

func tableStyles() table.Styles {
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57"))
	return s
}
