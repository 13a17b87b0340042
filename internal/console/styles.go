package console

import "github.com/charmbracelet/lipgloss"

var (
	successColor = lipgloss.Color("#10B981")
	errorColor   = lipgloss.Color("#F87171")
	accentColor  = lipgloss.Color("#60A5FA")
	mutedColor   = lipgloss.Color("#9CA3AF")
	borderColor  = lipgloss.Color("#6B7280")

	successStyle = lipgloss.NewStyle().Foreground(successColor)
	errorStyle   = lipgloss.NewStyle().Foreground(errorColor)
	mutedStyle   = lipgloss.NewStyle().Foreground(mutedColor)
	boldStyle    = lipgloss.NewStyle().Bold(true)
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(accentColor)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(borderColor).
			Padding(0, 1)
)
