package tui

import "github.com/charmbracelet/lipgloss"

var (
	colorPrimary = lipgloss.Color("#2563EB")
	colorSuccess = lipgloss.Color("#16A34A")
	colorError   = lipgloss.Color("#DC2626")
	colorMuted   = lipgloss.Color("#6B7280")
	colorBorder  = lipgloss.Color("#9CA3AF")
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(colorPrimary).
			Bold(true)
	stepStyle = lipgloss.NewStyle().
			Foreground(colorMuted)
	questionStyle = lipgloss.NewStyle().
			Bold(true).
			MarginTop(1).
			MarginBottom(1)
	valueStyle = lipgloss.NewStyle().
			Foreground(colorPrimary)
	placeholderStyle = lipgloss.NewStyle().
				Foreground(colorMuted).
				Italic(true)
	cursorStyle = lipgloss.NewStyle().
			Foreground(colorPrimary).
			Bold(true)
	errorStyle = lipgloss.NewStyle().
			Foreground(colorError).
			Bold(true)
	hintStyle = lipgloss.NewStyle().
			Foreground(colorMuted)
	dropdownStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)
	popupStyle = lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			Padding(1, 2).
			Width(48)
	dialogStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorSuccess).
			Padding(1, 2).
			Width(52)
	buttonStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(colorPrimary).
			Padding(0, 2)
	disabledButtonStyle = lipgloss.NewStyle().
				Foreground(colorMuted).
				Background(lipgloss.Color("#E5E7EB")).
				Padding(0, 2)
)

func popupBorder(kind string) lipgloss.Style {
	if kind == "error" {
		return popupStyle.BorderForeground(colorError)
	}
	return popupStyle.BorderForeground(colorSuccess)
}
