package tui

import "github.com/charmbracelet/lipgloss"

var (
	ColorNavy   = lipgloss.Color("#1B2A4A")
	ColorWhite  = lipgloss.Color("#F5F5F5")
	ColorBlue   = lipgloss.Color("39")
	ColorRed    = lipgloss.Color("196")
	ColorOrange = lipgloss.Color("208")
	ColorGreen  = lipgloss.Color("42")
	ColorGray   = lipgloss.Color("244")

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorWhite).
			Background(ColorNavy).
			Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorNavy).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().Foreground(ColorGray)
	valueStyle = lipgloss.NewStyle().Foreground(ColorWhite).Bold(true)
	errorStyle = lipgloss.NewStyle().Foreground(ColorRed).Bold(true)
	okStyle    = lipgloss.NewStyle().Foreground(ColorGreen)
	helpStyle  = lipgloss.NewStyle().Foreground(ColorGray)
	barStyle   = lipgloss.NewStyle().Foreground(ColorBlue).Background(ColorBlue)
)
