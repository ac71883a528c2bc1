package ui

import "github.com/charmbracelet/lipgloss"

// Palette shared by every view
var (
	PrimaryColor = lipgloss.Color("205")
	MutedColor   = lipgloss.Color("240")
	ErrorColor   = lipgloss.Color("196")
	WarningColor = lipgloss.Color("214")
	SuccessColor = lipgloss.Color("42")
	TextColor    = lipgloss.Color("252")
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(PrimaryColor)

	statusStyle = lipgloss.NewStyle().
			Foreground(MutedColor)

	timeStyle    = lipgloss.NewStyle().Foreground(MutedColor)
	authorStyle  = lipgloss.NewStyle().Bold(true).Foreground(PrimaryColor)
	textStyle    = lipgloss.NewStyle().Foreground(TextColor)
	errorStyle   = lipgloss.NewStyle().Foreground(ErrorColor)
	successStyle = lipgloss.NewStyle().Foreground(SuccessColor)
	warningStyle = lipgloss.NewStyle().Foreground(WarningColor)

	soldStyle = lipgloss.NewStyle().Foreground(MutedColor).Strikethrough(true)

	inputBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.NormalBorder(), true, false, false, false).
				BorderForeground(MutedColor)
)
