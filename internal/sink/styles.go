package sink

import (
	"github.com/charmbracelet/lipgloss"
)

// --- Color Palette ---
var (
	ColorPrimary = lipgloss.Color("#7D56F4") // Indigo/Purple
	ColorGood    = lipgloss.Color("#04B575") // Green
	ColorBad     = lipgloss.Color("#FF5F87") // Pink/Red
	ColorWarn    = lipgloss.Color("#FFAF00") // Gold
	ColorSubtle  = lipgloss.Color("#767676") // Gray
	ColorBorder  = lipgloss.Color("#3C3C3C") // Dark Gray border
	ColorBanner  = lipgloss.Color("#7D56F4")
)

// --- Report Styles ---
var (
	Title = lipgloss.NewStyle().
		Foreground(ColorPrimary).
		Bold(true).
		Padding(0, 1).
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(ColorSubtle)

	Section = lipgloss.NewStyle().Foreground(ColorPrimary).Bold(true)

	Box = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorBorder).
		Padding(0, 1).
		Margin(0, 1)

	Subtle = lipgloss.NewStyle().Foreground(ColorSubtle)
	Good   = lipgloss.NewStyle().Foreground(ColorGood).Bold(true)
	Bad    = lipgloss.NewStyle().Foreground(ColorBad)
	Warn   = lipgloss.NewStyle().Foreground(ColorWarn)
)
