package ui

import "github.com/charmbracelet/lipgloss"

var (
	// Colors
	PrimaryColor = lipgloss.AdaptiveColor{Light: "#6D28D9", Dark: "#A78BFA"}
	SuccessColor = lipgloss.AdaptiveColor{Light: "#047857", Dark: "#10B981"}
	WarningColor = lipgloss.AdaptiveColor{Light: "#B45309", Dark: "#F59E0B"}
	ErrorColor   = lipgloss.AdaptiveColor{Light: "#B91C1C", Dark: "#F87171"}
	MutedColor   = lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#9CA3AF"}
	BorderColor  = lipgloss.AdaptiveColor{Light: "#9CA3AF", Dark: "#6B7280"}

	// Text styles
	Primary = lipgloss.NewStyle().Foreground(PrimaryColor)
	Success = lipgloss.NewStyle().Foreground(SuccessColor)
	Warning = lipgloss.NewStyle().Foreground(WarningColor)
	Error   = lipgloss.NewStyle().Foreground(ErrorColor)
	Muted   = lipgloss.NewStyle().Foreground(MutedColor)
	Bold    = lipgloss.NewStyle().Bold(true)

	// Step labels
	StepLabel = lipgloss.NewStyle().Bold(true)
	StepTag   = lipgloss.NewStyle().Foreground(PrimaryColor)

	// Persistent section
	Rule     = lipgloss.NewStyle().Foreground(BorderColor)
	Spinner  = lipgloss.NewStyle().Foreground(PrimaryColor)
	Status   = lipgloss.NewStyle().Foreground(MutedColor).Italic(true)
	Hint     = lipgloss.NewStyle().Foreground(MutedColor)
	GroupTag = lipgloss.NewStyle().Bold(true).Foreground(PrimaryColor)

	// Switcher
	MenuTitle    = lipgloss.NewStyle().Bold(true).Foreground(PrimaryColor).MarginBottom(1)
	MenuItem     = lipgloss.NewStyle().PaddingLeft(2)
	MenuSelected = lipgloss.NewStyle().PaddingLeft(0).Bold(true).Foreground(SuccessColor)
	MenuNumber   = lipgloss.NewStyle().Foreground(WarningColor)

	// Error box used by the CLI for diagnostics
	ErrorTitle = lipgloss.NewStyle().Bold(true).Foreground(ErrorColor)
	ErrorBox   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ErrorColor).
			Padding(0, 1)
	Suggestion = lipgloss.NewStyle().Foreground(WarningColor)
)

// Status icons.
const (
	IconSucceeded = "✓"
	IconFailed    = "✗"
	IconSkipped   = "○"
	IconRunning   = "•"
	IconArrow     = "›"
)
