// Package cli provides styled terminal output using lipgloss.
package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	// PrimaryColor is the main theme color.
	PrimaryColor = lipgloss.Color("#5B8DEF")
	// SuccessColor indicates successful operations.
	SuccessColor = lipgloss.Color("#4ECDC4") // Teal
	// WarningColor indicates warnings or caution messages.
	WarningColor = lipgloss.Color("#FFE66D") // Yellow
	// ErrorColor indicates errors or failure messages.
	ErrorColor = lipgloss.Color("#FF6B6B") // Red
	// InfoColor indicates informational messages.
	InfoColor = lipgloss.Color("#95E1D3") // Light teal
	// SubtleColor indicates less prominent UI elements.
	SubtleColor = lipgloss.Color("#666666") // Gray

	// TitleStyle is used for section titles.
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(PrimaryColor).
			MarginBottom(1)

	// SuccessStyle formats success messages.
	SuccessStyle = lipgloss.NewStyle().
			Foreground(SuccessColor)

	// WarningStyle formats warning messages.
	WarningStyle = lipgloss.NewStyle().
			Foreground(WarningColor)

	// ErrorStyle formats error messages.
	ErrorStyle = lipgloss.NewStyle().
			Foreground(ErrorColor)

	// InfoStyle formats informational messages.
	InfoStyle = lipgloss.NewStyle().
			Foreground(InfoColor)

	// SubtleStyle formats less prominent text.
	SubtleStyle = lipgloss.NewStyle().
			Foreground(SubtleColor)

	// BoldStyle makes text bold.
	BoldStyle = lipgloss.NewStyle().
			Bold(true)

	// BoxStyle is used for bordered content boxes.
	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#333")).
			Padding(1, 2)

	// TableHeaderStyle is used for table headers.
	TableHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("86"))
)

// Icons.
const (
	SuccessIcon = "✓"
	ErrorIcon   = "✗"
	WarningIcon = "⚠️"
	InfoIcon    = "ℹ️"
	RuleIcon    = "📐"
	LedgerIcon  = "📒"
)

// FormatSuccess formats a success message with icon.
func FormatSuccess(message string) string {
	return SuccessStyle.Render(SuccessIcon + " " + message)
}

// FormatError formats an error message with icon.
func FormatError(message string) string {
	return ErrorStyle.Render(ErrorIcon + " " + message)
}

// FormatWarning formats a warning message with icon.
func FormatWarning(message string) string {
	return WarningStyle.Render(WarningIcon + " " + message)
}

// FormatInfo formats an info message with icon.
func FormatInfo(message string) string {
	return InfoStyle.Render(InfoIcon + " " + message)
}

// FormatTitle formats a section title.
func FormatTitle(title string) string {
	return TitleStyle.Render(LedgerIcon + " " + title)
}

// FormatConfidence renders a score in [0,1] as a colored percentage:
// green at 0.8 and above, yellow from 0.5, red below.
func FormatConfidence(score float64) string {
	text := fmt.Sprintf("%3.0f%%", score*100)
	switch {
	case score >= 0.8:
		return SuccessStyle.Render(text)
	case score >= 0.5:
		return WarningStyle.Render(text)
	default:
		return ErrorStyle.Render(text)
	}
}

// FormatFeedback renders accept/reject counters as "+a/-r".
func FormatFeedback(accept, reject int) string {
	if accept == 0 && reject == 0 {
		return SubtleStyle.Render("-")
	}
	return SuccessStyle.Render(fmt.Sprintf("+%d", accept)) + "/" + ErrorStyle.Render(fmt.Sprintf("-%d", reject))
}

// FormatEnabled renders a rule's enabled flag.
func FormatEnabled(enabled bool) string {
	if enabled {
		return SuccessStyle.Render(SuccessIcon)
	}
	return SubtleStyle.Render(ErrorIcon)
}

// RenderBox renders content in a styled box.
func RenderBox(title, content string) string {
	boxTitle := TitleStyle.
		UnsetMargins().
		Render(title)

	return BoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, boxTitle, content))
}

// Truncate shortens s to at most width runes, marking the cut with "…".
func Truncate(s string, width int) string {
	r := []rune(strings.TrimSpace(s))
	if width <= 0 || len(r) <= width {
		return string(r)
	}
	if width == 1 {
		return "…"
	}
	return string(r[:width-1]) + "…"
}
