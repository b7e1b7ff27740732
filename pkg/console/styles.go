// Package console renders verity output for a terminal: styled status
// labels, aligned tables, run summaries and markdown.
package console

import "github.com/charmbracelet/lipgloss"

// Status glyphs. They carry meaning without relying on color alone.
const (
	GlyphPassed    = "✓"
	GlyphFailed    = "✗"
	GlyphSkipped   = "⊘"
	GlyphTimeout   = "⧗"
	GlyphRunning   = "▸"
	GlyphPending   = "○"
	GlyphWarning   = "⚠"
	GlyphGate      = "■"
	GlyphPreserved = "⚑"
)

var (
	colorGreen  = lipgloss.Color("42")
	colorRed    = lipgloss.Color("196")
	colorYellow = lipgloss.Color("214")
	colorBlue   = lipgloss.Color("39")
	colorCyan   = lipgloss.Color("51")
	colorDim    = lipgloss.Color("240")
)

var headerStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(colorCyan)

var (
	passedStyle = lipgloss.NewStyle().
			Foreground(colorGreen).
			Bold(true)

	failedStyle = lipgloss.NewStyle().
			Foreground(colorRed).
			Bold(true)

	warnStyle = lipgloss.NewStyle().
			Foreground(colorYellow)

	skippedStyle = lipgloss.NewStyle().
			Faint(true)

	labelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorBlue)

	dimStyle = lipgloss.NewStyle().
			Foreground(colorDim)
)

var bannerStyle = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(colorDim).
	Padding(0, 1)
