// Package tui provides a live terminal dashboard for puffer-analyze runs.
//
// The TUI uses Bubble Tea for the application framework and Lipgloss for styling.
// It displays ingestion progress, line rates, resident memory against the
// configured ceiling, and the data problems reported so far.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// =============================================================================
// Palette
// =============================================================================

// ANSI 256 colors, so the dashboard looks the same over ssh and in tmux.
var (
	colorAccent = lipgloss.Color("25")  // blue
	colorStage  = lipgloss.Color("38")  // teal
	colorGood   = lipgloss.Color("71")  // green
	colorWarn   = lipgloss.Color("178") // gold
	colorBad    = lipgloss.Color("167") // red
	colorFg     = lipgloss.Color("252")
	colorMuted  = lipgloss.Color("245")
	colorDim    = lipgloss.Color("240")
	colorRule   = lipgloss.Color("238")
)

func bold(c lipgloss.Color) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(c).Bold(true)
}

// =============================================================================
// Styles
// =============================================================================

var (
	mutedStyle = lipgloss.NewStyle().Foreground(colorMuted)
	dimStyle   = lipgloss.NewStyle().Foreground(colorDim)

	statusOK      = bold(colorGood)
	statusWarning = bold(colorWarn)
	statusError   = bold(colorBad)
	statusInfo    = bold(colorStage)

	valueStyle     = bold(colorFg)
	valueGoodStyle = bold(colorGood)
	valueWarnStyle = bold(colorWarn)
	valueBadStyle  = bold(colorBad)

	labelStyle = lipgloss.NewStyle().Foreground(colorMuted).Width(18)

	headerStyle = lipgloss.NewStyle().
			Foreground(colorFg).
			Background(colorAccent).
			Bold(true).
			Padding(0, 1)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(colorRule).
			Padding(0, 1).
			MarginTop(1)

	sectionHeaderStyle = bold(colorStage).Underline(true)

	footerStyle = lipgloss.NewStyle().Foreground(colorMuted).MarginTop(1)

	barFullStyle  = lipgloss.NewStyle().Foreground(colorAccent)
	barEmptyStyle = lipgloss.NewStyle().Foreground(colorRule)
)

// =============================================================================
// Memory
// =============================================================================

// MemoryStatus grades resident memory against the ceiling.
type MemoryStatus int

const (
	MemoryStatusOK MemoryStatus = iota
	MemoryStatusHigh
	MemoryStatusCritical
)

func (s MemoryStatus) String() string {
	switch s {
	case MemoryStatusHigh:
		return "high"
	case MemoryStatusCritical:
		return "critical"
	}
	return "ok"
}

// GetMemoryStatus grades an RSS/ceiling ratio. The guard aborts at 1.0.
func GetMemoryStatus(ratio float64) MemoryStatus {
	if ratio >= 0.9 {
		return MemoryStatusCritical
	}
	if ratio >= 0.7 {
		return MemoryStatusHigh
	}
	return MemoryStatusOK
}

// GetMemoryStyle returns the value style for status.
func GetMemoryStyle(status MemoryStatus) lipgloss.Style {
	return [...]lipgloss.Style{valueGoodStyle, valueWarnStyle, valueBadStyle}[status]
}

// GetDiagnosticsLabel summarizes the data problems seen so far for the
// header.
func GetDiagnosticsLabel(total int) string {
	if total == 0 {
		return statusOK.Render("● Clean")
	}
	label := fmt.Sprintf("● %s diagnostics", formatCount(int64(total)))
	if total < 1000 {
		return statusWarning.Render(label)
	}
	return statusError.Render(label)
}

// =============================================================================
// Rendering helpers
// =============================================================================

// RenderKeyValue renders one aligned "label: value" row.
func RenderKeyValue(label, value string) string {
	return labelStyle.Render(label+":") + valueStyle.Render(value)
}

// RenderProgressBar renders fraction (clamped to [0, 1]) as a bar of width
// cells, at least 10, followed by the percentage.
func RenderProgressBar(fraction float64, width int) string {
	width = max(width, 10)
	fraction = min(max(fraction, 0), 1)
	filled := int(fraction * float64(width))

	return barFullStyle.Render(strings.Repeat("█", filled)) +
		barEmptyStyle.Render(strings.Repeat("░", width-filled)) +
		valueStyle.Render(fmt.Sprintf(" %3.0f%%", fraction*100))
}
