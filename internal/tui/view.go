package tui

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

// maxDiagnosticRows bounds the diagnostics table.
const maxDiagnosticRows = 8

// =============================================================================
// Main View Rendering
// =============================================================================

// renderDashboard renders the full dashboard.
func (m Model) renderDashboard() string {
	sections := []string{
		m.renderHeader(),
		m.renderIngest(),
		m.renderMemory(),
	}
	if len(m.progress.Diagnostics) > 0 {
		sections = append(sections, m.renderDiagnostics())
	}
	if m.showRecent && len(m.progress.Recent) > 0 {
		sections = append(sections, m.renderRecent())
	}
	sections = append(sections, m.renderFooter())
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// =============================================================================
// Header
// =============================================================================

func (m Model) renderHeader() string {
	header := fmt.Sprintf(
		" puffer-analyze %s │ %s │ Stage: %s │ Elapsed: %s ",
		m.version,
		GetDiagnosticsLabel(m.DiagnosticsTotal()),
		statusInfo.Render(m.progress.Stage),
		formatDuration(m.Elapsed()),
	)
	return headerStyle.Width(m.width).Render(header)
}

// =============================================================================
// Ingest Section
// =============================================================================

func (m Model) renderIngest() string {
	p := m.progress
	r := p.Rates

	input := "-"
	if p.Input != "" {
		input = fmt.Sprintf("%s (%d/%d)", filepath.Base(p.Input), p.InputIndex, p.InputCount)
	}

	rows := []string{
		RenderKeyValue("Input", input),
		renderStatRow("Lines", formatCount(r.Lines), formatRate(r.Lines10s)),
		renderStatRow("Bytes", humanize.Bytes(uint64(max(r.Bytes, 0))), humanize.Bytes(uint64(max(r.Bytes10s, 0)))+"/s"),
		RenderKeyValue("Points", formatCount(p.Points)),
		RenderKeyValue("Rate 1s/60s/all", fmt.Sprintf("%s  %s  %s",
			formatRate(r.Lines1s), formatRate(r.Lines60s), formatRate(r.LinesOverall))),
	}
	if p.Malformed > 0 {
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Left,
			labelStyle.Render("Malformed:"),
			valueWarnStyle.Render(formatCount(p.Malformed)),
		))
	}

	if p.InputCount > 0 {
		done := float64(p.InputIndex-1) / float64(p.InputCount)
		if p.Stage != StageIngest {
			done = 1
		}
		barWidth := max(m.width-30, 20)
		rows = append(rows, RenderProgressBar(done, barWidth))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{sectionHeaderStyle.Render("Ingestion")}, rows...)...,
	)
	return boxStyle.Width(m.width - 2).Render(content)
}

func renderStatRow(label, value, rate string) string {
	return lipgloss.JoinHorizontal(lipgloss.Left,
		labelStyle.Render(label+":"),
		valueStyle.Width(12).Render(value),
		dimStyle.Render("("+rate+")"),
	)
}

// =============================================================================
// Memory Section
// =============================================================================

func (m Model) renderMemory() string {
	p := m.progress
	rss := "n/a"
	if p.RSS > 0 {
		rss = humanize.IBytes(p.RSS)
	}

	var rows []string
	if p.Ceiling == 0 {
		rows = append(rows, RenderKeyValue("Peak RSS", rss), RenderKeyValue("Ceiling", "unbounded"))
	} else {
		ratio := m.MemoryRatio()
		style := GetMemoryStyle(GetMemoryStatus(ratio))
		rows = append(rows,
			lipgloss.JoinHorizontal(lipgloss.Left,
				labelStyle.Render("Peak RSS:"),
				style.Render(fmt.Sprintf("%s / %s", rss, humanize.IBytes(p.Ceiling))),
			),
			RenderProgressBar(ratio, max(m.width-30, 20)),
		)
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{sectionHeaderStyle.Render("Memory")}, rows...)...,
	)
	return boxStyle.Width(m.width - 2).Render(content)
}

// =============================================================================
// Diagnostics Section
// =============================================================================

func (m Model) renderDiagnostics() string {
	rows := []string{tableHeaderRow()}
	occ := m.progress.Diagnostics
	for i, o := range occ {
		if i == maxDiagnosticRows {
			rows = append(rows, dimStyle.Render(fmt.Sprintf("... %d more", len(occ)-i)))
			break
		}
		rows = append(rows, fmt.Sprintf("%-16s %-24s %s",
			o.Kind, o.Reason, valueWarnStyle.Render(humanize.Comma(int64(o.Count)))))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{sectionHeaderStyle.Render("Diagnostics")}, rows...)...,
	)
	return boxStyle.Width(m.width - 2).Render(content)
}

func tableHeaderRow() string {
	return mutedStyle.Render(fmt.Sprintf("%-16s %-24s %s", "Measurement", "Reason", "Count"))
}

func (m Model) renderRecent() string {
	lines := make([]string, 0, len(m.progress.Recent))
	limit := max(m.width-6, 20)
	for _, d := range m.progress.Recent {
		if len(d) > limit {
			d = d[:limit-3] + "..."
		}
		lines = append(lines, dimStyle.Render(d))
	}
	content := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{sectionHeaderStyle.Render("Recent")}, lines...)...,
	)
	return boxStyle.Width(m.width - 2).Render(content)
}

// =============================================================================
// Footer
// =============================================================================

func (m Model) renderFooter() string {
	shortcuts := []string{
		"q: quit",
		"d: toggle recent",
	}

	left := dimStyle.Render(strings.Join(shortcuts, " │ "))
	right := ""
	if m.metricsAddr != "" {
		right = dimStyle.Render("Metrics: http://" + m.metricsAddr + "/metrics")
	}

	padding := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if padding < 1 {
		padding = 1
	}

	return footerStyle.Render(
		lipgloss.JoinHorizontal(lipgloss.Left,
			left,
			strings.Repeat(" ", padding),
			right,
		),
	)
}
