package stats

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// RunInfo holds run-level facts for the run summary.
type RunInfo struct {
	// Inputs are the export files read, "-" for stdin.
	Inputs []string

	// Duration is the wall time of the run.
	Duration time.Duration

	// Lines and Points count input lines read and data points kept.
	Lines  int64
	Points int64

	// BytesRead is the number of decompressed input bytes.
	BytesRead int64

	// PeakRSS is the peak resident set size in bytes.
	PeakRSS uint64

	// BadTimestamps counts points outside the day window.
	BadTimestamps int

	// BadRecords maps measurement name to bad records excluded.
	BadRecords map[string]int

	// MetricsAddr is the Prometheus metrics endpoint address, if served.
	MetricsAddr string
}

const (
	heavyRule = "═══════════════════════════════════════════════════════════════════════════════\n"
	lightRule = "───────────────────────────────────────────────────────────────────────────────\n"
)

// FormatRunSummary formats totals for display on stderr at exit.
func FormatRunSummary(t *Totals, info RunInfo) string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(heavyRule)
	b.WriteString("                          puffer-analyze Run Summary\n")
	b.WriteString(heavyRule + "\n")

	fmt.Fprintf(&b, "Run Duration:           %s\n", FormatDuration(info.Duration))
	fmt.Fprintf(&b, "Inputs:                 %s\n", strings.Join(info.Inputs, ", "))
	fmt.Fprintf(&b, "Lines Read:             %s  (%s)\n", FormatNumber(info.Lines), FormatRate(rate(info.Lines, info.Duration)))
	fmt.Fprintf(&b, "Points Kept:            %s\n", FormatNumber(info.Points))
	fmt.Fprintf(&b, "Bytes Read:             %s\n", FormatBytes(info.BytesRead))
	if info.PeakRSS > 0 {
		fmt.Fprintf(&b, "Peak RSS:               %s\n", humanize.IBytes(info.PeakRSS))
	}
	b.WriteString("\n")

	if t == nil {
		b.WriteString("(No streams were classified)\n\n")
		b.WriteString(heavyRule)
		return b.String()
	}

	b.WriteString(lightRule)
	b.WriteString("                                   Streams\n")
	b.WriteString(lightRule + "\n")

	fmt.Fprintf(&b, "  %-28s %12s %8s\n", "Verdict", "Streams", "Share")
	b.WriteString("  " + strings.Repeat("─", 50) + "\n")
	fmt.Fprintf(&b, "  %-28s %12d %7.1f%%\n", "good", t.Good, pct(t.Good, t.NumStreams))
	fmt.Fprintf(&b, "  %-28s %12d %7.1f%%\n", "good and full extent", t.GoodAndFull, pct(t.GoodAndFull, t.NumStreams))
	fmt.Fprintf(&b, "  %-28s %12d %7.1f%%\n", "had stall", t.HadStall, pct(t.HadStall, t.NumStreams))
	fmt.Fprintf(&b, "  %-28s %12d %7.1f%%\n", "missing client info", t.MissingClientInfo, pct(t.MissingClientInfo, t.NumStreams))
	fmt.Fprintf(&b, "  %-28s %12d %7.1f%%\n", "missing video stats", t.MissingVideoStats, pct(t.MissingVideoStats, t.NumStreams))
	fmt.Fprintf(&b, "  %-28s %12d\n\n", "total", t.NumStreams)

	if len(t.Reasons) > 0 {
		fmt.Fprintf(&b, "  %-28s %12s\n", "Reason", "Streams")
		b.WriteString("  " + strings.Repeat("─", 42) + "\n")
		for _, r := range sortedReasons(t.Reasons) {
			fmt.Fprintf(&b, "  %-28s %12d\n", r, t.Reasons[r])
		}
		b.WriteString("\n")
	}

	b.WriteString(lightRule)
	b.WriteString("                                  Playback\n")
	b.WriteString(lightRule + "\n")
	fmt.Fprintf(&b, "  Watch time after startup:  %s h\n", Fixed(t.TotalTimeAfterStartup/3600))
	fmt.Fprintf(&b, "  Stall time after startup:  %s h\n", Fixed(t.TotalStallTime/3600))
	fmt.Fprintf(&b, "  Startup delay p50/p90/p99: %.3fs / %.3fs / %.3fs\n",
		t.StartupDelayQuantile(0.5), t.StartupDelayQuantile(0.9), t.StartupDelayQuantile(0.99))
	fmt.Fprintf(&b, "  Chunks: %s total, %s at SSIM ceiling, %s slow streams\n\n",
		FormatNumber(int64(t.OverallChunks)), FormatNumber(int64(t.OverallHighSSIMChunks)), FormatNumber(int64(t.SlowStreams)))

	if notes := renderFootnotes(info); notes != "" {
		b.WriteString(notes)
	}

	if info.MetricsAddr != "" {
		fmt.Fprintf(&b, "Metrics endpoint was: http://%s/metrics\n", info.MetricsAddr)
	}

	b.WriteString(heavyRule)
	return b.String()
}

// renderFootnotes reports dropped input that doesn't belong in main figures.
func renderFootnotes(info RunInfo) string {
	var footnotes []string

	if info.BadTimestamps > 0 {
		footnotes = append(footnotes, fmt.Sprintf(
			"[1] Points outside the day window: %s", FormatNumber(int64(info.BadTimestamps))))
	}

	kinds := make([]string, 0, len(info.BadRecords))
	for k, n := range info.BadRecords {
		if n > 0 {
			kinds = append(kinds, k)
		}
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		footnotes = append(footnotes, fmt.Sprintf(
			"[2] Contradictory %s records skipped: %s", k, FormatNumber(int64(info.BadRecords[k]))))
	}

	if len(footnotes) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(lightRule)
	b.WriteString("                                 Footnotes\n")
	b.WriteString(lightRule + "\n")
	for _, fn := range footnotes {
		fmt.Fprintf(&b, "  %s\n", fn)
	}
	b.WriteString("\n")
	return b.String()
}

// sortedReasons orders reasons by descending count, then name.
func sortedReasons(m map[string]int) []string {
	out := make([]string, 0, len(m))
	for r := range m {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if m[out[i]] != m[out[j]] {
			return m[out[i]] > m[out[j]]
		}
		return out[i] < out[j]
	})
	return out
}

func pct(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return 100 * float64(n) / float64(total)
}

func rate(n int64, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(n) / d.Seconds()
}

// =============================================================================
// Formatting Helper Functions (exported for reuse)
// =============================================================================

// FormatDuration formats a duration as HH:MM:SS.
func FormatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// FormatNumber formats a number with K/M suffixes for readability.
func FormatNumber(n int64) string {
	if n >= 1_000_000 {
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	}
	return fmt.Sprintf("%d", n)
}

// FormatBytes formats a byte count with SI suffixes.
func FormatBytes(n int64) string {
	if n < 0 {
		return "-" + humanize.Bytes(uint64(-n))
	}
	return humanize.Bytes(uint64(n))
}

// FormatRate formats a per-second rate with appropriate precision.
func FormatRate(rate float64) string {
	if rate >= 1000 {
		return fmt.Sprintf("%.1fK/s", rate/1000)
	}
	if rate >= 1 {
		return fmt.Sprintf("%.1f/s", rate)
	}
	return fmt.Sprintf("%.2f/s", rate)
}
