package stats

import (
	"strings"
	"testing"
	"time"

	"github.com/StanfordSNR/puffer-statistics-sub000/internal/chunks"
	"github.com/StanfordSNR/puffer-statistics-sub000/internal/quality"
)

// =============================================================================
// Formatting
// =============================================================================

func TestFormatHelpers(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"duration zero", FormatDuration(0), "00:00:00"},
		{"duration truncates", FormatDuration(1500 * time.Millisecond), "00:00:01"},
		{"duration day", FormatDuration(25*time.Hour + 61*time.Second), "25:01:01"},
		{"number small", FormatNumber(999), "999"},
		{"number negative", FormatNumber(-100), "-100"},
		{"number K", FormatNumber(86_400), "86.4K"},
		{"number M", FormatNumber(48_000_000), "48.0M"},
		{"bytes zero", FormatBytes(0), "0 B"},
		{"bytes export", FormatBytes(1_200_000_000), "1.2 GB"},
		{"bytes negative", FormatBytes(-1500), "-1.5 kB"},
		{"rate slow", FormatRate(0.25), "0.25/s"},
		{"rate", FormatRate(42), "42.0/s"},
		{"rate K", FormatRate(350_000), "350.0K/s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

// =============================================================================
// Run Summary
// =============================================================================

func TestFormatRunSummary_NilTotals(t *testing.T) {
	out := FormatRunSummary(nil, RunInfo{
		Inputs:   []string{"-"},
		Duration: 90 * time.Second,
	})

	for _, want := range []string{"Run Summary", "00:01:30", "No streams were classified"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q", want)
		}
	}
}

func TestFormatRunSummary_WithStreams(t *testing.T) {
	totals := NewTotals()
	totals.Add(Stream{Quality: goodSummary(0.5, 0), Chunks: chunks.MissingSummary()})
	totals.Add(Stream{Quality: quality.Summary{Reason: quality.ReasonZeroPlayed}, Chunks: chunks.MissingSummary()})

	out := FormatRunSummary(totals, RunInfo{
		Inputs:        []string{"a.gz", "b.zst"},
		Duration:      10 * time.Second,
		Lines:         2_000_000,
		Points:        1_500_000,
		BytesRead:     2500000,
		PeakRSS:       3 << 30,
		BadTimestamps: 12,
		BadRecords:    map[string]int{"client_buffer": 3, "video_sent": 0},
		MetricsAddr:   "127.0.0.1:9100",
	})

	for _, want := range []string{
		"a.gz, b.zst",
		"2.0M",
		"200.0K/s",
		"2.5 MB",
		"3.0 GiB",
		"zeroplayed",
		"Points outside the day window: 12",
		"Contradictory client_buffer records skipped: 3",
		"http://127.0.0.1:9100/metrics",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q\n%s", want, out)
		}
	}
	if strings.Contains(out, "video_sent records") {
		t.Error("kinds without bad records should not get a footnote")
	}
}

func TestRenderFootnotes_Empty(t *testing.T) {
	if got := renderFootnotes(RunInfo{}); got != "" {
		t.Errorf("renderFootnotes() = %q, want empty", got)
	}
}

func TestSortedReasons(t *testing.T) {
	got := sortedReasons(map[string]int{"good": 5, "zeroplayed": 2, "neverstarted": 2})
	want := []string{"good", "neverstarted", "zeroplayed"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sortedReasons() = %v, want %v", got, want)
		}
	}
}
