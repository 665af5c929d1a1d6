package tui

import (
	"strings"
	"testing"
)

// =============================================================================
// Tests: GetMemoryStatus
// =============================================================================

func TestGetMemoryStatus(t *testing.T) {
	tests := []struct {
		name  string
		ratio float64
		want  MemoryStatus
	}{
		{"empty", 0, MemoryStatusOK},
		{"half", 0.5, MemoryStatusOK},
		{"70%", 0.7, MemoryStatusHigh},
		{"89%", 0.89, MemoryStatusHigh},
		{"90%", 0.9, MemoryStatusCritical},
		{"over", 1.2, MemoryStatusCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetMemoryStatus(tt.ratio); got != tt.want {
				t.Errorf("GetMemoryStatus(%v) = %v, want %v", tt.ratio, got, tt.want)
			}
		})
	}
}

// =============================================================================
// Tests: GetDiagnosticsLabel
// =============================================================================

func TestGetDiagnosticsLabel(t *testing.T) {
	tests := []struct {
		name       string
		total      int
		wantSubstr string
	}{
		{"clean", 0, "Clean"},
		{"few", 12, "12 diagnostics"},
		{"many", 25_000, "25.0K diagnostics"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetDiagnosticsLabel(tt.total); !strings.Contains(got, tt.wantSubstr) {
				t.Errorf("GetDiagnosticsLabel(%d) = %q, want substring %q", tt.total, got, tt.wantSubstr)
			}
		})
	}
}

// =============================================================================
// Tests: RenderProgressBar
// =============================================================================

func TestRenderProgressBar(t *testing.T) {
	tests := []struct {
		name       string
		progress   float64
		width      int
		wantFilled int
	}{
		{"empty", 0, 20, 0},
		{"half", 0.5, 20, 10},
		{"full", 1, 20, 20},
		{"overflow clamps", 1.5, 20, 20},
		{"negative clamps", -0.5, 20, 0},
		{"minimum width", 0.5, 4, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bar := RenderProgressBar(tt.progress, tt.width)
			if got := strings.Count(bar, "█"); got != tt.wantFilled {
				t.Errorf("filled = %d, want %d", got, tt.wantFilled)
			}
		})
	}
}

func TestRenderKeyValue(t *testing.T) {
	got := RenderKeyValue("Input", "a.txt")
	if !strings.Contains(got, "Input:") || !strings.Contains(got, "a.txt") {
		t.Errorf("RenderKeyValue() = %q", got)
	}
}

func TestMemoryStatus_String(t *testing.T) {
	for status, want := range map[MemoryStatus]string{
		MemoryStatusOK:       "ok",
		MemoryStatusHigh:     "high",
		MemoryStatusCritical: "critical",
	} {
		if got := status.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", status, got, want)
		}
	}
}
