package preflight

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCheck_String(t *testing.T) {
	tests := []struct {
		name  string
		check Check
		want  []string
	}{
		{"passed_with_required", Check{Name: "fds", Required: 100, Actual: 200, Passed: true}, []string{"✓", "200", "100"}},
		{"failed_check", Check{Name: "fds", Required: 100, Actual: 50}, []string{"✗"}},
		{"warning_check", Check{Name: "memory", Passed: true, Warning: true, Message: "warning message"}, []string{"⚠", "warning message"}},
		{"passed_with_message_only", Check{Name: "inputs", Passed: true, Message: "2 file(s)"}, []string{"✓", "inputs: 2 file(s)"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := tt.check.String()
			for _, want := range tt.want {
				if !strings.Contains(s, want) {
					t.Errorf("String() = %q, missing %q", s, want)
				}
			}
		})
	}
}

func TestCheckInputs(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "day.txt")
	if err := os.WriteFile(good, []byte("client_buffer,server_id=1 a=1 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name       string
		inputs     []string
		wantPassed bool
		wantMsg    string
	}{
		{"file", []string{good}, true, "1 file(s), 32 B"},
		{"stdin", []string{"-"}, true, "0 file(s)"},
		{"missing", []string{good, filepath.Join(dir, "nope.txt")}, false, "nope.txt"},
		{"directory", []string{dir}, false, "not a regular file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := checkInputs(tt.inputs)
			if c.Passed != tt.wantPassed {
				t.Errorf("Passed = %v, want %v (%s)", c.Passed, tt.wantPassed, c.Message)
			}
			if !strings.Contains(c.Message, tt.wantMsg) {
				t.Errorf("Message = %q, want substring %q", c.Message, tt.wantMsg)
			}
		})
	}
}

func TestCheckFileDescriptors(t *testing.T) {
	tests := []struct {
		name       string
		inputs     int
		limit      uint64
		wantPassed bool
	}{
		{"plenty", 3, 1024, true},
		{"exact", 3, 35, true},
		{"too few", 3, 16, false},
		{"unlimited", 1, ^uint64(0), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := checkFileDescriptors(tt.inputs, tt.limit)
			if c.Passed != tt.wantPassed {
				t.Errorf("Passed = %v, want %v", c.Passed, tt.wantPassed)
			}
			if c.Required != tt.inputs+32 {
				t.Errorf("Required = %d", c.Required)
			}
			if c.Actual <= 0 {
				t.Errorf("Actual = %d, want positive", c.Actual)
			}
		})
	}
}

func TestCheckMemory(t *testing.T) {
	tests := []struct {
		name        string
		ceiling     uint64
		total       uint64
		known       bool
		wantWarning bool
		wantMsg     string
	}{
		{"fits", 12 << 30, 64 << 30, true, false, "ceiling 12 GiB, 64 GiB total"},
		{"above ram", 12 << 30, 8 << 30, true, true, "8.0 GiB total"},
		{"no ceiling", 0, 8 << 30, true, true, "no ceiling"},
		{"unknown", 12 << 30, 0, false, true, "unable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := checkMemory(tt.ceiling, tt.total, tt.known)
			if !c.Passed {
				t.Error("memory check should never fail")
			}
			if c.Warning != tt.wantWarning {
				t.Errorf("Warning = %v, want %v", c.Warning, tt.wantWarning)
			}
			if !strings.Contains(c.Message, tt.wantMsg) {
				t.Errorf("Message = %q, want substring %q", c.Message, tt.wantMsg)
			}
		})
	}
}

func TestCheckWritableDir(t *testing.T) {
	dir := t.TempDir()
	if c := checkWritableDir("metrics_textfile", dir); !c.Passed {
		t.Errorf("temp dir should be writable: %s", c.Message)
	}
	if c := checkWritableDir("metrics_textfile", filepath.Join(dir, "missing")); c.Passed {
		t.Error("missing dir should fail")
	}
	file := filepath.Join(dir, "f")
	os.WriteFile(file, nil, 0o644)
	if c := checkWritableDir("metrics_textfile", file); c.Passed {
		t.Error("file should fail as a directory")
	}
}

func TestRunAll(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "day.txt")
	expt := filepath.Join(dir, "expt")
	os.WriteFile(input, []byte("x"), 0o644)
	os.WriteFile(expt, []byte("1 {}\n"), 0o644)

	result := RunAll(Options{
		Inputs:          []string{input},
		Experiments:     expt,
		MemoryCeiling:   1 << 20,
		MetricsTextfile: filepath.Join(dir, "puffer.prom"),
	})

	names := make(map[string]bool)
	for _, c := range result.Checks {
		names[c.Name] = true
	}
	for _, want := range []string{"inputs", "experiments", "file_descriptors", "memory", "metrics_textfile"} {
		if !names[want] {
			t.Errorf("missing check %q", want)
		}
	}
	if !result.Passed {
		var buf bytes.Buffer
		PrintResults(&buf, result)
		t.Errorf("RunAll failed:\n%s", buf.String())
	}
}

func TestRunAll_MissingExperiments(t *testing.T) {
	result := RunAll(Options{Inputs: []string{"-"}, Experiments: filepath.Join(t.TempDir(), "none")})
	if result.Passed {
		t.Error("missing experiment dump should fail preflight")
	}
}

func TestResult_Passed(t *testing.T) {
	r := &Result{Passed: true}
	r.add(Check{Name: "a", Passed: true})
	r.add(Check{Name: "b", Passed: true, Warning: true})
	if !r.Passed {
		t.Error("warnings must not fail the result")
	}
	r.add(Check{Name: "c"})
	if r.Passed {
		t.Error("a failed check must fail the result")
	}
}

func TestSuggestFix(t *testing.T) {
	tests := map[string]string{
		"inputs":           "path",
		"file_descriptors": "ulimit -n",
		"memory":           "-memory-ceiling",
		"metrics_textfile": "directory",
		"other":            "documentation",
	}
	for name, want := range tests {
		if got := suggestFix(name); !strings.Contains(got, want) {
			t.Errorf("suggestFix(%q) = %q, want substring %q", name, got, want)
		}
	}
}

func TestPrintResults(t *testing.T) {
	result := &Result{Checks: []Check{
		{Name: "inputs", Message: "open x: no such file"},
		{Name: "memory", Passed: true, Warning: true, Message: "ceiling 12 GiB, 8.0 GiB total"},
	}}
	var buf bytes.Buffer
	PrintResults(&buf, result)
	out := buf.String()

	for _, want := range []string{"Preflight checks:", "✗ inputs", "Fix: check the path", "Hint: lower -memory-ceiling"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
