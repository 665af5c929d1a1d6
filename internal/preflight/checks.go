// Package preflight provides startup validation checks.
package preflight

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"
)

// Check represents the result of a single preflight check.
type Check struct {
	Name     string // Name of the check
	Required int    // Required value (if applicable)
	Actual   int    // Actual value found
	Passed   bool   // Whether the check passed
	Warning  bool   // True if it's a warning (non-fatal)
	Message  string // Additional context
}

// Result holds the results of all preflight checks.
type Result struct {
	Checks []Check
	Passed bool
}

// Options describes what the run will need.
type Options struct {
	Inputs          []string
	Experiments     string
	MemoryCeiling   uint64 // 0 = none
	MetricsTextfile string
}

// String returns a human-readable summary of the check.
func (c Check) String() string {
	status := "✓"
	if !c.Passed {
		status = "✗"
	} else if c.Warning {
		status = "⚠"
	}

	if c.Required > 0 {
		return fmt.Sprintf("  %s %s: %d available (need %d)", status, c.Name, c.Actual, c.Required)
	}
	return fmt.Sprintf("  %s %s: %s", status, c.Name, c.Message)
}

func (r *Result) add(c Check) {
	r.Checks = append(r.Checks, c)
	if !c.Passed {
		r.Passed = false
	}
}

// RunAll executes all preflight checks.
func RunAll(opts Options) *Result {
	result := &Result{
		Checks: make([]Check, 0, 5),
		Passed: true,
	}

	result.add(checkInputs(opts.Inputs))
	if opts.Experiments != "" {
		result.add(checkReadable("experiments", opts.Experiments))
	}

	var limit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &limit); err != nil {
		result.add(Check{Name: "file_descriptors", Passed: true, Warning: true, Message: "unable to check: " + err.Error()})
	} else {
		result.add(checkFileDescriptors(len(opts.Inputs), limit.Cur))
	}

	total, ok := totalMemory()
	result.add(checkMemory(opts.MemoryCeiling, total, ok))

	if opts.MetricsTextfile != "" {
		result.add(checkWritableDir("metrics_textfile", filepath.Dir(opts.MetricsTextfile)))
	}

	return result
}

// checkInputs verifies every export exists and is a regular file. "-" is
// stdin and always passes.
func checkInputs(inputs []string) Check {
	var size int64
	files := 0
	for _, in := range inputs {
		if in == "-" {
			continue
		}
		fi, err := os.Stat(in)
		if err != nil {
			return Check{Name: "inputs", Passed: false, Message: err.Error()}
		}
		if !fi.Mode().IsRegular() {
			return Check{Name: "inputs", Passed: false, Message: in + " is not a regular file"}
		}
		f, err := os.Open(in)
		if err != nil {
			return Check{Name: "inputs", Passed: false, Message: err.Error()}
		}
		f.Close()
		size += fi.Size()
		files++
	}
	return Check{
		Name:    "inputs",
		Passed:  true,
		Message: fmt.Sprintf("%d file(s), %s on disk", files, humanize.Bytes(uint64(size))),
	}
}

func checkReadable(name, path string) Check {
	f, err := os.Open(path)
	if err != nil {
		return Check{Name: name, Passed: false, Message: err.Error()}
	}
	f.Close()
	return Check{Name: name, Passed: true, Message: path}
}

func checkWritableDir(name, dir string) Check {
	fi, err := os.Stat(dir)
	if err != nil {
		return Check{Name: name, Passed: false, Message: err.Error()}
	}
	if !fi.IsDir() {
		return Check{Name: name, Passed: false, Message: dir + " is not a directory"}
	}
	if err := unix.Access(dir, unix.W_OK); err != nil {
		return Check{Name: name, Passed: false, Message: fmt.Sprintf("%s not writable: %v", dir, err)}
	}
	return Check{Name: name, Passed: true, Message: dir}
}

// checkFileDescriptors verifies sufficient file descriptors are available.
func checkFileDescriptors(inputs int, limit uint64) Check {
	// One per input plus the experiment dump, metrics listener, textfile,
	// terminal and headroom.
	required := inputs + 32
	actual := int(min(limit, 1<<30))

	return Check{
		Name:     "file_descriptors",
		Required: required,
		Actual:   actual,
		Passed:   actual >= required,
		Message:  fmt.Sprintf("ulimit -n %d (need %d)", actual, required),
	}
}

// checkMemory warns when the host cannot reach the ceiling, since the kernel
// would kill the run before the guard fires.
func checkMemory(ceiling, total uint64, known bool) Check {
	if !known {
		return Check{
			Name:    "memory",
			Passed:  true,
			Warning: true,
			Message: "unable to read total memory (non-Linux?)",
		}
	}
	if ceiling == 0 {
		return Check{
			Name:    "memory",
			Passed:  true,
			Warning: true,
			Message: fmt.Sprintf("no ceiling set, %s total", humanize.IBytes(total)),
		}
	}
	return Check{
		Name:    "memory",
		Passed:  true,
		Warning: total < ceiling,
		Message: fmt.Sprintf("ceiling %s, %s total", humanize.IBytes(ceiling), humanize.IBytes(total)),
	}
}

// PrintResults writes the preflight check results to w.
func PrintResults(w io.Writer, result *Result) {
	fmt.Fprintln(w, "Preflight checks:")
	for _, check := range result.Checks {
		fmt.Fprintln(w, check.String())
		if !check.Passed {
			fmt.Fprintf(w, "    Fix: %s\n", suggestFix(check.Name))
		} else if check.Warning && check.Name == "memory" {
			fmt.Fprintf(w, "    Hint: %s\n", suggestFix(check.Name))
		}
	}
	fmt.Fprintln(w)
}

// suggestFix returns a suggestion for fixing a failed check.
func suggestFix(name string) string {
	switch name {
	case "inputs", "experiments":
		return "check the path and permissions"
	case "file_descriptors":
		return "ulimit -n 8192 (or edit /etc/security/limits.conf)"
	case "memory":
		return "lower -memory-ceiling below physical RAM"
	case "metrics_textfile":
		return "create the directory or point -metrics-textfile elsewhere"
	default:
		return "see documentation"
	}
}
