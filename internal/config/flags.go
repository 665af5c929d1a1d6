package config

import (
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ParseFlags parses command-line arguments (without the program name) and
// returns a Config. A -config file is overlaid onto the defaults first, so
// flags given explicitly override it. Positional arguments are input files.
func ParseFlags(args []string, output io.Writer) (*Config, error) {
	cfg := DefaultConfig()

	if path, ok := configArg(args); ok {
		if err := LoadFile(cfg, path); err != nil {
			return nil, err
		}
	}

	fs := flag.NewFlagSet("puffer-analyze", flag.ContinueOnError)
	fs.SetOutput(output)

	fs.Usage = func() {
		out := fs.Output()
		fmt.Fprintf(out, `puffer-analyze - per-stream video quality summaries from Puffer influx exports

Usage:
  puffer-analyze [flags] <export>... > streams.txt

Inputs:
`)
		printFlagCategory(fs, []string{"config", "experiments", "date", "max-line-length"})

		fmt.Fprintf(out, "\nAnalysis:\n")
		printFlagCategory(fs, []string{"workers", "search-depth", "ssim-ceiling", "session-key",
			"max-event-gap", "low-buffer", "max-stall", "slow-decoder-buffer", "slow-decoder-rebuffer"})

		fmt.Fprintf(out, "\nResources:\n")
		printFlagCategory(fs, []string{"memory-ceiling", "skip-preflight"})

		fmt.Fprintf(out, "\nObservability:\n")
		printFlagCategory(fs, []string{"metrics", "metrics-textfile", "tui", "log-format", "log-level", "v"})

		fmt.Fprintf(out, `
Exports may be plain text or compressed with gzip, zstd or lz4; "-" reads stdin.
One line per stream is written to stdout, followed by '#' aggregate lines.

Examples:
  # Analyze one day with experiment labels
  puffer-analyze -experiments expt_settings -date 2019-07-01T11_2019-07-02T11 \
      2019-07-01T11_2019-07-02T11.txt.zst > streams.txt

  # Watch progress and export metrics for node_exporter
  puffer-analyze -tui -metrics-textfile /var/lib/node_exporter/puffer.prom day.txt.gz

`)
	}

	// Inputs
	fs.StringVar(&cfg.ConfigFile, "config", cfg.ConfigFile, "YAML config file applied before flags")
	fs.StringVar(&cfg.Experiments, "experiments", cfg.Experiments, "Experiment settings dump (<expt_id> <json> per line)")
	fs.StringVar(&cfg.Date, "date", cfg.Date, "Day analyzed, e.g. 2019-07-01T11_2019-07-02T11 (drops points outside it)")
	fs.IntVar(&cfg.MaxLineLength, "max-line-length", cfg.MaxLineLength, "Longest accepted export line in bytes")

	// Analysis
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "Classification goroutines")
	fs.IntVar(&cfg.SearchDepth, "search-depth", cfg.SearchDepth, "Init id decrements tried when matching client info")
	fs.Float64Var(&cfg.SSIMCeiling, "ssim-ceiling", cfg.SSIMCeiling, "Raw SSIM at and above which a chunk is excluded from SSIM means")
	fs.StringVar(&cfg.SessionKey, "session-key", cfg.SessionKey, "Hex BLAKE3 key for session names (random when empty)")
	fs.Float64Var(&cfg.Thresholds.MaxEventGap, "max-event-gap", cfg.Thresholds.MaxEventGap, "Seconds between events that truncate a stream")
	fs.Float64Var(&cfg.Thresholds.LowBuffer, "low-buffer", cfg.Thresholds.LowBuffer, "Buffer seconds at or below which a stall is tracked")
	fs.Float64Var(&cfg.Thresholds.MaxStall, "max-stall", cfg.Thresholds.MaxStall, "Stall seconds that truncate a stream")
	fs.Float64Var(&cfg.Thresholds.SlowDecoderBuffer, "slow-decoder-buffer", cfg.Thresholds.SlowDecoderBuffer, "Buffer seconds above which rebuffering marks a slow decoder")
	fs.Float64Var(&cfg.Thresholds.SlowDecoderRebuffer, "slow-decoder-rebuffer", cfg.Thresholds.SlowDecoderRebuffer, "Rebuffer seconds that mark a slow decoder")

	// Resources
	fs.StringVar(&cfg.MemoryCeiling, "memory-ceiling", cfg.MemoryCeiling, `Abort when peak RSS exceeds this ("0" disables)`)
	fs.BoolVar(&cfg.SkipPreflight, "skip-preflight", cfg.SkipPreflight, "Skip preflight checks")

	// Observability
	fs.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "Serve Prometheus metrics on this address during the run")
	fs.StringVar(&cfg.MetricsTextfile, "metrics-textfile", cfg.MetricsTextfile, "Write a Prometheus text snapshot here at exit")
	fs.BoolVar(&cfg.TUIEnabled, "tui", cfg.TUIEnabled, "Enable live terminal dashboard")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, `Log format: "json" or "text"`)
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, `Log level: "debug", "info", "warn" or "error"`)
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Verbose logging (same as -log-level debug)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if rest := fs.Args(); len(rest) > 0 {
		cfg.Inputs = rest
	}

	return cfg, nil
}

// configArg finds the value of -config before the flag set is built, so the
// file can supply defaults.
func configArg(args []string) (string, bool) {
	for i, a := range args {
		if a == "--" {
			break
		}
		name, value, hasValue := strings.Cut(strings.TrimLeft(a, "-"), "=")
		if !strings.HasPrefix(a, "-") || name != "config" {
			continue
		}
		if hasValue {
			return value, value != ""
		}
		if i+1 < len(args) {
			return args[i+1], true
		}
	}
	return "", false
}

// printFlagCategory prints flags matching the given names (helper for usage).
func printFlagCategory(fs *flag.FlagSet, names []string) {
	out := fs.Output()
	fs.VisitAll(func(f *flag.Flag) {
		for _, name := range names {
			if f.Name == name {
				fmt.Fprintf(out, "  -%s %s\n    \t%s", f.Name, flagType(f), f.Usage)
				if f.DefValue != "" && f.DefValue != "false" && f.DefValue != "0" && f.DefValue != "0s" {
					fmt.Fprintf(out, " (default %s)", f.DefValue)
				}
				fmt.Fprintln(out)
				return
			}
		}
	})
}

// flagType returns a type hint for the flag value.
func flagType(f *flag.Flag) string {
	switch f.DefValue {
	case "true", "false":
		return ""
	}

	if _, err := strconv.ParseInt(f.DefValue, 10, 64); err == nil {
		return "int"
	}
	if _, err := strconv.ParseFloat(f.DefValue, 64); err == nil {
		return "float"
	}

	return "string"
}
