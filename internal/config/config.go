// Package config provides configuration management for puffer-analyze.
package config

import (
	"fmt"
	"os"
	"runtime"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/StanfordSNR/puffer-statistics-sub000/internal/chunks"
	"github.com/StanfordSNR/puffer-statistics-sub000/internal/identity"
	"github.com/StanfordSNR/puffer-statistics-sub000/internal/parser"
	"github.com/StanfordSNR/puffer-statistics-sub000/internal/quality"
)

// Config holds all configuration options for an analysis run.
type Config struct {
	// Inputs
	Inputs        []string `json:"inputs" yaml:"inputs"` // "-" reads stdin
	Experiments   string   `json:"experiments" yaml:"experiments"`
	Date          string   `json:"date" yaml:"date"` // empty = no day window
	MaxLineLength int      `json:"max_line_length" yaml:"max_line_length"`

	// Analysis
	Workers     int                `json:"workers" yaml:"workers"`
	SearchDepth int                `json:"search_depth" yaml:"search_depth"`
	SSIMCeiling float64            `json:"ssim_ceiling" yaml:"ssim_ceiling"`
	Thresholds  quality.Thresholds `json:"thresholds" yaml:"thresholds"`
	SessionKey  string             `json:"session_key" yaml:"session_key"` // hex; empty = random per run

	// Resources
	MemoryCeiling string `json:"memory_ceiling" yaml:"memory_ceiling"` // "0" disables
	SkipPreflight bool   `json:"skip_preflight" yaml:"skip_preflight"`

	// Observability
	MetricsAddr     string `json:"metrics_addr" yaml:"metrics_addr"` // empty = no server
	MetricsTextfile string `json:"metrics_textfile" yaml:"metrics_textfile"`
	TUIEnabled      bool   `json:"tui" yaml:"tui"`
	LogFormat       string `json:"log_format" yaml:"log_format"` // json, text
	LogLevel        string `json:"log_level" yaml:"log_level"`
	Verbose         bool   `json:"verbose" yaml:"verbose"`

	// ConfigFile is the YAML file the config was overlaid from, if any.
	ConfigFile string `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		MaxLineLength: parser.DefaultMaxLineLength,

		Workers:     min(runtime.NumCPU(), 8),
		SearchDepth: identity.DefaultSearchDepth,
		SSIMCeiling: chunks.DefaultSSIMCeiling,
		Thresholds:  quality.DefaultThresholds(),

		MemoryCeiling: "12GiB",

		LogFormat: "json",
		LogLevel:  "info",
	}
}

// MemoryCeilingBytes parses MemoryCeiling. Zero means no ceiling.
func (c *Config) MemoryCeilingBytes() (uint64, error) {
	if c.MemoryCeiling == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(c.MemoryCeiling)
	if err != nil {
		return 0, fmt.Errorf("memory ceiling %q: %w", c.MemoryCeiling, err)
	}
	return n, nil
}

// LoadFile overlays the YAML file at path onto cfg. Keys absent from the
// file keep their current values.
func LoadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	cfg.ConfigFile = path
	return nil
}
