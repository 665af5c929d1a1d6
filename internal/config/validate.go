package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"path/filepath"

	"github.com/StanfordSNR/puffer-statistics-sub000/internal/analyze"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration for errors and inconsistencies.
// Returns nil if valid, or all problems joined.
func Validate(cfg *Config) error {
	var errs []error
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if len(cfg.Inputs) == 0 {
		add("inputs", "at least one export file is required")
	}
	stdin := 0
	for _, in := range cfg.Inputs {
		if in == "-" {
			stdin++
		}
	}
	if stdin > 1 {
		add("inputs", `stdin ("-") may be given only once`)
	}

	if cfg.Date != "" {
		if _, err := analyze.DayWindow(cfg.Date); err != nil {
			add("date", "%v", err)
		}
	}

	if cfg.MaxLineLength < 16 {
		add("max_line_length", "must be at least 16 (got %d)", cfg.MaxLineLength)
	}
	if cfg.Workers < 1 {
		add("workers", "must be at least 1")
	}
	if cfg.SearchDepth < 1 {
		add("search_depth", "must be at least 1")
	}
	if cfg.SSIMCeiling <= 0 || cfg.SSIMCeiling > 1 {
		add("ssim_ceiling", "must be in (0, 1] (got %v)", cfg.SSIMCeiling)
	}

	t := cfg.Thresholds
	for _, th := range []struct {
		field string
		value float64
	}{
		{"thresholds.max_event_gap", t.MaxEventGap},
		{"thresholds.max_stall", t.MaxStall},
		{"thresholds.slow_decoder_buffer", t.SlowDecoderBuffer},
		{"thresholds.slow_decoder_rebuffer", t.SlowDecoderRebuffer},
	} {
		if th.value <= 0 {
			add(th.field, "must be positive")
		}
	}
	if t.LowBuffer < 0 {
		add("thresholds.low_buffer", "must not be negative")
	}

	if cfg.SessionKey != "" {
		key, err := hex.DecodeString(cfg.SessionKey)
		switch {
		case err != nil:
			add("session_key", "must be hex: %v", err)
		case len(key) != 32:
			add("session_key", "must be 32 bytes (64 hex characters), got %d bytes", len(key))
		}
	}

	if _, err := cfg.MemoryCeilingBytes(); err != nil {
		add("memory_ceiling", "%v", err)
	}

	if cfg.MetricsAddr != "" {
		if _, _, err := net.SplitHostPort(cfg.MetricsAddr); err != nil {
			add("metrics_addr", "must be host:port (got %q)", cfg.MetricsAddr)
		}
	}
	if cfg.MetricsTextfile != "" && filepath.Ext(cfg.MetricsTextfile) != ".prom" {
		add("metrics_textfile", "must end in .prom for the node_exporter textfile collector")
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[cfg.LogFormat] {
		add("log_format", "must be 'json' or 'text' (got %q)", cfg.LogFormat)
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !validLevels[cfg.LogLevel] {
		add("log_level", "must be one of: debug, info, warn, error (got %q)", cfg.LogLevel)
	}

	if cfg.TUIEnabled && stdin > 0 {
		add("tui", "cannot read stdin while the dashboard owns the terminal")
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
