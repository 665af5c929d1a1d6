// Package main provides the puffer-analyze CLI entry point.
//
// puffer-analyze reads one day of Puffer influx exports and writes one
// quality summary line per video stream, followed by the day's aggregates.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/StanfordSNR/puffer-statistics-sub000/internal/analyze"
	"github.com/StanfordSNR/puffer-statistics-sub000/internal/config"
	"github.com/StanfordSNR/puffer-statistics-sub000/internal/logging"
	"github.com/StanfordSNR/puffer-statistics-sub000/internal/memguard"
	"github.com/StanfordSNR/puffer-statistics-sub000/internal/orchestrator"
	"github.com/StanfordSNR/puffer-statistics-sub000/internal/parser"
	"github.com/StanfordSNR/puffer-statistics-sub000/internal/validate"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0" ./cmd/puffer-analyze
var version = "dev"

// Exit codes.
const (
	exitOK        = 0
	exitFailure   = 1
	exitUsage     = 2
	exitData      = 3
	exitMemory    = 4
	exitPreflight = 5
	exitInterrupt = 130
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) > 0 {
		arg := args[0]
		if arg == "-version" || arg == "--version" || arg == "version" {
			fmt.Fprintf(stdout, "puffer-analyze %s\n", version)
			return exitOK
		}
	}

	cfg, err := config.ParseFlags(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return exitOK
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error parsing flags: %v\n", err)
		return exitUsage
	}

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(stderr, "Configuration error: %v\n", err)
		return exitUsage
	}

	// The dashboard owns the terminal, so logs are dropped while it runs.
	var logger *slog.Logger
	if cfg.TUIEnabled {
		logger = logging.NewLoggerWithWriter(io.Discard, "json", "info")
	} else {
		logger = logging.NewLogger(cfg.LogFormat, cfg.LogLevel, cfg.Verbose)
	}
	logging.SetDefault(logger)

	orch := orchestrator.New(cfg, orchestrator.Options{
		Version: version,
		Logger:  logger,
		Stdout:  stdout,
		Stderr:  stderr,
		Stdin:   stdin,
	})
	if err := orch.Run(context.Background()); err != nil {
		code := exitCode(err)
		if code == exitInterrupt {
			logger.Info("interrupted")
		} else {
			logger.Error("run_failed", "error", err)
			fmt.Fprintf(stderr, "Error: %v\n", err)
		}
		return code
	}
	return exitOK
}

// exitCode maps a run error to the process exit status.
func exitCode(err error) int {
	var (
		lineErr       *parser.LineError
		incompleteErr *validate.IncompleteRecordError
		conflictErr   *analyze.ClientInfoConflictError
	)
	switch {
	case errors.Is(err, context.Canceled):
		return exitInterrupt
	case errors.Is(err, orchestrator.ErrPreflight):
		return exitPreflight
	case errors.Is(err, memguard.ErrCeilingExceeded):
		return exitMemory
	case errors.As(err, &lineErr), errors.As(err, &incompleteErr), errors.As(err, &conflictErr):
		return exitData
	}
	return exitFailure
}
