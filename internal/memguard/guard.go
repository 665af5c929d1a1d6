// Package memguard aborts a run whose resident memory grows past a ceiling.
//
// All analysis state is held in memory until the output is written, so an
// oversized input would otherwise push the host into swap long before the
// run fails on its own.
package memguard

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"
)

// DefaultCeiling is the peak resident set size allowed by default.
const DefaultCeiling = 12 << 30

// ErrCeilingExceeded is wrapped by the error returned when peak RSS passes
// the ceiling.
var ErrCeilingExceeded = errors.New("resident memory ceiling exceeded")

// MaxRSS returns the peak resident set size of the process in bytes.
func MaxRSS() (uint64, error) {
	var ru unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_SELF, &ru); err != nil {
		return 0, fmt.Errorf("getrusage: %w", err)
	}
	rss := uint64(ru.Maxrss)
	if runtime.GOOS != "darwin" {
		rss *= 1024
	}
	return rss, nil
}

// Guard samples peak RSS at checkpoints.
type Guard struct {
	ceiling uint64
	logger  *slog.Logger
	sample  func() (uint64, error)

	last atomic.Uint64
}

// New returns a guard. A zero ceiling only records and logs.
func New(ceiling uint64, logger *slog.Logger) *Guard {
	return &Guard{ceiling: ceiling, logger: logger, sample: MaxRSS}
}

// Check samples RSS, logs it under stage with the given position, and fails
// once the ceiling is passed.
func (g *Guard) Check(stage string, position int64) error {
	rss, err := g.sample()
	if err != nil {
		return err
	}
	g.last.Store(rss)

	g.logger.Info("memory_progress",
		"stage", stage,
		"position", position,
		"rss", humanize.IBytes(rss),
	)

	if g.ceiling > 0 && rss > g.ceiling {
		return fmt.Errorf("%w: %s at %s %d (ceiling %s)",
			ErrCeilingExceeded, humanize.IBytes(rss), stage, position, humanize.IBytes(g.ceiling))
	}
	return nil
}

// Ceiling returns the configured ceiling in bytes.
func (g *Guard) Ceiling() uint64 { return g.ceiling }

// Last returns the most recent sample, or 0 before the first Check.
func (g *Guard) Last() uint64 { return g.last.Load() }
