// Package orchestrator runs one analysis from configuration to report.
//
// Run checks the host, ingests every export through the engine while a
// ticker samples reader progress into the rate tracker and metrics, then
// classifies the streams and writes the report. The report is buffered and
// reaches stdout only if the whole run succeeds. With the dashboard enabled
// the same progress feeds the TUI instead of periodic log lines.
package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"sync"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/StanfordSNR/puffer-statistics-sub000/internal/analyze"
	"github.com/StanfordSNR/puffer-statistics-sub000/internal/config"
	"github.com/StanfordSNR/puffer-statistics-sub000/internal/experiments"
	"github.com/StanfordSNR/puffer-statistics-sub000/internal/identity"
	"github.com/StanfordSNR/puffer-statistics-sub000/internal/memguard"
	"github.com/StanfordSNR/puffer-statistics-sub000/internal/metrics"
	"github.com/StanfordSNR/puffer-statistics-sub000/internal/parser"
	"github.com/StanfordSNR/puffer-statistics-sub000/internal/preflight"
	"github.com/StanfordSNR/puffer-statistics-sub000/internal/stats"
	"github.com/StanfordSNR/puffer-statistics-sub000/internal/timeseries"
	"github.com/StanfordSNR/puffer-statistics-sub000/internal/tui"
)

const (
	// sampleInterval is how often reader progress is sampled.
	sampleInterval = time.Second

	// logEvery is the number of samples between progress log lines when
	// the dashboard is off.
	logEvery = 10

	shutdownTimeout = 5 * time.Second
)

// ErrPreflight is returned when a preflight check fails.
var ErrPreflight = errors.New("preflight checks failed (use -skip-preflight to override)")

// Orchestrator owns the state of one run.
type Orchestrator struct {
	cfg     *config.Config
	version string
	logger  *slog.Logger
	stdout  io.Writer
	stderr  io.Writer
	stdin   io.Reader

	registry  *prometheus.Registry
	collector *metrics.Collector
	tracker   *timeseries.RateTracker
	guard     *memguard.Guard
	engine    *analyze.Engine

	// mu guards the fields below, shared with the sampling ticker and the
	// dashboard.
	mu            sync.Mutex
	stage         string
	inputIndex    int
	reader        *parser.Reader
	basePoints    int64
	baseMalformed int64
	samples       int

	startTime time.Time
}

// Options holds the I/O endpoints of a run.
type Options struct {
	Version string
	Logger  *slog.Logger
	Stdout  io.Writer
	Stderr  io.Writer
	Stdin   io.Reader
}

// New creates an orchestrator. cfg must have passed config.Validate.
func New(cfg *config.Config, opts Options) *Orchestrator {
	registry := prometheus.NewRegistry()
	return &Orchestrator{
		cfg:       cfg,
		version:   opts.Version,
		logger:    opts.Logger,
		stdout:    opts.Stdout,
		stderr:    opts.Stderr,
		stdin:     opts.Stdin,
		registry:  registry,
		collector: metrics.NewCollectorWithRegistry(opts.Version, registry),
		tracker:   timeseries.NewRateTracker(),
		stage:     tui.StageIngest,
	}
}

// Registry returns the registry the run's metrics are registered with.
func (o *Orchestrator) Registry() *prometheus.Registry { return o.registry }

// Run executes the analysis. It blocks until completion, error or signal.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.startTime = time.Now()

	if err := o.setup(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if o.cfg.MetricsAddr != "" {
		srv := metrics.NewServer(o.cfg.MetricsAddr, o.registry, o.logger)
		if err := srv.Start(); err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				o.logger.Warn("metrics_server_shutdown_error", "error", err)
			}
		}()
	}

	o.logger.Info("starting",
		"version", o.version,
		"inputs", len(o.cfg.Inputs),
		"workers", o.cfg.Workers,
		"date", o.cfg.Date,
		"memory_ceiling", o.cfg.MemoryCeiling,
	)

	var (
		buf bytes.Buffer
		res *analyze.Result
		err error
	)
	if o.cfg.TUIEnabled {
		res, err = o.runWithDashboard(ctx, &buf)
	} else {
		res, err = o.runWithTicker(ctx, &buf)
	}

	if o.cfg.MetricsTextfile != "" {
		if werr := metrics.WriteTextfile(o.cfg.MetricsTextfile, o.registry); werr != nil {
			o.logger.Warn("metrics_textfile_failed", "path", o.cfg.MetricsTextfile, "error", werr)
		}
	}
	if err != nil {
		return err
	}

	if _, err := buf.WriteTo(o.stdout); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	o.printSummary(res)
	return nil
}

// setup runs preflight and builds the engine.
func (o *Orchestrator) setup() error {
	ceiling, err := o.cfg.MemoryCeilingBytes()
	if err != nil {
		return err
	}

	if !o.cfg.SkipPreflight {
		result := preflight.RunAll(preflight.Options{
			Inputs:          o.cfg.Inputs,
			Experiments:     o.cfg.Experiments,
			MemoryCeiling:   ceiling,
			MetricsTextfile: o.cfg.MetricsTextfile,
		})
		if !o.cfg.TUIEnabled || !result.Passed {
			preflight.PrintResults(o.stderr, result)
		}
		if !result.Passed {
			return ErrPreflight
		}
	}

	table := experiments.FromMap(nil)
	if o.cfg.Experiments != "" {
		if table, err = experiments.LoadFile(o.cfg.Experiments); err != nil {
			return err
		}
		o.logger.Info("experiments_loaded", "path", o.cfg.Experiments, "count", table.Len())
	}

	namer, err := identity.NewBlake3NamerHex(o.cfg.SessionKey)
	if err != nil {
		return err
	}

	var window analyze.Window
	if o.cfg.Date != "" {
		if window, err = analyze.DayWindow(o.cfg.Date); err != nil {
			return err
		}
	}

	o.guard = memguard.New(ceiling, o.logger)
	o.engine = analyze.New(analyze.Config{
		Thresholds:  o.cfg.Thresholds,
		SSIMCeiling: o.cfg.SSIMCeiling,
		SearchDepth: o.cfg.SearchDepth,
		Workers:     o.cfg.Workers,
		Window:      window,
		Experiments: table,
		Namer:       namer,
		Guard:       o.guard,
		Observer:    o.collector,
		Logger:      o.logger,
	})
	return nil
}

// runWithTicker runs the analysis with periodic progress logs.
func (o *Orchestrator) runWithTicker(ctx context.Context, w io.Writer) (*analyze.Result, error) {
	tickCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		o.sampleLoop(tickCtx, true)
	}()

	res, err := o.analyze(ctx, w)
	cancel()
	wg.Wait()
	return res, err
}

// runWithDashboard runs the analysis in a goroutine while the TUI owns the
// terminal. Quitting the dashboard cancels the run.
func (o *Orchestrator) runWithDashboard(ctx context.Context, w io.Writer) (*analyze.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	model := tui.New(tui.Config{
		Version:     o.version,
		MetricsAddr: o.cfg.MetricsAddr,
		Source:      o,
	})
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithOutput(o.stderr), tea.WithContext(ctx))

	type outcome struct {
		res *analyze.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		tickCtx, stopTicks := context.WithCancel(ctx)
		go o.sampleLoop(tickCtx, false)
		res, err := o.analyze(ctx, w)
		stopTicks()
		done <- outcome{res, err}
		tui.SendDone(p, err)
	}()

	final, err := p.Run()
	if m, ok := final.(tui.Model); ok && m.Interrupted() {
		o.logger.Info("dashboard_quit")
		cancel()
	} else if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		o.logger.Warn("dashboard_failed", "error", err)
	}

	out := <-done
	return out.res, out.err
}

// analyze ingests every input and writes the report to w.
func (o *Orchestrator) analyze(ctx context.Context, w io.Writer) (*analyze.Result, error) {
	for i, name := range o.cfg.Inputs {
		if err := o.ingest(ctx, i, name); err != nil {
			return nil, err
		}
	}

	o.setStage(tui.StageAnalyze)
	res, err := o.engine.Analyze(ctx, w)
	if err != nil {
		return nil, err
	}
	o.setStage(tui.StageDone)

	if rss, err := memguard.MaxRSS(); err == nil {
		o.collector.SetRSS(rss)
	}
	return res, nil
}

// ingest reads one export into the engine.
func (o *Orchestrator) ingest(ctx context.Context, index int, name string) error {
	var in *parser.Input
	var err error
	if name == "-" {
		in, err = parser.NewInput("stdin", io.NopCloser(o.stdin))
	} else {
		in, err = parser.OpenInput(name)
	}
	if err != nil {
		return err
	}
	defer in.Close()

	reader := parser.NewReader(name, in, o.cfg.MaxLineLength, o.engine)
	o.mu.Lock()
	o.inputIndex = index + 1
	o.reader = reader
	o.mu.Unlock()

	o.logger.Info("input_opened", "input", name, "compression", string(in.Compression))
	err = reader.Run(ctx, o.engine)
	o.finishInput(reader)

	s := reader.Stats()
	o.logger.Info("input_done",
		"input", name,
		"lines", s.LinesRead,
		"points", s.Points,
		"skipped", s.Skipped,
		"malformed", s.Malformed,
		"bytes", humanize.Bytes(uint64(s.BytesRead)),
	)
	return err
}

// finishInput folds the reader's final counts in and detaches it.
func (o *Orchestrator) finishInput(r *parser.Reader) {
	s := r.Stats()

	o.mu.Lock()
	defer o.mu.Unlock()
	o.collector.RecordReader(s)
	o.collector.ResetReader()
	o.tracker.Set(s.LinesRead, s.BytesRead)
	o.tracker.NextInput()
	o.basePoints += s.Points
	o.baseMalformed += s.Malformed
	o.reader = nil
}

func (o *Orchestrator) setStage(stage string) {
	o.mu.Lock()
	o.stage = stage
	o.mu.Unlock()
	o.logger.Debug("stage", "stage", stage)
}

// sampleLoop samples progress every sampleInterval until ctx is done.
func (o *Orchestrator) sampleLoop(ctx context.Context, logProgress bool) {
	ticker := time.NewTicker(sampleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.sample(logProgress)
		}
	}
}

// sample records one progress sample into the tracker and metrics.
func (o *Orchestrator) sample(logProgress bool) {
	o.mu.Lock()
	if o.reader != nil {
		s := o.reader.Stats()
		o.collector.RecordReader(s)
		o.tracker.Set(s.LinesRead, s.BytesRead)
	}
	o.tracker.RecordSample()
	o.samples++
	n, stage := o.samples, o.stage
	o.mu.Unlock()

	rates := o.tracker.Snapshot()
	o.collector.SetIngestRate(rates.Lines10s)
	rss, err := memguard.MaxRSS()
	if err == nil {
		o.collector.SetRSS(rss)
	}

	if logProgress && n%logEvery == 0 {
		o.logger.Info("progress",
			"stage", stage,
			"lines", rates.Lines,
			"lines_per_sec", int64(rates.Lines10s),
			"bytes", humanize.Bytes(uint64(rates.Bytes)),
			"rss", humanize.IBytes(rss),
		)
	}
}

// Progress implements tui.ProgressSource.
func (o *Orchestrator) Progress() tui.Progress {
	o.mu.Lock()
	p := tui.Progress{
		Stage:      o.stage,
		InputIndex: o.inputIndex,
		InputCount: len(o.cfg.Inputs),
		Points:     o.basePoints,
		Malformed:  o.baseMalformed,
	}
	if o.reader != nil {
		s := o.reader.Stats()
		p.Points += s.Points
		p.Malformed += s.Malformed
	}
	o.mu.Unlock()

	if p.InputIndex > 0 {
		p.Input = o.cfg.Inputs[p.InputIndex-1]
	}
	p.Rates = o.tracker.Snapshot()
	if rss, err := memguard.MaxRSS(); err == nil {
		p.RSS = rss
	}
	if o.guard != nil {
		p.Ceiling = o.guard.Ceiling()
	}
	if o.engine != nil {
		diag := o.engine.Diagnostics()
		p.Diagnostics = diag.Occurrences()
		p.Recent = diag.Recent(5)
	}
	return p
}

// printSummary writes the run summary to stderr.
func (o *Orchestrator) printSummary(res *analyze.Result) {
	info := stats.RunInfo{
		Inputs:        o.cfg.Inputs,
		Duration:      time.Since(o.startTime),
		BadTimestamps: o.engine.BadTimestamps(),
		BadRecords:    res.BadRecords(),
		MetricsAddr:   o.cfg.MetricsAddr,
	}
	rates := o.tracker.Snapshot()
	info.Lines = rates.Lines
	info.BytesRead = rates.Bytes
	o.mu.Lock()
	info.Points = o.basePoints
	o.mu.Unlock()
	if rss, err := memguard.MaxRSS(); err == nil {
		info.PeakRSS = rss
	}

	fmt.Fprint(o.stderr, stats.FormatRunSummary(res.Totals, info))
}
