// Package analyze reconstructs playback streams from influx export points
// and reports one quality summary per stream.
//
// An Engine is used in two phases. During ingestion every point is routed
// by measurement to a per-kind record store, where partial field writes are
// merged. Analyze then validates the merged records, groups them into
// streams and sessions, classifies each stream and writes the report.
// Ingestion is single-threaded.
package analyze

import (
	"log/slog"
	"strconv"

	"github.com/StanfordSNR/puffer-statistics-sub000/internal/chunks"
	"github.com/StanfordSNR/puffer-statistics-sub000/internal/experiments"
	"github.com/StanfordSNR/puffer-statistics-sub000/internal/identity"
	"github.com/StanfordSNR/puffer-statistics-sub000/internal/logging"
	"github.com/StanfordSNR/puffer-statistics-sub000/internal/memguard"
	"github.com/StanfordSNR/puffer-statistics-sub000/internal/parser"
	"github.com/StanfordSNR/puffer-statistics-sub000/internal/quality"
	"github.com/StanfordSNR/puffer-statistics-sub000/internal/record"
	"github.com/StanfordSNR/puffer-statistics-sub000/internal/stats"
)

// DefaultProgressEvery is the number of points between memory checks.
const DefaultProgressEvery = 1_000_000

// Diagnostic reasons reported through the engine's OnceReporter.
const (
	ReasonContradiction = "contradictory_write"
	ReasonBadRecord     = "bad_record_skipped"
	ReasonMalformedLine = "malformed_line"
	ReasonBadServerID   = "invalid_server_id"

	// ReasonInitBeforeAnchor marks a stream whose first_init_id is greater
	// than its init_id. It is indexed as the session's first stream.
	ReasonInitBeforeAnchor = "init_id_before_anchor"
)

// skippedMeasurements are present in exports but carry nothing the analysis
// uses. Any other unknown measurement is a schema error.
var skippedMeasurements = map[string]struct{}{
	"active_streams": {},
	"backlog":        {},
	"channel_status": {},
	"client_error":   {},
	"decoder_info":   {},
	"server_info":    {},
	"ssim":           {},
	"video_size":     {},
}

// Observer receives run events, typically to export them as metrics. Calls
// during Analyze may come from the goroutine running Analyze only.
type Observer interface {
	FieldObserved(kind record.Kind)
	TimestampRejected()
	Contradiction(kind record.Kind)
	RecordExcluded(kind record.Kind)
	StreamReported(s stats.Stream)
}

// NopObserver ignores everything.
type NopObserver struct{}

func (NopObserver) FieldObserved(record.Kind)   {}
func (NopObserver) TimestampRejected()          {}
func (NopObserver) Contradiction(record.Kind)   {}
func (NopObserver) RecordExcluded(record.Kind)  {}
func (NopObserver) StreamReported(stats.Stream) {}

// Config configures an Engine. Zero values select defaults.
type Config struct {
	Thresholds  quality.Thresholds
	SSIMCeiling float64
	SearchDepth int
	// Workers is the number of classification goroutines.
	Workers int
	// Window drops points outside it; the zero Window keeps all.
	Window        Window
	ProgressEvery int64

	Experiments *experiments.Table
	Namer       identity.SessionNamer
	Guard       *memguard.Guard
	Observer    Observer
	Logger      *slog.Logger
}

func (c *Config) setDefaults() {
	if c.Thresholds == (quality.Thresholds{}) {
		c.Thresholds = quality.DefaultThresholds()
	}
	if c.SSIMCeiling <= 0 {
		c.SSIMCeiling = chunks.DefaultSSIMCeiling
	}
	if c.SearchDepth <= 0 {
		c.SearchDepth = identity.DefaultSearchDepth
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.ProgressEvery <= 0 {
		c.ProgressEvery = DefaultProgressEvery
	}
	if c.Experiments == nil {
		c.Experiments = experiments.FromMap(nil)
	}
	if c.Observer == nil {
		c.Observer = NopObserver{}
	}
	if c.Logger == nil {
		c.Logger = logging.Discard()
	}
}

// Engine holds all state of one analysis run.
type Engine struct {
	cfg    Config
	logger *slog.Logger
	diag   *logging.OnceReporter

	tables *record.Tables
	stores [len(record.Kinds)]*record.Store

	points            int64
	badTimestamps     int
	skipped           map[string]int
	droppedClientInfo int
}

// New returns an engine ready for ingestion.
func New(cfg Config) *Engine {
	cfg.setDefaults()
	e := &Engine{
		cfg:     cfg,
		logger:  cfg.Logger,
		diag:    logging.NewOnceReporter(cfg.Logger, "ingest_diagnostic"),
		tables:  record.NewTables(),
		skipped: make(map[string]int),
	}
	for _, k := range record.Kinds {
		e.stores[k] = record.NewStore(record.SchemaFor(k), e.tables)
	}
	return e
}

// Tables returns the run's intern tables.
func (e *Engine) Tables() *record.Tables { return e.tables }

// Store returns the record store of kind.
func (e *Engine) Store(kind record.Kind) *record.Store { return e.stores[kind] }

// Diagnostics returns the reporter that counts non-fatal data problems.
func (e *Engine) Diagnostics() *logging.OnceReporter { return e.diag }

// BadTimestamps returns the number of points dropped by the day window.
func (e *Engine) BadTimestamps() int { return e.badTimestamps }

// Skipped returns the number of points per ignored measurement.
func (e *Engine) Skipped() map[string]int { return e.skipped }

// ObservePlaybackField merges one client_buffer field.
func (e *Engine) ObservePlaybackField(server uint32, channel string, ts int64, key, value string) error {
	return e.observe(record.KindPlayback, e.entity(server, channel), ts, key, value)
}

// ObserveClientInfoField merges one client_sysinfo field. Client info is
// keyed by server only.
func (e *Engine) ObserveClientInfoField(server uint32, ts int64, key, value string) error {
	return e.observe(record.KindClientInfo, record.EntityKey{Server: server, Channel: record.NoChannel}, ts, key, value)
}

// ObserveChunkSentField merges one video_sent field.
func (e *Engine) ObserveChunkSentField(server uint32, channel string, ts int64, key, value string) error {
	return e.observe(record.KindChunkSent, e.entity(server, channel), ts, key, value)
}

// ObserveChunkAckedField merges one video_acked field. An empty channel
// keys the record by server only.
func (e *Engine) ObserveChunkAckedField(server uint32, channel string, ts int64, key, value string) error {
	return e.observe(record.KindChunkAcked, e.entity(server, channel), ts, key, value)
}

func (e *Engine) entity(server uint32, channel string) record.EntityKey {
	if channel == "" {
		return record.EntityKey{Server: server, Channel: record.NoChannel}
	}
	return record.EntityKey{Server: server, Channel: e.tables.Channels.Intern(channel)}
}

func (e *Engine) observe(kind record.Kind, entity record.EntityKey, ts int64, key, value string) error {
	e.cfg.Observer.FieldObserved(kind)
	c, err := e.stores[kind].Merge(entity, ts, key, value)
	if err != nil {
		return err
	}
	if c != nil {
		e.cfg.Observer.Contradiction(kind)
		e.diag.Report(kind.String(), ReasonContradiction, c.String())
	}
	return nil
}

// HandlePoint routes a tokenized point to its entry point. It implements
// parser.PointHandler.
func (e *Engine) HandlePoint(p *parser.Point) error {
	e.points++
	if e.cfg.Guard != nil && e.points%e.cfg.ProgressEvery == 0 {
		if err := e.cfg.Guard.Check("ingest", e.points); err != nil {
			return err
		}
	}

	if !e.cfg.Window.Contains(p.Timestamp) {
		e.badTimestamps++
		e.cfg.Observer.TimestampRejected()
		return nil
	}

	kind, ok := record.KindForMeasurement(p.Measurement)
	if !ok {
		if _, skip := skippedMeasurements[p.Measurement]; skip {
			e.skipped[p.Measurement]++
			return nil
		}
		return &record.SchemaError{Measurement: p.Measurement}
	}

	server, err := serverID(p)
	if err != nil {
		// Some exports carry client_sysinfo points with a corrupt server
		// id; those points are dropped.
		if kind == record.KindClientInfo {
			e.droppedClientInfo++
			e.diag.Report(kind.String(), ReasonBadServerID, err.Error())
			return nil
		}
		return err
	}

	channel, hasChannel := p.Tag("channel")
	switch kind {
	case record.KindClientInfo:
		return e.ObserveClientInfoField(server, p.Timestamp, p.Key, p.Value)
	case record.KindChunkAcked:
		return e.ObserveChunkAckedField(server, channel, p.Timestamp, p.Key, p.Value)
	}
	if !hasChannel || channel == "" {
		return &TagError{Measurement: p.Measurement, Tag: "channel", Err: errMissingTag}
	}
	if kind == record.KindPlayback {
		return e.ObservePlaybackField(server, channel, p.Timestamp, p.Key, p.Value)
	}
	return e.ObserveChunkSentField(server, channel, p.Timestamp, p.Key, p.Value)
}

// HandleMalformed logs a line with the wrong number of sections. It
// implements parser.MalformedHandler.
func (e *Engine) HandleMalformed(input string, lineNo int64, line string) {
	e.diag.Report("line", ReasonMalformedLine, line, "input", input, "line_no", lineNo)
}

func serverID(p *parser.Point) (uint32, error) {
	v, ok := p.Tag("server_id")
	if !ok {
		return 0, &TagError{Measurement: p.Measurement, Tag: "server_id", Err: errMissingTag}
	}
	id, err := strconv.ParseUint(v, 10, 32)
	if err != nil || id == 0 {
		return 0, &TagError{Measurement: p.Measurement, Tag: "server_id", Value: v, Err: errBadServer}
	}
	return uint32(id), nil
}
