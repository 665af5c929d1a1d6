// Package metrics provides Prometheus metrics for puffer-analyze.
//
// Metrics cover both phases of a run:
//   - Ingestion: lines, bytes, fields per measurement, rejected points
//   - Analysis: excluded records and per-stream verdicts
//
// They can be scraped during a run (-metrics) or written once at exit in the
// node_exporter textfile format (-metrics-textfile).
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/StanfordSNR/puffer-statistics-sub000/internal/parser"
	"github.com/StanfordSNR/puffer-statistics-sub000/internal/record"
	"github.com/StanfordSNR/puffer-statistics-sub000/internal/stats"
)

const namespace = "puffer_analyze"

// Collector holds the run's metrics. It implements analyze.Observer.
type Collector struct {
	info *prometheus.GaugeVec

	// --- Ingestion ---
	linesTotal         prometheus.Counter
	bytesTotal         prometheus.Counter
	malformedTotal     prometheus.Counter
	fieldsTotal        *prometheus.CounterVec
	badTimestampsTotal prometheus.Counter
	contradictions     *prometheus.CounterVec
	linesPerSecond     prometheus.Gauge

	// --- Analysis ---
	badRecordsTotal  *prometheus.CounterVec
	streamsTotal     *prometheus.CounterVec
	startupDelay     prometheus.Histogram
	stallAfterStart  prometheus.Histogram
	missingChunks    prometheus.Counter
	missingClientInf prometheus.Counter

	// --- Process ---
	rssBytes       prometheus.Gauge
	elapsedSeconds prometheus.Gauge

	startTime time.Time

	// Reader stats are cumulative; counters advance by the difference.
	mu            sync.Mutex
	prevLines     int64
	prevBytes     int64
	prevMalformed int64
}

// NewCollector creates a collector registered with the default registry.
func NewCollector(version string) *Collector {
	return NewCollectorWithRegistry(version, prometheus.DefaultRegisterer)
}

// NewCollectorWithRegistry creates a collector with a custom registry.
// Useful for testing.
func NewCollectorWithRegistry(version string, registry prometheus.Registerer) *Collector {
	c := &Collector{
		info: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "info",
			Help:      "Information about the analyzer (value always 1)",
		}, []string{"version"}),

		linesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lines_total",
			Help:      "Export lines read",
		}),
		bytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_read_total",
			Help:      "Compressed input bytes read",
		}),
		malformedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "malformed_lines_total",
			Help:      "Lines dropped for having the wrong number of sections",
		}),
		fieldsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fields_total",
			Help:      "Field writes merged, by measurement",
		}, []string{"measurement"}),
		badTimestampsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bad_timestamps_total",
			Help:      "Points outside the analyzed day",
		}),
		contradictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "contradictions_total",
			Help:      "Records turned bad by a contradictory field write",
		}, []string{"measurement"}),
		linesPerSecond: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "lines_per_second",
			Help:      "Current ingestion rate",
		}),

		badRecordsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bad_records_total",
			Help:      "Records excluded from aggregation, by measurement",
		}, []string{"measurement"}),
		streamsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streams_total",
			Help:      "Streams reported, by verdict and reason",
		}, []string{"valid", "reason"}),
		startupDelay: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "startup_delay_seconds",
			Help:      "Startup delay of valid streams",
			Buckets:   []float64{0.25, 0.5, 1, 2, 3, 5, 10, 20},
		}),
		stallAfterStart: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stall_after_startup_seconds",
			Help:      "Rebuffering after startup of valid streams",
			Buckets:   []float64{0, 0.5, 1, 5, 10, 30, 60, 300},
		}),
		missingChunks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streams_missing_video_stats_total",
			Help:      "Streams without any chunk records",
		}),
		missingClientInf: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streams_missing_sysinfo_total",
			Help:      "Streams without matching client metadata",
		}),

		rssBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "peak_rss_bytes",
			Help:      "Peak resident set size at the last memory check",
		}),
		elapsedSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "elapsed_seconds",
			Help:      "Seconds since the run started",
		}),

		startTime: time.Now(),
	}

	registry.MustRegister(
		c.info,
		c.linesTotal,
		c.bytesTotal,
		c.malformedTotal,
		c.fieldsTotal,
		c.badTimestampsTotal,
		c.contradictions,
		c.linesPerSecond,
		c.badRecordsTotal,
		c.streamsTotal,
		c.startupDelay,
		c.stallAfterStart,
		c.missingChunks,
		c.missingClientInf,
		c.rssBytes,
		c.elapsedSeconds,
	)
	c.info.WithLabelValues(version).Set(1)
	return c
}

// =============================================================================
// Periodic Updates
// =============================================================================

// RecordReader folds a cumulative reader snapshot into the counters.
// Snapshots from a new reader must start from zero, so call ResetReader
// between inputs.
func (c *Collector) RecordReader(s parser.Stats) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if d := s.LinesRead - c.prevLines; d > 0 {
		c.linesTotal.Add(float64(d))
	}
	if d := s.BytesRead - c.prevBytes; d > 0 {
		c.bytesTotal.Add(float64(d))
	}
	if d := s.Malformed - c.prevMalformed; d > 0 {
		c.malformedTotal.Add(float64(d))
	}
	c.prevLines, c.prevBytes, c.prevMalformed = s.LinesRead, s.BytesRead, s.Malformed
	c.elapsedSeconds.Set(time.Since(c.startTime).Seconds())
}

// ResetReader forgets the previous reader snapshot.
func (c *Collector) ResetReader() {
	c.mu.Lock()
	c.prevLines, c.prevBytes, c.prevMalformed = 0, 0, 0
	c.mu.Unlock()
}

// SetIngestRate sets the current lines-per-second gauge.
func (c *Collector) SetIngestRate(linesPerSecond float64) {
	c.linesPerSecond.Set(linesPerSecond)
}

// SetRSS sets the peak resident set size gauge.
func (c *Collector) SetRSS(bytes uint64) {
	c.rssBytes.Set(float64(bytes))
}

// =============================================================================
// Observer
// =============================================================================

// FieldObserved counts one merged field write.
func (c *Collector) FieldObserved(kind record.Kind) {
	c.fieldsTotal.WithLabelValues(kind.String()).Inc()
}

// TimestampRejected counts a point outside the day window.
func (c *Collector) TimestampRejected() {
	c.badTimestampsTotal.Inc()
}

// Contradiction counts a record turned bad.
func (c *Collector) Contradiction(kind record.Kind) {
	c.contradictions.WithLabelValues(kind.String()).Inc()
}

// RecordExcluded counts a bad record skipped during accumulation.
func (c *Collector) RecordExcluded(kind record.Kind) {
	c.badRecordsTotal.WithLabelValues(kind.String()).Inc()
}

// StreamReported records one stream's verdict.
func (c *Collector) StreamReported(s stats.Stream) {
	q := s.Quality
	c.streamsTotal.WithLabelValues(strconv.FormatBool(q.Valid), q.Reason).Inc()
	if s.Chunks.Missing {
		c.missingChunks.Inc()
	}
	if s.MissingClientInfo {
		c.missingClientInf.Inc()
	}
	if q.Valid {
		c.startupDelay.Observe(q.CumRebufAtStartup)
		c.stallAfterStart.Observe(q.StallAfterStartup())
	}
}

// Elapsed returns the time since the collector was created.
func (c *Collector) Elapsed() time.Duration {
	return time.Since(c.startTime)
}
