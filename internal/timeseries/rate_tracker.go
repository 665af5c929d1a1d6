// Package timeseries tracks ingestion progress over rolling time windows.
//
// A RateTracker holds cumulative line and byte counts. Samples are taken
// periodically (typically once per second by the progress ticker) and rates
// are computed against the sample nearest the start of each window.
//
// Thread-safe: Set and Add are atomic, Snapshot acquires a read lock.
package timeseries

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	// ringBufferSize is the number of samples to retain (5 minutes at 1 sample/sec)
	ringBufferSize = 300

	window1s  = 1 * time.Second
	window10s = 10 * time.Second
	window60s = 60 * time.Second
)

// Clock interface for testing with deterministic time.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type sample struct {
	timestamp time.Time
	lines     int64
	bytes     int64
}

// RateTracker tracks cumulative lines and bytes read and computes rolling
// rates.
//
// Usage:
//
//	tracker := NewRateTracker()
//	tracker.Set(stats.LinesRead, stats.BytesRead)  // cumulative reader stats
//	tracker.RecordSample()                         // every tick
//	rates := tracker.Snapshot()
type RateTracker struct {
	lines atomic.Int64
	bytes atomic.Int64

	// base is added to the current reader's counts so totals span inputs.
	baseLines atomic.Int64
	baseBytes atomic.Int64

	samples  []sample
	writeIdx int
	mu       sync.RWMutex

	startTime time.Time
	clock     Clock
}

// Rates contains computed rolling rates at a point in time.
type Rates struct {
	Lines int64
	Bytes int64

	// Lines per second
	Lines1s      float64
	Lines10s     float64
	Lines60s     float64
	LinesOverall float64

	// Bytes per second
	Bytes10s     float64
	BytesOverall float64

	Elapsed time.Duration
}

// NewRateTracker creates a new tracker with the real clock.
func NewRateTracker() *RateTracker {
	return NewRateTrackerWithClock(realClock{})
}

// NewRateTrackerWithClock creates a tracker with a custom clock for testing.
func NewRateTrackerWithClock(clock Clock) *RateTracker {
	now := clock.Now()
	t := &RateTracker{
		samples:   make([]sample, 0, ringBufferSize),
		startTime: now,
		clock:     clock,
	}
	t.samples = append(t.samples, sample{timestamp: now})
	return t
}

// Set records the current reader's cumulative counts.
func (t *RateTracker) Set(lines, bytes int64) {
	t.lines.Store(t.baseLines.Load() + lines)
	t.bytes.Store(t.baseBytes.Load() + bytes)
}

// Add adds to the cumulative counts. Negative values are ignored.
func (t *RateTracker) Add(lines, bytes int64) {
	if lines > 0 {
		t.lines.Add(lines)
	}
	if bytes > 0 {
		t.bytes.Add(bytes)
	}
}

// NextInput freezes the current totals as the base for the next reader,
// whose Set calls start again from zero.
func (t *RateTracker) NextInput() {
	t.baseLines.Store(t.lines.Load())
	t.baseBytes.Store(t.bytes.Load())
}

// RecordSample records the current totals with a timestamp.
func (t *RateTracker) RecordSample() {
	s := sample{timestamp: t.clock.Now(), lines: t.lines.Load(), bytes: t.bytes.Load()}

	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.samples) < ringBufferSize {
		t.samples = append(t.samples, s)
	} else {
		t.samples[t.writeIdx] = s
		t.writeIdx = (t.writeIdx + 1) % ringBufferSize
	}
}

// Snapshot computes current rates. It always returns usable data, falling
// back to the oldest retained sample when a window exceeds the history.
func (t *RateTracker) Snapshot() Rates {
	now := t.clock.Now()
	cur := sample{timestamp: now, lines: t.lines.Load(), bytes: t.bytes.Load()}

	t.mu.RLock()
	defer t.mu.RUnlock()

	r := Rates{
		Lines:   cur.lines,
		Bytes:   cur.bytes,
		Elapsed: now.Sub(t.startTime),
	}
	if secs := r.Elapsed.Seconds(); secs > 0 {
		r.LinesOverall = float64(cur.lines) / secs
		r.BytesOverall = float64(cur.bytes) / secs
	}

	r.Lines1s, _ = t.rateOverWindow(cur, window1s)
	r.Lines10s, r.Bytes10s = t.rateOverWindow(cur, window10s)
	r.Lines60s, _ = t.rateOverWindow(cur, window60s)
	return r
}

// rateOverWindow returns lines/sec and bytes/sec since the newest sample at
// or before cur-window. Must be called with mu held.
func (t *RateTracker) rateOverWindow(cur sample, window time.Duration) (float64, float64) {
	target := cur.timestamp.Add(-window)

	var best *sample
	for i := range t.samples {
		s := &t.samples[i]
		if s.timestamp.After(target) {
			continue
		}
		if best == nil || s.timestamp.After(best.timestamp) {
			best = s
		}
	}
	if best == nil {
		best = t.oldestSample()
	}
	if best == nil {
		return 0, 0
	}

	elapsed := cur.timestamp.Sub(best.timestamp).Seconds()
	if elapsed <= 0 {
		return 0, 0
	}
	return float64(cur.lines-best.lines) / elapsed, float64(cur.bytes-best.bytes) / elapsed
}

// oldestSample returns the oldest sample in the ring buffer.
// Must be called with mu held.
func (t *RateTracker) oldestSample() *sample {
	if len(t.samples) == 0 {
		return nil
	}
	if len(t.samples) < ringBufferSize {
		return &t.samples[0]
	}
	return &t.samples[t.writeIdx]
}

// SampleCount returns the number of samples in the ring buffer.
func (t *RateTracker) SampleCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.samples)
}
