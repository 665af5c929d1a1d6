package stats

import (
	"fmt"
	"io"

	"github.com/influxdata/tdigest"
)

// SlowDeliveryRate is the mean delivery rate, in bytes per second, at or
// below which a stream counts as slow (6 Mbit/s).
const SlowDeliveryRate = 6_000_000.0 / 8

// StreamIsSlow reports whether a mean delivery rate in bytes per second is
// at or below SlowDeliveryRate.
func StreamIsSlow(deliveryRate float64) bool {
	return deliveryRate <= SlowDeliveryRate
}

// Totals accumulates the '#' aggregate lines over all streams.
type Totals struct {
	NumStreams        int
	Good              int
	GoodAndFull       int
	MissingClientInfo int
	MissingVideoStats int
	HadStall          int
	SlowStreams       int

	OverallChunks         int
	OverallHighSSIMChunks int
	OverallSSIM1Chunks    int
	TotalExtent           float64
	TotalTimeAfterStartup float64
	TotalStallTime        float64

	// Reasons counts streams by reported reason.
	Reasons map[string]int

	startupDelay *tdigest.TDigest
	stallTime    *tdigest.TDigest
}

// NewTotals returns zeroed totals.
func NewTotals() *Totals {
	return &Totals{
		Reasons:      make(map[string]int),
		startupDelay: tdigest.NewWithCompression(100),
		stallTime:    tdigest.NewWithCompression(100),
	}
}

// Add folds one stream into the totals.
func (t *Totals) Add(s Stream) {
	q, c := s.Quality, s.Chunks
	t.NumStreams++
	t.Reasons[q.Reason]++

	if s.MissingClientInfo {
		t.MissingClientInfo++
	}
	if c.Missing {
		t.MissingVideoStats++
	} else {
		t.OverallChunks += c.TotalChunks
		t.OverallHighSSIMChunks += c.HighSSIMChunks()
		t.OverallSSIM1Chunks += c.SSIM1Chunks
		if StreamIsSlow(c.MeanDeliveryRate) {
			t.SlowStreams++
		}
	}

	t.TotalExtent += q.TimeExtent
	if !q.Valid {
		return
	}
	t.Good++
	t.TotalTimeAfterStartup += q.TotalAfterStartup()
	if stall := q.StallAfterStartup(); stall > 0 {
		t.HadStall++
		t.TotalStallTime += stall
	}
	if q.FullExtent {
		t.GoodAndFull++
	}
	t.startupDelay.Add(q.CumRebufAtStartup, 1)
	t.stallTime.Add(q.StallAfterStartup(), 1)
}

// StartupDelayQuantile returns the q-quantile of startup delay over valid
// streams, or 0 when there are none.
func (t *Totals) StartupDelayQuantile(q float64) float64 {
	if t.Good == 0 {
		return 0
	}
	return t.startupDelay.Quantile(q)
}

// StallQuantile returns the q-quantile of stall time after startup over
// valid streams, or 0 when there are none.
func (t *Totals) StallQuantile(q float64) float64 {
	if t.Good == 0 {
		return 0
	}
	return t.stallTime.Quantile(q)
}

// Extras are run-level counters reported on the last aggregate line.
type Extras struct {
	BadRecords          int
	BadTimestamps       int
	AckedChunks         int
	Sessions            int
	MultiStreamSessions int
}

// WriteAggregates writes the '#' lines.
func (t *Totals) WriteAggregates(w io.Writer, x Extras) error {
	_, err := fmt.Fprintf(w,
		"#num_streams=%d good=%d good_and_full=%d missing_sysinfo=%d missing_video_stats=%d had_stall=%d overall_chunks=%d overall_high_ssim_chunks=%d overall_ssim_1_chunks=%d\n",
		t.NumStreams, t.Good, t.GoodAndFull, t.MissingClientInfo, t.MissingVideoStats, t.HadStall,
		t.OverallChunks, t.OverallHighSSIMChunks, t.OverallSSIM1Chunks)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "#total_extent=%s total_time_after_startup=%s total_stall_time=%s\n",
		Fixed(t.TotalExtent/3600), Fixed(t.TotalTimeAfterStartup/3600), Fixed(t.TotalStallTime/3600))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w,
		"#startup_delay_p50=%s startup_delay_p90=%s startup_delay_p99=%s stall_p50=%s stall_p90=%s stall_p99=%s slow_streams=%d\n",
		Fixed(t.StartupDelayQuantile(0.5)), Fixed(t.StartupDelayQuantile(0.9)), Fixed(t.StartupDelayQuantile(0.99)),
		Fixed(t.StallQuantile(0.5)), Fixed(t.StallQuantile(0.9)), Fixed(t.StallQuantile(0.99)),
		t.SlowStreams)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "#bad_records=%d bad_timestamps=%d acked_chunks=%d sessions=%d multi_stream_sessions=%d\n",
		x.BadRecords, x.BadTimestamps, x.AckedChunks, x.Sessions, x.MultiStreamSessions)
	return err
}
