// Package quality walks one stream's playback events in time order and
// decides whether the stream is usable, how much of it was observed, and how
// long it played and stalled.
package quality

import (
	"fmt"

	"github.com/StanfordSNR/puffer-statistics-sub000/internal/record"
)

// Terminal reasons.
const (
	ReasonGood              = "good"
	ReasonStallWhilePlaying = "stall_while_playing"
	ReasonZeroPlayed        = "zeroplayed"
	ReasonNegativeRebuffer  = "negative_rebuffer"
	ReasonNeverStarted      = "neverstarted"
)

// Thresholds tune the state machine. All values are seconds.
type Thresholds struct {
	// MaxEventGap truncates the stream when consecutive events are further
	// apart than this.
	MaxEventGap float64 `json:"max_event_gap" yaml:"max_event_gap"`
	// LowBuffer is the buffer level at or below which a stall is tracked.
	LowBuffer float64 `json:"low_buffer" yaml:"low_buffer"`
	// MaxStall truncates the stream after this long at low buffer.
	MaxStall float64 `json:"max_stall" yaml:"max_stall"`
	// SlowDecoderBuffer and SlowDecoderRebuffer detect rebuffering while the
	// buffer is healthy, which invalidates the stream.
	SlowDecoderBuffer   float64 `json:"slow_decoder_buffer" yaml:"slow_decoder_buffer"`
	SlowDecoderRebuffer float64 `json:"slow_decoder_rebuffer" yaml:"slow_decoder_rebuffer"`
}

// DefaultThresholds returns the thresholds the published analysis used.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MaxEventGap:         8.0,
		LowBuffer:           0.3,
		MaxStall:            20.0,
		SlowDecoderBuffer:   5.0,
		SlowDecoderRebuffer: 0.15,
	}
}

// GapReason is the truncation reason for an event gap.
func (t Thresholds) GapReason() string {
	return fmt.Sprintf("event_interval>%gs", t.MaxEventGap)
}

// StallReason is the truncation reason for a long stall.
func (t Thresholds) StallReason() string {
	return fmt.Sprintf("stall>%gs", t.MaxStall)
}

// Sample is one playback event at an absolute timestamp in nanoseconds.
type Sample struct {
	Timestamp int64
	Type      record.EventType
	Buffer    float64
	CumRebuf  float64
}

// SampleOf builds a Sample from a playback record view.
func SampleOf(ts int64, ev record.Event) Sample {
	return Sample{Timestamp: ts, Type: ev.Type, Buffer: ev.Buffer, CumRebuf: ev.CumRebuf}
}

// Summary is the verdict for one stream. Times are seconds relative to the
// first event.
type Summary struct {
	BaseTime   int64
	Valid      bool
	FullExtent bool
	// Reason is "good", a truncation reason, or a failure reason. A valid
	// stream may carry a truncation reason.
	Reason string
	Scheme string
	InitID uint32

	TimeExtent         float64
	TimeAtStartup      float64
	TimeAtLastPlay     float64
	CumRebufAtStartup  float64
	CumRebufAtLastPlay float64
}

// TotalAfterStartup is the play time from startup to the last play.
func (s Summary) TotalAfterStartup() float64 {
	return s.TimeAtLastPlay - s.TimeAtStartup
}

// StallAfterStartup is the rebuffer time accumulated after startup.
func (s Summary) StallAfterStartup() float64 {
	return s.CumRebufAtLastPlay - s.CumRebufAtStartup
}

// Used is the percentage of the extent covered by playback.
func (s Summary) Used() float64 {
	return 100 * s.TimeAtLastPlay / s.TimeExtent
}

// Classifier applies Thresholds to event sequences. The zero value is not
// useful; use New.
type Classifier struct {
	t           Thresholds
	gapReason   string
	stallReason string
}

// New returns a classifier for t.
func New(t Thresholds) *Classifier {
	return &Classifier{t: t, gapReason: t.GapReason(), stallReason: t.StallReason()}
}

// Thresholds returns the classifier's thresholds.
func (c *Classifier) Thresholds() Thresholds { return c.t }

// Classify walks samples, which must be in ascending timestamp order, and
// returns the stream's summary. It does not retain samples.
func (c *Classifier) Classify(samples []Sample, scheme string, initID uint32) Summary {
	s := Summary{
		FullExtent: true,
		Reason:     ReasonGood,
		Scheme:     scheme,
		InitID:     initID,
	}
	if len(samples) > 0 {
		s.BaseTime = samples[0].Timestamp
		s.TimeExtent = seconds(samples[len(samples)-1].Timestamp - s.BaseTime)
	}

	var (
		started, playing bool
		lowSince         float64
		tracking         bool
		lastSample       float64
		lastBuffer       float64
		lastCumRebuf     float64
	)

	for _, ev := range samples {
		t := seconds(ev.Timestamp - s.BaseTime)

		if t-lastSample > c.t.MaxEventGap {
			s.Reason = c.gapReason
			s.FullExtent = false
			break
		}

		if ev.Buffer > c.t.LowBuffer {
			tracking = false
		} else if !tracking {
			tracking = true
			lowSince = t
		}

		if tracking && t-lowSince > c.t.MaxStall {
			s.Reason = c.stallReason
			s.FullExtent = false
			break
		}

		if ev.Buffer > c.t.SlowDecoderBuffer && lastBuffer > c.t.SlowDecoderBuffer &&
			ev.CumRebuf > lastCumRebuf+c.t.SlowDecoderRebuffer {
			s.Reason = ReasonStallWhilePlaying
			return s
		}

		switch ev.Type {
		case record.EventInit:
		case record.EventPlay:
			playing = true
			s.TimeAtLastPlay, s.CumRebufAtLastPlay = t, ev.CumRebuf
		case record.EventStartup:
			if !started {
				started = true
				s.TimeAtStartup, s.CumRebufAtStartup = t, ev.CumRebuf
			}
			playing = true
			s.TimeAtLastPlay, s.CumRebufAtLastPlay = t, ev.CumRebuf
		case record.EventTimer:
			if playing {
				s.TimeAtLastPlay, s.CumRebufAtLastPlay = t, ev.CumRebuf
			}
		case record.EventRebuffer:
			playing = false
		}

		lastSample, lastBuffer, lastCumRebuf = t, ev.Buffer, ev.CumRebuf
	}

	switch {
	case s.TimeAtLastPlay <= s.TimeAtStartup:
		s.Reason = ReasonZeroPlayed
	case s.CumRebufAtLastPlay < s.CumRebufAtStartup:
		s.Reason = ReasonNegativeRebuffer
	case !started:
		s.Reason = ReasonNeverStarted
	default:
		s.Valid = true
	}
	return s
}

func seconds(ns int64) float64 {
	return float64(ns) / 1e9
}
