// Package stats renders per-stream summary lines and the run aggregates.
//
// The per-stream line is consumed as plain text by downstream tooling, so
// its field order and names are fixed. Lines that start with '#' are
// aggregates and are ignored downstream.
package stats

import (
	"math"
	"strconv"

	"github.com/StanfordSNR/puffer-statistics-sub000/internal/chunks"
	"github.com/StanfordSNR/puffer-statistics-sub000/internal/quality"
)

// Stream is everything reported for one stream.
type Stream struct {
	Quality quality.Summary
	Chunks  chunks.Summary
	// MissingClientInfo is set when no client metadata matched the stream.
	MissingClientInfo bool
}

// AppendLine appends the stream's summary line, including the trailing
// newline, to b.
func AppendLine(b []byte, s Stream) []byte {
	q, c := s.Quality, s.Chunks

	b = append(b, "ts="...)
	b = strconv.AppendInt(b, q.BaseTime/1_000_000_000, 10)
	b = append(b, " valid="...)
	if q.Valid {
		b = append(b, "good"...)
	} else {
		b = append(b, "bad"...)
	}
	b = append(b, " full_extent="...)
	if q.FullExtent {
		b = append(b, "full"...)
	} else {
		b = append(b, "trunc"...)
	}
	b = append(b, " bad_reason="...)
	b = append(b, q.Reason...)
	b = append(b, " scheme="...)
	b = append(b, q.Scheme...)

	b = appendField(b, " extent=", q.TimeExtent)
	b = appendField(b, " used=", q.Used())
	b = append(b, '%')
	b = appendField(b, " mean_ssim=", c.MeanSSIM)
	b = appendField(b, " mean_delivery_rate=", c.MeanDeliveryRate)
	b = appendField(b, " average_bitrate=", c.AverageBitrate)
	b = appendField(b, " ssim_variation_db=", c.SSIMVariationDB)
	b = appendField(b, " startup_delay=", q.CumRebufAtStartup)
	b = appendField(b, " total_after_startup=", q.TotalAfterStartup())
	b = appendField(b, " stall_after_startup=", q.StallAfterStartup())
	return append(b, '\n')
}

// FormatLine returns the stream's summary line without the newline.
func FormatLine(s Stream) string {
	b := AppendLine(nil, s)
	return string(b[:len(b)-1])
}

func appendField(b []byte, name string, v float64) []byte {
	b = append(b, name...)
	return AppendFixed(b, v)
}

// AppendFixed appends v with six decimals. Non-finite values are written as
// nan, inf and -inf.
func AppendFixed(b []byte, v float64) []byte {
	switch {
	case math.IsNaN(v):
		return append(b, "nan"...)
	case math.IsInf(v, 1):
		return append(b, "inf"...)
	case math.IsInf(v, -1):
		return append(b, "-inf"...)
	}
	return strconv.AppendFloat(b, v, 'f', 6, 64)
}

// Fixed formats v like AppendFixed.
func Fixed(v float64) string {
	return string(AppendFixed(nil, v))
}
