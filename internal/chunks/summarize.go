// Package chunks aggregates a stream's chunk-delivery records into quality
// and throughput figures.
package chunks

import (
	"math"

	"github.com/StanfordSNR/puffer-statistics-sub000/internal/record"
)

const (
	// Missing is reported for every figure of a stream without chunks.
	Missing = -1.0

	// DefaultSSIMCeiling is the raw SSIM index at and above which a chunk
	// is left out of the SSIM mean and variation. The dB transform diverges
	// as the index approaches 1.
	DefaultSSIMCeiling = 0.99999

	// ChunkDuration is the fixed media duration of one chunk in seconds.
	ChunkDuration = 2.002
)

// Chunk is the part of a chunk-sent record the summary needs.
type Chunk struct {
	SSIMIndex    float64
	DeliveryRate float64
	Size         float64
}

// ChunkOf builds a Chunk from a chunk-sent view.
func ChunkOf(c record.ChunkSent) Chunk {
	return Chunk{
		SSIMIndex:    c.SSIMIndex,
		DeliveryRate: float64(c.DeliveryRate),
		Size:         float64(c.Size),
	}
}

// Summary holds per-stream chunk figures.
type Summary struct {
	Missing bool

	TotalChunks  int
	NormalChunks int
	SSIM1Chunks  int
	SSIMSum      float64

	MeanSSIM         float64
	MeanDeliveryRate float64
	AverageBitrate   float64
	SSIMVariationDB  float64
}

// HighSSIMChunks is the number of chunks at or above the ceiling.
func (s Summary) HighSSIMChunks() int {
	return s.TotalChunks - s.NormalChunks
}

// MissingSummary is the summary of a stream with no chunk records.
func MissingSummary() Summary {
	return Summary{
		Missing:          true,
		MeanSSIM:         Missing,
		MeanDeliveryRate: Missing,
		AverageBitrate:   Missing,
		SSIMVariationDB:  Missing,
	}
}

// SSIMToDB converts a raw SSIM index to decibels. It reports false for
// indexes at or above ceiling.
func SSIMToDB(raw, ceiling float64) (float64, bool) {
	if raw >= ceiling {
		return 0, false
	}
	return -10 * math.Log10(1-raw), true
}

// Summarize computes the figures for chunks in timestamp order.
//
// Mean SSIM and variation use only chunks below ceiling. When every chunk is
// at or over ceiling the mean is NaN, not Missing, so the stream still reads
// as having video stats. Variation is the mean absolute dB difference over
// consecutive pairs where both chunks are below ceiling, or Missing when
// there is no such pair. Delivery rate and bitrate use every chunk.
func Summarize(chunks []Chunk, ceiling float64) Summary {
	if len(chunks) == 0 {
		return MissingSummary()
	}

	s := Summary{TotalChunks: len(chunks)}
	var (
		rateSum, bytesSum float64
		varSum            float64
		varPairs          int
		lastDB            float64
		haveLast          bool
	)
	for _, c := range chunks {
		if c.SSIMIndex == 1.0 {
			s.SSIM1Chunks++
		}
		db, ok := SSIMToDB(c.SSIMIndex, ceiling)
		if ok {
			s.NormalChunks++
			s.SSIMSum += c.SSIMIndex
			if haveLast {
				varSum += math.Abs(db - lastDB)
				varPairs++
			}
		}
		lastDB, haveLast = db, ok

		rateSum += c.DeliveryRate
		bytesSum += c.Size
	}

	n := float64(len(chunks))
	s.MeanDeliveryRate = rateSum / n
	s.AverageBitrate = 8 * bytesSum / (ChunkDuration * n)

	s.MeanSSIM = math.NaN()
	if s.NormalChunks > 0 {
		s.MeanSSIM = s.SSIMSum / float64(s.NormalChunks)
	}
	s.SSIMVariationDB = Missing
	if varPairs > 0 {
		s.SSIMVariationDB = varSum / float64(varPairs)
	}
	return s
}
