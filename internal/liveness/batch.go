package liveness

import (
	"fmt"
	"math"
)

// BatchMinFrames is the smallest challenge window the batch analysis accepts.
const BatchMinFrames = 3

// BatchStats reports the batch analysis outcome together with the full EAR
// sequence and its statistics, for diagnosis regardless of the result.
type BatchStats struct {
	Values        []float64 `json:"ear_values"`
	Mean          float64   `json:"mean"`
	Min           float64   `json:"min"`
	Max           float64   `json:"max"`
	Drop          float64   `json:"drop"`
	BlinkDetected bool      `json:"blink_detected"`
}

// AnalyzeSequence runs the stateless batch-mode blink check over an ordered
// EAR sequence: a blink is declared iff the spread (max - min) reaches
// dropThreshold. This is a coarser alternative to the streaming challenge,
// used when the client buffered a full challenge window itself.
func AnalyzeSequence(ears []float64, dropThreshold float64) (BatchStats, error) {
	if len(ears) < BatchMinFrames {
		return BatchStats{}, fmt.Errorf("batch analysis needs at least %d frames, got %d", BatchMinFrames, len(ears))
	}

	stats := BatchStats{
		Values: ears,
		Min:    math.Inf(1),
		Max:    math.Inf(-1),
	}
	var sum float64
	for _, v := range ears {
		sum += v
		stats.Min = math.Min(stats.Min, v)
		stats.Max = math.Max(stats.Max, v)
	}
	stats.Mean = sum / float64(len(ears))
	stats.Drop = stats.Max - stats.Min
	stats.BlinkDetected = stats.Drop >= dropThreshold

	return stats, nil
}
