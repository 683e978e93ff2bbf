package liveness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzeSequenceNoBlink(t *testing.T) {
	stats, err := AnalyzeSequence([]float64{0.32, 0.31, 0.30}, 0.06)
	require.NoError(t, err)

	assert.False(t, stats.BlinkDetected)
	assert.InDelta(t, 0.02, stats.Drop, 1e-9)
	assert.InDelta(t, 0.31, stats.Mean, 1e-9)
	assert.InDelta(t, 0.30, stats.Min, 1e-9)
	assert.InDelta(t, 0.32, stats.Max, 1e-9)
	assert.Equal(t, []float64{0.32, 0.31, 0.30}, stats.Values)
}

func TestAnalyzeSequenceBlink(t *testing.T) {
	stats, err := AnalyzeSequence([]float64{0.32, 0.10, 0.31}, 0.06)
	require.NoError(t, err)

	assert.True(t, stats.BlinkDetected)
	assert.InDelta(t, 0.22, stats.Drop, 1e-9)
}

func TestAnalyzeSequenceDropAtThreshold(t *testing.T) {
	// Drop equal to the threshold counts as a blink. Values chosen so the
	// subtraction is exact in binary floating point.
	stats, err := AnalyzeSequence([]float64{0.5, 0.25, 0.375}, 0.25)
	require.NoError(t, err)

	assert.True(t, stats.BlinkDetected)
}

func TestAnalyzeSequenceTooFewFrames(t *testing.T) {
	_, err := AnalyzeSequence([]float64{0.32, 0.10}, 0.06)
	assert.Error(t, err)
}
