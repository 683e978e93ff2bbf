// Package match compares face embeddings by Euclidean distance. A probe
// matches a subject when its distance to at least one enrolled reference
// embedding falls at or below the threshold.
package match

import (
	"math"

	dErrors "presence/pkg/domain-errors"
)

// Distance returns the Euclidean distance between two embeddings.
func Distance(a, b []float64) (float64, error) {
	if len(a) == 0 || len(b) == 0 {
		return 0, dErrors.New(dErrors.CodeValidation, "embedding must not be empty")
	}
	if len(a) != len(b) {
		return 0, dErrors.New(dErrors.CodeValidation, "embedding dimensions do not match")
	}
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum), nil
}

// MinDistance returns the smallest distance from probe to any reference.
func MinDistance(probe []float64, refs [][]float64) (float64, error) {
	if len(refs) == 0 {
		return 0, dErrors.New(dErrors.CodeNotRegistered, "no reference embeddings enrolled")
	}
	best := math.Inf(1)
	for _, ref := range refs {
		d, err := Distance(probe, ref)
		if err != nil {
			return 0, err
		}
		if d < best {
			best = d
		}
	}
	return best, nil
}

// Matcher decides identity from embedding distance.
type Matcher struct {
	threshold float64
}

// NewMatcher builds a Matcher accepting distances at or below threshold.
func NewMatcher(threshold float64) *Matcher {
	return &Matcher{threshold: threshold}
}

// Threshold reports the configured acceptance distance.
func (m *Matcher) Threshold() float64 { return m.threshold }

// Result carries the outcome of a probe/reference comparison.
type Result struct {
	Matched    bool
	Distance   float64
	Confidence float64
}

// Match compares probe against all references and returns the decision.
func (m *Matcher) Match(probe []float64, refs [][]float64) (Result, error) {
	d, err := MinDistance(probe, refs)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Matched:    d <= m.threshold,
		Distance:   d,
		Confidence: Confidence(d),
	}, nil
}

// Confidence maps a distance to a score in [0, 1]. Distance zero means a
// perfect match; distances of 1 or more clamp to zero.
func Confidence(distance float64) float64 {
	c := 1 - distance
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
