package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCoincidentPointsAreZero(t *testing.T) {
	assert.Zero(t, Distance(10.52, 76.21, 10.52, 76.21))
	assert.Zero(t, Distance(0, 0, 0, 0))
	assert.Zero(t, Distance(-89.9, 179.9, -89.9, 179.9))
}

func TestSymmetry(t *testing.T) {
	d1 := Distance(10.52, 76.21, 12.97, 77.59)
	d2 := Distance(12.97, 77.59, 10.52, 76.21)
	assert.InDelta(t, d1, d2, 1e-9)
}

func TestOneDegreeOfLongitudeAtEquator(t *testing.T) {
	// 2 * pi * R / 360 with R = 6371000 m.
	d := Distance(0, 0, 0, 1)
	assert.InDelta(t, 111194.93, d, 0.5)
}

func TestKnownDistance(t *testing.T) {
	// Campus reference point to Bengaluru city centre, roughly 310 km.
	d := Distance(10.52, 76.21, 12.9716, 77.5946)
	assert.InDelta(t, 310_000, d, 5_000)
}

func TestNaNPropagates(t *testing.T) {
	assert.True(t, math.IsNaN(Distance(math.NaN(), 0, 0, 0)))
}

func TestValidCoordinate(t *testing.T) {
	assert.True(t, ValidCoordinate(10.52, 76.21))
	assert.True(t, ValidCoordinate(-90, 180))
	assert.False(t, ValidCoordinate(90.01, 0))
	assert.False(t, ValidCoordinate(0, -180.5))
	assert.False(t, ValidCoordinate(math.NaN(), 0))
	assert.False(t, ValidCoordinate(0, math.Inf(1)))
}
