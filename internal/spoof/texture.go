// Package spoof implements the texture anti-spoof check. The single statistic
// is the variance of the Laplacian of the grayscale frame: printed photos and
// blurred replays flatten high-frequency edge energy, while digital screen
// recaptures inflate it.
package spoof

import (
	"image"
	"image/draw"
)

// Band is the acceptance band for Laplacian variance. Values inside the band
// (inclusive on both ends) look like a natural camera capture.
type Band struct {
	Min float64
	Max float64
}

// Verdict classifies a variance against a band.
type Verdict int

const (
	// VerdictNatural means the variance falls inside the acceptance band.
	VerdictNatural Verdict = iota
	// VerdictTooSmooth means the variance is below the band, consistent
	// with a blurred or printed photo.
	VerdictTooSmooth
	// VerdictTooSharp means the variance is above the band, consistent
	// with a digital screen recapture.
	VerdictTooSharp
)

// Check classifies variance against the band. Boundary values pass: a
// variance of exactly Min or Max is natural.
func (b Band) Check(variance float64) Verdict {
	switch {
	case variance < b.Min:
		return VerdictTooSmooth
	case variance > b.Max:
		return VerdictTooSharp
	default:
		return VerdictNatural
	}
}

// Grayscale converts any image to 8-bit grayscale using the standard
// luminance conversion.
func Grayscale(img image.Image) *image.Gray {
	bounds := img.Bounds()
	gray := image.NewGray(bounds)
	draw.Draw(gray, bounds, img, bounds.Min, draw.Src)
	return gray
}

// LaplacianVariance computes the variance of the 4-neighbour Laplacian over
// the interior pixels of a grayscale image. Images smaller than 3x3 have no
// interior and yield 0.
func LaplacianVariance(gray *image.Gray) float64 {
	bounds := gray.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w < 3 || h < 3 {
		return 0
	}

	at := func(x, y int) float64 {
		return float64(gray.GrayAt(bounds.Min.X+x, bounds.Min.Y+y).Y)
	}

	n := float64((w - 2) * (h - 2))
	var sum, sumSq float64
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			r := 4*at(x, y) - at(x-1, y) - at(x+1, y) - at(x, y-1) - at(x, y+1)
			sum += r
			sumSq += r * r
		}
	}

	mean := sum / n
	return sumSq/n - mean*mean
}

// Score computes the Laplacian variance of an image in one call.
func Score(img image.Image) float64 {
	return LaplacianVariance(Grayscale(img))
}
