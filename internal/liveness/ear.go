// Package liveness implements the blink-based liveness check: per-frame eye
// aspect ratio math, a stateful blink challenge advanced frame by frame, and
// a stateless batch analysis over a client-buffered challenge window.
package liveness

import (
	"fmt"
	"math"
)

// Point is a 2-D landmark coordinate in pixel space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// 68-point landmark model indices for the eye contours.
const (
	landmarkCount = 68
	leftEyeStart  = 36
	leftEyeEnd    = 42
	rightEyeStart = 42
	rightEyeEnd   = 48
	eyePoints     = 6
)

// EyeAspectRatio computes the openness metric for a single eye given its six
// contour points ordered around the eye: EAR = (|p2-p6| + |p3-p5|) / (2*|p1-p4|).
// Open eyes yield roughly 0.25-0.35; closed eyes drop well below 0.2.
func EyeAspectRatio(eye []Point) (float64, error) {
	if len(eye) != eyePoints {
		return 0, fmt.Errorf("eye contour needs %d points, got %d", eyePoints, len(eye))
	}

	vertA := dist(eye[1], eye[5])
	vertB := dist(eye[2], eye[4])
	horiz := dist(eye[0], eye[3])
	if horiz == 0 {
		return 0, fmt.Errorf("degenerate eye contour: zero width")
	}

	return (vertA + vertB) / (2 * horiz), nil
}

// AverageEAR computes the EAR averaged over both eyes, the per-frame liveness
// signal used by the blink challenge.
func AverageEAR(left, right []Point) (float64, error) {
	l, err := EyeAspectRatio(left)
	if err != nil {
		return 0, fmt.Errorf("left eye: %w", err)
	}
	r, err := EyeAspectRatio(right)
	if err != nil {
		return 0, fmt.Errorf("right eye: %w", err)
	}
	return (l + r) / 2, nil
}

// EyesFromLandmarks extracts both eye contours from a 68-point landmark set.
func EyesFromLandmarks(landmarks []Point) (left, right []Point, err error) {
	if len(landmarks) != landmarkCount {
		return nil, nil, fmt.Errorf("landmark set needs %d points, got %d", landmarkCount, len(landmarks))
	}
	return landmarks[leftEyeStart:leftEyeEnd], landmarks[rightEyeStart:rightEyeEnd], nil
}

// FrameEAR computes the averaged EAR straight from a 68-point landmark set.
func FrameEAR(landmarks []Point) (float64, error) {
	left, right, err := EyesFromLandmarks(landmarks)
	if err != nil {
		return 0, err
	}
	return AverageEAR(left, right)
}

func dist(a, b Point) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	return math.Sqrt(dx*dx + dy*dy)
}
