// Package face defines the face analysis collaborator used by verification
// and enrolment. Detection, landmark extraction and embedding computation run
// in an external sidecar; this package holds the contract and its HTTP client.
package face

import (
	"context"
	"image"

	"presence/internal/liveness"
)

//go:generate mockgen -source=face.go -destination=mocks/mocks.go -package=mocks Analyzer

// Analyzer is the face analysis contract. Implementations must treat every
// frame independently; no call order is assumed between the three operations.
type Analyzer interface {
	// DetectFaces reports how many faces appear in the frame.
	DetectFaces(ctx context.Context, img image.Image) (int, error)

	// ExtractLandmarks returns the 68-point facial landmark set for the
	// dominant face. Returns a CodeNoFace error when no face is found.
	ExtractLandmarks(ctx context.Context, img image.Image) ([]liveness.Point, error)

	// ComputeEmbedding returns the identity embedding for the dominant face.
	// Returns a CodeNoFace error when no face is found.
	ComputeEmbedding(ctx context.Context, img image.Image) ([]float64, error)
}
