// Package tracer provides a lightweight tracing abstraction for the
// verification pipeline. The pipeline emits a parent span per request and a
// child span per gate without depending on OpenTelemetry APIs directly.
//
// Implementations:
//   - NoopTracer: for tests (zero overhead)
//   - OTelTracer: OpenTelemetry adapter for production
package tracer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Span represents an active trace span.
type Span interface {
	// End completes the span, recording any error that occurred.
	// End must be called exactly once, typically via defer.
	End(err error)

	// SetAttributes adds key-value pairs to the span.
	SetAttributes(attrs ...Attribute)

	// AddEvent records a timestamped event within the span.
	AddEvent(name string, attrs ...Attribute)
}

// Tracer creates spans. Implementations must be safe for concurrent use.
type Tracer interface {
	// Start creates a new span with the given name and attributes. The
	// returned context contains the new span and should be passed to child
	// operations. The span must be ended by calling Span.End().
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// Attribute represents a key-value pair attached to spans.
type Attribute struct {
	Key   string
	Value any
}

// String creates a string attribute.
func String(key, value string) Attribute {
	return Attribute{Key: key, Value: value}
}

// Bool creates a boolean attribute.
func Bool(key string, value bool) Attribute {
	return Attribute{Key: key, Value: value}
}

// Int creates an integer attribute.
func Int(key string, value int) Attribute {
	return Attribute{Key: key, Value: int64(value)}
}

// Float64 creates a float64 attribute.
func Float64(key string, value float64) Attribute {
	return Attribute{Key: key, Value: value}
}

// Duration creates a duration attribute in milliseconds.
func Duration(key string, value time.Duration) Attribute {
	return Attribute{Key: key, Value: value.Milliseconds()}
}

// HashSubjectID returns a SHA-256 hash of the subject ID so traces can be
// correlated without exposing the raw identity.
func HashSubjectID(subjectID string) string {
	if subjectID == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(subjectID))
	return hex.EncodeToString(hash[:8])
}

// Span names used by the verification pipeline.
const (
	SpanVerify       = "verify.request"
	SpanGateLocation = "verify.gate.location"
	SpanGateTexture  = "verify.gate.texture"
	SpanGateLiveness = "verify.gate.liveness"
	SpanGateIdentity = "verify.gate.identity"
)

// Attribute keys used by the verification pipeline.
const (
	AttrSubjectHash  = "subject_hash"
	AttrGatePassed   = "gate_passed"
	AttrVerified     = "verified"
	AttrReason       = "rejection_reason"
	AttrDistanceM    = "distance_m"
	AttrVariance     = "texture_variance"
	AttrBlinkMode    = "liveness_mode"
	AttrMatchDist    = "match_distance"
	AttrConfidence   = "confidence"
	AttrFramesInBand = "frames"
)
