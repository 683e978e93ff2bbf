package verify

import (
	"time"
)

// Gate indices report the highest gate a request passed. 0 means the
// location gate rejected it, 4 means full success.
const (
	GateNone     = 0
	GateLocation = 1
	GateTexture  = 2
	GateLiveness = 3
	GateIdentity = 4
)

// Gate names used in metrics, traces and rejection accounting.
const (
	gateNameLocation = "location"
	gateNameTexture  = "texture"
	gateNameLiveness = "liveness"
	gateNameIdentity = "identity"
)

// LivenessInput selects the liveness algorithm for a request. Exactly one of
// the two implementations exists; the pipeline dispatches on the concrete
// type once, at its boundary.
type LivenessInput interface {
	livenessInput()
}

// SingleFrame selects the streaming blink challenge: the primary frame is
// one sample in a cross-request session keyed by subject.
type SingleFrame struct{}

func (SingleFrame) livenessInput() {}

// BatchFrames selects single-shot analysis over a client-buffered challenge
// window of at least three frames.
type BatchFrames struct {
	Frames [][]byte
}

func (BatchFrames) livenessInput() {}

// Request is one verification attempt. Immutable once constructed.
type Request struct {
	Subject   string
	Latitude  float64
	Longitude float64
	// Frame is the encoded primary image.
	Frame []byte
	// Liveness selects streaming or batch blink detection.
	Liveness LivenessInput
	// ChallengeTimeout, when positive, shortens the streaming blink
	// challenge window for this request. It never extends the configured
	// timeout and is ignored in batch mode.
	ChallengeTimeout time.Duration
}

// Result is the aggregate pipeline outcome. One instance per request,
// immutable after construction.
type Result struct {
	Verified bool
	// Confidence is 1 - embedding distance clamped to [0, 1]. This is an
	// uncalibrated approximation, not a probability.
	Confidence      float64
	GatePassed      int
	RejectionReason string
	ProcessingTime  time.Duration
	// BlinkDetected and EARValues carry liveness diagnostics regardless of
	// outcome once the liveness gate has run.
	BlinkDetected bool
	EARValues     []float64
	// Debug holds gate-specific metrics for diagnosis.
	Debug map[string]any
}

// gateOutcome is the internal per-gate result.
type gateOutcome struct {
	passed bool
	reason string
	metric float64
	debug  map[string]any
}
