package face

import (
	"context"
	"image"
	"log/slog"
	"sync"
	"time"

	"presence/internal/liveness"
	dErrors "presence/pkg/domain-errors"
	"presence/pkg/platform/circuit"
)

// defaultProbeInterval is how often an open breaker lets a request through to
// check whether the sidecar has recovered.
const defaultProbeInterval = 10 * time.Second

// BreakerAnalyzer wraps an Analyzer with a circuit breaker. When the sidecar
// has failed repeatedly, calls fail fast with CodeUnavailable instead of
// holding every verification request for a full timeout. While the circuit is
// open one probe per interval still reaches the sidecar so it can close again.
//
// Only infrastructure failures trip the breaker. Domain outcomes such as
// CodeNoFace are healthy responses from the sidecar's point of view.
type BreakerAnalyzer struct {
	inner   Analyzer
	breaker *circuit.Breaker
	logger  *slog.Logger

	probeInterval time.Duration
	mu            sync.Mutex
	lastProbe     time.Time
}

var _ Analyzer = (*BreakerAnalyzer)(nil)

// BreakerOption configures the BreakerAnalyzer.
type BreakerOption func(*BreakerAnalyzer)

// WithProbeInterval overrides how often an open circuit probes the sidecar.
func WithProbeInterval(d time.Duration) BreakerOption {
	return func(b *BreakerAnalyzer) {
		if d > 0 {
			b.probeInterval = d
		}
	}
}

// WithBreaker injects a pre-configured breaker.
func WithBreaker(br *circuit.Breaker) BreakerOption {
	return func(b *BreakerAnalyzer) {
		b.breaker = br
	}
}

// NewBreakerAnalyzer wraps inner with circuit breaking.
func NewBreakerAnalyzer(inner Analyzer, logger *slog.Logger, opts ...BreakerOption) *BreakerAnalyzer {
	b := &BreakerAnalyzer{
		inner:         inner,
		logger:        logger,
		probeInterval: defaultProbeInterval,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.breaker == nil {
		b.breaker = circuit.New("face-service")
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	return b
}

// DetectFaces implements Analyzer.
func (b *BreakerAnalyzer) DetectFaces(ctx context.Context, img image.Image) (int, error) {
	var count int
	err := b.call(func() error {
		var err error
		count, err = b.inner.DetectFaces(ctx, img)
		return err
	})
	return count, err
}

// ExtractLandmarks implements Analyzer.
func (b *BreakerAnalyzer) ExtractLandmarks(ctx context.Context, img image.Image) ([]liveness.Point, error) {
	var points []liveness.Point
	err := b.call(func() error {
		var err error
		points, err = b.inner.ExtractLandmarks(ctx, img)
		return err
	})
	return points, err
}

// ComputeEmbedding implements Analyzer.
func (b *BreakerAnalyzer) ComputeEmbedding(ctx context.Context, img image.Image) ([]float64, error) {
	var embedding []float64
	err := b.call(func() error {
		var err error
		embedding, err = b.inner.ComputeEmbedding(ctx, img)
		return err
	})
	return embedding, err
}

func (b *BreakerAnalyzer) call(fn func() error) error {
	if b.breaker.IsOpen() && !b.allowProbe() {
		return dErrors.New(dErrors.CodeUnavailable, "face service circuit open")
	}

	err := fn()
	if isInfrastructureError(err) {
		if _, change := b.breaker.RecordFailure(); change.Opened {
			b.logger.Warn("face service circuit opened", "breaker", b.breaker.Name())
		}
		return err
	}

	if _, change := b.breaker.RecordSuccess(); change.Closed {
		b.logger.Info("face service circuit closed", "breaker", b.breaker.Name())
	}
	return err
}

// allowProbe rate-limits calls while the circuit is open.
func (b *BreakerAnalyzer) allowProbe() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now()
	if now.Sub(b.lastProbe) < b.probeInterval {
		return false
	}
	b.lastProbe = now
	return true
}

func isInfrastructureError(err error) bool {
	if err == nil {
		return false
	}
	switch dErrors.CodeOf(err) {
	case dErrors.CodeUnavailable, dErrors.CodeTimeout, dErrors.CodeFaceService:
		return true
	}
	return false
}
