// Package verify orchestrates the verification gate pipeline: location,
// texture anti-spoof, blink liveness and identity match, evaluated in fixed
// order with short-circuit on the first failing gate.
package verify

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"presence/internal/audit"
	"presence/internal/face"
	"presence/internal/geo"
	"presence/internal/imaging"
	"presence/internal/liveness"
	livestore "presence/internal/liveness/store"
	"presence/internal/match"
	refstore "presence/internal/registry/store"
	"presence/internal/spoof"
	"presence/internal/verify/metrics"
	"presence/internal/verify/tracer"
	dErrors "presence/pkg/domain-errors"
)

// batchConcurrency bounds parallel frame analysis in batch liveness.
const batchConcurrency = 4

// Policy holds the gate thresholds. All values come from configuration.
type Policy struct {
	// ReferenceLat and ReferenceLon anchor the location gate.
	ReferenceLat float64
	ReferenceLon float64
	// LocationThresholdM passes distances at or below it.
	LocationThresholdM float64
	// TextureBand is the accepted Laplacian variance range.
	TextureBand spoof.Band
	// BatchDropThreshold is the minimum max-min EAR drop counted as a blink.
	BatchDropThreshold float64
	// MatchThreshold passes embedding distances at or below it.
	MatchThreshold float64
}

// Service is the gate pipeline. All collaborators are injected at
// construction; the service holds no package-level state.
type Service struct {
	policy   Policy
	analyzer face.Analyzer
	refs     refstore.Store
	sessions livestore.Store
	matcher  *match.Matcher
	tracer   tracer.Tracer
	metrics  *metrics.Metrics
	auditor  audit.Publisher
	logger   *slog.Logger
	nowFn    func() time.Time
}

// Option configures the Service.
type Option func(*Service)

// WithLogger sets the pipeline logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTracer sets the tracer; defaults to a no-op tracer.
func WithTracer(t tracer.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithMetrics wires the Prometheus collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithAuditPublisher wires the audit trail sink.
func WithAuditPublisher(p audit.Publisher) Option {
	return func(s *Service) {
		s.auditor = p
	}
}

// withNow injects the clock for tests.
func withNow(nowFn func() time.Time) Option {
	return func(s *Service) {
		s.nowFn = nowFn
	}
}

// New constructs the pipeline service.
func New(policy Policy, analyzer face.Analyzer, refs refstore.Store, sessions livestore.Store, opts ...Option) (*Service, error) {
	if analyzer == nil {
		return nil, fmt.Errorf("face analyzer is required")
	}
	if refs == nil {
		return nil, fmt.Errorf("reference store is required")
	}
	if sessions == nil {
		return nil, fmt.Errorf("session store is required")
	}
	s := &Service{
		policy:   policy,
		analyzer: analyzer,
		refs:     refs,
		sessions: sessions,
		matcher:  match.NewMatcher(policy.MatchThreshold),
		tracer:   tracer.NewNoop(),
		logger:   slog.Default(),
		nowFn:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// livenessDiag carries blink diagnostics out of the liveness gate so they
// reach the result regardless of outcome.
type livenessDiag struct {
	blinkDetected bool
	earValues     []float64
}

// Evaluate runs the pipeline for one request. Validation failures and
// infrastructure faults return an error; gate rejections return a Result
// with Verified=false and the gate that stopped the request.
func (s *Service) Evaluate(ctx context.Context, req *Request) (*Result, error) {
	start := s.nowFn()

	if req == nil {
		return nil, dErrors.New(dErrors.CodeValidation, "request is required")
	}
	if req.Subject == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "subject_id is required")
	}
	if !geo.ValidCoordinate(req.Latitude, req.Longitude) {
		return nil, dErrors.New(dErrors.CodeValidation, "coordinates out of range")
	}
	if req.Liveness == nil {
		return nil, dErrors.New(dErrors.CodeValidation, "liveness input is required")
	}
	if req.ChallengeTimeout < 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "challenge_duration must not be negative")
	}

	ctx, span := s.tracer.Start(ctx, tracer.SpanVerify,
		tracer.String(tracer.AttrSubjectHash, tracer.HashSubjectID(req.Subject)),
	)

	result, err := s.evaluate(ctx, req, start)
	if err != nil {
		span.End(err)
		if s.metrics != nil {
			s.metrics.RecordOutcome("error")
		}
		return nil, err
	}

	span.SetAttributes(
		tracer.Bool(tracer.AttrVerified, result.Verified),
		tracer.Int(tracer.AttrGatePassed, result.GatePassed),
	)
	span.End(nil)
	return result, nil
}

func (s *Service) evaluate(ctx context.Context, req *Request, start time.Time) (*Result, error) {
	// The primary frame must decode before any image gate runs. A frame
	// that cannot decode is a client error, not a gate rejection.
	img, err := imaging.Decode(req.Frame)
	if err != nil {
		return nil, err
	}

	if out := s.gateLocation(ctx, req); !out.passed {
		return s.finish(ctx, req, start, GateNone, gateNameLocation, out, livenessDiag{}, 0), nil
	}

	if out := s.gateTexture(ctx, img); !out.passed {
		return s.finish(ctx, req, start, GateLocation, gateNameTexture, out, livenessDiag{}, 0), nil
	}

	out, diag, err := s.gateLiveness(ctx, req, img)
	if err != nil {
		return nil, err
	}
	if !out.passed {
		return s.finish(ctx, req, start, GateTexture, gateNameLiveness, out, diag, 0), nil
	}

	out, confidence, err := s.gateIdentity(ctx, req, img)
	if err != nil {
		return nil, err
	}
	if !out.passed {
		return s.finish(ctx, req, start, GateLiveness, gateNameIdentity, out, diag, confidence), nil
	}

	return s.finish(ctx, req, start, GateIdentity, "", out, diag, confidence), nil
}

func (s *Service) gateLocation(ctx context.Context, req *Request) gateOutcome {
	_, span := s.tracer.Start(ctx, tracer.SpanGateLocation)
	gateStart := s.nowFn()

	distance := geo.Distance(req.Latitude, req.Longitude, s.policy.ReferenceLat, s.policy.ReferenceLon)
	out := gateOutcome{
		passed: distance <= s.policy.LocationThresholdM,
		metric: distance,
		debug:  map[string]any{"distance_m": distance, "threshold_m": s.policy.LocationThresholdM},
	}
	if !out.passed {
		out.reason = fmt.Sprintf("location %.0f m from reference exceeds %.0f m threshold",
			distance, s.policy.LocationThresholdM)
	}

	s.observeGate(gateNameLocation, gateStart)
	span.SetAttributes(tracer.Float64(tracer.AttrDistanceM, distance))
	span.End(nil)
	return out
}

func (s *Service) gateTexture(ctx context.Context, img image.Image) gateOutcome {
	_, span := s.tracer.Start(ctx, tracer.SpanGateTexture)
	gateStart := s.nowFn()

	variance := spoof.LaplacianVariance(spoof.Grayscale(img))
	out := gateOutcome{
		metric: variance,
		debug:  map[string]any{"texture_variance": variance},
	}
	switch s.policy.TextureBand.Check(variance) {
	case spoof.VerdictNatural:
		out.passed = true
	case spoof.VerdictTooSmooth:
		out.reason = fmt.Sprintf("texture variance %.2f below %.2f, image too smooth",
			variance, s.policy.TextureBand.Min)
	case spoof.VerdictTooSharp:
		out.reason = fmt.Sprintf("texture variance %.2f above %.2f, image too sharp",
			variance, s.policy.TextureBand.Max)
	}

	s.observeGate(gateNameTexture, gateStart)
	span.SetAttributes(tracer.Float64(tracer.AttrVariance, variance))
	span.End(nil)
	return out
}

func (s *Service) gateLiveness(ctx context.Context, req *Request, img image.Image) (gateOutcome, livenessDiag, error) {
	switch input := req.Liveness.(type) {
	case SingleFrame:
		return s.livenessStreaming(ctx, req, img)
	case BatchFrames:
		return s.livenessBatch(ctx, input.Frames)
	default:
		return gateOutcome{}, livenessDiag{}, dErrors.New(dErrors.CodeValidation, "unknown liveness input")
	}
}

// livenessStreaming advances the subject's blink session by one frame. The
// session survives across requests until the challenge resolves; it is
// deleted on completion and on timeout so the next attempt starts fresh.
func (s *Service) livenessStreaming(ctx context.Context, req *Request, img image.Image) (gateOutcome, livenessDiag, error) {
	subject := req.Subject
	ctx, span := s.tracer.Start(ctx, tracer.SpanGateLiveness,
		tracer.String(tracer.AttrBlinkMode, "streaming"),
	)
	gateStart := s.nowFn()
	defer s.observeGate(gateNameLiveness, gateStart)

	landmarks, err := s.analyzer.ExtractLandmarks(ctx, img)
	if err != nil {
		span.End(err)
		// A frame without a face fails this call without advancing the
		// session; the client keeps streaming.
		if dErrors.HasCode(err, dErrors.CodeNoFace) {
			return gateOutcome{reason: "no face detected in frame"}, livenessDiag{}, nil
		}
		return gateOutcome{reason: fmt.Sprintf("face analysis failed: %v", err)}, livenessDiag{}, nil
	}

	ear, err := liveness.FrameEAR(landmarks)
	if err != nil {
		span.End(err)
		return gateOutcome{reason: fmt.Sprintf("landmark extraction failed: %v", err)}, livenessDiag{}, nil
	}

	session, verdict, err := s.sessions.Advance(ctx, subject, ear, s.nowFn(), req.ChallengeTimeout)
	if err != nil {
		span.End(err)
		return gateOutcome{}, livenessDiag{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to advance blink session")
	}

	diag := livenessDiag{
		blinkDetected: session.BlinkDetected,
		earValues:     historyEARs(session),
	}

	if verdict.Completed {
		if err := s.sessions.Delete(ctx, subject); err != nil && !errors.Is(err, livestore.ErrNotFound) {
			s.logger.WarnContext(ctx, "failed to delete resolved blink session",
				"subject_hash", tracer.HashSubjectID(subject), "error", err)
		}
		span.End(nil)
		return gateOutcome{passed: true, metric: ear}, diag, nil
	}

	if verdict.TimedOut {
		if err := s.sessions.Delete(ctx, subject); err != nil && !errors.Is(err, livestore.ErrNotFound) {
			s.logger.WarnContext(ctx, "failed to delete timed-out blink session",
				"subject_hash", tracer.HashSubjectID(subject), "error", err)
		}
		span.End(nil)
		return gateOutcome{reason: verdict.Message, metric: ear, debug: streamingDebug(req, session)}, diag, nil
	}

	// Challenge still in progress: not a pass, but the client should keep
	// streaming frames against the same session.
	span.AddEvent("challenge_in_progress", tracer.String("phase", string(session.Phase)))
	span.End(nil)
	return gateOutcome{
		reason: verdict.Message,
		metric: ear,
		debug:  streamingDebug(req, session),
	}, diag, nil
}

// streamingDebug reports the challenge phase and, when the request shortened
// the window, the effective timeout.
func streamingDebug(req *Request, session *liveness.Session) map[string]any {
	debug := map[string]any{"phase": string(session.Phase)}
	if req.ChallengeTimeout > 0 {
		debug["challenge_timeout_s"] = req.ChallengeTimeout.Seconds()
	}
	return debug
}

// livenessBatch analyzes a client-buffered challenge window in one shot.
// Frames are independent, so EAR extraction runs in parallel.
func (s *Service) livenessBatch(ctx context.Context, frames [][]byte) (gateOutcome, livenessDiag, error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanGateLiveness,
		tracer.String(tracer.AttrBlinkMode, "batch"),
		tracer.Int(tracer.AttrFramesInBand, len(frames)),
	)
	gateStart := s.nowFn()
	defer s.observeGate(gateNameLiveness, gateStart)

	if len(frames) < liveness.BatchMinFrames {
		span.End(nil)
		return gateOutcome{}, livenessDiag{}, dErrors.New(dErrors.CodeValidation,
			fmt.Sprintf("batch liveness requires at least %d frames", liveness.BatchMinFrames))
	}

	ears := make([]float64, len(frames))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(batchConcurrency)
	for i, frame := range frames {
		i, frame := i, frame
		g.Go(func() error {
			frameImg, err := imaging.Decode(frame)
			if err != nil {
				return err
			}
			landmarks, err := s.analyzer.ExtractLandmarks(gctx, frameImg)
			if err != nil {
				return err
			}
			ear, err := liveness.FrameEAR(landmarks)
			if err != nil {
				return err
			}
			ears[i] = ear
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.End(err)
		if dErrors.HasCode(err, dErrors.CodeInvalidImage) {
			return gateOutcome{}, livenessDiag{}, err
		}
		if dErrors.HasCode(err, dErrors.CodeNoFace) {
			return gateOutcome{reason: "no face detected in challenge frames"}, livenessDiag{}, nil
		}
		return gateOutcome{reason: fmt.Sprintf("face analysis failed: %v", err)}, livenessDiag{}, nil
	}

	stats, err := liveness.AnalyzeSequence(ears, s.policy.BatchDropThreshold)
	if err != nil {
		span.End(err)
		return gateOutcome{}, livenessDiag{}, dErrors.Wrap(err, dErrors.CodeValidation, "batch liveness analysis failed")
	}

	diag := livenessDiag{blinkDetected: stats.BlinkDetected, earValues: stats.Values}
	out := gateOutcome{
		passed: stats.BlinkDetected,
		metric: stats.Drop,
		debug: map[string]any{
			"ear_mean": stats.Mean,
			"ear_min":  stats.Min,
			"ear_max":  stats.Max,
			"ear_drop": stats.Drop,
		},
	}
	if !out.passed {
		out.reason = fmt.Sprintf("no blink detected: EAR drop %.3f below %.3f threshold",
			stats.Drop, s.policy.BatchDropThreshold)
	}

	span.End(nil)
	return out, diag, nil
}

func (s *Service) gateIdentity(ctx context.Context, req *Request, img image.Image) (gateOutcome, float64, error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanGateIdentity)
	gateStart := s.nowFn()
	defer s.observeGate(gateNameIdentity, gateStart)

	embedding, err := s.analyzer.ComputeEmbedding(ctx, img)
	if err != nil {
		span.End(err)
		if dErrors.HasCode(err, dErrors.CodeNoFace) {
			// No face means nothing to match: maximal-distance failure.
			return gateOutcome{reason: "no face detected for identity match", metric: 1}, 0, nil
		}
		return gateOutcome{reason: fmt.Sprintf("face analysis failed: %v", err)}, 0, nil
	}

	refs, err := s.refs.List(ctx, req.Subject)
	if errors.Is(err, refstore.ErrNotFound) {
		span.End(nil)
		return gateOutcome{reason: "subject not registered"}, 0, nil
	}
	if err != nil {
		span.End(err)
		return gateOutcome{}, 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load reference embeddings")
	}

	references := make([][]float64, len(refs))
	for i, ref := range refs {
		references[i] = ref.Embedding
	}

	res, err := s.matcher.Match(embedding, references)
	if err != nil {
		span.End(err)
		return gateOutcome{reason: fmt.Sprintf("embedding comparison failed: %v", err)}, 0, nil
	}

	span.SetAttributes(
		tracer.Float64(tracer.AttrMatchDist, res.Distance),
		tracer.Float64(tracer.AttrConfidence, res.Confidence),
	)
	span.End(nil)

	out := gateOutcome{
		passed: res.Matched,
		metric: res.Distance,
		debug:  map[string]any{"match_distance": res.Distance, "references": len(references)},
	}
	if !out.passed {
		out.reason = fmt.Sprintf("face does not match enrolled references: distance %.3f above %.3f",
			res.Distance, s.matcher.Threshold())
	}
	return out, res.Confidence, nil
}

// finish assembles the immutable result, records metrics and emits the
// audit event.
func (s *Service) finish(ctx context.Context, req *Request, start time.Time, gatePassed int, failedGate string, out gateOutcome, diag livenessDiag, confidence float64) *Result {
	elapsed := s.nowFn().Sub(start)

	result := &Result{
		Verified:        gatePassed == GateIdentity,
		Confidence:      confidence,
		GatePassed:      gatePassed,
		RejectionReason: out.reason,
		ProcessingTime:  elapsed,
		BlinkDetected:   diag.blinkDetected,
		EARValues:       diag.earValues,
		Debug:           out.debug,
	}

	outcome := "rejected"
	if result.Verified {
		outcome = "verified"
	}
	if s.metrics != nil {
		s.metrics.RecordOutcome(outcome)
		if !result.Verified && failedGate != "" {
			s.metrics.RecordRejection(failedGate)
		}
		s.metrics.ObserveVerifyDuration(elapsed.Seconds())
	}

	s.logger.InfoContext(ctx, "verification resolved",
		"subject_hash", tracer.HashSubjectID(req.Subject),
		"verified", result.Verified,
		"gate_passed", result.GatePassed,
		"reason", result.RejectionReason,
		"elapsed", elapsed,
	)

	if s.auditor != nil {
		event := audit.NewEvent(audit.ActionVerification, req.Subject)
		event.Outcome = outcome
		event.GatePassed = result.GatePassed
		event.Reason = result.RejectionReason
		event.LatencySeconds = elapsed.Seconds()
		if err := s.auditor.Publish(ctx, event); err != nil {
			s.logger.WarnContext(ctx, "failed to publish audit event", "error", err)
		}
	}

	return result
}

func (s *Service) observeGate(gate string, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveGateDuration(gate, s.nowFn().Sub(start).Seconds())
	}
}

func historyEARs(session *liveness.Session) []float64 {
	if len(session.History) == 0 {
		return nil
	}
	values := make([]float64, len(session.History))
	for i, sample := range session.History {
		values[i] = sample.EAR
	}
	return values
}
