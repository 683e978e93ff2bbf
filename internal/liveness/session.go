package liveness

import (
	"time"
)

// Phase enumerates the states of the blink challenge.
type Phase string

const (
	PhaseWaitingForOpen Phase = "waiting_for_open"
	PhaseEyesOpen       Phase = "eyes_open"
	PhaseEyesClosing    Phase = "eyes_closing"
	PhaseEyesClosed     Phase = "eyes_closed"
	PhaseBlinkComplete  Phase = "blink_complete"
)

// historyCapacity bounds the rolling sample history kept per session.
const historyCapacity = 30

// Config holds the blink challenge policy. All values come from
// configuration; the zero value is not usable.
type Config struct {
	// EARThreshold separates open (above) from closed (at or below).
	EARThreshold float64
	// Timeout bounds the challenge once the eyes have first been seen open.
	Timeout time.Duration
	// MinClosedFrames is the number of consecutive at-or-below-threshold
	// frames required before the eyes count as deliberately closed rather
	// than detector noise.
	MinClosedFrames int
}

// WithTimeout returns a copy with the challenge window shortened to timeout.
// A non-positive timeout or one beyond the configured window is ignored, so
// callers can never extend the policy.
func (c Config) WithTimeout(timeout time.Duration) Config {
	if timeout > 0 && (c.Timeout <= 0 || timeout < c.Timeout) {
		c.Timeout = timeout
	}
	return c
}

// Sample is one recorded EAR observation.
type Sample struct {
	EAR float64   `json:"ear"`
	At  time.Time `json:"at"`
}

// Session tracks one subject's blink challenge across requests. It is the
// only mutable cross-request entity in the pipeline; all mutation goes
// through the session store, which serializes access per subject.
type Session struct {
	Subject string `json:"subject"`
	Phase   Phase  `json:"phase"`
	// History is a bounded rolling window of recent samples.
	History []Sample `json:"history"`
	// ClosedFrames counts consecutive at-or-below-threshold frames while
	// the blink is in progress. It resets to zero when the eyes reopen
	// before reaching the closed threshold.
	ClosedFrames int `json:"closed_frames"`
	// CreatedAt is when the first frame for this subject arrived.
	CreatedAt time.Time `json:"created_at"`
	// ChallengeStartedAt starts the timeout clock; it is set when the eyes
	// are first observed open and never moves afterwards.
	ChallengeStartedAt time.Time `json:"challenge_started_at,omitempty"`
	// LastSeenAt drives idle-session eviction.
	LastSeenAt time.Time `json:"last_seen_at"`
	// BlinkDetected latches true once a full open-closed-open transition
	// has been observed.
	BlinkDetected bool `json:"blink_detected"`
}

// Verdict is the per-frame outcome of advancing a session. Passing means
// "keep streaming frames"; it is distinct from the challenge being resolved,
// which callers read from Completed (or Session.BlinkDetected).
type Verdict struct {
	Passing   bool   `json:"passing"`
	Completed bool   `json:"completed"`
	TimedOut  bool   `json:"timed_out"`
	Message   string `json:"message"`
}

// NewSession creates a fresh challenge session for a subject.
func NewSession(subject string, now time.Time) *Session {
	return &Session{
		Subject:    subject,
		Phase:      PhaseWaitingForOpen,
		History:    make([]Sample, 0, historyCapacity),
		CreatedAt:  now,
		LastSeenAt: now,
	}
}

// Elapsed returns how long the challenge has been running. Before the eyes
// are first seen open the timer has not started and Elapsed is zero.
func (s *Session) Elapsed(now time.Time) time.Duration {
	if s.ChallengeStartedAt.IsZero() {
		return 0
	}
	return now.Sub(s.ChallengeStartedAt)
}

// Advance records one frame's EAR sample and evaluates exactly one state
// transition. The machine fails only on timeout; every other state returns a
// passing verdict so the client knows to keep streaming.
func (s *Session) Advance(ear float64, now time.Time, cfg Config) Verdict {
	s.record(ear, now)

	open := ear > cfg.EARThreshold

	switch s.Phase {
	case PhaseWaitingForOpen:
		if open {
			s.Phase = PhaseEyesOpen
			s.ChallengeStartedAt = now
			return s.keepGoing("eyes open, blink when ready")
		}
		return s.keepGoing("waiting for eyes to open")

	case PhaseEyesOpen:
		if s.timedOut(now, cfg) {
			return s.fail("no blink detected within challenge window")
		}
		if open {
			return s.keepGoing("waiting for blink")
		}
		s.Phase = PhaseEyesClosing
		s.ClosedFrames = 1
		if s.ClosedFrames >= cfg.MinClosedFrames {
			s.Phase = PhaseEyesClosed
			return s.keepGoing("eyes closed, reopen to complete")
		}
		return s.keepGoing("blink in progress")

	case PhaseEyesClosing:
		if s.timedOut(now, cfg) {
			return s.fail("no blink completed within challenge window")
		}
		if open {
			// Single low sample was detector noise, not a blink.
			s.Phase = PhaseEyesOpen
			s.ClosedFrames = 0
			return s.keepGoing("waiting for blink")
		}
		s.ClosedFrames++
		if s.ClosedFrames >= cfg.MinClosedFrames {
			s.Phase = PhaseEyesClosed
			return s.keepGoing("eyes closed, reopen to complete")
		}
		return s.keepGoing("blink in progress")

	case PhaseEyesClosed:
		if s.timedOut(now, cfg) {
			return s.fail("eyes closed too long")
		}
		if open {
			s.Phase = PhaseBlinkComplete
			s.BlinkDetected = true
			return Verdict{Passing: true, Completed: true, Message: "blink challenge complete"}
		}
		return s.keepGoing("waiting for eyes to reopen")

	case PhaseBlinkComplete:
		// Terminal success; extra frames change nothing.
		return Verdict{Passing: true, Completed: true, Message: "blink challenge complete"}
	}

	// Unreachable with a well-formed session; treat as a fresh challenge.
	s.Phase = PhaseWaitingForOpen
	return s.keepGoing("waiting for eyes to open")
}

func (s *Session) record(ear float64, now time.Time) {
	if len(s.History) >= historyCapacity {
		copy(s.History, s.History[1:])
		s.History = s.History[:historyCapacity-1]
	}
	s.History = append(s.History, Sample{EAR: ear, At: now})
	s.LastSeenAt = now
}

func (s *Session) timedOut(now time.Time, cfg Config) bool {
	return cfg.Timeout > 0 && s.Elapsed(now) > cfg.Timeout
}

func (s *Session) keepGoing(msg string) Verdict {
	return Verdict{Passing: true, Message: msg}
}

func (s *Session) fail(msg string) Verdict {
	return Verdict{Passing: false, TimedOut: true, Message: msg}
}

// Clone returns a deep copy so read-only callers never alias live state.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	cp := *s
	cp.History = make([]Sample, len(s.History))
	copy(cp.History, s.History)
	return &cp
}
