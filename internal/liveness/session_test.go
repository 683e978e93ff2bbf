package liveness

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type SessionSuite struct {
	suite.Suite
	cfg  Config
	now  time.Time
	sess *Session
}

func (s *SessionSuite) SetupTest() {
	s.cfg = Config{
		EARThreshold:    0.21,
		Timeout:         3 * time.Second,
		MinClosedFrames: 2,
	}
	s.now = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	s.sess = NewSession("sub-1", s.now)
}

// advance feeds one sample, moving the clock forward by step between frames.
func (s *SessionSuite) advance(ear float64, step time.Duration) Verdict {
	s.now = s.now.Add(step)
	return s.sess.Advance(ear, s.now, s.cfg)
}

func (s *SessionSuite) TestFullBlinkSequence() {
	frames := []struct {
		ear   float64
		phase Phase
	}{
		{0.30, PhaseEyesOpen},
		{0.30, PhaseEyesOpen},
		{0.10, PhaseEyesClosing},
		{0.10, PhaseEyesClosed},
		{0.30, PhaseBlinkComplete},
	}

	for i, f := range frames {
		v := s.advance(f.ear, 100*time.Millisecond)
		s.True(v.Passing, "frame %d", i)
		s.Equal(f.phase, s.sess.Phase, "frame %d", i)
	}

	s.True(s.sess.BlinkDetected)
	s.Len(s.sess.History, 5)

	// Terminal state keeps reporting success.
	v := s.advance(0.10, 100*time.Millisecond)
	s.True(v.Passing)
	s.True(v.Completed)
	s.Equal(PhaseBlinkComplete, s.sess.Phase)
}

func (s *SessionSuite) TestMinClosedFramesOfOneSkipsClosingPhase() {
	s.cfg.MinClosedFrames = 1

	s.advance(0.30, 100*time.Millisecond)
	s.advance(0.10, 100*time.Millisecond)
	s.Equal(PhaseEyesClosed, s.sess.Phase)

	v := s.advance(0.30, 100*time.Millisecond)
	s.True(v.Completed)
	s.True(s.sess.BlinkDetected)
}

func (s *SessionSuite) TestNoBlinkTimesOut() {
	s.advance(0.30, 100*time.Millisecond)

	var v Verdict
	for i := 0; i < 40; i++ {
		v = s.advance(0.30, 100*time.Millisecond)
		if !v.Passing {
			break
		}
	}

	s.False(v.Passing)
	s.True(v.TimedOut)
	s.Contains(v.Message, "no blink")
	s.False(s.sess.BlinkDetected)
}

func (s *SessionSuite) TestEyesClosedTooLongTimesOut() {
	s.advance(0.30, 100*time.Millisecond)
	s.advance(0.10, 100*time.Millisecond)
	s.advance(0.10, 100*time.Millisecond)
	s.Require().Equal(PhaseEyesClosed, s.sess.Phase)

	v := s.advance(0.10, 4*time.Second)
	s.False(v.Passing)
	s.Contains(v.Message, "closed too long")
	s.False(s.sess.BlinkDetected)
}

func (s *SessionSuite) TestNoiseReopeningResetsClosedCounter() {
	s.advance(0.30, 100*time.Millisecond)
	s.advance(0.10, 100*time.Millisecond)
	s.Equal(PhaseEyesClosing, s.sess.Phase)
	s.Equal(1, s.sess.ClosedFrames)

	// Eyes reopen before MinClosedFrames: treated as noise, not a blink.
	s.advance(0.30, 100*time.Millisecond)
	s.Equal(PhaseEyesOpen, s.sess.Phase)
	s.Zero(s.sess.ClosedFrames)
	s.False(s.sess.BlinkDetected)
}

func (s *SessionSuite) TestTimerStartsOnFirstOpenFrame() {
	// Frames below threshold in WAITING_FOR_OPEN never start the clock.
	for i := 0; i < 5; i++ {
		v := s.advance(0.10, time.Second)
		s.True(v.Passing)
		s.Equal(PhaseWaitingForOpen, s.sess.Phase)
	}
	s.Zero(s.sess.Elapsed(s.now))

	s.advance(0.30, time.Second)
	s.Equal(PhaseEyesOpen, s.sess.Phase)
	s.Equal(time.Second, s.sess.Elapsed(s.now.Add(time.Second)))
}

func (s *SessionSuite) TestHistoryIsBounded() {
	for i := 0; i < historyCapacity+10; i++ {
		s.advance(0.30, 10*time.Millisecond)
	}
	s.Len(s.sess.History, historyCapacity)
	// Oldest samples were shifted out; the most recent is last.
	s.Equal(s.now, s.sess.History[len(s.sess.History)-1].At)
}

func (s *SessionSuite) TestCloneIsDeep() {
	s.advance(0.30, 100*time.Millisecond)
	cp := s.sess.Clone()

	s.advance(0.10, 100*time.Millisecond)
	s.Len(cp.History, 1)
	s.Equal(PhaseEyesOpen, cp.Phase)
}

func TestSessionSuite(t *testing.T) {
	suite.Run(t, new(SessionSuite))
}

func TestNewSessionStartsWaiting(t *testing.T) {
	now := time.Now()
	sess := NewSession("sub-2", now)

	require.Equal(t, PhaseWaitingForOpen, sess.Phase)
	assert.Equal(t, now, sess.CreatedAt)
	assert.Empty(t, sess.History)
	assert.False(t, sess.BlinkDetected)
	assert.Zero(t, sess.Elapsed(now.Add(time.Hour)))
}
