package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"presence/internal/liveness"
)

type InMemoryStoreSuite struct {
	suite.Suite
	store *InMemoryStore
	now   time.Time
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.store = NewInMemoryStore(liveness.Config{
		EARThreshold:    0.21,
		Timeout:         3 * time.Second,
		MinClosedFrames: 2,
	})
	s.now = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
}

func (s *InMemoryStoreSuite) TestAdvanceCreatesSession() {
	sess, verdict, err := s.store.Advance(context.Background(), "sub-1", 0.30, s.now, 0)
	s.Require().NoError(err)

	s.True(verdict.Passing)
	s.False(verdict.Completed)
	s.Equal(liveness.PhaseEyesOpen, sess.Phase)
	s.Len(sess.History, 1)

	n, err := s.store.Count(context.Background())
	s.Require().NoError(err)
	s.Equal(1, n)
}

func (s *InMemoryStoreSuite) TestGetReturnsSnapshot() {
	_, _, err := s.store.Advance(context.Background(), "sub-1", 0.30, s.now, 0)
	s.Require().NoError(err)

	snap, err := s.store.Get(context.Background(), "sub-1")
	s.Require().NoError(err)

	// Mutating the snapshot must not touch the stored session.
	snap.Phase = liveness.PhaseBlinkComplete
	again, err := s.store.Get(context.Background(), "sub-1")
	s.Require().NoError(err)
	s.Equal(liveness.PhaseEyesOpen, again.Phase)
}

func (s *InMemoryStoreSuite) TestGetMissing() {
	_, err := s.store.Get(context.Background(), "ghost")
	s.ErrorIs(err, ErrNotFound)
}

func (s *InMemoryStoreSuite) TestDeleteResetsChallenge() {
	ctx := context.Background()
	_, _, err := s.store.Advance(ctx, "sub-1", 0.30, s.now, 0)
	s.Require().NoError(err)

	s.Require().NoError(s.store.Delete(ctx, "sub-1"))
	s.ErrorIs(s.store.Delete(ctx, "sub-1"), ErrNotFound)

	// A subsequent frame behaves exactly like a first-ever call.
	sess, _, err := s.store.Advance(ctx, "sub-1", 0.10, s.now.Add(time.Second), 0)
	s.Require().NoError(err)
	s.Equal(liveness.PhaseWaitingForOpen, sess.Phase)
	s.Len(sess.History, 1)
}

func (s *InMemoryStoreSuite) TestDeleteIdle() {
	ctx := context.Background()
	_, _, err := s.store.Advance(ctx, "stale", 0.30, s.now, 0)
	s.Require().NoError(err)
	_, _, err = s.store.Advance(ctx, "fresh", 0.30, s.now.Add(time.Minute), 0)
	s.Require().NoError(err)

	deleted, err := s.store.DeleteIdle(ctx, s.now.Add(30*time.Second))
	s.Require().NoError(err)
	s.Equal(1, deleted)

	_, err = s.store.Get(ctx, "stale")
	s.ErrorIs(err, ErrNotFound)
	_, err = s.store.Get(ctx, "fresh")
	s.NoError(err)
}

func (s *InMemoryStoreSuite) TestAdvanceTimeoutOverride() {
	ctx := context.Background()

	// A shorter per-frame timeout fails the challenge before the configured
	// window would.
	_, verdict, err := s.store.Advance(ctx, "short", 0.30, s.now, time.Second)
	s.Require().NoError(err)
	s.True(verdict.Passing)

	_, verdict, err = s.store.Advance(ctx, "short", 0.30, s.now.Add(2*time.Second), time.Second)
	s.Require().NoError(err)
	s.True(verdict.TimedOut)

	// A longer one cannot extend the configured window.
	_, verdict, err = s.store.Advance(ctx, "long", 0.30, s.now, 10*time.Second)
	s.Require().NoError(err)
	s.True(verdict.Passing)

	_, verdict, err = s.store.Advance(ctx, "long", 0.30, s.now.Add(4*time.Second), 10*time.Second)
	s.Require().NoError(err)
	s.True(verdict.TimedOut)
}

func (s *InMemoryStoreSuite) TestConcurrentAdvanceSameSubject() {
	ctx := context.Background()
	const frames = 100

	var wg sync.WaitGroup
	for i := 0; i < frames; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, err := s.store.Advance(ctx, "sub-1", 0.30, s.now.Add(time.Duration(i)*time.Millisecond), 0)
			s.NoError(err)
		}(i)
	}
	wg.Wait()

	sess, err := s.store.Get(ctx, "sub-1")
	s.Require().NoError(err)
	// Every frame was recorded under the per-key lock; the rolling window
	// caps what remains visible.
	s.Len(sess.History, 30)
	s.Equal(liveness.PhaseEyesOpen, sess.Phase)
}

func (s *InMemoryStoreSuite) TestConcurrentGetDuringAdvance() {
	ctx := context.Background()
	const frames = 100

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < frames; i++ {
			_, _, err := s.store.Advance(ctx, "sub-1", 0.30, s.now.Add(time.Duration(i)*time.Millisecond), 0)
			s.NoError(err)
		}
	}()
	go func() {
		defer wg.Done()
		// Snapshots race the writer; each must be internally consistent.
		for i := 0; i < frames; i++ {
			sess, err := s.store.Get(ctx, "sub-1")
			if err != nil {
				s.ErrorIs(err, ErrNotFound)
				continue
			}
			s.LessOrEqual(len(sess.History), 30)
		}
	}()
	wg.Wait()

	sess, err := s.store.Get(ctx, "sub-1")
	s.Require().NoError(err)
	s.Equal(liveness.PhaseEyesOpen, sess.Phase)
}

func (s *InMemoryStoreSuite) TestConcurrentDeleteIdleDuringAdvance() {
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			_, _, err := s.store.Advance(ctx, "sub-1", 0.30, s.now.Add(time.Duration(i)*time.Millisecond), 0)
			s.NoError(err)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			_, err := s.store.DeleteIdle(ctx, s.now.Add(-time.Minute))
			s.NoError(err)
		}
	}()
	wg.Wait()

	// The cutoff predates every frame, so the sweeper never removes the session.
	_, err := s.store.Get(ctx, "sub-1")
	s.NoError(err)
}

func (s *InMemoryStoreSuite) TestConcurrentSubjectsAreIndependent() {
	ctx := context.Background()

	var wg sync.WaitGroup
	subjects := []string{"a", "b", "c", "d"}
	for _, subject := range subjects {
		wg.Add(1)
		go func(subject string) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_, _, err := s.store.Advance(ctx, subject, 0.30, s.now.Add(time.Duration(i)*time.Millisecond), 0)
				s.NoError(err)
			}
		}(subject)
	}
	wg.Wait()

	n, err := s.store.Count(ctx)
	s.Require().NoError(err)
	s.Equal(len(subjects), n)
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}
