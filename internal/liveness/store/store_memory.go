package store

import (
	"context"
	"sync"
	"time"

	"presence/internal/liveness"
	psync "presence/pkg/platform/sync"
)

// InMemoryStore keeps blink sessions in process memory. It is the default
// for single-instance deployments and for tests.
type InMemoryStore struct {
	cfg liveness.Config

	// locks serializes all session-field access per subject; mu guards the
	// map itself. Lock order is always keyed lock first, then mu.
	locks *psync.KeyedMutex
	mu    sync.RWMutex

	sessions map[string]*liveness.Session
}

// NewInMemoryStore constructs an empty in-memory session store with the given
// challenge policy.
func NewInMemoryStore(cfg liveness.Config) *InMemoryStore {
	return &InMemoryStore{
		cfg:      cfg,
		locks:    psync.NewKeyedMutex(),
		sessions: make(map[string]*liveness.Session),
	}
}

func (s *InMemoryStore) Advance(_ context.Context, subject string, ear float64, now time.Time, timeout time.Duration) (*liveness.Session, liveness.Verdict, error) {
	cfg := s.cfg.WithTimeout(timeout)

	var (
		snapshot *liveness.Session
		verdict  liveness.Verdict
	)

	s.locks.Do(subject, func() {
		s.mu.RLock()
		sess := s.sessions[subject]
		s.mu.RUnlock()

		if sess == nil {
			sess = liveness.NewSession(subject, now)
			s.mu.Lock()
			s.sessions[subject] = sess
			s.mu.Unlock()
		}

		verdict = sess.Advance(ear, now, cfg)
		snapshot = sess.Clone()
	})

	return snapshot, verdict, nil
}

func (s *InMemoryStore) Get(_ context.Context, subject string) (*liveness.Session, error) {
	// Cloning reads session fields a concurrent Advance may be writing, so
	// the snapshot is taken under the subject's keyed lock.
	var snapshot *liveness.Session
	s.locks.Do(subject, func() {
		s.mu.RLock()
		sess := s.sessions[subject]
		s.mu.RUnlock()

		if sess != nil {
			snapshot = sess.Clone()
		}
	})

	if snapshot == nil {
		return nil, ErrNotFound
	}
	return snapshot, nil
}

func (s *InMemoryStore) Delete(_ context.Context, subject string) error {
	err := ErrNotFound
	s.locks.Do(subject, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.sessions[subject]; ok {
			delete(s.sessions, subject)
			err = nil
		}
	})
	return err
}

func (s *InMemoryStore) DeleteIdle(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.RLock()
	subjects := make([]string, 0, len(s.sessions))
	for subject := range s.sessions {
		subjects = append(subjects, subject)
	}
	s.mu.RUnlock()

	// LastSeenAt is written by Advance under the keyed lock, so each
	// subject is inspected under its keyed lock too. The session is
	// re-fetched in case it was deleted or advanced in the meantime.
	deleted := 0
	for _, subject := range subjects {
		s.locks.Do(subject, func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			sess, ok := s.sessions[subject]
			if ok && sess.LastSeenAt.Before(cutoff) {
				delete(s.sessions, subject)
				deleted++
			}
		})
	}
	return deleted, nil
}

func (s *InMemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions), nil
}
