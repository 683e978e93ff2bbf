package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// InMemoryStore keeps reference embeddings in process memory. Suitable for
// single-instance deployments and tests.
type InMemoryStore struct {
	mu   sync.RWMutex
	refs map[string][]*Reference
}

// Ensure InMemoryStore implements Store
var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore creates an empty in-memory reference store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		refs: make(map[string][]*Reference),
	}
}

func (s *InMemoryStore) Append(_ context.Context, ref *Reference) error {
	if ref == nil {
		return fmt.Errorf("reference is required")
	}
	if ref.Subject == "" {
		return fmt.Errorf("reference subject is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *ref
	clone.Embedding = append([]float64(nil), ref.Embedding...)
	s.refs[ref.Subject] = append(s.refs[ref.Subject], &clone)
	return nil
}

func (s *InMemoryStore) List(_ context.Context, subject string) ([]*Reference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	refs, ok := s.refs[subject]
	if !ok || len(refs) == 0 {
		return nil, ErrNotFound
	}

	out := make([]*Reference, len(refs))
	for i, ref := range refs {
		clone := *ref
		clone.Embedding = append([]float64(nil), ref.Embedding...)
		out[i] = &clone
	}
	return out, nil
}

func (s *InMemoryStore) Delete(_ context.Context, subject string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	refs, ok := s.refs[subject]
	if !ok || len(refs) == 0 {
		return 0, ErrNotFound
	}
	delete(s.refs, subject)
	return len(refs), nil
}

func (s *InMemoryStore) Subjects(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	subjects := make([]string, 0, len(s.refs))
	for subject := range s.refs {
		subjects = append(subjects, subject)
	}
	sort.Strings(subjects)
	return subjects, nil
}
