package audit

import (
	"context"
	"sync"
)

// MemoryPublisher keeps events in process memory. Used in tests and in
// single-instance deployments without a broker.
type MemoryPublisher struct {
	mu     sync.RWMutex
	events []Event
}

// Ensure MemoryPublisher implements Publisher
var _ Publisher = (*MemoryPublisher)(nil)

// NewMemoryPublisher creates an empty in-memory audit sink.
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

func (p *MemoryPublisher) Publish(_ context.Context, event Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

// Events returns a snapshot of the recorded trail, oldest first.
func (p *MemoryPublisher) Events() []Event {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Event, len(p.events))
	copy(out, p.events)
	return out
}

func (p *MemoryPublisher) Close() error {
	return nil
}
