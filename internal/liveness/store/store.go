// Package store owns the mapping from subject identifier to blink session.
// It is the single shared-mutable component of the pipeline; implementations
// must serialize Advance per subject so concurrent frames for one subject
// never interleave inside a session update.
package store

import (
	"context"
	"errors"
	"time"

	"presence/internal/liveness"
)

// ErrNotFound is returned when no session exists for a subject.
var ErrNotFound = errors.New("blink session not found")

// Store is the blink session store contract.
//
// Error contract: Get and Delete return ErrNotFound when the subject has no
// session; Advance creates the session on first use and therefore never
// returns ErrNotFound. Infrastructure failures are returned wrapped.
type Store interface {
	// Advance records one frame for the subject, creating the session if
	// needed, applies exactly one state transition, and persists the
	// result. The whole read-modify-write is one critical section per
	// subject. The returned session is a snapshot safe to read.
	//
	// A positive timeout shortens the challenge window for this frame; it
	// never extends the configured timeout. Zero uses the configured value.
	Advance(ctx context.Context, subject string, ear float64, now time.Time, timeout time.Duration) (*liveness.Session, liveness.Verdict, error)

	// Get returns a read-only snapshot of the subject's session without
	// mutating it.
	Get(ctx context.Context, subject string) (*liveness.Session, error)

	// Delete discards the subject's session. A following Advance behaves
	// exactly like a first-ever call.
	Delete(ctx context.Context, subject string) error

	// DeleteIdle removes sessions whose last sample is older than cutoff
	// and reports how many were removed.
	DeleteIdle(ctx context.Context, cutoff time.Time) (int, error)

	// Count reports the number of live sessions.
	Count(ctx context.Context) (int, error)
}
