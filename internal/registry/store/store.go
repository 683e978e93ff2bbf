// Package store persists enrolled reference embeddings per subject.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a subject has no enrolled references.
var ErrNotFound = errors.New("subject not found")

// Reference is one enrolled embedding for a subject. A subject may hold
// several references captured from different photos.
type Reference struct {
	ID        uuid.UUID `json:"id"`
	Subject   string    `json:"subject"`
	Embedding []float64 `json:"embedding"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is the reference embedding persistence contract.
type Store interface {
	// Append adds a reference embedding for a subject.
	Append(ctx context.Context, ref *Reference) error

	// List returns all references enrolled for a subject, oldest first.
	// Returns ErrNotFound when the subject has none.
	List(ctx context.Context, subject string) ([]*Reference, error)

	// Delete removes all references for a subject and reports how many
	// were removed. Returns ErrNotFound when the subject has none.
	Delete(ctx context.Context, subject string) (int, error)

	// Subjects returns the distinct enrolled subject IDs.
	Subjects(ctx context.Context) ([]string, error)
}
