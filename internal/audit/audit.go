// Package audit records verification and enrolment decisions. Events carry a
// hashed subject ID so the trail never stores raw identities.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// Action identifies what kind of decision an event records.
type Action string

const (
	ActionVerification   Action = "verification"
	ActionEnrollment     Action = "enrollment"
	ActionSessionDeleted Action = "session_deleted"
)

// Event is one decision in the audit trail.
type Event struct {
	ID             uuid.UUID `json:"id"`
	Timestamp      time.Time `json:"timestamp"`
	Action         Action    `json:"action"`
	SubjectHash    string    `json:"subject_hash"`
	Outcome        string    `json:"outcome"`
	GatePassed     int       `json:"gate_passed"`
	Reason         string    `json:"reason,omitempty"`
	LatencySeconds float64   `json:"latency_seconds"`
	RequestID      string    `json:"request_id,omitempty"`
}

// Publisher is the audit sink contract. Publish must never block the
// verification hot path for long; implementations buffer or drop.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// HashSubject derives the stable pseudonymous identifier stored in events.
func HashSubject(subject string) string {
	sum := sha256.Sum256([]byte(subject))
	return hex.EncodeToString(sum[:8])
}

// NewEvent fills the identity and timestamp fields of an event.
func NewEvent(action Action, subject string) Event {
	return Event{
		ID:          uuid.New(),
		Timestamp:   time.Now(),
		Action:      action,
		SubjectHash: HashSubject(subject),
	}
}
