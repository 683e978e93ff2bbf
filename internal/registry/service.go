// Package registry enrols subjects: it turns a face photo into a stored
// reference embedding that later verification requests are matched against.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"presence/internal/face"
	"presence/internal/imaging"
	"presence/internal/registry/store"
	dErrors "presence/pkg/domain-errors"
)

// Enrollment reports the outcome of a successful enrolment.
type Enrollment struct {
	ReferenceID uuid.UUID `json:"reference_id"`
	Subject     string    `json:"subject_id"`
	Faces       int       `json:"faces_detected"`
	Dimension   int       `json:"embedding_dimension"`
}

// Service enrols reference embeddings through the face analyzer.
type Service struct {
	analyzer face.Analyzer
	refs     store.Store
	logger   *slog.Logger
	nowFn    func() time.Time
}

// Option configures the Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// withNow injects the clock for tests.
func withNow(nowFn func() time.Time) Option {
	return func(s *Service) {
		s.nowFn = nowFn
	}
}

// New constructs the enrolment service.
func New(analyzer face.Analyzer, refs store.Store, opts ...Option) (*Service, error) {
	if analyzer == nil {
		return nil, fmt.Errorf("face analyzer is required")
	}
	if refs == nil {
		return nil, fmt.Errorf("reference store is required")
	}
	s := &Service{
		analyzer: analyzer,
		refs:     refs,
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

// Enroll decodes the image, verifies a face is present, computes its
// embedding and stores it as a new reference for the subject. A subject may
// be enrolled multiple times; each call appends one reference.
func (s *Service) Enroll(ctx context.Context, subject string, imageData []byte) (*Enrollment, error) {
	if subject == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "subject_id is required")
	}

	img, err := imaging.Decode(imageData)
	if err != nil {
		return nil, err
	}

	count, err := s.analyzer.DetectFaces(ctx, img)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, dErrors.New(dErrors.CodeNoFace, "no face detected in enrolment image")
	}
	if count > 1 {
		s.logger.WarnContext(ctx, "multiple faces in enrolment image, using dominant face",
			"subject_id", subject, "faces", count)
	}

	embedding, err := s.analyzer.ComputeEmbedding(ctx, img)
	if err != nil {
		return nil, err
	}

	ref := &store.Reference{
		ID:        uuid.New(),
		Subject:   subject,
		Embedding: embedding,
		CreatedAt: s.nowFn(),
	}
	if err := s.refs.Append(ctx, ref); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store reference embedding")
	}

	s.logger.InfoContext(ctx, "subject enrolled",
		"subject_id", subject, "reference_id", ref.ID, "dimension", len(embedding))

	return &Enrollment{
		ReferenceID: ref.ID,
		Subject:     subject,
		Faces:       count,
		Dimension:   len(embedding),
	}, nil
}

// References lists the enrolled references for a subject.
func (s *Service) References(ctx context.Context, subject string) ([]*store.Reference, error) {
	if subject == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "subject_id is required")
	}
	refs, err := s.refs.List(ctx, subject)
	if err == store.ErrNotFound {
		return nil, dErrors.New(dErrors.CodeNotRegistered, "subject has no enrolled references")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list references")
	}
	return refs, nil
}

// Remove deletes all references for a subject.
func (s *Service) Remove(ctx context.Context, subject string) (int, error) {
	if subject == "" {
		return 0, dErrors.New(dErrors.CodeValidation, "subject_id is required")
	}
	n, err := s.refs.Delete(ctx, subject)
	if err == store.ErrNotFound {
		return 0, dErrors.New(dErrors.CodeNotRegistered, "subject has no enrolled references")
	}
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete references")
	}
	return n, nil
}

// Subjects lists the distinct enrolled subject IDs.
func (s *Service) Subjects(ctx context.Context) ([]string, error) {
	subjects, err := s.refs.Subjects(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list subjects")
	}
	return subjects, nil
}
