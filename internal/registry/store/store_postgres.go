package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pgvector/pgvector-go"
)

// PostgresStore persists reference embeddings in PostgreSQL using a pgvector
// column. Schema:
//
//	CREATE EXTENSION IF NOT EXISTS vector;
//	CREATE TABLE reference_embeddings (
//	    id         UUID PRIMARY KEY,
//	    subject_id TEXT NOT NULL,
//	    embedding  vector(128) NOT NULL,
//	    created_at TIMESTAMPTZ NOT NULL
//	);
//	CREATE INDEX idx_reference_embeddings_subject ON reference_embeddings (subject_id);
type PostgresStore struct {
	db *sql.DB
}

// Ensure PostgresStore implements Store
var _ Store = (*PostgresStore)(nil)

// NewPostgres constructs a PostgreSQL-backed reference store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, ref *Reference) error {
	if ref == nil {
		return fmt.Errorf("reference is required")
	}
	if ref.Subject == "" {
		return fmt.Errorf("reference subject is required")
	}

	query := `
		INSERT INTO reference_embeddings (id, subject_id, embedding, created_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := s.db.ExecContext(ctx, query,
		ref.ID,
		ref.Subject,
		pgvector.NewVector(toFloat32(ref.Embedding)),
		ref.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append reference embedding: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, subject string) ([]*Reference, error) {
	query := `
		SELECT id, subject_id, embedding, created_at
		FROM reference_embeddings
		WHERE subject_id = $1
		ORDER BY created_at
	`
	rows, err := s.db.QueryContext(ctx, query, subject)
	if err != nil {
		return nil, fmt.Errorf("list reference embeddings: %w", err)
	}
	defer rows.Close()

	var refs []*Reference
	for rows.Next() {
		var (
			ref Reference
			vec pgvector.Vector
		)
		if err := rows.Scan(&ref.ID, &ref.Subject, &vec, &ref.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan reference embedding: %w", err)
		}
		ref.Embedding = toFloat64(vec.Slice())
		refs = append(refs, &ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reference embeddings: %w", err)
	}
	if len(refs) == 0 {
		return nil, ErrNotFound
	}
	return refs, nil
}

func (s *PostgresStore) Delete(ctx context.Context, subject string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM reference_embeddings WHERE subject_id = $1`, subject)
	if err != nil {
		return 0, fmt.Errorf("delete reference embeddings: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete reference embeddings: %w", err)
	}
	if n == 0 {
		return 0, ErrNotFound
	}
	return int(n), nil
}

func (s *PostgresStore) Subjects(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT subject_id FROM reference_embeddings ORDER BY subject_id`)
	if err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}
	defer rows.Close()

	var subjects []string
	for rows.Next() {
		var subject string
		if err := rows.Scan(&subject); err != nil {
			return nil, fmt.Errorf("scan subject: %w", err)
		}
		subjects = append(subjects, subject)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subjects: %w", err)
	}
	return subjects, nil
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}
