package records

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists recordings in a Postgres table:
//
//	CREATE TABLE IF NOT EXISTS recordings (
//	    id              TEXT PRIMARY KEY,
//	    submission_date TIMESTAMPTZ NOT NULL,
//	    script_text     TEXT NOT NULL DEFAULT '',
//	    transcription   TEXT NOT NULL DEFAULT '',
//	    accuracy_score  DOUBLE PRECISION,
//	    s3_filepath     TEXT
//	);
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to Postgres and verifies the connection.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Create(ctx context.Context, rec *Recording) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO recordings (id, submission_date, script_text, transcription, accuracy_score, s3_filepath)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.ID, rec.SubmissionDate, rec.ScriptText, rec.Transcription, rec.AccuracyScore, rec.S3Filepath)
	if err != nil {
		return fmt.Errorf("failed to insert recording: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetFilepath(ctx context.Context, id, path string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE recordings SET s3_filepath = $2 WHERE id = $1`, id, path)
	if err != nil {
		return fmt.Errorf("failed to update recording filepath: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) SetAccuracyScore(ctx context.Context, id string, score float64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE recordings SET accuracy_score = $2 WHERE id = $1`, id, score)
	if err != nil {
		return fmt.Errorf("failed to update recording score: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Recording, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, submission_date, script_text, transcription, accuracy_score, s3_filepath
		 FROM recordings WHERE id = $1`, id)

	rec := &Recording{}
	err := row.Scan(&rec.ID, &rec.SubmissionDate, &rec.ScriptText, &rec.Transcription,
		&rec.AccuracyScore, &rec.S3Filepath)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query recording: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*Recording, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, submission_date, script_text, transcription, accuracy_score, s3_filepath
		 FROM recordings ORDER BY submission_date DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list recordings: %w", err)
	}
	defer rows.Close()

	var recs []*Recording
	for rows.Next() {
		rec := &Recording{}
		if err := rows.Scan(&rec.ID, &rec.SubmissionDate, &rec.ScriptText, &rec.Transcription,
			&rec.AccuracyScore, &rec.S3Filepath); err != nil {
			return nil, fmt.Errorf("failed to scan recording: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read recordings: %w", err)
	}
	return recs, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
