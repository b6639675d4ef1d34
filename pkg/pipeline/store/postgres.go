package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	mberrors "github.com/meetbrief/meetbrief/pkg/errors"
	"github.com/meetbrief/meetbrief/pkg/meeting"
)

// schema holds the meeting_jobs DDL. The whole job record lives in one
// jsonb column so an UPDATE is atomic at the row level; status and
// timestamps are mirrored into plain columns for listing and filtering.
const schema = `
CREATE TABLE IF NOT EXISTS meeting_jobs (
    id         TEXT PRIMARY KEY,
    status     TEXT NOT NULL,
    record     JSONB NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_meeting_jobs_status ON meeting_jobs (status);
CREATE INDEX IF NOT EXISTS idx_meeting_jobs_created ON meeting_jobs (created_at DESC);
`

// PostgresStore persists job records in PostgreSQL through pgx.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an existing connection pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Connect opens a pool and ensures the schema exists.
func Connect(ctx context.Context, connString string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// EnsureSchema creates the meeting_jobs table when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Ping verifies the database connection is alive.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Create persists a new job record.
func (s *PostgresStore) Create(ctx context.Context, job *meeting.Job) error {
	record, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.ID, err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO meeting_jobs (id, status, record, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		job.ID, string(job.Status), record, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert job %s: %w", job.ID, err)
	}
	return nil
}

// Get returns the job, or ErrNotFound.
func (s *PostgresStore) Get(ctx context.Context, id string) (*meeting.Job, error) {
	var record []byte
	err := s.pool.QueryRow(ctx,
		`SELECT record FROM meeting_jobs WHERE id = $1`, id).Scan(&record)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", id, mberrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("select job %s: %w", id, err)
	}

	var job meeting.Job
	if err := json.Unmarshal(record, &job); err != nil {
		return nil, fmt.Errorf("unmarshal job %s: %w", id, err)
	}
	return &job, nil
}

// Update replaces the whole record in one atomic row write.
func (s *PostgresStore) Update(ctx context.Context, job *meeting.Job) error {
	job.UpdatedAt = time.Now()
	record, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.ID, err)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE meeting_jobs SET status = $2, record = $3, updated_at = $4 WHERE id = $1`,
		job.ID, string(job.Status), record, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update job %s: %w", job.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s: %w", job.ID, mberrors.ErrNotFound)
	}
	return nil
}

// Delete removes the job record.
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM meeting_jobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete job %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s: %w", id, mberrors.ErrNotFound)
	}
	return nil
}

// List returns all job records, newest first.
func (s *PostgresStore) List(ctx context.Context) ([]*meeting.Job, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT record FROM meeting_jobs ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*meeting.Job
	for rows.Next() {
		var record []byte
		if err := rows.Scan(&record); err != nil {
			return nil, fmt.Errorf("scan job record: %w", err)
		}
		var job meeting.Job
		if err := json.Unmarshal(record, &job); err != nil {
			return nil, fmt.Errorf("unmarshal job record: %w", err)
		}
		jobs = append(jobs, &job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return jobs, nil
}

// Verify interface compliance.
var _ Store = (*PostgresStore)(nil)
