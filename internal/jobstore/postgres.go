package jobstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aslstream/fingerspell/pkg/types"
)

const ddlJobs = `
CREATE TABLE IF NOT EXISTS alias_jobs (
    job_id          TEXT         PRIMARY KEY,
    request_id      TEXT         NOT NULL UNIQUE,
    user_id         TEXT         NOT NULL,
    bucket          TEXT         NOT NULL,
    key             TEXT         NOT NULL,
    etag            TEXT         NOT NULL DEFAULT '',
    file_size       BIGINT       NOT NULL DEFAULT 0,
    status          TEXT         NOT NULL,
    sns_message_id  TEXT         NOT NULL DEFAULT '',
    last_polled_at  TIMESTAMPTZ  NOT NULL DEFAULT now(),
    raw_text_key    TEXT         NOT NULL DEFAULT '',
    expires_at      TIMESTAMPTZ  NOT NULL DEFAULT now() + interval '30 days'
);

CREATE INDEX IF NOT EXISTS idx_alias_jobs_status ON alias_jobs (status);
`

// PostgresStore is a [Store] backed by PostgreSQL, mirroring the teacher's
// pkg/memory/postgres query and scanning conventions.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn, runs the job-table migration, and
// returns a ready [PostgresStore].
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("jobstore: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("jobstore: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, ddlJobs); err != nil {
		pool.Close()
		return nil, fmt.Errorf("jobstore: migrate: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Close releases the underlying connection pool.
func (s *PostgresStore) Close() { s.pool.Close() }

// Create implements [Store].
func (s *PostgresStore) Create(ctx context.Context, job types.Job) error {
	const q = `
		INSERT INTO alias_jobs
		    (job_id, request_id, user_id, bucket, key, etag, file_size, status,
		     sns_message_id, last_polled_at, raw_text_key, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), $10, $11)`

	expiresAt := job.TTL
	if expiresAt.IsZero() {
		expiresAt = time.Now().Add(30 * 24 * time.Hour)
	}

	_, err := s.pool.Exec(ctx, q,
		job.JobID, job.RequestID, job.UserID, job.Bucket, job.Key, job.ETag,
		job.FileSize, job.Status, job.SNSMessageID, job.RawTextKey, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("jobstore: create: %w", err)
	}
	return nil
}

// Get implements [Store].
func (s *PostgresStore) Get(ctx context.Context, jobID string) (types.Job, error) {
	const q = `
		SELECT job_id, request_id, user_id, bucket, key, etag, file_size, status,
		       sns_message_id, last_polled_at, raw_text_key, expires_at
		FROM   alias_jobs
		WHERE  job_id = $1`
	return s.scanOne(ctx, q, jobID)
}

// GetByRequestID implements [Store].
func (s *PostgresStore) GetByRequestID(ctx context.Context, requestID string) (types.Job, error) {
	const q = `
		SELECT job_id, request_id, user_id, bucket, key, etag, file_size, status,
		       sns_message_id, last_polled_at, raw_text_key, expires_at
		FROM   alias_jobs
		WHERE  request_id = $1`
	return s.scanOne(ctx, q, requestID)
}

func (s *PostgresStore) scanOne(ctx context.Context, q string, arg string) (types.Job, error) {
	row := s.pool.QueryRow(ctx, q, arg)
	var j types.Job
	err := row.Scan(
		&j.JobID, &j.RequestID, &j.UserID, &j.Bucket, &j.Key, &j.ETag, &j.FileSize,
		&j.Status, &j.SNSMessageID, &j.LastPolledAt, &j.RawTextKey, &j.TTL,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return types.Job{}, ErrNotFound
	}
	if err != nil {
		return types.Job{}, fmt.Errorf("jobstore: scan: %w", err)
	}
	return j, nil
}

// UpdateStatus implements [Store].
func (s *PostgresStore) UpdateStatus(ctx context.Context, jobID string, status types.JobStatus) error {
	const q = `UPDATE alias_jobs SET status = $1, last_polled_at = now() WHERE job_id = $2`
	tag, err := s.pool.Exec(ctx, q, status, jobID)
	if err != nil {
		return fmt.Errorf("jobstore: update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetRawTextKey implements [Store].
func (s *PostgresStore) SetRawTextKey(ctx context.Context, jobID, rawTextKey string) error {
	const q = `UPDATE alias_jobs SET raw_text_key = $1 WHERE job_id = $2`
	tag, err := s.pool.Exec(ctx, q, rawTextKey, jobID)
	if err != nil {
		return fmt.Errorf("jobstore: set raw text key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetNotification implements [Store]. It uses a conditional UPDATE so a
// concurrent duplicate delivery never overwrites the first-recorded
// notification id.
func (s *PostgresStore) SetNotification(ctx context.Context, jobID, notificationID string) error {
	const q = `
		UPDATE alias_jobs
		SET    sns_message_id = $1
		WHERE  job_id = $2 AND sns_message_id = ''`

	tag, err := s.pool.Exec(ctx, q, notificationID, jobID)
	if err != nil {
		return fmt.Errorf("jobstore: set notification: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	existing, err := s.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if existing.SNSMessageID == notificationID {
		return ErrDuplicateNotification
	}
	return ErrDuplicateNotification
}

var _ Store = (*PostgresStore)(nil)
