// Package jobstore tracks uploaded documents through the offline
// alias-builder pipeline (§4.6): one row per job, keyed by job id, with a
// unique request id for submit-time idempotency and a notification id for
// ingest-time idempotency.
//
// Grounded on the DynamoDB job table used by kb-submit/kb-ingest/kb-aliases
// in _examples/original_source/iac/lambda, reimplemented over PostgreSQL in
// the teacher's pkg/memory/postgres style since this module carries no
// DynamoDB client.
package jobstore

import (
	"context"
	"errors"

	"github.com/aslstream/fingerspell/pkg/types"
)

// ErrNotFound is returned when a job lookup finds no matching row.
var ErrNotFound = errors.New("jobstore: job not found")

// ErrDuplicateNotification is returned by SetNotification when the job
// already carries a notification id (the same one or a different one),
// signaling the caller to skip re-ingestion.
var ErrDuplicateNotification = errors.New("jobstore: notification already processed")

// Store is the alias-builder job table.
type Store interface {
	// Create inserts a new job row keyed by job.JobID.
	Create(ctx context.Context, job types.Job) error

	// Get returns the job for jobID, or [ErrNotFound].
	Get(ctx context.Context, jobID string) (types.Job, error)

	// GetByRequestID returns the job for requestID, or [ErrNotFound]. Used by
	// Submit to detect an already-materialized upload.
	GetByRequestID(ctx context.Context, requestID string) (types.Job, error)

	// UpdateStatus transitions job jobID to status.
	UpdateStatus(ctx context.Context, jobID string, status types.JobStatus) error

	// SetRawTextKey records the object-store key of ingest's output; Ingest
	// stores the key of the tokenized terms manifest here.
	SetRawTextKey(ctx context.Context, jobID, rawTextKey string) error

	// SetNotification idempotently records notificationID against jobID. It
	// returns [ErrDuplicateNotification] when the job already carries a
	// notification id, whether the same one or a different one, so Ingest
	// can return early without reprocessing.
	SetNotification(ctx context.Context, jobID, notificationID string) error

	Close()
}
