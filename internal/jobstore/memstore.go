package jobstore

import (
	"context"
	"sync"
	"time"

	"github.com/aslstream/fingerspell/pkg/types"
)

// MemStore is an in-process [Store] for tests.
type MemStore struct {
	mu   sync.Mutex
	jobs map[string]types.Job
}

// NewMemStore returns an empty [MemStore].
func NewMemStore() *MemStore {
	return &MemStore{jobs: make(map[string]types.Job)}
}

// Create implements [Store].
func (s *MemStore) Create(_ context.Context, job types.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job.TTL.IsZero() {
		job.TTL = time.Now().Add(30 * 24 * time.Hour)
	}
	job.LastPolledAt = time.Now()
	s.jobs[job.JobID] = job
	return nil
}

// Get implements [Store].
func (s *MemStore) Get(_ context.Context, jobID string) (types.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return types.Job{}, ErrNotFound
	}
	return j, nil
}

// GetByRequestID implements [Store].
func (s *MemStore) GetByRequestID(_ context.Context, requestID string) (types.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.RequestID == requestID {
			return j, nil
		}
	}
	return types.Job{}, ErrNotFound
}

// UpdateStatus implements [Store].
func (s *MemStore) UpdateStatus(_ context.Context, jobID string, status types.JobStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	j.Status = status
	j.LastPolledAt = time.Now()
	s.jobs[jobID] = j
	return nil
}

// SetRawTextKey implements [Store].
func (s *MemStore) SetRawTextKey(_ context.Context, jobID, rawTextKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	j.RawTextKey = rawTextKey
	s.jobs[jobID] = j
	return nil
}

// SetNotification implements [Store].
func (s *MemStore) SetNotification(_ context.Context, jobID, notificationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	if j.SNSMessageID != "" {
		return ErrDuplicateNotification
	}
	j.SNSMessageID = notificationID
	s.jobs[jobID] = j
	return nil
}

// Close implements [Store]; MemStore holds no resources to release.
func (s *MemStore) Close() {}

var _ Store = (*MemStore)(nil)
