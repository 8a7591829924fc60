package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dvloznov/cash-ledger/internal/jobs"
)

// Store is an in-memory implementation of JobStore.
// It stores jobs in memory and is safe for concurrent use.
// Data is lost on service restart.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*jobs.RecomputeJob
}

// NewStore creates a new in-memory job store.
func NewStore() *Store {
	return &Store{
		jobs: make(map[string]*jobs.RecomputeJob),
	}
}

// SaveJob implements the JobStore interface.
func (s *Store) SaveJob(ctx context.Context, job *jobs.RecomputeJob) error {
	if job.JobID == "" {
		return fmt.Errorf("job ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobs[job.JobID] = job.Clone()
	return nil
}

// GetJob implements the JobStore interface.
func (s *Store) GetJob(ctx context.Context, jobID string) (*jobs.RecomputeJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return nil, fmt.Errorf("GetJob: %s: %w", jobID, jobs.ErrJobNotFound)
	}
	return job.Clone(), nil
}

// ListJobs implements the JobStore interface.
// Jobs are ordered by creation time, most recent first, then by ID.
func (s *Store) ListJobs(ctx context.Context, filter jobs.JobFilter) ([]*jobs.RecomputeJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*jobs.RecomputeJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		if filter.StoreID != "" && !job.Covers(filter.StoreID) {
			continue
		}
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		result = append(result, job.Clone())
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].JobID < result[j].JobID
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return []*jobs.RecomputeJob{}, nil
		}
		result = result[filter.Offset:]
	}

	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}

	return result, nil
}

// UpdateJobStatus implements the JobStore interface.
func (s *Store) UpdateJobStatus(ctx context.Context, jobID string, status jobs.JobStatus, errorMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return fmt.Errorf("UpdateJobStatus: %s: %w", jobID, jobs.ErrJobNotFound)
	}

	job.Status = status
	if errorMsg != "" {
		job.Error = errorMsg
	}
	return nil
}

// Ensure Store implements JobStore interface.
var _ jobs.JobStore = (*Store)(nil)
