package jobs

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/cash-ledger/internal/domain"
)

// ErrJobNotFound is returned by a JobStore for an unknown job ID.
var ErrJobNotFound = errors.New("job not found")

// JobType represents the type of job to be executed.
type JobType string

const (
	// JobTypeRecomputeLedger recomputes and exports the ledger of some stores.
	JobTypeRecomputeLedger JobType = "recompute_ledger"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the job is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the job completed successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job failed.
	JobStatusFailed JobStatus = "failed"
	// JobStatusRetrying indicates the job failed and is being retried.
	JobStatusRetrying JobStatus = "retrying"
)

// DefaultMaxRetries is applied to jobs published without MaxRetries.
const DefaultMaxRetries = 3

// RecomputeJob asks for the ledger of some stores to be recomputed after their records changed.
type RecomputeJob struct {
	// JobID is the unique identifier for this job.
	JobID string `json:"job_id"`

	// StoreIDs are the stores to recompute. Empty means every store.
	StoreIDs []string `json:"store_ids,omitempty"`

	// Start and End bound the recomputed days, inclusive.
	Start civil.Date `json:"start"`
	End   civil.Date `json:"end"`

	// Reason describes the write that triggered the job, e.g. "override created".
	Reason string `json:"reason"`

	// Status is the current status of the job.
	Status JobStatus `json:"status"`

	// CreatedAt is when the job was created.
	CreatedAt time.Time `json:"created_at"`

	// StartedAt is when the job started processing.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt is when the job completed (success or failure).
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error contains error details if the job failed.
	Error string `json:"error,omitempty"`

	// ExportURI is where the refreshed report was written, if it was exported.
	ExportURI string `json:"export_uri,omitempty"`

	// RetryCount is the number of times this job has been retried.
	RetryCount int `json:"retry_count"`

	// MaxRetries is the maximum number of retries allowed.
	MaxRetries int `json:"max_retries"`
}

// Job is a generic interface for all job types.
type Job interface {
	// GetID returns the unique job identifier.
	GetID() string

	// GetType returns the job type.
	GetType() JobType

	// GetStatus returns the current job status.
	GetStatus() JobStatus
}

// GetID implements the Job interface.
func (j *RecomputeJob) GetID() string {
	return j.JobID
}

// GetType implements the Job interface.
func (j *RecomputeJob) GetType() JobType {
	return JobTypeRecomputeLedger
}

// GetStatus implements the Job interface.
func (j *RecomputeJob) GetStatus() JobStatus {
	return j.Status
}

// Range returns the days covered by the job.
func (j *RecomputeJob) Range() domain.DateRange {
	return domain.DateRange{Start: j.Start, End: j.End}
}

// Stores returns StoreIDs as domain IDs.
func (j *RecomputeJob) Stores() []domain.StoreID {
	if len(j.StoreIDs) == 0 {
		return nil
	}
	ids := make([]domain.StoreID, len(j.StoreIDs))
	for i, id := range j.StoreIDs {
		ids[i] = domain.StoreID(id)
	}
	return ids
}

// Publisher defines the interface for publishing jobs to a queue.
type Publisher interface {
	// PublishRecompute publishes a ledger recompute job.
	PublishRecompute(ctx context.Context, job *RecomputeJob) error

	// Close closes the publisher and releases resources.
	Close() error
}

// Consumer defines the interface for consuming jobs from a queue.
type Consumer interface {
	// Start begins consuming jobs from the queue.
	// The handler function is called for each job received.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler is a function that processes a job.
// It should return an error if the job failed and should be retried.
type JobHandler func(ctx context.Context, job Job) error

// JobStore defines the interface for storing and retrieving job status.
type JobStore interface {
	// SaveJob saves or updates a job's state.
	SaveJob(ctx context.Context, job *RecomputeJob) error

	// GetJob retrieves a job by ID. It returns ErrJobNotFound for an unknown ID.
	GetJob(ctx context.Context, jobID string) (*RecomputeJob, error)

	// ListJobs retrieves jobs, most recent first, with optional filtering.
	ListJobs(ctx context.Context, filter JobFilter) ([]*RecomputeJob, error)

	// UpdateJobStatus updates the status of a job.
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errorMsg string) error
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	// StoreID keeps jobs that cover the store, including jobs for every store.
	StoreID string

	// Status filters jobs by status.
	Status JobStatus

	// Limit limits the number of results.
	Limit int

	// Offset for pagination.
	Offset int
}

// Covers reports whether the job recomputes storeID.
func (j *RecomputeJob) Covers(storeID string) bool {
	if len(j.StoreIDs) == 0 {
		return true
	}
	for _, id := range j.StoreIDs {
		if id == storeID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the job.
func (j *RecomputeJob) Clone() *RecomputeJob {
	c := *j
	if j.StoreIDs != nil {
		c.StoreIDs = append([]string(nil), j.StoreIDs...)
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}
