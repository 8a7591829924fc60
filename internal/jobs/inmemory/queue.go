package inmemory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dvloznov/cash-ledger/internal/jobs"
	"github.com/dvloznov/cash-ledger/internal/logger"
	"github.com/google/uuid"
)

// DefaultWorkers is the number of concurrent workers used when NewQueue is given zero.
const DefaultWorkers = 5

// Queue is an in-memory implementation of job publisher and consumer.
// It uses Go channels for job distribution and is safe for concurrent use.
// This implementation is suitable for single-instance deployments and testing.
type Queue struct {
	jobChan   chan *jobs.RecomputeJob
	closeChan chan struct{}
	wg        sync.WaitGroup
	mu        sync.RWMutex
	store     jobs.JobStore
	workers   int
	backoff   time.Duration
	closed    bool
}

// NewQueue creates a new in-memory job queue.
// bufferSize determines how many jobs can be queued before PublishRecompute blocks;
// workers is the number of jobs processed concurrently.
func NewQueue(bufferSize, workers int, store jobs.JobStore) *Queue {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Queue{
		jobChan:   make(chan *jobs.RecomputeJob, bufferSize),
		closeChan: make(chan struct{}),
		store:     store,
		workers:   workers,
		backoff:   time.Second,
	}
}

// PublishRecompute implements the Publisher interface.
// It fills in the job ID, status and timestamps on job, then enqueues a copy.
func (q *Queue) PublishRecompute(ctx context.Context, job *jobs.RecomputeJob) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return fmt.Errorf("queue is closed")
	}

	if job.JobID == "" {
		job.JobID = uuid.New().String()
	}
	if job.Status == "" {
		job.Status = jobs.JobStatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	if job.MaxRetries == 0 {
		job.MaxRetries = jobs.DefaultMaxRetries
	}

	if q.store != nil {
		if err := q.store.SaveJob(ctx, job); err != nil {
			return fmt.Errorf("failed to save job: %w", err)
		}
	}

	// Enqueue job with context cancellation support
	select {
	case q.jobChan <- job.Clone():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.closeChan:
		return fmt.Errorf("queue is closed")
	}
}

// Start implements the Consumer interface.
// It starts the workers, which call handler for each job until ctx is done or the queue stops.
func (q *Queue) Start(ctx context.Context, handler jobs.JobHandler) error {
	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return fmt.Errorf("queue is closed")
	}
	q.mu.RUnlock()

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, handler)
	}

	return nil
}

// worker processes jobs from the queue.
func (q *Queue) worker(ctx context.Context, handler jobs.JobHandler) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closeChan:
			return
		case job := <-q.jobChan:
			if job == nil {
				return
			}

			q.processJob(ctx, job, handler)
		}
	}
}

// processJob executes a single job with retry logic.
// A failed job is re-published after RetryCount times the base backoff.
func (q *Queue) processJob(ctx context.Context, job *jobs.RecomputeJob, handler jobs.JobHandler) {
	log := logger.FromContext(ctx).With().Str("job_id", job.JobID).Logger()

	job.Status = jobs.JobStatusRunning
	now := time.Now().UTC()
	job.StartedAt = &now

	if q.store != nil {
		_ = q.store.SaveJob(ctx, job)
	}

	err := handler(ctx, job)

	completedAt := time.Now().UTC()
	job.CompletedAt = &completedAt

	var retry *jobs.RecomputeJob
	if err != nil {
		job.Error = err.Error()

		if job.RetryCount < job.MaxRetries {
			job.RetryCount++
			job.Status = jobs.JobStatusRetrying
			retry = job.Clone()
		} else {
			job.Status = jobs.JobStatusFailed
			log.Error().Err(err).Int("retries", job.RetryCount).Msg("Job failed")
		}
	} else {
		job.Status = jobs.JobStatusCompleted
		job.Error = ""
	}

	if q.store != nil {
		_ = q.store.SaveJob(ctx, job)
	}

	if retry == nil {
		return
	}

	backoff := time.Duration(retry.RetryCount) * q.backoff
	log.Warn().Err(err).
		Int("retry", retry.RetryCount).
		Dur("backoff", backoff).
		Msg("Job failed, retrying")

	time.AfterFunc(backoff, func() {
		retry.Status = jobs.JobStatusPending
		retry.StartedAt = nil
		retry.CompletedAt = nil
		if err := q.PublishRecompute(ctx, retry); err != nil {
			log.Error().Err(err).Msg("Failed to re-publish job")
		}
	})
}

// Stop implements the Consumer interface.
// It stops the queue and waits for all in-flight jobs to complete.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.closeChan)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements the Publisher interface.
func (q *Queue) Close() error {
	return q.Stop(context.Background())
}

// Ensure Queue implements both Publisher and Consumer interfaces.
var _ jobs.Publisher = (*Queue)(nil)
var _ jobs.Consumer = (*Queue)(nil)
