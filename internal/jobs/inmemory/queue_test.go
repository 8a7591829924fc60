package inmemory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dvloznov/cash-ledger/internal/jobs"
	"github.com/dvloznov/cash-ledger/internal/logger"
	"github.com/rs/zerolog"
)

func waitForStatus(t *testing.T, store *Store, jobID string, status jobs.JobStatus) *jobs.RecomputeJob {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := store.GetJob(context.Background(), jobID)
		if err == nil && job.Status == status {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	job, _ := store.GetJob(context.Background(), jobID)
	t.Fatalf("job %s did not reach %s, last state %+v", jobID, status, job)
	return nil
}

func TestQueue_PublishFillsDefaults(t *testing.T) {
	store := NewStore()
	q := NewQueue(10, 1, store)
	defer q.Close()

	job := &jobs.RecomputeJob{StoreIDs: []string{"A"}, Reason: "override created"}
	if err := q.PublishRecompute(context.Background(), job); err != nil {
		t.Fatalf("PublishRecompute() error = %v", err)
	}

	if job.JobID == "" || job.Status != jobs.JobStatusPending || job.CreatedAt.IsZero() || job.MaxRetries != jobs.DefaultMaxRetries {
		t.Errorf("defaults not applied: %+v", job)
	}
	saved, err := store.GetJob(context.Background(), job.JobID)
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	if saved.Reason != "override created" {
		t.Errorf("saved job = %+v", saved)
	}
}

func TestQueue_ProcessesJobs(t *testing.T) {
	ctx := logger.WithContext(context.Background(), zerolog.Nop())
	store := NewStore()
	q := NewQueue(10, 2, store)

	var handled int32
	err := q.Start(ctx, func(ctx context.Context, job jobs.Job) error {
		if job.GetType() != jobs.JobTypeRecomputeLedger {
			return errors.New("unexpected job type")
		}
		atomic.AddInt32(&handled, 1)
		return nil
	})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	job := &jobs.RecomputeJob{StoreIDs: []string{"A"}}
	if err := q.PublishRecompute(ctx, job); err != nil {
		t.Fatalf("PublishRecompute() error = %v", err)
	}

	done := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	if done.StartedAt == nil || done.CompletedAt == nil {
		t.Errorf("timestamps not set: %+v", done)
	}
	if err := q.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if atomic.LoadInt32(&handled) != 1 {
		t.Errorf("handled %d jobs, want 1", handled)
	}
}

func TestQueue_RetriesThenSucceeds(t *testing.T) {
	ctx := logger.WithContext(context.Background(), zerolog.Nop())
	store := NewStore()
	q := NewQueue(10, 1, store)
	q.backoff = time.Millisecond
	defer q.Close()

	var calls int32
	_ = q.Start(ctx, func(ctx context.Context, job jobs.Job) error {
		if atomic.AddInt32(&calls, 1) <= 2 {
			return errors.New("bigquery unavailable")
		}
		return nil
	})

	job := &jobs.RecomputeJob{}
	if err := q.PublishRecompute(ctx, job); err != nil {
		t.Fatalf("PublishRecompute() error = %v", err)
	}

	done := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	if done.RetryCount != 2 {
		t.Errorf("RetryCount = %d, want 2", done.RetryCount)
	}
	if done.Error != "" {
		t.Errorf("Error = %q after success", done.Error)
	}
}

func TestQueue_GivesUpAfterMaxRetries(t *testing.T) {
	ctx := logger.WithContext(context.Background(), zerolog.Nop())
	store := NewStore()
	q := NewQueue(10, 1, store)
	q.backoff = time.Millisecond
	defer q.Close()

	_ = q.Start(ctx, func(ctx context.Context, job jobs.Job) error {
		return errors.New("export failed")
	})

	job := &jobs.RecomputeJob{MaxRetries: 1}
	if err := q.PublishRecompute(ctx, job); err != nil {
		t.Fatalf("PublishRecompute() error = %v", err)
	}

	failed := waitForStatus(t, store, job.JobID, jobs.JobStatusFailed)
	if failed.RetryCount != 1 || failed.Error != "export failed" {
		t.Errorf("failed job = %+v", failed)
	}
}

func TestQueue_Closed(t *testing.T) {
	q := NewQueue(1, 1, nil)
	if err := q.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := q.PublishRecompute(context.Background(), &jobs.RecomputeJob{}); err == nil {
		t.Error("PublishRecompute() on a closed queue should fail")
	}
	if err := q.Start(context.Background(), func(context.Context, jobs.Job) error { return nil }); err == nil {
		t.Error("Start() on a closed queue should fail")
	}
	// Stopping twice is fine.
	if err := q.Stop(context.Background()); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
}

func TestQueue_PublishHonorsContext(t *testing.T) {
	q := NewQueue(0, 1, nil)
	defer q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	// No consumer and no buffer: the send blocks until the context expires.
	err := q.PublishRecompute(ctx, &jobs.RecomputeJob{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("PublishRecompute() error = %v, want DeadlineExceeded", err)
	}
}
