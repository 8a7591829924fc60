package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/cash-ledger/internal/config"
	"github.com/dvloznov/cash-ledger/internal/export"
	infraBQ "github.com/dvloznov/cash-ledger/internal/infra/bigquery"
	"github.com/dvloznov/cash-ledger/internal/jobs"
	"github.com/dvloznov/cash-ledger/internal/jobs/inmemory"
	"github.com/dvloznov/cash-ledger/internal/logger"
	"github.com/dvloznov/cash-ledger/internal/pipeline"
	"github.com/rs/zerolog"
)

func main() {
	bootLog := logger.New()

	cfg, err := config.Load()
	if err != nil {
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	var (
		bucket   = flag.String("bucket", cfg.Bucket, "GCS bucket for exported reports (or set GCS_BUCKET)")
		interval = flag.Duration("interval", 24*time.Hour, "How often every store is recomputed")
		window   = flag.Int("window", 30, "Number of trailing days each scheduled recompute covers")
	)
	flag.Parse()

	// Initialize logger
	log, err := logger.NewWithLevel(cfg.LogLevel)
	if err != nil {
		bootLog.Fatal().Err(err).Msg("Invalid LOG_LEVEL")
	}
	if err := cfg.RequireProject(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	if *bucket == "" {
		log.Fatal().Msg("-bucket flag or GCS_BUCKET is required")
	}

	// Create context that cancels on interrupt
	ctx, cancel := context.WithCancel(logger.WithContext(context.Background(), log))
	defer cancel()

	repo, err := infraBQ.NewBigQueryLedgerRepository(ctx, cfg.ProjectID, cfg.DatasetID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create ledger repository")
	}
	defer repo.Close()

	gcs, err := export.NewGCSStore(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create GCS client")
	}
	defer gcs.Close()

	// Initialize job store and queue
	// In production, this would be replaced with Cloud Tasks or Pub/Sub
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(cfg.JobBuffer, cfg.JobWorkers, jobStore)

	log.Info().Msg("Starting worker service")

	handler := pipeline.RecomputeHandler(pipeline.NewReconciliationPipeline(repo,
		pipeline.WithLocation(cfg.Location),
		pipeline.WithTolerance(cfg.Tolerance),
		pipeline.WithExporter(export.NewExporter(gcs, *bucket, "ledger")),
	))

	// Start consuming jobs
	if err := jobQueue.Start(ctx, handler); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	go schedule(ctx, jobQueue, *interval, func() *jobs.RecomputeJob {
		return scheduledJob(time.Now().In(cfg.Location), *window)
	}, log)

	log.Info().Dur("interval", *interval).Msg("Worker service started, waiting for jobs...")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down worker service...")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop the queue and wait for in-flight jobs
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}

	// Cancel context to stop workers
	cancel()

	log.Info().Msg("Worker service exited")
}

// schedule publishes next() immediately and then on every tick until ctx is done.
func schedule(ctx context.Context, publisher jobs.Publisher, interval time.Duration, next func() *jobs.RecomputeJob, log zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		job := next()
		if err := publisher.PublishRecompute(ctx, job); err != nil {
			log.Error().Err(err).Msg("Failed to publish scheduled recompute")
		} else {
			log.Info().Str("job_id", job.JobID).Msg("Scheduled recompute published")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// scheduledJob recomputes every store over the window days ending on the day of now.
func scheduledJob(now time.Time, window int) *jobs.RecomputeJob {
	if window < 1 {
		window = 1
	}
	end := civil.DateOf(now)
	return &jobs.RecomputeJob{
		Start:  end.AddDays(-(window - 1)),
		End:    end,
		Reason: "scheduled",
	}
}
