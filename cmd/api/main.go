package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dvloznov/cash-ledger/internal/api/handlers"
	"github.com/dvloznov/cash-ledger/internal/api/middleware"
	bq "github.com/dvloznov/cash-ledger/internal/bigquery"
	"github.com/dvloznov/cash-ledger/internal/config"
	"github.com/dvloznov/cash-ledger/internal/export"
	infraBQ "github.com/dvloznov/cash-ledger/internal/infra/bigquery"
	"github.com/dvloznov/cash-ledger/internal/infra/memory"
	"github.com/dvloznov/cash-ledger/internal/jobs/inmemory"
	"github.com/dvloznov/cash-ledger/internal/logger"
	"github.com/dvloznov/cash-ledger/internal/pipeline"
)

func main() {
	bootLog := logger.New()

	cfg, err := config.Load()
	if err != nil {
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Parse command-line flags
	var (
		port    = flag.String("port", cfg.HTTPPort, "HTTP server port (or set HTTP_PORT)")
		bucket  = flag.String("bucket", cfg.Bucket, "GCS bucket for exported reports (or set GCS_BUCKET)")
		records = flag.String("records", "", "Serve a JSON snapshot (local path or gs:// URI) instead of BigQuery")
	)
	flag.Parse()

	log, err := logger.NewWithLevel(cfg.LogLevel)
	if err != nil {
		bootLog.Fatal().Err(err).Msg("Invalid LOG_LEVEL")
	}

	ctx := logger.WithContext(context.Background(), log)

	var objects export.ObjectStore
	if *bucket != "" || strings.HasPrefix(*records, "gs://") {
		gcs, err := export.NewGCSStore(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create GCS client")
		}
		defer gcs.Close()
		objects = gcs
	}
	if *bucket == "" {
		log.Warn().Msg("No GCS bucket configured - recomputed reports will not be exported")
	}

	// Initialize repositories
	repo, err := openRepository(ctx, cfg, *records, objects)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open ledger repository")
	}
	defer repo.Close()

	opts := []pipeline.Option{
		pipeline.WithLocation(cfg.Location),
		pipeline.WithTolerance(cfg.Tolerance),
	}
	reconciler := pipeline.NewReconciliationPipeline(repo, opts...)

	// Initialize job infrastructure
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(cfg.JobBuffer, cfg.JobWorkers, jobStore)

	jobOpts := opts
	if *bucket != "" {
		jobOpts = append(jobOpts, pipeline.WithExporter(export.NewExporter(objects, *bucket, "ledger")))
	}
	jobHandler := pipeline.RecomputeHandler(pipeline.NewReconciliationPipeline(repo, jobOpts...))

	// Start worker in background to process jobs
	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	log.Info().Int("workers", cfg.JobWorkers).Msg("Starting job worker")
	if err := jobQueue.Start(workerCtx, jobHandler); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job worker")
	}

	// Initialize handlers
	ledgerHandler := handlers.NewLedgerHandler(reconciler, cfg.Location, log)
	writesHandler := handlers.NewWritesHandler(repo, repo, jobQueue, cfg.Location, log)
	jobsHandler := handlers.NewJobsHandler(jobStore, log)

	server := &http.Server{
		Addr:         ":" + *port,
		Handler:      middleware.Chain(log, newRouter(ledgerHandler, writesHandler, jobsHandler)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("port", *port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop job queue and wait for in-flight jobs, then cancel the worker context
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	cancelWorker()

	log.Info().Msg("Server exited")
}

// openRepository serves a snapshot when records is set and BigQuery otherwise.
func openRepository(ctx context.Context, cfg config.Config, records string, store export.ObjectStore) (bq.LedgerRepository, error) {
	if records != "" {
		log := logger.FromContext(ctx)
		log.Info().Str("records", records).Msg("Serving records snapshot, writes are kept in memory")
		return memory.Load(ctx, records, store)
	}
	if err := cfg.RequireProject(); err != nil {
		return nil, err
	}
	return infraBQ.NewBigQueryLedgerRepository(ctx, cfg.ProjectID, cfg.DatasetID)
}

// newRouter maps the API routes onto the handlers.
func newRouter(ledgerHandler *handlers.LedgerHandler, writesHandler *handlers.WritesHandler, jobsHandler *handlers.JobsHandler) *http.ServeMux {
	mux := http.NewServeMux()

	// Ledger endpoints
	mux.HandleFunc("/api/ledger", methodOnly(http.MethodGet, ledgerHandler.GetLedger))
	mux.HandleFunc("/api/alerts", methodOnly(http.MethodGet, ledgerHandler.GetAlerts))
	mux.HandleFunc("/api/floats", methodOnly(http.MethodGet, ledgerHandler.GetFloats))
	mux.HandleFunc("/api/stats", methodOnly(http.MethodGet, ledgerHandler.GetStats))

	// Write endpoints
	mux.HandleFunc("/api/overrides", methodOnly(http.MethodPost, writesHandler.CreateOverride))
	mux.HandleFunc("/api/overrides/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		// Extract override ID from path
		overrideID := strings.TrimPrefix(r.URL.Path, "/api/overrides/")
		if overrideID == "" {
			middleware.WriteError(w, http.StatusBadRequest, "Override ID is required")
			return
		}
		writesHandler.DeleteOverride(w, r, overrideID)
	})
	mux.HandleFunc("/api/withdrawals", methodOnly(http.MethodPost, writesHandler.CreateWithdrawal))
	mux.HandleFunc("/api/deposits", methodOnly(http.MethodPost, writesHandler.CreateDeposit))

	// Jobs endpoints
	mux.HandleFunc("/api/jobs", methodOnly(http.MethodGet, jobsHandler.ListJobs))
	mux.HandleFunc("/api/jobs/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		// Extract job ID from path
		jobID := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
		if jobID == "" {
			middleware.WriteError(w, http.StatusBadRequest, "Job ID is required")
			return
		}
		jobsHandler.GetJob(w, r, jobID)
	})

	// Health check endpoint
	mux.HandleFunc("/health", handlers.Health)

	return mux
}

func methodOnly(method string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		h(w, r)
	}
}
