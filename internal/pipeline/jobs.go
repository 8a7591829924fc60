package pipeline

import (
	"context"
	"fmt"

	"github.com/dvloznov/cash-ledger/internal/jobs"
	"github.com/dvloznov/cash-ledger/internal/logger"
)

// RecomputeHandler returns a job handler that reruns p for each recompute job and
// records the export location on the job.
func RecomputeHandler(p *Pipeline) jobs.JobHandler {
	return func(ctx context.Context, job jobs.Job) error {
		recompute, ok := job.(*jobs.RecomputeJob)
		if !ok {
			return fmt.Errorf("unexpected job type: %T", job)
		}

		log := logger.FromContext(ctx).With().
			Str("job_id", recompute.JobID).
			Strs("store_ids", recompute.StoreIDs).
			Str("reason", recompute.Reason).
			Logger()
		log.Info().
			Str("start", recompute.Start.String()).
			Str("end", recompute.End.String()).
			Msg("Processing recompute job")

		report, err := p.Run(logger.WithContext(ctx, log), Request{
			StoreIDs: recompute.Stores(),
			Range:    recompute.Range(),
			Export:   true,
		})
		if err != nil {
			log.Error().Err(err).Msg("Pipeline execution failed")
			return err
		}

		recompute.ExportURI = report.ExportURI
		log.Info().
			Str("export_uri", report.ExportURI).
			Int("alerts", len(report.Alerts)).
			Msg("Pipeline execution completed successfully")
		return nil
	}
}
