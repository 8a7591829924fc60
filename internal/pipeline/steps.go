package pipeline

import (
	"context"
	"fmt"
	"time"

	bq "github.com/dvloznov/cash-ledger/internal/bigquery"
	"github.com/dvloznov/cash-ledger/internal/identity"
	"github.com/dvloznov/cash-ledger/internal/ledger"
	"github.com/dvloznov/cash-ledger/internal/report"
)

// PipelineStep represents a single step in the reconciliation pipeline.
type PipelineStep interface {
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState holds the shared state across all pipeline steps.
type PipelineState struct {
	Request     Request
	GeneratedAt time.Time

	Raw      *bq.RawRecords
	Records  ledger.RecordSet
	Warnings []ledger.Warning

	Entries []ledger.DailyLedgerEntry
	Alerts  []ledger.Alert
	Floats  []ledger.EmployeeFloatLedger
	Stats   ledger.Stats
	View    report.LedgerView

	ExportURI string
}

// Step 1: LoadRecordsStep reads a snapshot of every record kind up to the end of the range.
type LoadRecordsStep struct {
	Repo bq.RecordRepository
}

func (s *LoadRecordsStep) Execute(ctx context.Context, state *PipelineState) error {
	filter := bq.RecordFilter{
		StoreIDs: storeStrings(state.Request.StoreIDs),
		Until:    state.Request.Range.End,
	}
	raw, err := bq.LoadRaw(ctx, s.Repo, filter)
	if err != nil {
		return fmt.Errorf("load records: %w", err)
	}
	state.Raw = raw
	return nil
}

// Step 2: NormalizeStep parses the raw rows, collecting warnings for excluded records, and
// drops the movements whose business day falls after the range.
type NormalizeStep struct {
	Location *time.Location
}

func (s *NormalizeStep) Execute(ctx context.Context, state *PipelineState) error {
	records, warnings := ledger.Normalize(ctx, state.Raw, s.Location)
	state.Records = records.Through(state.Request.Range.End)
	state.Warnings = warnings
	return nil
}

// Step 3: LedgerStep computes the daily ledger with discrepancies.
type LedgerStep struct {
	Config ledger.Config
}

func (s *LedgerStep) Execute(ctx context.Context, state *PipelineState) error {
	entries, err := ledger.ComputeDailyLedgerWithConfig(ctx, state.Records, state.Request.StoreIDs, state.Request.Range, s.Config)
	if err != nil {
		return err
	}
	state.Entries = entries
	return nil
}

// Step 4: AlertsStep checks the latest counts against the alert thresholds.
type AlertsStep struct{}

func (s *AlertsStep) Execute(ctx context.Context, state *PipelineState) error {
	state.Alerts = ledger.ComputeActiveAlerts(state.Records)
	return nil
}

// Step 5: FloatStep nets the float of every employee, largest balance first.
type FloatStep struct {
	Resolver identity.Resolver
}

func (s *FloatStep) Execute(ctx context.Context, state *PipelineState) error {
	floats := ledger.ComputeEmployeeFloatLedgers(state.Records, s.Resolver)
	state.Floats = report.SortFloatLedgers(floats)
	return nil
}

// Step 6: ProjectStep groups the entries for display and summarizes the discrepancies.
type ProjectStep struct{}

func (s *ProjectStep) Execute(ctx context.Context, state *PipelineState) error {
	state.View = report.ProjectLedger(state.Entries)
	state.Stats = ledger.DiscrepancyStats(state.Entries)
	return nil
}

// Step 7: ExportStep writes the report to object storage when the request asks for it.
// A nil Exporter makes the step a no-op.
type ExportStep struct {
	Exporter ReportExporter
}

func (s *ExportStep) Execute(ctx context.Context, state *PipelineState) error {
	if s.Exporter == nil || !state.Request.Export {
		return nil
	}
	uri, err := s.Exporter.Export(ctx, ExportName(state.Request), state.Report())
	if err != nil {
		return fmt.Errorf("export report: %w", err)
	}
	state.ExportURI = uri
	return nil
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
	now   func() time.Time
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps, now: time.Now}
}

// Execute runs all steps in the pipeline sequentially.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	for i, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d failed: %w", i+1, err)
		}
	}
	return nil
}

// NewReconciliationPipeline creates the standard 7-step pipeline reading from repo.
func NewReconciliationPipeline(repo bq.RecordRepository, opts ...Option) *Pipeline {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	p := NewPipeline(
		&LoadRecordsStep{Repo: repo},
		&NormalizeStep{Location: o.location},
		&LedgerStep{Config: o.config},
		&AlertsStep{},
		&FloatStep{Resolver: o.resolver},
		&ProjectStep{},
		&ExportStep{Exporter: o.exporter},
	)
	if o.now != nil {
		p.now = o.now
	}
	return p
}
