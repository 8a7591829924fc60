// Package pipeline runs a full cash reconciliation: it loads the source records, computes the
// daily ledger, alerts and employee floats, and optionally exports the result.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/cash-ledger/internal/domain"
	"github.com/dvloznov/cash-ledger/internal/identity"
	"github.com/dvloznov/cash-ledger/internal/ledger"
	"github.com/dvloznov/cash-ledger/internal/logger"
	"github.com/dvloznov/cash-ledger/internal/report"
	"github.com/shopspring/decimal"
)

// Request selects the stores and days covered by a run.
// Empty StoreIDs means every store with records.
type Request struct {
	StoreIDs []domain.StoreID
	Range    domain.DateRange
	// Export asks the pipeline to publish the report; it is ignored without an exporter.
	Export bool
}

// Report is the result of one reconciliation run.
type Report struct {
	GeneratedAt time.Time                    `json:"generated_at"`
	StoreIDs    []domain.StoreID             `json:"store_ids,omitempty"`
	Start       civil.Date                   `json:"start"`
	End         civil.Date                   `json:"end"`
	Ledger      report.LedgerView            `json:"ledger"`
	Stats       ledger.Stats                 `json:"stats"`
	Alerts      []ledger.Alert               `json:"alerts"`
	Floats      []ledger.EmployeeFloatLedger `json:"floats"`
	Warnings    []ledger.Warning             `json:"warnings"`
	ExportURI   string                       `json:"export_uri,omitempty"`
}

// Report builds the report from the current state. Nil slices are returned as empty.
func (s *PipelineState) Report() *Report {
	r := &Report{
		GeneratedAt: s.GeneratedAt,
		StoreIDs:    s.Request.StoreIDs,
		Start:       s.Request.Range.Start,
		End:         s.Request.Range.End,
		Ledger:      s.View,
		Stats:       s.Stats,
		Alerts:      s.Alerts,
		Floats:      s.Floats,
		Warnings:    s.Warnings,
		ExportURI:   s.ExportURI,
	}
	if r.Ledger.Stores == nil {
		r.Ledger.Stores = []report.StoreLedger{}
	}
	if r.Alerts == nil {
		r.Alerts = []ledger.Alert{}
	}
	if r.Floats == nil {
		r.Floats = []ledger.EmployeeFloatLedger{}
	}
	if r.Warnings == nil {
		r.Warnings = []ledger.Warning{}
	}
	return r
}

// Option configures NewReconciliationPipeline.
type Option func(*options)

type options struct {
	location *time.Location
	config   ledger.Config
	resolver identity.Resolver
	exporter ReportExporter
	now      func() time.Time
}

func defaultOptions() options {
	return options{
		location: time.UTC,
		config:   ledger.DefaultConfig(),
		resolver: identity.ExactResolver{},
	}
}

// WithLocation sets the business location used to read timestamps without an offset.
func WithLocation(loc *time.Location) Option {
	return func(o *options) {
		if loc != nil {
			o.location = loc
		}
	}
}

// WithTolerance sets the discrepancy tolerance.
func WithTolerance(tolerance decimal.Decimal) Option {
	return func(o *options) { o.config.Tolerance = tolerance }
}

// WithFillRange emits a ledger row for every day of the range, even days without activity.
func WithFillRange(fill bool) Option {
	return func(o *options) { o.config.FillRange = fill }
}

// WithResolver sets how recorder names map to employees.
func WithResolver(r identity.Resolver) Option {
	return func(o *options) {
		if r != nil {
			o.resolver = r
		}
	}
}

// WithExporter enables ExportStep.
func WithExporter(e ReportExporter) Option {
	return func(o *options) { o.exporter = e }
}

// WithClock overrides the report timestamp source.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// Run executes the pipeline for req and returns the report.
// An invalid range fails before anything is loaded.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Report, error) {
	if err := req.Range.Validate(); err != nil {
		return nil, fmt.Errorf("Run: %w: %v", ledger.ErrInvalidRange, err)
	}

	state := &PipelineState{Request: req, GeneratedAt: p.now().UTC()}
	if err := p.Execute(ctx, state); err != nil {
		return nil, fmt.Errorf("Run: %w", err)
	}

	log := logger.FromContext(ctx)
	log.Info().
		Str("range", req.Range.String()).
		Int("entries", len(state.Entries)).
		Int("alerts", len(state.Alerts)).
		Int("employees", len(state.Floats)).
		Int("warnings", len(state.Warnings)).
		Str("export_uri", state.ExportURI).
		Msg("Reconciliation complete")

	return state.Report(), nil
}

// ExportName names the exported object of a request, e.g. "ledger_2024-03-01_2024-03-31_A-B".
func ExportName(req Request) string {
	stores := "all"
	if len(req.StoreIDs) > 0 {
		stores = strings.Join(storeStrings(req.StoreIDs), "-")
	}
	return fmt.Sprintf("ledger_%s_%s_%s", req.Range.Start, req.Range.End, stores)
}

func storeStrings(ids []domain.StoreID) []string {
	if len(ids) == 0 {
		return nil
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}
