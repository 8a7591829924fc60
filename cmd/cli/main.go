package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	bq "github.com/dvloznov/cash-ledger/internal/bigquery"
	"github.com/dvloznov/cash-ledger/internal/config"
	"github.com/dvloznov/cash-ledger/internal/domain"
	"github.com/dvloznov/cash-ledger/internal/export"
	infraBQ "github.com/dvloznov/cash-ledger/internal/infra/bigquery"
	"github.com/dvloznov/cash-ledger/internal/infra/memory"
	"github.com/dvloznov/cash-ledger/internal/ledger"
	"github.com/dvloznov/cash-ledger/internal/logger"
	"github.com/dvloznov/cash-ledger/internal/pipeline"
	"github.com/dvloznov/cash-ledger/internal/report"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stdout)
		os.Exit(1)
	}

	bootLog := logger.New()

	cfg, err := config.Load()
	if err != nil {
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}
	log, err := logger.NewWithLevel(cfg.LogLevel)
	if err != nil {
		bootLog.Fatal().Err(err).Msg("Invalid LOG_LEVEL")
	}

	c := &cli{cfg: cfg, log: log, out: os.Stdout, now: time.Now}
	cmd, args := os.Args[1], os.Args[2:]

	switch cmd {
	case "help", "-h", "--help":
		printUsage(os.Stdout)
		return
	}

	run, ok := c.commands()[cmd]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage(os.Stderr)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(logger.WithContext(context.Background(), log), 5*time.Minute)
	defer cancel()

	err = run(ctx, args)
	c.close()
	if err != nil {
		log.Fatal().Err(err).Str("command", cmd).Msg("Command failed")
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Cash Ledger CLI")
	fmt.Fprintln(w, "\nUsage:")
	fmt.Fprintln(w, "  cli <command> [options]")
	fmt.Fprintln(w, "\nCommands:")
	fmt.Fprintln(w, "  ledger           Print the daily ledger of one or more stores")
	fmt.Fprintln(w, "  alerts           Print stores whose latest balance is over their alert threshold")
	fmt.Fprintln(w, "  floats           Print the cash each employee holds")
	fmt.Fprintln(w, "  export           Compute the ledger and write the report to GCS")
	fmt.Fprintln(w, "  snapshot         Copy every raw record into a JSON snapshot in GCS")
	fmt.Fprintln(w, "  set-override     Set the opening balance of a store on a day")
	fmt.Fprintln(w, "  delete-override  Remove an opening balance override")
	fmt.Fprintln(w, "  help             Show this help message")
	fmt.Fprintln(w, "\nEvery command reads BigQuery unless -records names a JSON snapshot (local path or gs:// URI).")
	fmt.Fprintln(w, "Run 'cli <command> -h' for more information on a command.")
}

// cli holds what every command needs. Commands return errors instead of exiting.
type cli struct {
	cfg config.Config
	log zerolog.Logger
	out io.Writer
	now func() time.Time

	// objects is created lazily for gs:// sources and exports.
	objects export.ObjectStore
	closers []func() error
}

func (c *cli) close() {
	for _, fn := range c.closers {
		if err := fn(); err != nil {
			c.log.Warn().Err(err).Msg("Failed to close client")
		}
	}
}

func (c *cli) commands() map[string]func(context.Context, []string) error {
	return map[string]func(context.Context, []string) error{
		"ledger":          c.runLedger,
		"alerts":          c.runAlerts,
		"floats":          c.runFloats,
		"export":          c.runExport,
		"snapshot":        c.runSnapshot,
		"set-override":    c.runSetOverride,
		"delete-override": c.runDeleteOverride,
	}
}

// source is the record store a command reads and writes.
type source struct {
	repo bq.LedgerRepository
	// save persists writes made to a local snapshot; nil for BigQuery.
	save func() error
}

func (c *cli) objectStore(ctx context.Context) (export.ObjectStore, error) {
	if c.objects != nil {
		return c.objects, nil
	}
	gcs, err := export.NewGCSStore(ctx)
	if err != nil {
		return nil, err
	}
	c.objects = gcs
	c.closers = append(c.closers, gcs.Close)
	return gcs, nil
}

func (c *cli) open(ctx context.Context, records string) (*source, error) {
	switch {
	case records == "":
		if err := c.cfg.RequireProject(); err != nil {
			return nil, err
		}
		repo, err := infraBQ.NewBigQueryLedgerRepository(ctx, c.cfg.ProjectID, c.cfg.DatasetID)
		if err != nil {
			return nil, err
		}
		return &source{repo: repo}, nil

	case strings.HasPrefix(records, "gs://"):
		store, err := c.objectStore(ctx)
		if err != nil {
			return nil, err
		}
		repo, err := memory.Load(ctx, records, store)
		if err != nil {
			return nil, err
		}
		return &source{repo: repo, save: func() error {
			return errors.New("snapshots in GCS are read-only")
		}}, nil

	default:
		repo, err := memory.LoadFile(records)
		if err != nil {
			return nil, err
		}
		return &source{repo: repo, save: func() error { return repo.SaveFile(records) }}, nil
	}
}

// reportFlags are shared by the commands that run the reconciliation.
type reportFlags struct {
	records *string
	stores  *string
	start   *string
	end     *string
	fill    *bool
}

func (c *cli) reportFlagSet(name string) (*flag.FlagSet, *reportFlags) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.out)
	return fs, &reportFlags{
		records: fs.String("records", "", "JSON snapshot to read instead of BigQuery (local path or gs:// URI)"),
		stores:  fs.String("stores", "", "Comma-separated store IDs (default: every store)"),
		start:   fs.String("start", "", "First day, YYYY-MM-DD (default: 30 days before -end)"),
		end:     fs.String("end", "", "Last day, YYYY-MM-DD (default: today)"),
		fill:    fs.Bool("fill", false, "Include days without activity"),
	}
}

func (c *cli) request(f *reportFlags) (pipeline.Request, error) {
	end := civil.DateOf(c.now().In(c.cfg.Location))
	if *f.end != "" {
		d, err := civil.ParseDate(*f.end)
		if err != nil {
			return pipeline.Request{}, fmt.Errorf("invalid -end: %w", err)
		}
		end = d
	}
	start := end.AddDays(-30)
	if *f.start != "" {
		d, err := civil.ParseDate(*f.start)
		if err != nil {
			return pipeline.Request{}, fmt.Errorf("invalid -start: %w", err)
		}
		start = d
	}

	req := pipeline.Request{Range: domain.DateRange{Start: start, End: end}}
	for _, id := range strings.Split(*f.stores, ",") {
		if id = strings.TrimSpace(id); id != "" {
			req.StoreIDs = append(req.StoreIDs, domain.StoreID(id))
		}
	}
	return req, nil
}

// reconcile parses the shared flags and runs the pipeline once.
func (c *cli) reconcile(ctx context.Context, name string, args []string) (*pipeline.Report, error) {
	fs, f := c.reportFlagSet(name)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return c.reconcileWith(ctx, f, false)
}

func (c *cli) reconcileWith(ctx context.Context, f *reportFlags, exp bool, opts ...pipeline.Option) (*pipeline.Report, error) {
	req, err := c.request(f)
	if err != nil {
		return nil, err
	}
	req.Export = exp

	src, err := c.open(ctx, *f.records)
	if err != nil {
		return nil, err
	}
	defer src.repo.Close()

	opts = append([]pipeline.Option{
		pipeline.WithLocation(c.cfg.Location),
		pipeline.WithTolerance(c.cfg.Tolerance),
		pipeline.WithFillRange(*f.fill),
	}, opts...)
	return pipeline.NewReconciliationPipeline(src.repo, opts...).Run(ctx, req)
}

func (c *cli) runLedger(ctx context.Context, args []string) error {
	rep, err := c.reconcile(ctx, "ledger", args)
	if err != nil {
		return err
	}

	if err := report.WriteLedgerTable(c.out, rep.Ledger); err != nil {
		return err
	}
	s := rep.Stats
	fmt.Fprintf(c.out, "Days: %d  Counts compared: %d  Flagged: %d  Average discrepancy: %s  Max: %s\n",
		s.Entries, s.Compared, s.Flagged, s.Average.StringFixed(2), s.Max.StringFixed(2))

	for _, w := range rep.Warnings {
		fmt.Fprintf(c.out, "warning: %s %s: %s\n", w.Kind, w.Record, w.Message)
	}
	return nil
}

func (c *cli) runAlerts(ctx context.Context, args []string) error {
	rep, err := c.reconcile(ctx, "alerts", args)
	if err != nil {
		return err
	}
	return report.WriteAlertTable(c.out, rep.Alerts)
}

func (c *cli) runFloats(ctx context.Context, args []string) error {
	rep, err := c.reconcile(ctx, "floats", args)
	if err != nil {
		return err
	}
	if len(rep.Floats) == 0 {
		fmt.Fprintln(c.out, "No withdrawals or deposits in range.")
		return nil
	}
	return report.WriteFloatTable(c.out, rep.Floats)
}

func (c *cli) runExport(ctx context.Context, args []string) error {
	fs, f := c.reportFlagSet("export")
	bucket := fs.String("bucket", c.cfg.Bucket, "GCS bucket (or set GCS_BUCKET)")
	prefix := fs.String("prefix", "ledger", "Object name prefix")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *bucket == "" {
		return errors.New("-bucket or GCS_BUCKET is required")
	}

	store, err := c.objectStore(ctx)
	if err != nil {
		return err
	}
	rep, err := c.reconcileWith(ctx, f, true, pipeline.WithExporter(export.NewExporter(store, *bucket, *prefix)))
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Exported %s\n", rep.ExportURI)
	return nil
}

func (c *cli) runSnapshot(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("snapshot", flag.ContinueOnError)
	fs.SetOutput(c.out)
	records := fs.String("records", "", "Source snapshot instead of BigQuery (local path or gs:// URI)")
	bucket := fs.String("bucket", c.cfg.Bucket, "GCS bucket (or set GCS_BUCKET)")
	name := fs.String("name", "", "Object name (default: records_<today>)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *bucket == "" {
		return errors.New("-bucket or GCS_BUCKET is required")
	}
	if *name == "" {
		*name = "records_" + civil.DateOf(c.now().In(c.cfg.Location)).String()
	}

	src, err := c.open(ctx, *records)
	if err != nil {
		return err
	}
	defer src.repo.Close()

	raw, err := bq.LoadRaw(ctx, src.repo, bq.RecordFilter{})
	if err != nil {
		return err
	}
	store, err := c.objectStore(ctx)
	if err != nil {
		return err
	}
	uri, err := export.NewExporter(store, *bucket, "snapshots").Export(ctx, *name, raw)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Snapshot written to %s\n", uri)
	return nil
}

func (c *cli) runSetOverride(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("set-override", flag.ContinueOnError)
	fs.SetOutput(c.out)
	records := fs.String("records", "", "Local JSON snapshot to update instead of BigQuery")
	store := fs.String("store", "", "Store ID")
	date := fs.String("date", "", "Business day, YYYY-MM-DD")
	value := fs.String("value", "", "Opening balance, e.g. 350,00")
	by := fs.String("by", os.Getenv("USER"), "Who sets the override")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *store == "" || *date == "" || *value == "" {
		return errors.New("usage: cli set-override -store ID -date YYYY-MM-DD -value AMOUNT")
	}
	if _, err := civil.ParseDate(*date); err != nil {
		return fmt.Errorf("invalid -date: %w", err)
	}
	if _, err := ledger.ParseAmount(*value); err != nil {
		return fmt.Errorf("invalid -value: %w", err)
	}

	src, err := c.open(ctx, *records)
	if err != nil {
		return err
	}
	defer src.repo.Close()

	row := &bq.OverrideRow{
		OverrideID:   uuid.New().String(),
		StoreID:      *store,
		BusinessDate: bq.Text(*date),
		Value:        bq.Text(*value),
		SetBy:        bq.Text(*by),
		SetAt:        bq.Text(c.now().UTC().Format(time.RFC3339)),
	}
	if err := src.repo.InsertOverride(ctx, row); err != nil {
		return err
	}
	if src.save != nil {
		if err := src.save(); err != nil {
			return err
		}
	}

	c.log.Info().Str("override_id", row.OverrideID).Str("store_id", *store).Str("date", *date).Msg("Override set")
	fmt.Fprintf(c.out, "Override %s set for store %s on %s\n", row.OverrideID, *store, *date)
	return nil
}

func (c *cli) runDeleteOverride(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("delete-override", flag.ContinueOnError)
	fs.SetOutput(c.out)
	records := fs.String("records", "", "Local JSON snapshot to update instead of BigQuery")
	id := fs.String("id", "", "Override ID")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return errors.New("usage: cli delete-override -id OVERRIDE_ID")
	}

	src, err := c.open(ctx, *records)
	if err != nil {
		return err
	}
	defer src.repo.Close()

	if err := src.repo.DeleteOverride(ctx, *id); err != nil {
		return err
	}
	if src.save != nil {
		if err := src.save(); err != nil {
			return err
		}
	}

	fmt.Fprintf(c.out, "Override %s deleted\n", *id)
	return nil
}
