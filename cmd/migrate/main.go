package main

import (
	"context"
	"crypto/sha256"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/cash-ledger/internal/config"
	"github.com/dvloznov/cash-ledger/internal/logger"
	"google.golang.org/api/iterator"
)

// Migration represents a single migration file
type Migration struct {
	Version  int
	Name     string
	Filename string
	SQL      string
	Checksum string
}

// AppliedMigration represents a migration that has already been applied
type AppliedMigration struct {
	Version   int
	Name      string
	AppliedAt time.Time
	Checksum  string
	AppliedBy string
}

// Pattern to match migration files: 0001_name.sql
var migrationPattern = regexp.MustCompile(`^(\d{4})_(.+)\.sql$`)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	var (
		projectID     = flag.String("project", cfg.ProjectID, "GCP project ID (or set GCP_PROJECT_ID)")
		datasetID     = flag.String("dataset", cfg.DatasetID, "BigQuery dataset ID (or set BQ_DATASET)")
		appliedBy     = flag.String("applied-by", "migrate-cli", "Name of the tool applying migrations")
		migrationsDir = flag.String("migrations", "migrations/bigquery", "Path to migrations directory")
		dryRun        = flag.Bool("dry-run", false, "List pending migrations without applying them")
	)
	flag.Parse()

	log := logger.New()
	ctx := context.Background()

	if *projectID == "" {
		log.Fatal().Msg("-project flag or GCP_PROJECT_ID is required")
	}

	client, err := bigquery.NewClient(ctx, *projectID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create BigQuery client")
	}
	defer client.Close()

	m := &migrator{client: client, projectID: *projectID, datasetID: *datasetID, appliedBy: *appliedBy}
	log.Info().Str("project", *projectID).Str("dataset", *datasetID).Msg("Connected to BigQuery")

	if err := m.ensureSchemaMigrationsTable(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure schema_migrations table")
	}

	migrations, err := readMigrations(findMigrationsDir(*migrationsDir), *projectID, *datasetID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read migrations")
	}
	log.Info().Int("count", len(migrations)).Msg("Found migration files")

	applied, err := m.getAppliedMigrations(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to get applied migrations")
	}
	log.Info().Int("count", len(applied)).Msg("Found already applied migrations")

	for _, changed := range changedMigrations(migrations, applied) {
		log.Warn().Str("migration", changed.Filename).Msg("Applied migration was modified after it ran")
	}

	pending := pendingMigrations(migrations, applied)
	if len(pending) == 0 {
		log.Info().Msg("No new migrations to apply. Database is up to date.")
		return
	}

	for _, migration := range pending {
		mlog := log.With().Str("migration", migration.Filename).Logger()
		if *dryRun {
			mlog.Info().Msg("[PENDING]")
			continue
		}

		mlog.Info().Msg("[RUN]")
		if err := m.run(ctx, migration.SQL, nil); err != nil {
			mlog.Fatal().Err(err).Msg("Failed to execute migration")
		}
		if err := m.recordMigration(ctx, migration); err != nil {
			mlog.Fatal().Err(err).Msg("Failed to record migration")
		}
		mlog.Info().Msg("[OK]")
	}

	if !*dryRun {
		log.Info().Int("count", len(pending)).Msg("Successfully applied migrations")
	}
}

// findMigrationsDir falls back to the repository root when run from cmd/migrate.
func findMigrationsDir(dir string) string {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if alt := filepath.Join("..", "..", dir); dirExists(alt) {
			return alt
		}
	}
	return dir
}

func dirExists(dir string) bool {
	info, err := os.Stat(dir)
	return err == nil && info.IsDir()
}

// parseMigrationFilename splits "0002_create_tables.sql" into 2 and "create_tables".
func parseMigrationFilename(filename string) (int, string, bool) {
	matches := migrationPattern.FindStringSubmatch(filename)
	if matches == nil {
		return 0, "", false
	}
	version, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0, "", false
	}
	return version, matches[2], true
}

// readMigrations reads all migration files from dir, sorted by version, with the
// {{PROJECT_ID}} and {{DATASET_ID}} placeholders replaced.
func readMigrations(dir, projectID, datasetID string) ([]Migration, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading migrations directory: %w", err)
	}

	var migrations []Migration
	for _, file := range files {
		if file.IsDir() {
			continue
		}

		version, name, ok := parseMigrationFilename(file.Name())
		if !ok {
			continue
		}

		content, err := os.ReadFile(filepath.Join(dir, file.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading file %s: %w", file.Name(), err)
		}

		sql := string(content)
		sql = strings.ReplaceAll(sql, "{{PROJECT_ID}}", projectID)
		sql = strings.ReplaceAll(sql, "{{DATASET_ID}}", datasetID)

		// Checksum the file before replacements so it does not depend on the target dataset.
		migrations = append(migrations, Migration{
			Version:  version,
			Name:     name,
			Filename: file.Name(),
			SQL:      sql,
			Checksum: fmt.Sprintf("%x", sha256.Sum256(content)),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	return migrations, nil
}

// pendingMigrations returns the migrations whose version was never applied.
func pendingMigrations(all []Migration, applied []AppliedMigration) []Migration {
	done := make(map[int]bool, len(applied))
	for _, am := range applied {
		done[am.Version] = true
	}

	var pending []Migration
	for _, m := range all {
		if !done[m.Version] {
			pending = append(pending, m)
		}
	}
	return pending
}

// changedMigrations returns applied migrations whose file checksum no longer matches.
func changedMigrations(all []Migration, applied []AppliedMigration) []Migration {
	sums := make(map[int]string, len(applied))
	for _, am := range applied {
		sums[am.Version] = am.Checksum
	}

	var changed []Migration
	for _, m := range all {
		if sum, ok := sums[m.Version]; ok && sum != "" && sum != m.Checksum {
			changed = append(changed, m)
		}
	}
	return changed
}

type migrator struct {
	client    *bigquery.Client
	projectID string
	datasetID string
	appliedBy string
}

func (m *migrator) table() string {
	return fmt.Sprintf("`%s.%s.schema_migrations`", m.projectID, m.datasetID)
}

// run executes a statement and waits for it to finish.
func (m *migrator) run(ctx context.Context, sql string, params []bigquery.QueryParameter) error {
	query := m.client.Query(sql)
	query.Parameters = params

	job, err := query.Run(ctx)
	if err != nil {
		return fmt.Errorf("running query: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("waiting for job: %w", err)
	}

	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}

	return nil
}

// ensureSchemaMigrationsTable creates the schema_migrations table if it doesn't exist
func (m *migrator) ensureSchemaMigrationsTable(ctx context.Context) error {
	return m.run(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			version       INT64 NOT NULL,
			name          STRING NOT NULL,
			applied_at    TIMESTAMP NOT NULL,
			checksum      STRING,
			applied_by    STRING
		)
	`, m.table()), nil)
}

// getAppliedMigrations retrieves the list of already applied migrations
func (m *migrator) getAppliedMigrations(ctx context.Context) ([]AppliedMigration, error) {
	query := m.client.Query(fmt.Sprintf(`
		SELECT version, name, applied_at, checksum, applied_by
		FROM %s
		ORDER BY version ASC
	`, m.table()))

	it, err := query.Read(ctx)
	if err != nil {
		// If table doesn't exist yet, return empty list
		if strings.Contains(err.Error(), "Not found") {
			return []AppliedMigration{}, nil
		}
		return nil, fmt.Errorf("reading applied migrations: %w", err)
	}

	var applied []AppliedMigration
	for {
		var row struct {
			Version   int64               `bigquery:"version"`
			Name      string              `bigquery:"name"`
			AppliedAt time.Time           `bigquery:"applied_at"`
			Checksum  bigquery.NullString `bigquery:"checksum"`
			AppliedBy bigquery.NullString `bigquery:"applied_by"`
		}

		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterating results: %w", err)
		}

		applied = append(applied, AppliedMigration{
			Version:   int(row.Version),
			Name:      row.Name,
			AppliedAt: row.AppliedAt,
			Checksum:  row.Checksum.StringVal,
			AppliedBy: row.AppliedBy.StringVal,
		})
	}

	return applied, nil
}

// recordMigration records a successfully applied migration in schema_migrations
func (m *migrator) recordMigration(ctx context.Context, migration Migration) error {
	return m.run(ctx, fmt.Sprintf(`
		INSERT INTO %s
		(version, name, applied_at, checksum, applied_by)
		VALUES (@version, @name, CURRENT_TIMESTAMP(), @checksum, @applied_by)
	`, m.table()), []bigquery.QueryParameter{
		{Name: "version", Value: migration.Version},
		{Name: "name", Value: migration.Name},
		{Name: "checksum", Value: migration.Checksum},
		{Name: "applied_by", Value: m.appliedBy},
	})
}
