// Package config loads runtime settings from the environment, optionally seeded from a .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // containers often ship without zoneinfo

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds application configuration values.
type Config struct {
	ProjectID string
	DatasetID string
	Bucket    string
	HTTPPort  string
	LogLevel  string

	// Location is the business timezone used to turn timestamps into calendar days.
	Location *time.Location
	// Tolerance is the per-entry discrepancy above which a count is flagged.
	Tolerance decimal.Decimal

	JobWorkers int
	JobBuffer  int
}

const (
	defaultDataset   = "cash"
	defaultPort      = "8080"
	defaultLogLevel  = "info"
	defaultTimezone  = "Europe/Rome"
	defaultTolerance = "0.5"
	defaultWorkers   = 5
	defaultBuffer    = 100
)

// Load reads a .env file from the working directory when one exists, then the environment.
// Variables already set in the environment win over the file.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("Load: reading .env: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function, applying defaults for unset values.
func FromEnv(getenv func(string) string) (Config, error) {
	get := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	cfg := Config{
		ProjectID: get("GCP_PROJECT_ID", ""),
		DatasetID: get("BQ_DATASET", defaultDataset),
		Bucket:    get("GCS_BUCKET", ""),
		HTTPPort:  get("HTTP_PORT", defaultPort),
		LogLevel:  get("LOG_LEVEL", defaultLogLevel),
	}

	if _, err := strconv.Atoi(cfg.HTTPPort); err != nil {
		return Config{}, fmt.Errorf("FromEnv: invalid HTTP_PORT %q", cfg.HTTPPort)
	}

	loc, err := time.LoadLocation(get("LEDGER_TIMEZONE", defaultTimezone))
	if err != nil {
		return Config{}, fmt.Errorf("FromEnv: LEDGER_TIMEZONE: %w", err)
	}
	cfg.Location = loc

	tol, err := decimal.NewFromString(get("LEDGER_DISCREPANCY_TOLERANCE", defaultTolerance))
	if err != nil {
		return Config{}, fmt.Errorf("FromEnv: LEDGER_DISCREPANCY_TOLERANCE: %w", err)
	}
	if tol.IsNegative() {
		return Config{}, fmt.Errorf("FromEnv: LEDGER_DISCREPANCY_TOLERANCE must not be negative")
	}
	cfg.Tolerance = tol

	if cfg.JobWorkers, err = positiveInt(get("JOB_WORKERS", ""), defaultWorkers); err != nil {
		return Config{}, fmt.Errorf("FromEnv: JOB_WORKERS: %w", err)
	}
	if cfg.JobBuffer, err = positiveInt(get("JOB_BUFFER", ""), defaultBuffer); err != nil {
		return Config{}, fmt.Errorf("FromEnv: JOB_BUFFER: %w", err)
	}

	return cfg, nil
}

// RequireProject returns an error when no GCP project is configured.
func (c Config) RequireProject() error {
	if c.ProjectID == "" {
		return fmt.Errorf("GCP_PROJECT_ID is not set")
	}
	return nil
}

func positiveInt(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("must be positive, got %d", n)
	}
	return n, nil
}
