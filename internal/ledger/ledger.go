package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/cash-ledger/internal/domain"
	"github.com/dvloznov/cash-ledger/internal/identity"
	"github.com/shopspring/decimal"
)

// ErrInvalidRange is returned when a ledger is requested for an invalid date range.
var ErrInvalidRange = errors.New("invalid date range")

// Config tunes the daily ledger computation.
type Config struct {
	// Tolerance is the discrepancy above which a count is flagged.
	Tolerance decimal.Decimal
	// FillRange emits a row for every day of the range, see Query.FillRange.
	FillRange bool
}

// DefaultConfig returns the configuration used by ComputeDailyLedger.
func DefaultConfig() Config {
	return Config{Tolerance: DefaultTolerance}
}

// ComputeDailyLedger computes one entry per (store, date) inside rng, ascending by store then date.
// Empty storeIDs means every store with records. Days before rng.Start feed the carry-forward
// chain but are not returned.
func ComputeDailyLedger(ctx context.Context, set RecordSet, storeIDs []domain.StoreID, rng domain.DateRange) ([]DailyLedgerEntry, error) {
	return ComputeDailyLedgerWithConfig(ctx, set, storeIDs, rng, DefaultConfig())
}

// ComputeDailyLedgerWithConfig is ComputeDailyLedger with an explicit configuration.
func ComputeDailyLedgerWithConfig(ctx context.Context, set RecordSet, storeIDs []domain.StoreID, rng domain.DateRange, cfg Config) ([]DailyLedgerEntry, error) {
	if err := rng.Validate(); err != nil {
		return nil, fmt.Errorf("ComputeDailyLedger: %w: %v", ErrInvalidRange, err)
	}

	buckets := Aggregate(set, Query{StoreIDs: storeIDs, Range: rng, FillRange: cfg.FillRange})
	chain, err := CarryForward(ctx, buckets)
	if err != nil {
		return nil, fmt.Errorf("ComputeDailyLedger: carry forward: %w", err)
	}

	stores := set.storeIndex()
	entries := make([]DailyLedgerEntry, 0, len(chain))
	for _, e := range chain {
		if !rng.Contains(e.Date) {
			continue
		}
		info, ok := stores[e.StoreID]
		e.StoreName = info.name
		e.Unmatched = !ok
		entries = append(entries, e)
	}

	return ApplyDiscrepancies(entries, cfg.Tolerance), nil
}

// ComputeActiveAlerts returns the stores whose latest count is above their active threshold.
func ComputeActiveAlerts(set RecordSet) []Alert {
	return ActiveAlerts(set)
}

// ComputeEmployeeFloatLedgers nets the float movements of every employee.
func ComputeEmployeeFloatLedgers(set RecordSet, resolver identity.Resolver) []EmployeeFloatLedger {
	return EmployeeFloatLedgers(set, resolver)
}
