// Package memory is an in-process implementation of the ledger repositories.
// It backs tests and local runs without BigQuery; data is lost on restart.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"cloud.google.com/go/civil"
	bq "github.com/dvloznov/cash-ledger/internal/bigquery"
	"github.com/dvloznov/cash-ledger/internal/export"
)

// Repository stores raw rows in memory and is safe for concurrent use.
// Rows are copied on the way in and on the way out.
type Repository struct {
	mu      sync.RWMutex
	records bq.RawRecords
}

// NewRepository creates a repository seeded with a copy of raw, which may be nil.
func NewRepository(raw *bq.RawRecords) *Repository {
	r := &Repository{}
	if raw != nil {
		r.records = copyRecords(raw)
	}
	return r
}

// LoadFile reads a JSON snapshot of raw records, in the same shape the exporter writes them.
func LoadFile(path string) (*Repository, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("LoadFile: reading %s: %w", path, err)
	}
	var raw bq.RawRecords
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("LoadFile: decoding %s: %w", path, err)
	}
	return NewRepository(&raw), nil
}

// SaveFile writes every stored row to path as a JSON snapshot that LoadFile can read back.
func (r *Repository) SaveFile(path string) error {
	data, err := json.MarshalIndent(r.Snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("SaveFile: encoding: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("SaveFile: writing %s: %w", path, err)
	}
	return nil
}

// Load opens a snapshot from a local path or, for gs:// sources, from store.
func Load(ctx context.Context, source string, store export.ObjectStore) (*Repository, error) {
	if !strings.HasPrefix(source, "gs://") {
		return LoadFile(source)
	}
	if store == nil {
		return nil, fmt.Errorf("Load: no object store for %s", source)
	}
	var raw bq.RawRecords
	if err := export.Fetch(ctx, store, source, &raw); err != nil {
		return nil, fmt.Errorf("Load: %w", err)
	}
	return NewRepository(&raw), nil
}

// Snapshot returns a copy of every stored row.
func (r *Repository) Snapshot() *bq.RawRecords {
	r.mu.RLock()
	defer r.mu.RUnlock()
	raw := copyRecords(&r.records)
	return &raw
}

func (r *Repository) Close() error { return nil }

func (r *Repository) ListStores(ctx context.Context) ([]*bq.StoreRow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return copyRows(r.records.Stores, func(*bq.StoreRow) bool { return true }), nil
}

func (r *Repository) ListCashCounts(ctx context.Context, filter bq.RecordFilter) ([]*bq.CashCountRow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return copyRows(r.records.CashCounts, func(row *bq.CashCountRow) bool {
		return matchStore(filter, row.StoreID)
	}), nil
}

func (r *Repository) ListCashIns(ctx context.Context, filter bq.RecordFilter) ([]*bq.CashInRow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return copyRows(r.records.CashIns, func(row *bq.CashInRow) bool {
		return matchStore(filter, row.StoreID) && matchUntil(filter, row.BusinessDate.StringVal)
	}), nil
}

func (r *Repository) ListWithdrawals(ctx context.Context, filter bq.RecordFilter) ([]*bq.WithdrawalRow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return copyRows(r.records.Withdrawals, func(row *bq.WithdrawalRow) bool {
		return matchStore(filter, row.StoreID) && matchUntil(filter, row.WithdrawnAt.StringVal)
	}), nil
}

func (r *Repository) ListDeposits(ctx context.Context, filter bq.RecordFilter) ([]*bq.DepositRow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return copyRows(r.records.Deposits, func(row *bq.DepositRow) bool {
		return matchStore(filter, row.StoreID) && matchUntil(filter, row.DepositedAt.StringVal)
	}), nil
}

func (r *Repository) ListOverrides(ctx context.Context, filter bq.RecordFilter) ([]*bq.OverrideRow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return copyRows(r.records.Overrides, func(row *bq.OverrideRow) bool {
		return matchStore(filter, row.StoreID) && matchUntil(filter, row.BusinessDate.StringVal)
	}), nil
}

func (r *Repository) ListAlertConfigs(ctx context.Context) ([]*bq.AlertConfigRow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return copyRows(r.records.AlertConfigs, func(*bq.AlertConfigRow) bool { return true }), nil
}

// InsertOverride implements bq.OverrideRepository.
func (r *Repository) InsertOverride(ctx context.Context, row *bq.OverrideRow) error {
	if row == nil || row.OverrideID == "" {
		return fmt.Errorf("InsertOverride: override_id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	rowCopy := *row
	r.records.Overrides = append(r.records.Overrides, &rowCopy)
	return nil
}

// DeleteOverride implements bq.OverrideRepository.
func (r *Repository) DeleteOverride(ctx context.Context, overrideID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.records.Overrides[:0]
	found := false
	for _, o := range r.records.Overrides {
		if o.OverrideID == overrideID {
			found = true
			continue
		}
		kept = append(kept, o)
	}
	if !found {
		return fmt.Errorf("DeleteOverride: override %s: %w", overrideID, bq.ErrNotFound)
	}
	r.records.Overrides = kept
	return nil
}

// InsertWithdrawal implements bq.MovementRepository.
func (r *Repository) InsertWithdrawal(ctx context.Context, row *bq.WithdrawalRow) error {
	if row == nil || row.WithdrawalID == "" {
		return fmt.Errorf("InsertWithdrawal: withdrawal_id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	rowCopy := *row
	r.records.Withdrawals = append(r.records.Withdrawals, &rowCopy)
	return nil
}

// InsertDeposit implements bq.MovementRepository.
func (r *Repository) InsertDeposit(ctx context.Context, row *bq.DepositRow) error {
	if row == nil || row.DepositID == "" {
		return fmt.Errorf("InsertDeposit: deposit_id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	rowCopy := *row
	r.records.Deposits = append(r.records.Deposits, &rowCopy)
	return nil
}

func matchStore(filter bq.RecordFilter, storeID string) bool {
	if len(filter.StoreIDs) == 0 {
		return true
	}
	for _, id := range filter.StoreIDs {
		if id == storeID {
			return true
		}
	}
	return false
}

// matchUntil mirrors the BigQuery pushdown, slack included: rows whose text does not start
// with an ISO date are always returned.
func matchUntil(filter bq.RecordFilter, text string) bool {
	if !filter.Until.IsValid() {
		return true
	}
	text = strings.TrimSpace(text)
	if len(text) > 10 {
		text = text[:10]
	}
	d, err := civil.ParseDate(text)
	if err != nil {
		return true
	}
	return !d.After(filter.PushdownUntil())
}

func copyRows[T any](rows []*T, keep func(*T) bool) []*T {
	out := make([]*T, 0, len(rows))
	for _, row := range rows {
		if row == nil || !keep(row) {
			continue
		}
		rowCopy := *row
		out = append(out, &rowCopy)
	}
	return out
}

func copyRecords(raw *bq.RawRecords) bq.RawRecords {
	return bq.RawRecords{
		Stores:       copyRows(raw.Stores, func(*bq.StoreRow) bool { return true }),
		CashCounts:   copyRows(raw.CashCounts, func(*bq.CashCountRow) bool { return true }),
		CashIns:      copyRows(raw.CashIns, func(*bq.CashInRow) bool { return true }),
		Withdrawals:  copyRows(raw.Withdrawals, func(*bq.WithdrawalRow) bool { return true }),
		Deposits:     copyRows(raw.Deposits, func(*bq.DepositRow) bool { return true }),
		Overrides:    copyRows(raw.Overrides, func(*bq.OverrideRow) bool { return true }),
		AlertConfigs: copyRows(raw.AlertConfigs, func(*bq.AlertConfigRow) bool { return true }),
	}
}

var _ bq.LedgerRepository = (*Repository)(nil)
