package bigquery

import (
	"context"
	"errors"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
)

// ErrNotFound is returned when a record to delete does not exist.
var ErrNotFound = errors.New("record not found")

// RecordFilter narrows the rows returned by a RecordRepository.
// Until is an inclusive upper bound on the record's business day, applied by repositories with
// PushdownUntil; the zero value means unbounded.
// There is deliberately no lower bound: the carry-forward chain needs the full history.
type RecordFilter struct {
	StoreIDs []string
	Until    civil.Date
}

// UntilSlackDays widens the Until pushdown. Repositories compare the date written in the row,
// while the business day is taken after converting its offset to the business timezone, which
// can move it back by more than a day. Callers trim the normalized records to Until.
const UntilSlackDays = 2

// PushdownUntil is the last text date a repository must return for this filter.
func (f RecordFilter) PushdownUntil() civil.Date {
	return f.Until.AddDays(UntilSlackDays)
}

// RecordRepository lists the source records of the cash ledger.
type RecordRepository interface {
	// ListStores retrieves every store.
	ListStores(ctx context.Context) ([]*StoreRow, error)

	// ListCashCounts retrieves physical counts. Counts ignore Until so the latest count is always visible.
	ListCashCounts(ctx context.Context, filter RecordFilter) ([]*CashCountRow, error)

	// ListCashIns retrieves the daily cash-in aggregates.
	ListCashIns(ctx context.Context, filter RecordFilter) ([]*CashInRow, error)

	// ListWithdrawals retrieves cash withdrawals.
	ListWithdrawals(ctx context.Context, filter RecordFilter) ([]*WithdrawalRow, error)

	// ListDeposits retrieves deposits of every kind.
	ListDeposits(ctx context.Context, filter RecordFilter) ([]*DepositRow, error)

	// ListOverrides retrieves manual opening balance overrides.
	ListOverrides(ctx context.Context, filter RecordFilter) ([]*OverrideRow, error)

	// ListAlertConfigs retrieves the alert configuration of every store.
	ListAlertConfigs(ctx context.Context) ([]*AlertConfigRow, error)
}

// OverrideRepository writes manual opening balance overrides.
type OverrideRepository interface {
	// InsertOverride stores a new override.
	InsertOverride(ctx context.Context, row *OverrideRow) error

	// DeleteOverride removes an override by ID. It returns ErrNotFound when nothing was deleted.
	DeleteOverride(ctx context.Context, overrideID string) error
}

// MovementRepository writes cash movements entered by staff.
type MovementRepository interface {
	// InsertWithdrawal stores a new withdrawal.
	InsertWithdrawal(ctx context.Context, row *WithdrawalRow) error

	// InsertDeposit stores a new deposit.
	InsertDeposit(ctx context.Context, row *DepositRow) error
}

// LedgerRepository is the full record store used by the API and the worker.
type LedgerRepository interface {
	RecordRepository
	OverrideRepository
	MovementRepository
	Close() error
}

// RawRecords is one snapshot of every source record, exactly as stored.
type RawRecords struct {
	Stores       []*StoreRow       `json:"stores"`
	CashCounts   []*CashCountRow   `json:"cash_counts"`
	CashIns      []*CashInRow      `json:"cash_ins"`
	Withdrawals  []*WithdrawalRow  `json:"withdrawals"`
	Deposits     []*DepositRow     `json:"deposits"`
	Overrides    []*OverrideRow    `json:"overrides"`
	AlertConfigs []*AlertConfigRow `json:"alert_configs"`
}

// StoreRow represents a store record in BigQuery.
type StoreRow struct {
	StoreID string `bigquery:"store_id" json:"store_id"`
	Name    string `bigquery:"name" json:"name"`
}

// The forms that feed the ledger write timestamps and amounts as free text, so those
// columns are STRING and are parsed by the normalizer rather than by BigQuery.

// CashCountRow represents a physical cash count in BigQuery.
type CashCountRow struct {
	CountID    string              `bigquery:"count_id" json:"count_id"`
	StoreID    string              `bigquery:"store_id" json:"store_id"`
	CountedAt  bigquery.NullString `bigquery:"counted_at" json:"counted_at"`
	Value      bigquery.NullString `bigquery:"counted_value" json:"counted_value"`
	RecordedBy bigquery.NullString `bigquery:"recorded_by" json:"recorded_by"`
}

// CashInRow represents a daily cash-in aggregate in BigQuery.
type CashInRow struct {
	StoreID      string              `bigquery:"store_id" json:"store_id"`
	BusinessDate bigquery.NullString `bigquery:"business_date" json:"business_date"`
	Amount       bigquery.NullString `bigquery:"amount" json:"amount"`
}

// WithdrawalRow represents a withdrawal ("prelievo") in BigQuery.
type WithdrawalRow struct {
	WithdrawalID string              `bigquery:"withdrawal_id" json:"withdrawal_id"`
	StoreID      string              `bigquery:"store_id" json:"store_id"`
	WithdrawnAt  bigquery.NullString `bigquery:"withdrawn_at" json:"withdrawn_at"`
	Amount       bigquery.NullString `bigquery:"amount" json:"amount"`
	RecordedBy   bigquery.NullString `bigquery:"recorded_by" json:"recorded_by"`
	Note         bigquery.NullString `bigquery:"note" json:"note"`
}

// DepositRow represents a deposit ("deposito") in BigQuery.
type DepositRow struct {
	DepositID   string              `bigquery:"deposit_id" json:"deposit_id"`
	StoreID     string              `bigquery:"store_id" json:"store_id"`
	DepositedAt bigquery.NullString `bigquery:"deposited_at" json:"deposited_at"`
	Amount      bigquery.NullString `bigquery:"amount" json:"amount"`
	RecordedBy  bigquery.NullString `bigquery:"recorded_by" json:"recorded_by"`
	Kind        bigquery.NullString `bigquery:"kind" json:"kind"`
	Note        bigquery.NullString `bigquery:"note" json:"note"`
}

// OverrideRow represents a manual opening balance ("saldo manuale cassa") in BigQuery.
type OverrideRow struct {
	OverrideID   string              `bigquery:"override_id" json:"override_id"`
	StoreID      string              `bigquery:"store_id" json:"store_id"`
	BusinessDate bigquery.NullString `bigquery:"business_date" json:"business_date"`
	Value        bigquery.NullString `bigquery:"override_value" json:"override_value"`
	SetBy        bigquery.NullString `bigquery:"set_by" json:"set_by"`
	SetAt        bigquery.NullString `bigquery:"set_at" json:"set_at"`
}

// AlertConfigRow represents the alert threshold of a store in BigQuery.
type AlertConfigRow struct {
	StoreID   string              `bigquery:"store_id" json:"store_id"`
	Threshold bigquery.NullString `bigquery:"threshold" json:"threshold"`
	IsActive  bigquery.NullBool   `bigquery:"is_active" json:"is_active"`
}

// Text wraps a non-empty string into a valid NullString; empty strings become NULL.
func Text(s string) bigquery.NullString {
	if s == "" {
		return bigquery.NullString{}
	}
	return bigquery.NullString{StringVal: s, Valid: true}
}

// Bool wraps b into a valid NullBool.
func Bool(b bool) bigquery.NullBool {
	return bigquery.NullBool{Bool: b, Valid: true}
}
