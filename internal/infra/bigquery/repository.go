package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	bq "github.com/dvloznov/cash-ledger/internal/bigquery"
)

// Re-export interfaces from shared package for callers that only import infra.
type (
	RecordRepository   = bq.RecordRepository
	OverrideRepository = bq.OverrideRepository
	MovementRepository = bq.MovementRepository
)

// Dataset locates the cash ledger tables.
type Dataset struct {
	ProjectID string
	DatasetID string
}

// table returns the fully qualified, backquoted table name for use in SQL.
func (d Dataset) table(name string) string {
	return fmt.Sprintf("`%s.%s.%s`", d.ProjectID, d.DatasetID, name)
}

const (
	storesTable       = "stores"
	cashCountsTable   = "cash_counts"
	cashInsTable      = "cash_ins"
	withdrawalsTable  = "withdrawals"
	depositsTable     = "deposits"
	overridesTable    = "manual_overrides"
	alertConfigsTable = "alert_configs"
)

// BigQueryLedgerRepository is the BigQuery implementation of bq.LedgerRepository.
// It holds a shared client to avoid creating a new connection for each operation.
type BigQueryLedgerRepository struct {
	client  *bigquery.Client
	dataset Dataset
}

// NewBigQueryLedgerRepository creates a repository over projectID.datasetID.
func NewBigQueryLedgerRepository(ctx context.Context, projectID, datasetID string) (*BigQueryLedgerRepository, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewBigQueryLedgerRepository: creating client: %w", err)
	}
	return NewBigQueryLedgerRepositoryWithClient(client, datasetID), nil
}

// NewBigQueryLedgerRepositoryWithClient wraps an existing client. Close closes the client.
func NewBigQueryLedgerRepositoryWithClient(client *bigquery.Client, datasetID string) *BigQueryLedgerRepository {
	return &BigQueryLedgerRepository{
		client:  client,
		dataset: Dataset{ProjectID: client.Project(), DatasetID: datasetID},
	}
}

// Close closes the BigQuery client connection.
func (r *BigQueryLedgerRepository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

func (r *BigQueryLedgerRepository) ListStores(ctx context.Context) ([]*bq.StoreRow, error) {
	return ListStoresWithClient(ctx, r.client, r.dataset)
}

func (r *BigQueryLedgerRepository) ListCashCounts(ctx context.Context, filter bq.RecordFilter) ([]*bq.CashCountRow, error) {
	return ListCashCountsWithClient(ctx, r.client, r.dataset, filter)
}

func (r *BigQueryLedgerRepository) ListCashIns(ctx context.Context, filter bq.RecordFilter) ([]*bq.CashInRow, error) {
	return ListCashInsWithClient(ctx, r.client, r.dataset, filter)
}

func (r *BigQueryLedgerRepository) ListWithdrawals(ctx context.Context, filter bq.RecordFilter) ([]*bq.WithdrawalRow, error) {
	return ListWithdrawalsWithClient(ctx, r.client, r.dataset, filter)
}

func (r *BigQueryLedgerRepository) ListDeposits(ctx context.Context, filter bq.RecordFilter) ([]*bq.DepositRow, error) {
	return ListDepositsWithClient(ctx, r.client, r.dataset, filter)
}

func (r *BigQueryLedgerRepository) ListOverrides(ctx context.Context, filter bq.RecordFilter) ([]*bq.OverrideRow, error) {
	return ListOverridesWithClient(ctx, r.client, r.dataset, filter)
}

func (r *BigQueryLedgerRepository) ListAlertConfigs(ctx context.Context) ([]*bq.AlertConfigRow, error) {
	return ListAlertConfigsWithClient(ctx, r.client, r.dataset)
}

func (r *BigQueryLedgerRepository) InsertOverride(ctx context.Context, row *bq.OverrideRow) error {
	return InsertOverrideWithClient(ctx, r.client, r.dataset, row)
}

func (r *BigQueryLedgerRepository) DeleteOverride(ctx context.Context, overrideID string) error {
	return DeleteOverrideWithClient(ctx, r.client, r.dataset, overrideID)
}

func (r *BigQueryLedgerRepository) InsertWithdrawal(ctx context.Context, row *bq.WithdrawalRow) error {
	return InsertWithdrawalWithClient(ctx, r.client, r.dataset, row)
}

func (r *BigQueryLedgerRepository) InsertDeposit(ctx context.Context, row *bq.DepositRow) error {
	return InsertDepositWithClient(ctx, r.client, r.dataset, row)
}

var _ bq.LedgerRepository = (*BigQueryLedgerRepository)(nil)
