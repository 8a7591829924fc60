package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	bq "github.com/dvloznov/cash-ledger/internal/bigquery"
)

// runDML runs a DML statement and returns the number of affected rows.
func runDML(ctx context.Context, q *bigquery.Query) (int64, error) {
	job, err := q.Run(ctx)
	if err != nil {
		return 0, fmt.Errorf("run query: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return 0, fmt.Errorf("wait for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return 0, fmt.Errorf("job error: %w", err)
	}

	if status.Statistics != nil {
		if qs, ok := status.Statistics.Details.(*bigquery.QueryStatistics); ok {
			return qs.NumDMLAffectedRows, nil
		}
	}
	return 0, nil
}

// InsertOverrideWithClient stores a manual opening balance.
// Overrides are written with DML rather than streamed so that they can be deleted right away.
func InsertOverrideWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, row *bq.OverrideRow) error {
	if row == nil || row.OverrideID == "" {
		return fmt.Errorf("InsertOverrideWithClient: override_id cannot be empty")
	}

	q := client.Query(fmt.Sprintf(`
		INSERT %s (
			override_id,
			store_id,
			business_date,
			override_value,
			set_by,
			set_at
		)
		VALUES (
			@override_id,
			@store_id,
			@business_date,
			@override_value,
			@set_by,
			@set_at
		)
	`, ds.table(overridesTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "override_id", Value: row.OverrideID},
		{Name: "store_id", Value: row.StoreID},
		{Name: "business_date", Value: row.BusinessDate},
		{Name: "override_value", Value: row.Value},
		{Name: "set_by", Value: row.SetBy},
		{Name: "set_at", Value: row.SetAt},
	}

	if _, err := runDML(ctx, q); err != nil {
		return fmt.Errorf("InsertOverrideWithClient: %w", err)
	}
	return nil
}

// DeleteOverrideWithClient removes an override. It returns bq.ErrNotFound when no row matched.
func DeleteOverrideWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, overrideID string) error {
	q := client.Query(fmt.Sprintf(`
		DELETE FROM %s
		WHERE override_id = @override_id
	`, ds.table(overridesTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "override_id", Value: overrideID},
	}

	affected, err := runDML(ctx, q)
	if err != nil {
		return fmt.Errorf("DeleteOverrideWithClient: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("DeleteOverrideWithClient: override %s: %w", overrideID, bq.ErrNotFound)
	}
	return nil
}

// InsertWithdrawalWithClient streams a withdrawal into the withdrawals table.
func InsertWithdrawalWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, row *bq.WithdrawalRow) error {
	inserter := client.DatasetInProject(ds.ProjectID, ds.DatasetID).Table(withdrawalsTable).Inserter()
	if err := inserter.Put(ctx, row); err != nil {
		return fmt.Errorf("InsertWithdrawalWithClient: inserting row: %w", err)
	}
	return nil
}

// InsertDepositWithClient streams a deposit into the deposits table.
func InsertDepositWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, row *bq.DepositRow) error {
	inserter := client.DatasetInProject(ds.ProjectID, ds.DatasetID).Table(depositsTable).Inserter()
	if err := inserter.Put(ctx, row); err != nil {
		return fmt.Errorf("InsertDepositWithClient: inserting row: %w", err)
	}
	return nil
}
