package bigquery

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/bigquery"
	bq "github.com/dvloznov/cash-ledger/internal/bigquery"
	"google.golang.org/api/iterator"
)

// filterClause turns a RecordFilter into a WHERE clause and its parameters.
//
// Date columns hold free text, so the Until bound only applies to rows whose first ten characters
// parse as an ISO date, and it is widened by bq.UntilSlackDays. Everything else is returned and
// left to the normalizer and the pipeline to accept, reject or trim.
func filterClause(filter bq.RecordFilter, dateColumn string) (string, []bigquery.QueryParameter) {
	var conds []string
	var params []bigquery.QueryParameter

	if len(filter.StoreIDs) > 0 {
		conds = append(conds, "store_id IN UNNEST(@store_ids)")
		params = append(params, bigquery.QueryParameter{Name: "store_ids", Value: filter.StoreIDs})
	}
	if dateColumn != "" && filter.Until.IsValid() {
		parsed := fmt.Sprintf("SAFE.PARSE_DATE('%%Y-%%m-%%d', SUBSTR(TRIM(%s), 1, 10))", dateColumn)
		conds = append(conds, fmt.Sprintf("(%s IS NULL OR %s <= @until)", parsed, parsed))
		params = append(params, bigquery.QueryParameter{Name: "until", Value: filter.PushdownUntil()})
	}

	if len(conds) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conds, " AND "), params
}

// readAll runs q and decodes every row into a new T.
func readAll[T any](ctx context.Context, q *bigquery.Query) ([]*T, error) {
	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading query: %w", err)
	}

	rows := make([]*T, 0)
	for {
		var row T
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterating: %w", err)
		}
		rows = append(rows, &row)
	}
	return rows, nil
}

// ListStoresWithClient retrieves every store.
func ListStoresWithClient(ctx context.Context, client *bigquery.Client, ds Dataset) ([]*bq.StoreRow, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT store_id, name
		FROM %s
		ORDER BY store_id
	`, ds.table(storesTable)))

	rows, err := readAll[bq.StoreRow](ctx, q)
	if err != nil {
		return nil, fmt.Errorf("ListStoresWithClient: %w", err)
	}
	return rows, nil
}

// ListCashCountsWithClient retrieves physical counts. Until is ignored so the latest count of
// every store is always visible to the alert check.
func ListCashCountsWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, filter bq.RecordFilter) ([]*bq.CashCountRow, error) {
	where, params := filterClause(filter, "")
	q := client.Query(fmt.Sprintf(`
		SELECT
			count_id,
			store_id,
			counted_at,
			counted_value,
			recorded_by
		FROM %s
		%s
		ORDER BY store_id, counted_at, count_id
	`, ds.table(cashCountsTable), where))
	q.Parameters = params

	rows, err := readAll[bq.CashCountRow](ctx, q)
	if err != nil {
		return nil, fmt.Errorf("ListCashCountsWithClient: %w", err)
	}
	return rows, nil
}

// ListCashInsWithClient retrieves daily cash-in aggregates up to filter.Until.
func ListCashInsWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, filter bq.RecordFilter) ([]*bq.CashInRow, error) {
	where, params := filterClause(filter, "business_date")
	q := client.Query(fmt.Sprintf(`
		SELECT
			store_id,
			business_date,
			amount
		FROM %s
		%s
		ORDER BY store_id, business_date
	`, ds.table(cashInsTable), where))
	q.Parameters = params

	rows, err := readAll[bq.CashInRow](ctx, q)
	if err != nil {
		return nil, fmt.Errorf("ListCashInsWithClient: %w", err)
	}
	return rows, nil
}

// ListWithdrawalsWithClient retrieves withdrawals up to filter.Until.
func ListWithdrawalsWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, filter bq.RecordFilter) ([]*bq.WithdrawalRow, error) {
	where, params := filterClause(filter, "withdrawn_at")
	q := client.Query(fmt.Sprintf(`
		SELECT
			withdrawal_id,
			store_id,
			withdrawn_at,
			amount,
			recorded_by,
			note
		FROM %s
		%s
		ORDER BY store_id, withdrawn_at, withdrawal_id
	`, ds.table(withdrawalsTable), where))
	q.Parameters = params

	rows, err := readAll[bq.WithdrawalRow](ctx, q)
	if err != nil {
		return nil, fmt.Errorf("ListWithdrawalsWithClient: %w", err)
	}
	return rows, nil
}

// ListDepositsWithClient retrieves deposits of every kind up to filter.Until.
func ListDepositsWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, filter bq.RecordFilter) ([]*bq.DepositRow, error) {
	where, params := filterClause(filter, "deposited_at")
	q := client.Query(fmt.Sprintf(`
		SELECT
			deposit_id,
			store_id,
			deposited_at,
			amount,
			recorded_by,
			kind,
			note
		FROM %s
		%s
		ORDER BY store_id, deposited_at, deposit_id
	`, ds.table(depositsTable), where))
	q.Parameters = params

	rows, err := readAll[bq.DepositRow](ctx, q)
	if err != nil {
		return nil, fmt.Errorf("ListDepositsWithClient: %w", err)
	}
	return rows, nil
}

// ListOverridesWithClient retrieves manual opening balances up to filter.Until.
func ListOverridesWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, filter bq.RecordFilter) ([]*bq.OverrideRow, error) {
	where, params := filterClause(filter, "business_date")
	q := client.Query(fmt.Sprintf(`
		SELECT
			override_id,
			store_id,
			business_date,
			override_value,
			set_by,
			set_at
		FROM %s
		%s
		ORDER BY store_id, business_date, set_at, override_id
	`, ds.table(overridesTable), where))
	q.Parameters = params

	rows, err := readAll[bq.OverrideRow](ctx, q)
	if err != nil {
		return nil, fmt.Errorf("ListOverridesWithClient: %w", err)
	}
	return rows, nil
}

// ListAlertConfigsWithClient retrieves every alert configuration, active or not.
func ListAlertConfigsWithClient(ctx context.Context, client *bigquery.Client, ds Dataset) ([]*bq.AlertConfigRow, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT store_id, threshold, is_active
		FROM %s
		ORDER BY store_id
	`, ds.table(alertConfigsTable)))

	rows, err := readAll[bq.AlertConfigRow](ctx, q)
	if err != nil {
		return nil, fmt.Errorf("ListAlertConfigsWithClient: %w", err)
	}
	return rows, nil
}
