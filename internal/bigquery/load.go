package bigquery

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// LoadRaw fetches one snapshot of every record kind. The kinds are listed concurrently;
// the first failure cancels the others.
func LoadRaw(ctx context.Context, repo RecordRepository, filter RecordFilter) (*RawRecords, error) {
	raw := &RawRecords{}
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		rows, err := repo.ListStores(ctx)
		if err != nil {
			return fmt.Errorf("stores: %w", err)
		}
		raw.Stores = rows
		return nil
	})
	g.Go(func() error {
		rows, err := repo.ListCashCounts(ctx, filter)
		if err != nil {
			return fmt.Errorf("cash counts: %w", err)
		}
		raw.CashCounts = rows
		return nil
	})
	g.Go(func() error {
		rows, err := repo.ListCashIns(ctx, filter)
		if err != nil {
			return fmt.Errorf("cash-in: %w", err)
		}
		raw.CashIns = rows
		return nil
	})
	g.Go(func() error {
		rows, err := repo.ListWithdrawals(ctx, filter)
		if err != nil {
			return fmt.Errorf("withdrawals: %w", err)
		}
		raw.Withdrawals = rows
		return nil
	})
	g.Go(func() error {
		rows, err := repo.ListDeposits(ctx, filter)
		if err != nil {
			return fmt.Errorf("deposits: %w", err)
		}
		raw.Deposits = rows
		return nil
	})
	g.Go(func() error {
		rows, err := repo.ListOverrides(ctx, filter)
		if err != nil {
			return fmt.Errorf("overrides: %w", err)
		}
		raw.Overrides = rows
		return nil
	})
	g.Go(func() error {
		rows, err := repo.ListAlertConfigs(ctx)
		if err != nil {
			return fmt.Errorf("alert configs: %w", err)
		}
		raw.AlertConfigs = rows
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("LoadRaw: %w", err)
	}
	return raw, nil
}
