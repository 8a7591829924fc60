package ledger

import (
	"context"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/cash-ledger/internal/domain"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// OpeningSource records where a day's opening balance came from.
type OpeningSource string

const (
	SourceOverride OpeningSource = "override"
	SourceCarried  OpeningSource = "carried"
	SourceCount    OpeningSource = "count"
	SourceZero     OpeningSource = "zero"
)

// CountSnapshot is the physical count attached to a ledger entry.
type CountSnapshot struct {
	CountID    string          `json:"count_id"`
	Value      decimal.Decimal `json:"value"`
	CountedAt  time.Time       `json:"counted_at"`
	RecordedBy string          `json:"recorded_by"`
}

// DailyLedgerEntry is the theoretical balance of one store on one day, with its counts.
type DailyLedgerEntry struct {
	StoreID   domain.StoreID `json:"store_id"`
	StoreName string         `json:"store_name,omitempty"`
	// Unmatched is set when no Store exists for StoreID. The amounts still count.
	Unmatched bool       `json:"unmatched,omitempty"`
	Date      civil.Date `json:"date"`

	Opening          decimal.Decimal `json:"opening"`
	OpeningSource    OpeningSource   `json:"opening_source"`
	OpeningWasManual bool            `json:"opening_was_manual"`
	CashIn           decimal.Decimal `json:"cash_in"`
	Withdrawals      decimal.Decimal `json:"withdrawals"`
	Deposits         decimal.Decimal `json:"deposits"`
	Closing          decimal.Decimal `json:"closing"`

	OpeningCount *CountSnapshot `json:"opening_count,omitempty"`
	ClosingCount *CountSnapshot `json:"closing_count,omitempty"`

	OpeningDiscrepancy *decimal.Decimal `json:"opening_discrepancy,omitempty"`
	ClosingDiscrepancy *decimal.Decimal `json:"closing_discrepancy,omitempty"`
	OpeningFlagged     bool             `json:"opening_flagged"`
	ClosingFlagged     bool             `json:"closing_flagged"`
}

// CarryForward walks each store's buckets in date order and computes opening and closing
// theoretical balances. Stores share no state, so they are computed concurrently. The result is
// ordered by store ID, then date.
func CarryForward(ctx context.Context, buckets map[domain.StoreID][]DayBucket) ([]DailyLedgerEntry, error) {
	stores := sortedStoreIDs(buckets)
	results := make([][]DailyLedgerEntry, len(stores))

	g, ctx := errgroup.WithContext(ctx)
	for i, store := range stores {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = carryStore(buckets[store])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := 0
	for _, r := range results {
		total += len(r)
	}
	entries := make([]DailyLedgerEntry, 0, total)
	for _, r := range results {
		entries = append(entries, r...)
	}
	return entries, nil
}

// carryStore computes one store's chain. days must be sorted ascending by date.
//
// opening = override ?? previous closing ?? opening count ?? 0
// closing = opening + cash-in - withdrawals
func carryStore(days []DayBucket) []DailyLedgerEntry {
	entries := make([]DailyLedgerEntry, 0, len(days))
	var previousClosing *decimal.Decimal

	for _, day := range days {
		e := DailyLedgerEntry{
			StoreID:      day.StoreID,
			Date:         day.Date,
			CashIn:       day.CashIn,
			Withdrawals:  day.Withdrawals,
			Deposits:     day.Deposits,
			OpeningCount: snapshot(day.OpeningCount),
			ClosingCount: snapshot(day.ClosingCount),
		}

		switch {
		case day.Override != nil:
			e.Opening = day.Override.Value
			e.OpeningSource = SourceOverride
			e.OpeningWasManual = true
		case previousClosing != nil:
			e.Opening = *previousClosing
			e.OpeningSource = SourceCarried
		case day.OpeningCount != nil:
			e.Opening = day.OpeningCount.Value
			e.OpeningSource = SourceCount
		default:
			e.Opening = decimal.Zero
			e.OpeningSource = SourceZero
		}

		e.Closing = e.Opening.Add(e.CashIn).Sub(e.Withdrawals)
		closing := e.Closing
		previousClosing = &closing

		entries = append(entries, e)
	}
	return entries
}

func snapshot(c *domain.CashCount) *CountSnapshot {
	if c == nil {
		return nil
	}
	return &CountSnapshot{
		CountID:    c.ID,
		Value:      c.Value,
		CountedAt:  c.CountedAt,
		RecordedBy: c.RecordedBy,
	}
}
