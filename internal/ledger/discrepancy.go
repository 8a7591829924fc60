package ledger

import (
	"time"

	"github.com/dvloznov/cash-ledger/internal/domain"
	"github.com/shopspring/decimal"
)

// DefaultTolerance is the per-entry discrepancy above which a count is flagged, in currency units.
var DefaultTolerance = decimal.RequireFromString("0.5")

// ApplyDiscrepancies returns a copy of entries with the opening and closing discrepancies set.
// A discrepancy is |counted - theoretical| and exists only when the count does. It is flagged when
// strictly greater than tolerance.
func ApplyDiscrepancies(entries []DailyLedgerEntry, tolerance decimal.Decimal) []DailyLedgerEntry {
	out := make([]DailyLedgerEntry, len(entries))
	for i, e := range entries {
		e.OpeningDiscrepancy, e.OpeningFlagged = nil, false
		e.ClosingDiscrepancy, e.ClosingFlagged = nil, false

		if e.OpeningCount != nil {
			d := e.OpeningCount.Value.Sub(e.Opening).Abs()
			e.OpeningDiscrepancy = &d
			e.OpeningFlagged = d.GreaterThan(tolerance)
		}
		if e.ClosingCount != nil {
			d := e.ClosingCount.Value.Sub(e.Closing).Abs()
			e.ClosingDiscrepancy = &d
			e.ClosingFlagged = d.GreaterThan(tolerance)
		}
		out[i] = e
	}
	return out
}

// Alert reports a store whose latest physical count exceeds its alert threshold,
// i.e. too much cash is sitting in the drawer.
type Alert struct {
	StoreID      domain.StoreID  `json:"store_id"`
	StoreName    string          `json:"store_name,omitempty"`
	Threshold    decimal.Decimal `json:"threshold"`
	CountID      string          `json:"count_id"`
	CountedValue decimal.Decimal `json:"counted_value"`
	CountedAt    time.Time       `json:"counted_at"`
	RecordedBy   string          `json:"recorded_by"`
	Excess       decimal.Decimal `json:"excess"`
}

// ActiveAlerts compares the most recent count of each store with an active alert config against
// the threshold. It looks at every count in the set, not a date window. When a store has several
// active configs the lowest threshold applies. Alerts are sorted by store ID.
func ActiveAlerts(set RecordSet) []Alert {
	thresholds := make(map[domain.StoreID]decimal.Decimal)
	for _, cfg := range set.AlertConfigs {
		if !cfg.Active {
			continue
		}
		if cur, ok := thresholds[cfg.StoreID]; !ok || cfg.Threshold.LessThan(cur) {
			thresholds[cfg.StoreID] = cfg.Threshold
		}
	}

	latest := make(map[domain.StoreID]domain.CashCount)
	for _, c := range set.CashCounts {
		if _, ok := thresholds[c.StoreID]; !ok {
			continue
		}
		if cur, ok := latest[c.StoreID]; !ok || countBefore(cur, c) {
			latest[c.StoreID] = c
		}
	}

	stores := set.storeIndex()
	alerts := make([]Alert, 0)
	for _, id := range sortedStoreIDs(latest) {
		c := latest[id]
		threshold := thresholds[id]
		if !c.Value.GreaterThan(threshold) {
			continue
		}
		alerts = append(alerts, Alert{
			StoreID:      id,
			StoreName:    stores[id].name,
			Threshold:    threshold,
			CountID:      c.ID,
			CountedValue: c.Value,
			CountedAt:    c.CountedAt,
			RecordedBy:   c.RecordedBy,
			Excess:       c.Value.Sub(threshold),
		})
	}
	return alerts
}

// Stats summarizes the discrepancies of a set of entries.
type Stats struct {
	Entries  int             `json:"entries"`
	Compared int             `json:"compared"`
	Flagged  int             `json:"flagged"`
	Average  decimal.Decimal `json:"average"`
	Max      decimal.Decimal `json:"max"`
}

// DiscrepancyStats counts every opening and closing discrepancy present in entries.
// The average is zero when nothing was compared.
func DiscrepancyStats(entries []DailyLedgerEntry) Stats {
	s := Stats{Entries: len(entries), Average: decimal.Zero, Max: decimal.Zero}
	sum := decimal.Zero

	add := func(d *decimal.Decimal, flagged bool) {
		if d == nil {
			return
		}
		s.Compared++
		sum = sum.Add(*d)
		if d.GreaterThan(s.Max) {
			s.Max = *d
		}
		if flagged {
			s.Flagged++
		}
	}
	for _, e := range entries {
		add(e.OpeningDiscrepancy, e.OpeningFlagged)
		add(e.ClosingDiscrepancy, e.ClosingFlagged)
	}

	if s.Compared > 0 {
		s.Average = sum.Div(decimal.NewFromInt(int64(s.Compared)))
	}
	return s
}

