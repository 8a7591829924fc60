package ledger

import (
	"sort"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/cash-ledger/internal/domain"
	"github.com/shopspring/decimal"
)

// Query selects what Aggregate buckets.
type Query struct {
	// StoreIDs limits the stores in scope. Empty means every store that has records.
	StoreIDs []domain.StoreID

	// Range is the window of interest. Dates after Range.End are ignored; dates before
	// Range.Start are still bucketed so the carry-forward chain enters the window with the
	// right balance. A zero Range means unbounded.
	Range domain.DateRange

	// FillRange adds a bucket for every date of Range to each store that has at least one record,
	// so the ledger has no gaps. Stores without records stay absent.
	FillRange bool
}

// DayBucket is everything that happened at one store on one calendar day.
type DayBucket struct {
	StoreID     domain.StoreID
	Date        civil.Date
	CashIn      decimal.Decimal
	Withdrawals decimal.Decimal
	// Deposits is informational: deposits do not enter the theoretical balance.
	Deposits     decimal.Decimal
	OpeningCount *domain.CashCount
	ClosingCount *domain.CashCount
	Override     *domain.ManualOverride
}

type dayKey struct {
	store domain.StoreID
	date  civil.Date
}

// Aggregate buckets the records by (store, calendar day). The buckets of each store are sorted
// by ascending date. Calendar days are taken from each timestamp in its own location; Normalize
// has already moved every timestamp into the business location.
func Aggregate(set RecordSet, q Query) map[domain.StoreID][]DayBucket {
	a := &aggregator{
		query:   q,
		bounded: q.Range.End.IsValid(),
		buckets: make(map[dayKey]*DayBucket),
	}
	if len(q.StoreIDs) > 0 {
		a.scope = make(map[domain.StoreID]bool, len(q.StoreIDs))
		for _, id := range q.StoreIDs {
			a.scope[id] = true
		}
	}

	for _, c := range set.CashIns {
		if b := a.bucket(c.StoreID, c.Date); b != nil {
			b.CashIn = b.CashIn.Add(c.Amount)
		}
	}
	for _, w := range set.Withdrawals {
		if b := a.bucket(w.StoreID, civil.DateOf(w.At)); b != nil {
			b.Withdrawals = b.Withdrawals.Add(w.Amount)
		}
	}
	for _, d := range set.Deposits {
		if b := a.bucket(d.StoreID, civil.DateOf(d.At)); b != nil {
			b.Deposits = b.Deposits.Add(d.Amount)
		}
	}
	for i := range set.CashCounts {
		c := set.CashCounts[i]
		b := a.bucket(c.StoreID, civil.DateOf(c.CountedAt))
		if b == nil {
			continue
		}
		if b.OpeningCount == nil || countBefore(c, *b.OpeningCount) {
			b.OpeningCount = &c
		}
		if b.ClosingCount == nil || countBefore(*b.ClosingCount, c) {
			b.ClosingCount = &c
		}
	}
	overrides, _ := resolveOverrides(set.Overrides)
	for i := range overrides {
		o := overrides[i]
		if b := a.bucket(o.StoreID, o.Date); b != nil {
			b.Override = &o
		}
	}

	if q.FillRange && q.Range.Validate() == nil {
		for _, store := range a.stores() {
			for _, d := range q.Range.Days() {
				a.bucket(store, d)
			}
		}
	}

	return a.result()
}

type aggregator struct {
	query   Query
	bounded bool
	scope   map[domain.StoreID]bool
	buckets map[dayKey]*DayBucket
}

// bucket returns the bucket for (store, date), creating it, or nil when out of scope.
func (a *aggregator) bucket(store domain.StoreID, date civil.Date) *DayBucket {
	if a.scope != nil && !a.scope[store] {
		return nil
	}
	if a.bounded && date.After(a.query.Range.End) {
		return nil
	}
	k := dayKey{store, date}
	b, ok := a.buckets[k]
	if !ok {
		b = &DayBucket{
			StoreID:     store,
			Date:        date,
			CashIn:      decimal.Zero,
			Withdrawals: decimal.Zero,
			Deposits:    decimal.Zero,
		}
		a.buckets[k] = b
	}
	return b
}

func (a *aggregator) stores() []domain.StoreID {
	seen := make(map[domain.StoreID]bool)
	for k := range a.buckets {
		seen[k.store] = true
	}
	return sortedStoreIDs(seen)
}

func (a *aggregator) result() map[domain.StoreID][]DayBucket {
	out := make(map[domain.StoreID][]DayBucket)
	for k, b := range a.buckets {
		out[k.store] = append(out[k.store], *b)
	}
	for store := range out {
		days := out[store]
		sort.Slice(days, func(i, j int) bool { return days[i].Date.Before(days[j].Date) })
	}
	return out
}

// countBefore orders counts by timestamp, then ID.
func countBefore(a, b domain.CashCount) bool {
	if !a.CountedAt.Equal(b.CountedAt) {
		return a.CountedAt.Before(b.CountedAt)
	}
	return a.ID < b.ID
}
