// Package ledger derives the daily theoretical cash balance of each store, compares it with
// the physical counts, and nets the cash float held by each employee.
//
// Every function in this package is a pure batch computation over an immutable RecordSet:
// the same records, in any order, always produce the same output.
package ledger

import (
	"sort"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/cash-ledger/internal/domain"
)

// RecordSet is a normalized, typed snapshot of the source records.
type RecordSet struct {
	Stores       []domain.Store
	CashCounts   []domain.CashCount
	CashIns      []domain.CashIn
	Withdrawals  []domain.Withdrawal
	Deposits     []domain.Deposit
	Overrides    []domain.ManualOverride
	AlertConfigs []domain.AlertConfig
}

// WarningKind classifies a non-fatal data problem.
type WarningKind string

const (
	// WarningParse means a record had a malformed date or amount and was excluded.
	WarningParse WarningKind = "parse"
	// WarningAmbiguousOverride means an override lost to a more recent one for the same store and date.
	WarningAmbiguousOverride WarningKind = "ambiguous_override"
	// WarningUnmatchedStore means records reference a store ID with no Store; they are still aggregated.
	WarningUnmatchedStore WarningKind = "unmatched_store"
	// WarningUnknownDepositKind means a deposit kind was not recognized and was treated as ordinary.
	WarningUnknownDepositKind WarningKind = "unknown_deposit_kind"
	// WarningDuplicateStore means several stores share an ID with different names; one name is kept.
	WarningDuplicateStore WarningKind = "duplicate_store"
)

// Warning describes a record that was excluded or flagged during normalization.
type Warning struct {
	Kind     WarningKind    `json:"kind"`
	Record   string         `json:"record"`
	RecordID string         `json:"record_id,omitempty"`
	StoreID  domain.StoreID `json:"store_id,omitempty"`
	Message  string         `json:"message"`
}

// Through drops the cash-ins, withdrawals, deposits and overrides dated after end. Counts are
// kept so the latest count stays visible to the alerts. An invalid end keeps everything.
func (s RecordSet) Through(end civil.Date) RecordSet {
	if !end.IsValid() {
		return s
	}
	out := s
	out.CashIns = keepThrough(s.CashIns, end, func(c domain.CashIn) civil.Date { return c.Date })
	out.Withdrawals = keepThrough(s.Withdrawals, end, func(w domain.Withdrawal) civil.Date { return civil.DateOf(w.At) })
	out.Deposits = keepThrough(s.Deposits, end, func(d domain.Deposit) civil.Date { return civil.DateOf(d.At) })
	out.Overrides = keepThrough(s.Overrides, end, func(o domain.ManualOverride) civil.Date { return o.Date })
	return out
}

func keepThrough[T any](records []T, end civil.Date, day func(T) civil.Date) []T {
	out := make([]T, 0, len(records))
	for _, r := range records {
		if !day(r).After(end) {
			out = append(out, r)
		}
	}
	return out
}

type storeInfo struct {
	name    string
	matched bool
}

// storeIndex maps store IDs to names. IDs missing from the index are unmatched.
func (s RecordSet) storeIndex() map[domain.StoreID]storeInfo {
	idx := make(map[domain.StoreID]storeInfo, len(s.Stores))
	for _, st := range s.Stores {
		idx[st.ID] = storeInfo{name: st.Name, matched: true}
	}
	return idx
}

// referencedStores returns every store ID used by any record, sorted.
func (s RecordSet) referencedStores() []domain.StoreID {
	seen := make(map[domain.StoreID]bool)
	for _, c := range s.CashCounts {
		seen[c.StoreID] = true
	}
	for _, c := range s.CashIns {
		seen[c.StoreID] = true
	}
	for _, w := range s.Withdrawals {
		seen[w.StoreID] = true
	}
	for _, d := range s.Deposits {
		seen[d.StoreID] = true
	}
	for _, o := range s.Overrides {
		seen[o.StoreID] = true
	}
	return sortedStoreIDs(seen)
}

func sortedStoreIDs[V any](m map[domain.StoreID]V) []domain.StoreID {
	ids := make([]domain.StoreID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
