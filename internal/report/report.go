// Package report orders computed ledgers for display and renders them as text tables.
// It never changes a computed value.
package report

import (
	"sort"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/cash-ledger/internal/domain"
	"github.com/dvloznov/cash-ledger/internal/ledger"
	"github.com/shopspring/decimal"
)

// StoreLedger is one store's entries, most recent day first.
type StoreLedger struct {
	StoreID   domain.StoreID            `json:"store_id"`
	StoreName string                    `json:"store_name,omitempty"`
	Unmatched bool                      `json:"unmatched,omitempty"`
	Entries   []ledger.DailyLedgerEntry `json:"entries"`
}

// LedgerView is a daily ledger grouped by store for display.
type LedgerView struct {
	Stores []StoreLedger `json:"stores"`
	Totals Totals        `json:"totals"`
}

// Totals are the column sums over a set of entries.
type Totals struct {
	Days           int             `json:"days"`
	CashIn         decimal.Decimal `json:"cash_in"`
	Withdrawals    decimal.Decimal `json:"withdrawals"`
	Deposits       decimal.Decimal `json:"deposits"`
	AverageClosing decimal.Decimal `json:"average_closing"`
	First          *civil.Date     `json:"first,omitempty"`
	Last           *civil.Date     `json:"last,omitempty"`
}

// ProjectLedger groups entries by store, in store ID order, and reverses each store's days.
// entries must be ascending by store then date, as ComputeDailyLedger returns them.
func ProjectLedger(entries []ledger.DailyLedgerEntry) LedgerView {
	view := LedgerView{Stores: make([]StoreLedger, 0), Totals: ComputeTotals(entries)}

	for _, e := range entries {
		n := len(view.Stores)
		if n == 0 || view.Stores[n-1].StoreID != e.StoreID {
			view.Stores = append(view.Stores, StoreLedger{
				StoreID:   e.StoreID,
				StoreName: e.StoreName,
				Unmatched: e.Unmatched,
			})
			n++
		}
		view.Stores[n-1].Entries = append(view.Stores[n-1].Entries, e)
	}

	for i := range view.Stores {
		days := view.Stores[i].Entries
		for l, r := 0, len(days)-1; l < r; l, r = l+1, r-1 {
			days[l], days[r] = days[r], days[l]
		}
	}
	return view
}

// ComputeTotals sums the cash columns of entries. AverageClosing is zero for no entries.
func ComputeTotals(entries []ledger.DailyLedgerEntry) Totals {
	t := Totals{
		Days:           len(entries),
		CashIn:         decimal.Zero,
		Withdrawals:    decimal.Zero,
		Deposits:       decimal.Zero,
		AverageClosing: decimal.Zero,
	}
	closing := decimal.Zero
	for _, e := range entries {
		t.CashIn = t.CashIn.Add(e.CashIn)
		t.Withdrawals = t.Withdrawals.Add(e.Withdrawals)
		t.Deposits = t.Deposits.Add(e.Deposits)
		closing = closing.Add(e.Closing)

		d := e.Date
		if t.First == nil || d.Before(*t.First) {
			t.First = &d
		}
		if t.Last == nil || d.After(*t.Last) {
			t.Last = &d
		}
	}
	if len(entries) > 0 {
		t.AverageClosing = closing.Div(decimal.NewFromInt(int64(len(entries)))).Round(2)
	}
	return t
}

// SortFloatLedgers returns a copy ordered by net balance, highest first, then by employee ID.
func SortFloatLedgers(ledgers []ledger.EmployeeFloatLedger) []ledger.EmployeeFloatLedger {
	out := make([]ledger.EmployeeFloatLedger, len(ledgers))
	copy(out, ledgers)
	sort.SliceStable(out, func(i, j int) bool {
		if c := out[i].NetBalance.Cmp(out[j].NetBalance); c != 0 {
			return c > 0
		}
		return out[i].EmployeeID < out[j].EmployeeID
	})
	return out
}
