package report

import (
	"fmt"
	"io"

	"github.com/dvloznov/cash-ledger/internal/ledger"
	"github.com/gosuri/uitable"
	"github.com/shopspring/decimal"
)

const maxColWidth = 40

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func optionalMoney(d *decimal.Decimal, flagged bool) string {
	if d == nil {
		return "-"
	}
	if flagged {
		return money(*d) + " !"
	}
	return money(*d)
}

func countValue(c *ledger.CountSnapshot) string {
	if c == nil {
		return "-"
	}
	return money(c.Value)
}

// WriteLedgerTable renders the view, one block per store, followed by the totals.
func WriteLedgerTable(w io.Writer, view LedgerView) error {
	table := uitable.New()
	table.MaxColWidth = maxColWidth
	for _, col := range []int{1, 3, 4, 5, 6, 7, 8, 9} {
		table.RightAlign(col)
	}

	table.AddRow("Date", "Opening", "Source", "Cash in", "Withdrawals", "Deposits", "Closing", "Counted", "Diff open", "Diff close")
	for _, s := range view.Stores {
		title := string(s.StoreID)
		if s.StoreName != "" {
			title = fmt.Sprintf("%s (%s)", s.StoreName, s.StoreID)
		}
		if s.Unmatched {
			title += " [unmatched]"
		}
		table.AddRow(title)
		for _, e := range s.Entries {
			table.AddRow(
				e.Date.String(),
				money(e.Opening),
				string(e.OpeningSource),
				money(e.CashIn),
				money(e.Withdrawals),
				money(e.Deposits),
				money(e.Closing),
				countValue(e.ClosingCount),
				optionalMoney(e.OpeningDiscrepancy, e.OpeningFlagged),
				optionalMoney(e.ClosingDiscrepancy, e.ClosingFlagged),
			)
		}
	}
	table.AddRow("")
	t := view.Totals
	table.AddRow("Total", "", "", money(t.CashIn), money(t.Withdrawals), money(t.Deposits), "avg "+money(t.AverageClosing))

	_, err := fmt.Fprintln(w, table)
	return err
}

// WriteFloatTable renders employee float ledgers in the given order.
func WriteFloatTable(w io.Writer, ledgers []ledger.EmployeeFloatLedger) error {
	table := uitable.New()
	table.MaxColWidth = maxColWidth
	for _, col := range []int{1, 2, 3, 4, 5} {
		table.RightAlign(col)
	}

	table.AddRow("Employee", "Withdrawals", "Deposits", "Extraordinary", "Net", "Movements")
	for _, l := range ledgers {
		table.AddRow(l.DisplayName, money(l.Withdrawals), money(l.Deposits), money(l.ExtraordinaryPaid), money(l.NetBalance), len(l.Movements))
	}

	_, err := fmt.Fprintln(w, table)
	return err
}

// WriteAlertTable renders active alerts.
func WriteAlertTable(w io.Writer, alerts []ledger.Alert) error {
	if len(alerts) == 0 {
		_, err := fmt.Fprintln(w, "No active alerts.")
		return err
	}

	table := uitable.New()
	table.MaxColWidth = maxColWidth
	for _, col := range []int{1, 2, 3} {
		table.RightAlign(col)
	}

	table.AddRow("Store", "Counted", "Threshold", "Excess", "Counted at", "By")
	for _, a := range alerts {
		name := string(a.StoreID)
		if a.StoreName != "" {
			name = a.StoreName
		}
		table.AddRow(name, money(a.CountedValue), money(a.Threshold), money(a.Excess), a.CountedAt.Format("2006-01-02 15:04"), a.RecordedBy)
	}

	_, err := fmt.Fprintln(w, table)
	return err
}
