package ledger

import (
	"sort"
	"time"

	"github.com/dvloznov/cash-ledger/internal/domain"
	"github.com/dvloznov/cash-ledger/internal/identity"
	"github.com/shopspring/decimal"
)

// MovementType is the float classification of a withdrawal or deposit.
type MovementType string

const (
	MovementWithdrawal           MovementType = "withdrawal"
	MovementDeposit              MovementType = "deposit"
	MovementExtraordinaryPayment MovementType = "extraordinary_payment"
)

// Movement is one withdrawal or deposit seen from the employee's side.
//
// Signed is +Amount for a withdrawal (cash moved from the drawer to the employee) and -Amount for
// every deposit kind, so the signed sum of an employee's movements equals their NetBalance and a
// positive balance means the employee still holds business cash.
type Movement struct {
	Type     MovementType       `json:"type"`
	RecordID string             `json:"record_id"`
	StoreID  domain.StoreID     `json:"store_id"`
	At       time.Time          `json:"at"`
	Amount   decimal.Decimal    `json:"amount"`
	Signed   decimal.Decimal    `json:"signed"`
	Kind     domain.DepositKind `json:"deposit_kind,omitempty"`
	Note     string             `json:"note,omitempty"`
}

// EmployeeFloatLedger nets the cash float movements of one employee.
type EmployeeFloatLedger struct {
	EmployeeID        domain.EmployeeID `json:"employee_id"`
	DisplayName       string            `json:"display_name"`
	Withdrawals       decimal.Decimal   `json:"withdrawals"`
	Deposits          decimal.Decimal   `json:"deposits"`
	ExtraordinaryPaid decimal.Decimal   `json:"extraordinary_paid"`
	NetBalance        decimal.Decimal   `json:"net_balance"`
	Movements         []Movement        `json:"movements"`
}

// EmployeeFloatLedgers groups withdrawals and deposits by the employee who recorded them.
//
// Every record is classified exactly once before anything is summed: ordinary deposits and manual
// adjustments go to Deposits, extraordinary payments go to ExtraordinaryPaid only, attributed to
// the recorder who paid. NetBalance = Withdrawals - Deposits - ExtraordinaryPaid.
// A nil resolver falls back to exact name matching. Ledgers are sorted by employee ID and
// movements by time, most recent first.
func EmployeeFloatLedgers(set RecordSet, resolver identity.Resolver) []EmployeeFloatLedger {
	if resolver == nil {
		resolver = identity.ExactResolver{}
	}

	type group struct {
		ledger    EmployeeFloatLedger
		spellings map[string]int
	}
	groups := make(map[domain.EmployeeID]*group)

	add := func(recorder string, m Movement) {
		id := resolver.Resolve(recorder)
		g, ok := groups[id]
		if !ok {
			g = &group{
				ledger: EmployeeFloatLedger{
					EmployeeID:        id,
					Withdrawals:       decimal.Zero,
					Deposits:          decimal.Zero,
					ExtraordinaryPaid: decimal.Zero,
				},
				spellings: make(map[string]int),
			}
			groups[id] = g
		}
		if recorder != "" {
			g.spellings[recorder]++
		}
		g.ledger.Movements = append(g.ledger.Movements, m)
	}

	for _, w := range set.Withdrawals {
		add(w.RecordedBy, Movement{
			Type:     MovementWithdrawal,
			RecordID: w.ID,
			StoreID:  w.StoreID,
			At:       w.At,
			Amount:   w.Amount,
			Signed:   w.Amount,
			Note:     w.Note,
		})
	}
	for _, d := range set.Deposits {
		add(d.RecordedBy, Movement{
			Type:     classifyDeposit(d.Kind),
			RecordID: d.ID,
			StoreID:  d.StoreID,
			At:       d.At,
			Amount:   d.Amount,
			Signed:   d.Amount.Neg(),
			Kind:     d.Kind,
			Note:     d.Note,
		})
	}

	ledgers := make([]EmployeeFloatLedger, 0, len(groups))
	for _, g := range groups {
		l := g.ledger
		for _, m := range l.Movements {
			switch m.Type {
			case MovementWithdrawal:
				l.Withdrawals = l.Withdrawals.Add(m.Amount)
			case MovementDeposit:
				l.Deposits = l.Deposits.Add(m.Amount)
			case MovementExtraordinaryPayment:
				l.ExtraordinaryPaid = l.ExtraordinaryPaid.Add(m.Amount)
			}
		}
		l.NetBalance = l.Withdrawals.Sub(l.Deposits).Sub(l.ExtraordinaryPaid)
		l.DisplayName = displayName(g.spellings, l.EmployeeID)
		sortMovements(l.Movements)
		ledgers = append(ledgers, l)
	}

	sort.Slice(ledgers, func(i, j int) bool { return ledgers[i].EmployeeID < ledgers[j].EmployeeID })
	return ledgers
}

func classifyDeposit(kind domain.DepositKind) MovementType {
	if kind == domain.DepositExtraordinaryPayment {
		return MovementExtraordinaryPayment
	}
	return MovementDeposit
}

// sortMovements orders by time descending, then record ID and type.
func sortMovements(ms []Movement) {
	sort.Slice(ms, func(i, j int) bool {
		a, b := ms[i], ms[j]
		if !a.At.Equal(b.At) {
			return a.At.After(b.At)
		}
		if a.RecordID != b.RecordID {
			return a.RecordID < b.RecordID
		}
		return a.Type < b.Type
	})
}

// displayName picks the most used spelling; ties go to the lexicographically smallest.
func displayName(spellings map[string]int, id domain.EmployeeID) string {
	best, bestCount := "", 0
	for s, n := range spellings {
		if n > bestCount || (n == bestCount && s < best) {
			best, bestCount = s, n
		}
	}
	if best == "" {
		return string(id)
	}
	return best
}
