package domain

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// StoreID identifies a store. Every record references a store by ID.
type StoreID string

// EmployeeID is the resolved identity of a recorder, used to group float movements.
type EmployeeID string

// DepositKind changes how a deposit is classified in the employee float ledger.
type DepositKind string

const (
	// DepositOrdinary is cash put back into the drawer.
	DepositOrdinary DepositKind = "ordinary"
	// DepositManualAdjustment is a correction entered by staff; it nets like an ordinary deposit.
	DepositManualAdjustment DepositKind = "manual_adjustment"
	// DepositExtraordinaryPayment is an out-of-pocket business payment made by the recorder.
	DepositExtraordinaryPayment DepositKind = "extraordinary_payment"
)

// Store is a physical shop.
type Store struct {
	ID   StoreID
	Name string
}

// CashCount is one physical count of the drawer.
// The earliest and latest counts of a day are its opening and closing counts.
type CashCount struct {
	ID         string
	StoreID    StoreID
	CountedAt  time.Time
	Value      decimal.Decimal
	RecordedBy string
}

// CashIn is the cash collected by a store on a day, pre-aggregated by the payment feed.
type CashIn struct {
	StoreID StoreID
	Date    civil.Date
	Amount  decimal.Decimal
}

// Withdrawal is cash taken out of the drawer by an employee.
type Withdrawal struct {
	ID         string
	StoreID    StoreID
	At         time.Time
	Amount     decimal.Decimal
	RecordedBy string
	Note       string
}

// Deposit is cash put into the drawer, or a payment made on the business' behalf.
type Deposit struct {
	ID         string
	StoreID    StoreID
	At         time.Time
	Amount     decimal.Decimal
	RecordedBy string
	Kind       DepositKind
	Note       string
}

// ManualOverride sets the opening balance of a store for one date.
type ManualOverride struct {
	ID      string
	StoreID StoreID
	Date    civil.Date
	Value   decimal.Decimal
	SetBy   string
	SetAt   time.Time
}

// AlertConfig is the standing alert threshold of a store.
type AlertConfig struct {
	StoreID   StoreID
	Threshold decimal.Decimal
	Active    bool
}
