package ledger

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/cash-ledger/internal/domain"
	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
)

var decimalEqual = cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) })

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func day(d int) civil.Date {
	return civil.Date{Year: 2024, Month: time.March, Day: d}
}

func at(d, hour, min int) time.Time {
	return time.Date(2024, time.March, d, hour, min, 0, 0, time.UTC)
}

func march() domain.DateRange {
	return domain.DateRange{Start: day(1), End: day(31)}
}

// scenarioRecords is store A over two days: an opening count of 100.00 on day 1, cash-in of
// 250.00 and a withdrawal of 50.00; day 2 has 180.00 of cash-in and nothing else.
func scenarioRecords() RecordSet {
	return RecordSet{
		Stores: []domain.Store{{ID: "A", Name: "Store A"}},
		CashCounts: []domain.CashCount{
			{ID: "c1", StoreID: "A", CountedAt: at(1, 8, 0), Value: dec("100.00"), RecordedBy: "Mario"},
		},
		CashIns: []domain.CashIn{
			{StoreID: "A", Date: day(1), Amount: dec("250.00")},
			{StoreID: "A", Date: day(2), Amount: dec("180.00")},
		},
		Withdrawals: []domain.Withdrawal{
			{ID: "w1", StoreID: "A", At: at(1, 18, 0), Amount: dec("50.00"), RecordedBy: "Mario"},
		},
	}
}

func TestComputeDailyLedger_CarryForwardScenario(t *testing.T) {
	entries, err := ComputeDailyLedger(context.Background(), scenarioRecords(), nil, march())
	if err != nil {
		t.Fatalf("ComputeDailyLedger() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}

	d1, d2 := entries[0], entries[1]
	if !d1.Opening.Equal(dec("100")) || d1.OpeningSource != SourceCount {
		t.Errorf("day 1 opening = %s (%s), want 100 from count", d1.Opening, d1.OpeningSource)
	}
	if !d1.Closing.Equal(dec("300")) {
		t.Errorf("day 1 closing = %s, want 300", d1.Closing)
	}
	if !d2.Opening.Equal(dec("300")) || d2.OpeningSource != SourceCarried {
		t.Errorf("day 2 opening = %s (%s), want 300 carried", d2.Opening, d2.OpeningSource)
	}
	if !d2.Closing.Equal(dec("480")) {
		t.Errorf("day 2 closing = %s, want 480", d2.Closing)
	}
	if d1.StoreName != "Store A" || d1.Unmatched {
		t.Errorf("day 1 store = %q unmatched=%v, want Store A matched", d1.StoreName, d1.Unmatched)
	}
}

func TestComputeDailyLedger_OverrideScenario(t *testing.T) {
	set := scenarioRecords()
	set.Overrides = []domain.ManualOverride{
		{ID: "o1", StoreID: "A", Date: day(2), Value: dec("350.00"), SetBy: "Luigi", SetAt: at(2, 7, 0)},
	}

	entries, err := ComputeDailyLedger(context.Background(), set, nil, march())
	if err != nil {
		t.Fatalf("ComputeDailyLedger() error = %v", err)
	}

	d2 := entries[1]
	if !d2.Opening.Equal(dec("350")) || !d2.OpeningWasManual || d2.OpeningSource != SourceOverride {
		t.Errorf("day 2 opening = %s manual=%v, want 350 from override", d2.Opening, d2.OpeningWasManual)
	}
	if !d2.Closing.Equal(dec("530")) {
		t.Errorf("day 2 closing = %s, want 530", d2.Closing)
	}

	// Deleting the override falls back to the prior-day rule on the next computation.
	set.Overrides = nil
	entries, err = ComputeDailyLedger(context.Background(), set, nil, march())
	if err != nil {
		t.Fatalf("ComputeDailyLedger() error = %v", err)
	}
	if !entries[1].Opening.Equal(dec("300")) || entries[1].OpeningWasManual {
		t.Errorf("day 2 opening after delete = %s manual=%v, want 300 carried", entries[1].Opening, entries[1].OpeningWasManual)
	}
}

func TestComputeDailyLedger_OverrideOnFirstDayBeatsCount(t *testing.T) {
	set := scenarioRecords()
	set.Overrides = []domain.ManualOverride{
		{ID: "o1", StoreID: "A", Date: day(1), Value: dec("90"), SetAt: at(1, 7, 0)},
	}

	entries, err := ComputeDailyLedger(context.Background(), set, nil, march())
	if err != nil {
		t.Fatalf("ComputeDailyLedger() error = %v", err)
	}
	if !entries[0].Opening.Equal(dec("90")) {
		t.Errorf("day 1 opening = %s, want 90", entries[0].Opening)
	}
	if entries[0].OpeningDiscrepancy == nil || !entries[0].OpeningDiscrepancy.Equal(dec("10")) {
		t.Errorf("day 1 opening discrepancy = %v, want 10", entries[0].OpeningDiscrepancy)
	}
	if !entries[0].OpeningFlagged {
		t.Error("day 1 opening should be flagged")
	}
}

func TestComputeDailyLedger_DayWithoutRecordsOpensAtZero(t *testing.T) {
	set := RecordSet{
		CashIns: []domain.CashIn{{StoreID: "B", Date: day(5), Amount: dec("12.30")}},
	}

	entries, err := ComputeDailyLedger(context.Background(), set, nil, march())
	if err != nil {
		t.Fatalf("ComputeDailyLedger() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	e := entries[0]
	if e.OpeningSource != SourceZero || !e.Opening.IsZero() || !e.Closing.Equal(dec("12.30")) {
		t.Errorf("entry = opening %s (%s) closing %s, want 0 (zero) and 12.30", e.Opening, e.OpeningSource, e.Closing)
	}
	if !e.Unmatched {
		t.Error("store B has no Store record and should be unmatched")
	}
}

func TestComputeDailyLedger_HistoryBeforeRangeFeedsChain(t *testing.T) {
	rng := domain.DateRange{Start: day(2), End: day(2)}

	entries, err := ComputeDailyLedger(context.Background(), scenarioRecords(), nil, rng)
	if err != nil {
		t.Fatalf("ComputeDailyLedger() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].Date != day(2) || !entries[0].Opening.Equal(dec("300")) {
		t.Errorf("entry %s opening = %s, want day 2 opening 300", entries[0].Date, entries[0].Opening)
	}
}

func TestComputeDailyLedger_RecordsAfterRangeIgnored(t *testing.T) {
	rng := domain.DateRange{Start: day(1), End: day(1)}

	entries, err := ComputeDailyLedger(context.Background(), scenarioRecords(), nil, rng)
	if err != nil {
		t.Fatalf("ComputeDailyLedger() error = %v", err)
	}
	if len(entries) != 1 || entries[0].Date != day(1) {
		t.Fatalf("entries = %+v, want only day 1", entries)
	}
}

func TestRecordSet_Through(t *testing.T) {
	set := RecordSet{
		CashCounts:  []domain.CashCount{{ID: "c1", StoreID: "A", CountedAt: at(5, 8, 0), Value: dec("10")}},
		CashIns:     []domain.CashIn{{StoreID: "A", Date: day(2), Amount: dec("1")}, {StoreID: "A", Date: day(3), Amount: dec("2")}},
		Withdrawals: []domain.Withdrawal{{ID: "w1", StoreID: "A", At: at(2, 23, 59)}, {ID: "w2", StoreID: "A", At: at(3, 0, 0)}},
		Deposits:    []domain.Deposit{{ID: "d1", StoreID: "A", At: at(4, 9, 0)}},
		Overrides:   []domain.ManualOverride{{ID: "o1", StoreID: "A", Date: day(2)}},
	}

	got := set.Through(day(2))

	if len(got.CashIns) != 1 || len(got.Withdrawals) != 1 || got.Withdrawals[0].ID != "w1" {
		t.Errorf("cash-ins %+v withdrawals %+v, want only day 2", got.CashIns, got.Withdrawals)
	}
	if len(got.Deposits) != 0 || len(got.Overrides) != 1 {
		t.Errorf("deposits %+v overrides %+v", got.Deposits, got.Overrides)
	}
	if len(got.CashCounts) != 1 {
		t.Error("counts after the end should be kept")
	}
	if len(set.Through(civil.Date{}).Withdrawals) != 2 {
		t.Error("an invalid end should keep everything")
	}
}

func TestComputeDailyLedger_FillRange(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FillRange = true
	rng := domain.DateRange{Start: day(1), End: day(4)}

	set := scenarioRecords()
	set.CashIns = append(set.CashIns, domain.CashIn{StoreID: "ignored", Date: day(20), Amount: dec("1")})

	entries, err := ComputeDailyLedgerWithConfig(context.Background(), set, []domain.StoreID{"A"}, rng, cfg)
	if err != nil {
		t.Fatalf("ComputeDailyLedgerWithConfig() error = %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("got %d entries, want 4", len(entries))
	}
	for _, e := range entries[2:] {
		if !e.Opening.Equal(dec("480")) || !e.Closing.Equal(dec("480")) {
			t.Errorf("filled day %s = %s..%s, want 480..480", e.Date, e.Opening, e.Closing)
		}
	}
}

func TestComputeDailyLedger_StoreFilter(t *testing.T) {
	set := scenarioRecords()
	set.CashIns = append(set.CashIns, domain.CashIn{StoreID: "B", Date: day(1), Amount: dec("5")})

	entries, err := ComputeDailyLedger(context.Background(), set, []domain.StoreID{"B"}, march())
	if err != nil {
		t.Fatalf("ComputeDailyLedger() error = %v", err)
	}
	if len(entries) != 1 || entries[0].StoreID != "B" {
		t.Errorf("entries = %+v, want only store B", entries)
	}

	entries, err = ComputeDailyLedger(context.Background(), set, []domain.StoreID{"missing"}, march())
	if err != nil {
		t.Fatalf("ComputeDailyLedger() error = %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("got %d entries for a store without records, want 0", len(entries))
	}
}

func TestComputeDailyLedger_OpeningAndClosingCounts(t *testing.T) {
	set := scenarioRecords()
	set.CashCounts = append(set.CashCounts,
		domain.CashCount{ID: "c3", StoreID: "A", CountedAt: at(1, 21, 0), Value: dec("300.40"), RecordedBy: "Anna"},
		domain.CashCount{ID: "c2", StoreID: "A", CountedAt: at(1, 13, 0), Value: dec("280.00"), RecordedBy: "Mario"},
	)

	entries, err := ComputeDailyLedger(context.Background(), set, nil, march())
	if err != nil {
		t.Fatalf("ComputeDailyLedger() error = %v", err)
	}

	d1 := entries[0]
	if d1.OpeningCount == nil || d1.OpeningCount.CountID != "c1" {
		t.Errorf("opening count = %+v, want c1", d1.OpeningCount)
	}
	if d1.ClosingCount == nil || d1.ClosingCount.CountID != "c3" || d1.ClosingCount.RecordedBy != "Anna" {
		t.Errorf("closing count = %+v, want c3 by Anna", d1.ClosingCount)
	}
	if d1.ClosingDiscrepancy == nil || !d1.ClosingDiscrepancy.Equal(dec("0.40")) {
		t.Errorf("closing discrepancy = %v, want 0.40", d1.ClosingDiscrepancy)
	}
	if d1.ClosingFlagged {
		t.Error("a 0.40 discrepancy should not be flagged")
	}
	if entries[1].OpeningCount != nil || entries[1].OpeningDiscrepancy != nil {
		t.Error("day 2 has no counts and should have no discrepancies")
	}
}

func TestComputeDailyLedger_InvalidRange(t *testing.T) {
	rng := domain.DateRange{Start: day(5), End: day(1)}

	_, err := ComputeDailyLedger(context.Background(), scenarioRecords(), nil, rng)
	if !errors.Is(err, ErrInvalidRange) {
		t.Errorf("error = %v, want ErrInvalidRange", err)
	}
}

func TestEmptyInput(t *testing.T) {
	entries, err := ComputeDailyLedger(context.Background(), RecordSet{}, nil, march())
	if err != nil {
		t.Fatalf("ComputeDailyLedger() error = %v", err)
	}
	if entries == nil || len(entries) != 0 {
		t.Errorf("entries = %#v, want empty non-nil slice", entries)
	}

	alerts := ComputeActiveAlerts(RecordSet{})
	if alerts == nil || len(alerts) != 0 {
		t.Errorf("alerts = %#v, want empty non-nil slice", alerts)
	}

	floats := ComputeEmployeeFloatLedgers(RecordSet{}, nil)
	if floats == nil || len(floats) != 0 {
		t.Errorf("floats = %#v, want empty non-nil slice", floats)
	}
}

// randomRecords builds a multi-store record set with overrides, counts and movements.
func randomRecords(r *rand.Rand) RecordSet {
	stores := []domain.StoreID{"A", "B", "C"}
	set := RecordSet{}
	for _, s := range stores {
		set.Stores = append(set.Stores, domain.Store{ID: s, Name: "Store " + string(s)})
	}
	amount := func() decimal.Decimal {
		return decimal.New(int64(r.Intn(50000)), -2)
	}
	names := []string{"Mario", "Luigi", "Anna", "mario "}

	for i := 0; i < 400; i++ {
		s := stores[r.Intn(len(stores))]
		d := 1 + r.Intn(28)
		id := string(rune('a'+i%26)) + decimal.NewFromInt(int64(i)).String()
		switch r.Intn(5) {
		case 0:
			set.CashIns = append(set.CashIns, domain.CashIn{StoreID: s, Date: day(d), Amount: amount()})
		case 1:
			set.Withdrawals = append(set.Withdrawals, domain.Withdrawal{
				ID: id, StoreID: s, At: at(d, r.Intn(24), r.Intn(60)), Amount: amount(), RecordedBy: names[r.Intn(len(names))],
			})
		case 2:
			kinds := []domain.DepositKind{domain.DepositOrdinary, domain.DepositManualAdjustment, domain.DepositExtraordinaryPayment}
			set.Deposits = append(set.Deposits, domain.Deposit{
				ID: id, StoreID: s, At: at(d, r.Intn(24), r.Intn(60)), Amount: amount(),
				RecordedBy: names[r.Intn(len(names))], Kind: kinds[r.Intn(len(kinds))],
			})
		case 3:
			set.CashCounts = append(set.CashCounts, domain.CashCount{
				ID: id, StoreID: s, CountedAt: at(d, r.Intn(24), r.Intn(60)), Value: amount(),
			})
		case 4:
			if r.Intn(4) == 0 {
				set.Overrides = append(set.Overrides, domain.ManualOverride{
					ID: id, StoreID: s, Date: day(d), Value: amount(), SetAt: at(d, r.Intn(24), 0),
				})
			}
		}
	}
	set.AlertConfigs = []domain.AlertConfig{
		{StoreID: "A", Threshold: dec("100"), Active: true},
		{StoreID: "B", Threshold: dec("400"), Active: true},
		{StoreID: "C", Threshold: dec("0"), Active: false},
	}
	return set
}

func TestComputeDailyLedger_Invariants(t *testing.T) {
	set := randomRecords(rand.New(rand.NewSource(7)))

	entries, err := ComputeDailyLedger(context.Background(), set, nil, march())
	if err != nil {
		t.Fatalf("ComputeDailyLedger() error = %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("expected entries")
	}

	for i, e := range entries {
		want := e.Opening.Add(e.CashIn).Sub(e.Withdrawals)
		if !e.Closing.Equal(want) {
			t.Errorf("%s %s: closing %s != opening + cash-in - withdrawals = %s", e.StoreID, e.Date, e.Closing, want)
		}
		if i == 0 || entries[i-1].StoreID != e.StoreID {
			continue
		}
		prev := entries[i-1]
		if !prev.Date.Before(e.Date) {
			t.Errorf("%s: dates not ascending: %s then %s", e.StoreID, prev.Date, e.Date)
		}
		if !e.OpeningWasManual && !e.Opening.Equal(prev.Closing) {
			t.Errorf("%s %s: opening %s != previous closing %s", e.StoreID, e.Date, e.Opening, prev.Closing)
		}
	}
}

func TestPipeline_IsIndependentOfInputOrder(t *testing.T) {
	base := randomRecords(rand.New(rand.NewSource(11)))
	shuffled := randomRecords(rand.New(rand.NewSource(11)))

	r := rand.New(rand.NewSource(99))
	r.Shuffle(len(shuffled.CashCounts), func(i, j int) {
		shuffled.CashCounts[i], shuffled.CashCounts[j] = shuffled.CashCounts[j], shuffled.CashCounts[i]
	})
	r.Shuffle(len(shuffled.CashIns), func(i, j int) {
		shuffled.CashIns[i], shuffled.CashIns[j] = shuffled.CashIns[j], shuffled.CashIns[i]
	})
	r.Shuffle(len(shuffled.Withdrawals), func(i, j int) {
		shuffled.Withdrawals[i], shuffled.Withdrawals[j] = shuffled.Withdrawals[j], shuffled.Withdrawals[i]
	})
	r.Shuffle(len(shuffled.Deposits), func(i, j int) {
		shuffled.Deposits[i], shuffled.Deposits[j] = shuffled.Deposits[j], shuffled.Deposits[i]
	})
	r.Shuffle(len(shuffled.Overrides), func(i, j int) {
		shuffled.Overrides[i], shuffled.Overrides[j] = shuffled.Overrides[j], shuffled.Overrides[i]
	})
	r.Shuffle(len(shuffled.Stores), func(i, j int) {
		shuffled.Stores[i], shuffled.Stores[j] = shuffled.Stores[j], shuffled.Stores[i]
	})

	ctx := context.Background()
	want, err := ComputeDailyLedger(ctx, base, nil, march())
	if err != nil {
		t.Fatalf("ComputeDailyLedger() error = %v", err)
	}
	got, err := ComputeDailyLedger(ctx, shuffled, nil, march())
	if err != nil {
		t.Fatalf("ComputeDailyLedger() error = %v", err)
	}
	if diff := cmp.Diff(want, got, decimalEqual); diff != "" {
		t.Errorf("ledger depends on input order (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff(ComputeActiveAlerts(base), ComputeActiveAlerts(shuffled), decimalEqual); diff != "" {
		t.Errorf("alerts depend on input order (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(ComputeEmployeeFloatLedgers(base, nil), ComputeEmployeeFloatLedgers(shuffled, nil), decimalEqual); diff != "" {
		t.Errorf("float ledgers depend on input order (-want +got):\n%s", diff)
	}
}
