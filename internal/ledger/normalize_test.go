package ledger

import (
	"context"
	"testing"
	"time"

	bq "github.com/dvloznov/cash-ledger/internal/bigquery"
	"github.com/dvloznov/cash-ledger/internal/domain"
	"github.com/dvloznov/cash-ledger/internal/logger"
	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
)

func quietContext() context.Context {
	return logger.WithContext(context.Background(), zerolog.Nop())
}

func countWarnings(warnings []Warning, kind WarningKind) int {
	n := 0
	for _, w := range warnings {
		if w.Kind == kind {
			n++
		}
	}
	return n
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "plain", input: "250.00", want: "250"},
		{name: "empty is zero", input: "", want: "0"},
		{name: "blank is zero", input: "   ", want: "0"},
		{name: "italian decimal comma", input: "12,50", want: "12.5"},
		{name: "italian thousands", input: "1.234,56", want: "1234.56"},
		{name: "english thousands", input: "1,234.56", want: "1234.56"},
		{name: "euro sign", input: "€ 80,00", want: "80"},
		{name: "negative", input: "-5.10", want: "-5.1"},
		{name: "non breaking space", input: "1\u00a0000,00", want: "1000"},
		{name: "garbage", input: "dieci euro", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAmount(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseAmount(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if !got.Equal(dec(tt.want)) {
				t.Errorf("ParseAmount(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseTimestamp(t *testing.T) {
	rome, err := time.LoadLocation("Europe/Rome")
	if err != nil {
		t.Skipf("timezone data unavailable: %v", err)
	}

	tests := []struct {
		name     string
		input    string
		wantDate string
		wantErr  bool
	}{
		{name: "rfc3339 moved into location", input: "2024-03-01T23:30:00Z", wantDate: "2024-03-02"},
		{name: "local layout", input: "2024-03-01 23:30:00", wantDate: "2024-03-01"},
		{name: "italian layout", input: "01/03/2024 08:15", wantDate: "2024-03-01"},
		{name: "date only", input: "2024-03-01", wantDate: "2024-03-01"},
		{name: "empty", input: "", wantErr: true},
		{name: "invalid", input: "yesterday", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTimestamp(tt.input, rome)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseTimestamp(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got.Location() != rome {
				t.Errorf("location = %v, want Europe/Rome", got.Location())
			}
			if d := got.Format("2006-01-02"); d != tt.wantDate {
				t.Errorf("calendar day = %s, want %s", d, tt.wantDate)
			}
		})
	}
}

func TestParseDepositKind(t *testing.T) {
	tests := []struct {
		input  string
		want   domain.DepositKind
		wantOK bool
	}{
		{"", domain.DepositOrdinary, true},
		{"ordinary", domain.DepositOrdinary, true},
		{"Manual Adjustment", domain.DepositManualAdjustment, true},
		{"rettifica-manuale", domain.DepositManualAdjustment, true},
		{"extraordinary_payment", domain.DepositExtraordinaryPayment, true},
		{"Pagamento straordinario", domain.DepositExtraordinaryPayment, true},
		{"bonifico", domain.DepositOrdinary, false},
	}

	for _, tt := range tests {
		got, ok := ParseDepositKind(tt.input)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseDepositKind(%q) = %q, %v; want %q, %v", tt.input, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestNormalize_ExcludesMalformedRecords(t *testing.T) {
	raw := &bq.RawRecords{
		Stores: []*bq.StoreRow{{StoreID: "A", Name: "Store A"}},
		CashIns: []*bq.CashInRow{
			{StoreID: "A", BusinessDate: bq.Text("2024-03-01"), Amount: bq.Text("250,00")},
			{StoreID: "A", BusinessDate: bq.Text("not a date"), Amount: bq.Text("10")},
			{StoreID: "A", BusinessDate: bq.Text("2024-03-02"), Amount: bq.Text("")},
		},
		Withdrawals: []*bq.WithdrawalRow{
			{WithdrawalID: "w1", StoreID: "A", WithdrawnAt: bq.Text("2024-03-01 18:00"), Amount: bq.Text("50"), RecordedBy: bq.Text(" Mario ")},
			{WithdrawalID: "w2", StoreID: "A", WithdrawnAt: bq.Text("2024-03-01 18:00"), Amount: bq.Text("fifty")},
		},
		CashCounts: []*bq.CashCountRow{
			{CountID: "c1", StoreID: "A", CountedAt: bq.Text(""), Value: bq.Text("100")},
		},
	}

	set, warnings := Normalize(quietContext(), raw, time.UTC)

	if len(set.CashIns) != 2 {
		t.Errorf("got %d cash-ins, want 2", len(set.CashIns))
	}
	if !set.CashIns[1].Amount.IsZero() {
		t.Errorf("empty amount = %s, want 0", set.CashIns[1].Amount)
	}
	if len(set.Withdrawals) != 1 || set.Withdrawals[0].RecordedBy != "Mario" {
		t.Errorf("withdrawals = %+v, want only w1 recorded by Mario", set.Withdrawals)
	}
	if len(set.CashCounts) != 0 {
		t.Errorf("got %d counts, want 0", len(set.CashCounts))
	}
	if got := countWarnings(warnings, WarningParse); got != 3 {
		t.Errorf("got %d parse warnings, want 3: %+v", got, warnings)
	}
}

func TestNormalize_AmbiguousOverrides(t *testing.T) {
	raw := &bq.RawRecords{
		Stores: []*bq.StoreRow{{StoreID: "A", Name: "Store A"}},
		Overrides: []*bq.OverrideRow{
			{OverrideID: "o1", StoreID: "A", BusinessDate: bq.Text("2024-03-02"), Value: bq.Text("300"), SetAt: bq.Text("2024-03-02T07:00:00Z")},
			{OverrideID: "o2", StoreID: "A", BusinessDate: bq.Text("2024-03-02"), Value: bq.Text("350"), SetAt: bq.Text("2024-03-02T09:00:00Z")},
			{OverrideID: "o3", StoreID: "A", BusinessDate: bq.Text("2024-03-03"), Value: bq.Text("")},
		},
	}

	set, warnings := Normalize(quietContext(), raw, time.UTC)

	if len(set.Overrides) != 1 {
		t.Fatalf("got %d overrides, want 1", len(set.Overrides))
	}
	if set.Overrides[0].ID != "o2" || !set.Overrides[0].Value.Equal(dec("350")) {
		t.Errorf("kept override = %+v, want o2 at 350", set.Overrides[0])
	}
	if got := countWarnings(warnings, WarningAmbiguousOverride); got != 1 {
		t.Errorf("got %d ambiguous override warnings, want 1", got)
	}
	if got := countWarnings(warnings, WarningParse); got != 1 {
		t.Errorf("got %d parse warnings for the empty override, want 1", got)
	}
}

func TestNormalize_UnmatchedStoreAndUnknownKind(t *testing.T) {
	raw := &bq.RawRecords{
		Stores: []*bq.StoreRow{{StoreID: "A", Name: "Store A"}},
		Deposits: []*bq.DepositRow{
			{DepositID: "d1", StoreID: "Z", DepositedAt: bq.Text("2024-03-01 10:00"), Amount: bq.Text("20"), Kind: bq.Text("bonifico")},
			{DepositID: "d2", StoreID: "Z", DepositedAt: bq.Text("2024-03-01 11:00"), Amount: bq.Text("30"), Kind: bq.Text("extraordinary_payment")},
		},
	}

	set, warnings := Normalize(quietContext(), raw, time.UTC)

	if len(set.Deposits) != 2 {
		t.Fatalf("got %d deposits, want 2", len(set.Deposits))
	}
	if set.Deposits[0].Kind != domain.DepositOrdinary {
		t.Errorf("unknown kind mapped to %q, want ordinary", set.Deposits[0].Kind)
	}
	if set.Deposits[1].Kind != domain.DepositExtraordinaryPayment {
		t.Errorf("kind = %q, want extraordinary_payment", set.Deposits[1].Kind)
	}
	if got := countWarnings(warnings, WarningUnknownDepositKind); got != 1 {
		t.Errorf("got %d unknown kind warnings, want 1", got)
	}
	if got := countWarnings(warnings, WarningUnmatchedStore); got != 1 {
		t.Errorf("got %d unmatched store warnings, want one per store", got)
	}
}

func TestNormalize_DuplicateStoreIDs(t *testing.T) {
	rows := []*bq.StoreRow{
		{StoreID: "A", Name: "Duomo"},
		{StoreID: " A", Name: "Centro"},
		{StoreID: "A", Name: ""},
		{StoreID: "A", Name: "Duomo"},
		{StoreID: "B", Name: "Navigli"},
	}
	reversed := make([]*bq.StoreRow, len(rows))
	for i, r := range rows {
		reversed[len(rows)-1-i] = r
	}

	set1, warnings1 := Normalize(quietContext(), &bq.RawRecords{Stores: rows}, time.UTC)
	set2, warnings2 := Normalize(quietContext(), &bq.RawRecords{Stores: reversed}, time.UTC)

	want := []domain.Store{{ID: "A", Name: "Centro"}, {ID: "B", Name: "Navigli"}}
	if diff := cmp.Diff(want, set1.Stores); diff != "" {
		t.Errorf("stores mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(set1, set2, decimalEqual); diff != "" {
		t.Errorf("store order changed the records (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(warnings1, warnings2); diff != "" {
		t.Errorf("store order changed the warnings (-first +second):\n%s", diff)
	}
	// Duomo and the empty name both lose to Centro.
	if got := countWarnings(warnings1, WarningDuplicateStore); got != 2 {
		t.Errorf("got %d duplicate store warnings, want 2: %+v", got, warnings1)
	}
}

func TestNormalize_WarningsUseTrimmedStoreIDs(t *testing.T) {
	raw := &bq.RawRecords{
		Stores: []*bq.StoreRow{{StoreID: "A", Name: "Store A"}},
		CashIns: []*bq.CashInRow{
			{StoreID: " A ", BusinessDate: bq.Text("not a date"), Amount: bq.Text("10")},
		},
		Deposits: []*bq.DepositRow{
			{DepositID: "d1", StoreID: " A ", DepositedAt: bq.Text("2024-03-01 10:00"), Amount: bq.Text("20"), Kind: bq.Text("bonifico")},
		},
	}

	_, warnings := Normalize(quietContext(), raw, time.UTC)

	if len(warnings) != 2 {
		t.Fatalf("warnings = %+v, want a parse and an unknown kind warning", warnings)
	}
	for _, w := range warnings {
		if w.StoreID != "A" {
			t.Errorf("%s warning store = %q, want %q", w.Kind, w.StoreID, "A")
		}
	}
}

func TestNormalize_AlertConfigs(t *testing.T) {
	raw := &bq.RawRecords{
		AlertConfigs: []*bq.AlertConfigRow{
			{StoreID: "A", Threshold: bq.Text("200"), IsActive: bq.Bool(true)},
			{StoreID: "B", Threshold: bq.Text("150")},
		},
	}

	set, _ := Normalize(quietContext(), raw, nil)

	if len(set.AlertConfigs) != 2 {
		t.Fatalf("got %d configs, want 2", len(set.AlertConfigs))
	}
	if !set.AlertConfigs[0].Active {
		t.Error("store A config should be active")
	}
	if set.AlertConfigs[1].Active {
		t.Error("a NULL is_active should read as inactive")
	}
}

func TestNormalize_Nil(t *testing.T) {
	set, warnings := Normalize(quietContext(), nil, nil)
	if len(warnings) != 0 || len(set.CashIns) != 0 {
		t.Errorf("Normalize(nil) = %+v, %+v; want empty", set, warnings)
	}
}
