package bigquery

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// mockRecordRepository returns one row per kind, or fails on the named kind.
type mockRecordRepository struct {
	failOn string
	filter RecordFilter
}

func (m *mockRecordRepository) err(kind string) error {
	if m.failOn == kind {
		return errors.New("backend unavailable")
	}
	return nil
}

func (m *mockRecordRepository) ListStores(ctx context.Context) ([]*StoreRow, error) {
	return []*StoreRow{{StoreID: "A"}}, m.err("stores")
}

func (m *mockRecordRepository) ListCashCounts(ctx context.Context, filter RecordFilter) ([]*CashCountRow, error) {
	return []*CashCountRow{{CountID: "c1"}}, m.err("counts")
}

func (m *mockRecordRepository) ListCashIns(ctx context.Context, filter RecordFilter) ([]*CashInRow, error) {
	m.filter = filter
	return []*CashInRow{{StoreID: "A"}}, m.err("cashins")
}

func (m *mockRecordRepository) ListWithdrawals(ctx context.Context, filter RecordFilter) ([]*WithdrawalRow, error) {
	return []*WithdrawalRow{{WithdrawalID: "w1"}}, m.err("withdrawals")
}

func (m *mockRecordRepository) ListDeposits(ctx context.Context, filter RecordFilter) ([]*DepositRow, error) {
	return []*DepositRow{{DepositID: "d1"}}, m.err("deposits")
}

func (m *mockRecordRepository) ListOverrides(ctx context.Context, filter RecordFilter) ([]*OverrideRow, error) {
	return []*OverrideRow{{OverrideID: "o1"}}, m.err("overrides")
}

func (m *mockRecordRepository) ListAlertConfigs(ctx context.Context) ([]*AlertConfigRow, error) {
	return []*AlertConfigRow{{StoreID: "A"}}, m.err("alerts")
}

func TestLoadRaw(t *testing.T) {
	repo := &mockRecordRepository{}
	filter := RecordFilter{StoreIDs: []string{"A"}}

	raw, err := LoadRaw(context.Background(), repo, filter)
	if err != nil {
		t.Fatalf("LoadRaw() error = %v", err)
	}

	if len(raw.Stores) != 1 || len(raw.CashCounts) != 1 || len(raw.CashIns) != 1 || len(raw.Withdrawals) != 1 ||
		len(raw.Deposits) != 1 || len(raw.Overrides) != 1 || len(raw.AlertConfigs) != 1 {
		t.Errorf("LoadRaw() did not collect every kind: %+v", raw)
	}
	if len(repo.filter.StoreIDs) != 1 || repo.filter.StoreIDs[0] != "A" {
		t.Errorf("filter not passed through: %+v", repo.filter)
	}
}

func TestLoadRaw_Error(t *testing.T) {
	_, err := LoadRaw(context.Background(), &mockRecordRepository{failOn: "withdrawals"}, RecordFilter{})
	if err == nil {
		t.Fatal("LoadRaw() expected error")
	}
	if !strings.Contains(err.Error(), "withdrawals") {
		t.Errorf("error %q should name the failing kind", err)
	}
}

func TestText(t *testing.T) {
	if v := Text(""); v.Valid {
		t.Error("Text(\"\") should be NULL")
	}
	if v := Text("12,50"); !v.Valid || v.StringVal != "12,50" {
		t.Errorf("Text() = %+v", v)
	}
}
