package ledger

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	bq "github.com/dvloznov/cash-ledger/internal/bigquery"
	"github.com/dvloznov/cash-ledger/internal/domain"
	"github.com/dvloznov/cash-ledger/internal/logger"
	"github.com/shopspring/decimal"
)

// Layouts accepted for timestamps without an explicit offset, tried in order.
var localLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02",
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"02/01/2006",
}

// Normalize parses raw rows into typed records. Rows with a malformed date or amount are
// excluded and reported as warnings; Normalize never fails. Timestamps without an offset are
// read in loc, and all timestamps are converted to loc before their calendar day is taken.
func Normalize(ctx context.Context, raw *bq.RawRecords, loc *time.Location) (RecordSet, []Warning) {
	if loc == nil {
		loc = time.UTC
	}
	n := &normalizer{loc: loc}
	set := RecordSet{}
	if raw == nil {
		return set, nil
	}

	set.Stores = n.stores(raw.Stores)
	set.CashCounts = n.cashCounts(raw.CashCounts)
	set.CashIns = n.cashIns(raw.CashIns)
	set.Withdrawals = n.withdrawals(raw.Withdrawals)
	set.Deposits = n.deposits(raw.Deposits)
	set.Overrides = n.overrides(raw.Overrides)
	set.AlertConfigs = n.alertConfigs(raw.AlertConfigs)

	known := set.storeIndex()
	for _, id := range set.referencedStores() {
		if _, ok := known[id]; !ok {
			n.warn(Warning{
				Kind:    WarningUnmatchedStore,
				Record:  "store",
				StoreID: id,
				Message: fmt.Sprintf("records reference unknown store %q", id),
			})
		}
	}

	log := logger.FromContext(ctx)
	for _, w := range n.warnings {
		log.Warn().
			Str("kind", string(w.Kind)).
			Str("record", w.Record).
			Str("record_id", w.RecordID).
			Str("store_id", string(w.StoreID)).
			Msg(w.Message)
	}

	return set, n.warnings
}

type normalizer struct {
	loc      *time.Location
	warnings []Warning
}

func (n *normalizer) warn(w Warning) {
	n.warnings = append(n.warnings, w)
}

func (n *normalizer) parseError(record, id, storeID string, err error) {
	n.warn(Warning{
		Kind:     WarningParse,
		Record:   record,
		RecordID: id,
		StoreID:  domain.StoreID(strings.TrimSpace(storeID)),
		Message:  fmt.Sprintf("%s excluded: %v", record, err),
	})
}

func (n *normalizer) stores(rows []*bq.StoreRow) []domain.Store {
	names := make(map[domain.StoreID][]string, len(rows))
	for _, r := range rows {
		if r == nil {
			continue
		}
		id := domain.StoreID(strings.TrimSpace(r.StoreID))
		if id == "" {
			continue
		}
		names[id] = append(names[id], strings.TrimSpace(r.Name))
	}

	stores := make([]domain.Store, 0, len(names))
	for _, id := range sortedStoreIDs(names) {
		candidates := names[id]
		sort.Slice(candidates, func(i, j int) bool { return storeNameWins(candidates[i], candidates[j]) })
		kept := candidates[0]
		for i, name := range candidates[1:] {
			if name == kept || name == candidates[i] {
				continue
			}
			n.warn(Warning{
				Kind:    WarningDuplicateStore,
				Record:  "store",
				StoreID: id,
				Message: fmt.Sprintf("store %q is also named %q, keeping %q", id, name, kept),
			})
		}
		stores = append(stores, domain.Store{ID: id, Name: kept})
	}
	return stores
}

// storeNameWins picks between two names of the same store: a non-empty name beats an empty one,
// otherwise the lexicographically smaller wins.
func storeNameWins(a, b string) bool {
	if (a == "") != (b == "") {
		return a != ""
	}
	return a < b
}

func (n *normalizer) cashCounts(rows []*bq.CashCountRow) []domain.CashCount {
	out := make([]domain.CashCount, 0, len(rows))
	for _, r := range rows {
		if r == nil {
			continue
		}
		at, err := ParseTimestamp(r.CountedAt.StringVal, n.loc)
		if err != nil {
			n.parseError("cash_count", r.CountID, r.StoreID, err)
			continue
		}
		value, err := ParseAmount(r.Value.StringVal)
		if err != nil {
			n.parseError("cash_count", r.CountID, r.StoreID, err)
			continue
		}
		out = append(out, domain.CashCount{
			ID:         r.CountID,
			StoreID:    domain.StoreID(strings.TrimSpace(r.StoreID)),
			CountedAt:  at,
			Value:      value,
			RecordedBy: strings.TrimSpace(r.RecordedBy.StringVal),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.StoreID != b.StoreID {
			return a.StoreID < b.StoreID
		}
		if !a.CountedAt.Equal(b.CountedAt) {
			return a.CountedAt.Before(b.CountedAt)
		}
		return a.ID < b.ID
	})
	return out
}

func (n *normalizer) cashIns(rows []*bq.CashInRow) []domain.CashIn {
	out := make([]domain.CashIn, 0, len(rows))
	for _, r := range rows {
		if r == nil {
			continue
		}
		date, err := parseDate(r.BusinessDate.StringVal, n.loc)
		if err != nil {
			n.parseError("cash_in", "", r.StoreID, err)
			continue
		}
		amount, err := ParseAmount(r.Amount.StringVal)
		if err != nil {
			n.parseError("cash_in", "", r.StoreID, err)
			continue
		}
		out = append(out, domain.CashIn{
			StoreID: domain.StoreID(strings.TrimSpace(r.StoreID)),
			Date:    date,
			Amount:  amount,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.StoreID != b.StoreID {
			return a.StoreID < b.StoreID
		}
		if a.Date != b.Date {
			return a.Date.Before(b.Date)
		}
		return a.Amount.LessThan(b.Amount)
	})
	return out
}

func (n *normalizer) withdrawals(rows []*bq.WithdrawalRow) []domain.Withdrawal {
	out := make([]domain.Withdrawal, 0, len(rows))
	for _, r := range rows {
		if r == nil {
			continue
		}
		at, err := ParseTimestamp(r.WithdrawnAt.StringVal, n.loc)
		if err != nil {
			n.parseError("withdrawal", r.WithdrawalID, r.StoreID, err)
			continue
		}
		amount, err := ParseAmount(r.Amount.StringVal)
		if err != nil {
			n.parseError("withdrawal", r.WithdrawalID, r.StoreID, err)
			continue
		}
		out = append(out, domain.Withdrawal{
			ID:         r.WithdrawalID,
			StoreID:    domain.StoreID(strings.TrimSpace(r.StoreID)),
			At:         at,
			Amount:     amount,
			RecordedBy: strings.TrimSpace(r.RecordedBy.StringVal),
			Note:       strings.TrimSpace(r.Note.StringVal),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.StoreID != b.StoreID {
			return a.StoreID < b.StoreID
		}
		if !a.At.Equal(b.At) {
			return a.At.Before(b.At)
		}
		return a.ID < b.ID
	})
	return out
}

func (n *normalizer) deposits(rows []*bq.DepositRow) []domain.Deposit {
	out := make([]domain.Deposit, 0, len(rows))
	for _, r := range rows {
		if r == nil {
			continue
		}
		at, err := ParseTimestamp(r.DepositedAt.StringVal, n.loc)
		if err != nil {
			n.parseError("deposit", r.DepositID, r.StoreID, err)
			continue
		}
		amount, err := ParseAmount(r.Amount.StringVal)
		if err != nil {
			n.parseError("deposit", r.DepositID, r.StoreID, err)
			continue
		}
		kind, ok := ParseDepositKind(r.Kind.StringVal)
		if !ok {
			n.warn(Warning{
				Kind:     WarningUnknownDepositKind,
				Record:   "deposit",
				RecordID: r.DepositID,
				StoreID:  domain.StoreID(strings.TrimSpace(r.StoreID)),
				Message:  fmt.Sprintf("unknown deposit kind %q treated as ordinary", r.Kind.StringVal),
			})
		}
		out = append(out, domain.Deposit{
			ID:         r.DepositID,
			StoreID:    domain.StoreID(strings.TrimSpace(r.StoreID)),
			At:         at,
			Amount:     amount,
			RecordedBy: strings.TrimSpace(r.RecordedBy.StringVal),
			Kind:       kind,
			Note:       strings.TrimSpace(r.Note.StringVal),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.StoreID != b.StoreID {
			return a.StoreID < b.StoreID
		}
		if !a.At.Equal(b.At) {
			return a.At.Before(b.At)
		}
		return a.ID < b.ID
	})
	return out
}

func (n *normalizer) overrides(rows []*bq.OverrideRow) []domain.ManualOverride {
	parsed := make([]domain.ManualOverride, 0, len(rows))
	for _, r := range rows {
		if r == nil {
			continue
		}
		date, err := parseDate(r.BusinessDate.StringVal, n.loc)
		if err != nil {
			n.parseError("override", r.OverrideID, r.StoreID, err)
			continue
		}
		if strings.TrimSpace(r.Value.StringVal) == "" {
			// An override without a value cannot mean "opening balance is zero".
			n.parseError("override", r.OverrideID, r.StoreID, fmt.Errorf("missing override value"))
			continue
		}
		value, err := ParseAmount(r.Value.StringVal)
		if err != nil {
			n.parseError("override", r.OverrideID, r.StoreID, err)
			continue
		}
		var setAt time.Time
		if strings.TrimSpace(r.SetAt.StringVal) != "" {
			setAt, err = ParseTimestamp(r.SetAt.StringVal, n.loc)
			if err != nil {
				n.parseError("override", r.OverrideID, r.StoreID, err)
				continue
			}
		}
		parsed = append(parsed, domain.ManualOverride{
			ID:      r.OverrideID,
			StoreID: domain.StoreID(strings.TrimSpace(r.StoreID)),
			Date:    date,
			Value:   value,
			SetBy:   strings.TrimSpace(r.SetBy.StringVal),
			SetAt:   setAt,
		})
	}

	kept, discarded := resolveOverrides(parsed)
	for _, d := range discarded {
		n.warn(Warning{
			Kind:     WarningAmbiguousOverride,
			Record:   "override",
			RecordID: d.ID,
			StoreID:  d.StoreID,
			Message:  fmt.Sprintf("override for %s on %s superseded by a more recent one", d.StoreID, d.Date),
		})
	}
	return kept
}

func (n *normalizer) alertConfigs(rows []*bq.AlertConfigRow) []domain.AlertConfig {
	out := make([]domain.AlertConfig, 0, len(rows))
	for _, r := range rows {
		if r == nil {
			continue
		}
		threshold, err := ParseAmount(r.Threshold.StringVal)
		if err != nil {
			n.parseError("alert_config", "", r.StoreID, err)
			continue
		}
		out = append(out, domain.AlertConfig{
			StoreID:   domain.StoreID(strings.TrimSpace(r.StoreID)),
			Threshold: threshold,
			Active:    r.IsActive.Valid && r.IsActive.Bool,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.StoreID != b.StoreID {
			return a.StoreID < b.StoreID
		}
		return a.Threshold.LessThan(b.Threshold)
	})
	return out
}

// resolveOverrides keeps one override per (store, date): the latest SetAt wins, ties go to the
// larger ID. The result is sorted by store and date; discarded overrides are returned separately.
func resolveOverrides(overrides []domain.ManualOverride) (kept, discarded []domain.ManualOverride) {
	type key struct {
		store domain.StoreID
		date  civil.Date
	}
	winners := make(map[key]domain.ManualOverride, len(overrides))
	for _, o := range overrides {
		k := key{o.StoreID, o.Date}
		cur, ok := winners[k]
		if !ok {
			winners[k] = o
			continue
		}
		if overrideWins(o, cur) {
			winners[k] = o
			discarded = append(discarded, cur)
		} else {
			discarded = append(discarded, o)
		}
	}

	kept = make([]domain.ManualOverride, 0, len(winners))
	for _, o := range winners {
		kept = append(kept, o)
	}
	sort.Slice(kept, func(i, j int) bool {
		if kept[i].StoreID != kept[j].StoreID {
			return kept[i].StoreID < kept[j].StoreID
		}
		return kept[i].Date.Before(kept[j].Date)
	})
	sort.Slice(discarded, func(i, j int) bool {
		a, b := discarded[i], discarded[j]
		if a.StoreID != b.StoreID {
			return a.StoreID < b.StoreID
		}
		if a.Date != b.Date {
			return a.Date.Before(b.Date)
		}
		return a.ID < b.ID
	})
	return kept, discarded
}

func overrideWins(a, b domain.ManualOverride) bool {
	if !a.SetAt.Equal(b.SetAt) {
		return a.SetAt.After(b.SetAt)
	}
	return a.ID > b.ID
}

// ParseDepositKind maps the stored kind tag to a DepositKind. Empty means ordinary.
// The second result is false for unrecognized tags, which are also treated as ordinary.
func ParseDepositKind(s string) (domain.DepositKind, bool) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer("-", "_", " ", "_").Replace(norm)
	switch norm {
	case "", "ordinary", "ordinario":
		return domain.DepositOrdinary, true
	case "manual_adjustment", "adjustment", "rettifica", "rettifica_manuale":
		return domain.DepositManualAdjustment, true
	case "extraordinary_payment", "extraordinary", "pagamento_straordinario", "straordinario":
		return domain.DepositExtraordinaryPayment, true
	default:
		return domain.DepositOrdinary, false
	}
}

// ParseTimestamp reads an RFC 3339 timestamp, or a local one in loc using the layouts above.
func ParseTimestamp(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("missing timestamp")
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.In(loc), nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

func parseDate(s string, loc *time.Location) (civil.Date, error) {
	trimmed := strings.TrimSpace(s)
	if d, err := civil.ParseDate(trimmed); err == nil {
		return d, nil
	}
	t, err := ParseTimestamp(trimmed, loc)
	if err != nil {
		return civil.Date{}, fmt.Errorf("invalid date %q", s)
	}
	return civil.DateOf(t), nil
}

// ParseAmount reads a currency amount. Empty means zero. Both "1,234.56" and the Italian
// "1.234,56" are accepted, as is a leading euro sign.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimSpace(strings.TrimPrefix(s, "€"))
	s = strings.NewReplacer(" ", "", "\u00a0", "").Replace(s)
	if s == "" {
		return decimal.Zero, nil
	}

	if strings.Contains(s, ",") {
		if strings.Contains(s, ".") && strings.LastIndex(s, ",") < strings.LastIndex(s, ".") {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.ReplaceAll(s, ",", ".")
		}
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q", s)
	}
	return d, nil
}
