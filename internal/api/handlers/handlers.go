// Package handlers implements the HTTP endpoints of the cash ledger API.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/cash-ledger/internal/api/middleware"
	"github.com/dvloznov/cash-ledger/internal/domain"
	"github.com/dvloznov/cash-ledger/internal/ledger"
	"github.com/dvloznov/cash-ledger/internal/pipeline"
	"github.com/go-playground/validator/v10"
)

// DefaultWindowDays is how far back a ledger query goes when no start date is given.
const DefaultWindowDays = 30

// Reconciler runs a reconciliation. *pipeline.Pipeline implements it.
type Reconciler interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Report, error)
}

// Health handles GET /health
func Health(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// parseStoreIDs reads repeated or comma-separated store_id query values.
func parseStoreIDs(r *http.Request) []domain.StoreID {
	var ids []domain.StoreID
	for _, v := range r.URL.Query()["store_id"] {
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, domain.StoreID(id))
			}
		}
	}
	return ids
}

// parseRange reads start and end (YYYY-MM-DD). A missing end is today; a missing start is
// DefaultWindowDays before the end.
func parseRange(r *http.Request, today civil.Date) (domain.DateRange, error) {
	query := r.URL.Query()
	rng := domain.DateRange{End: today}

	if s := query.Get("end"); s != "" {
		d, err := civil.ParseDate(s)
		if err != nil {
			return domain.DateRange{}, fmt.Errorf("invalid end date %q", s)
		}
		rng.End = d
	}
	rng.Start = rng.End.AddDays(-DefaultWindowDays)
	if s := query.Get("start"); s != "" {
		d, err := civil.ParseDate(s)
		if err != nil {
			return domain.DateRange{}, fmt.Errorf("invalid start date %q", s)
		}
		rng.Start = d
	}

	if err := rng.Validate(); err != nil {
		return domain.DateRange{}, err
	}
	return rng, nil
}

// NewValidator creates the payload validator. Field errors are reported with their JSON names,
// and the custom tags amount, timestamp and deposit_kind check values the way the ledger
// will later parse them.
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("amount", func(fl validator.FieldLevel) bool {
		d, err := ledger.ParseAmount(fl.Field().String())
		return err == nil && !d.IsNegative()
	})
	_ = v.RegisterValidation("timestamp", func(fl validator.FieldLevel) bool {
		_, err := ledger.ParseTimestamp(fl.Field().String(), time.UTC)
		return err == nil
	})
	_ = v.RegisterValidation("deposit_kind", func(fl validator.FieldLevel) bool {
		_, ok := ledger.ParseDepositKind(fl.Field().String())
		return ok
	})
	return v
}

// writeValidationError reports a failed payload validation as 400 with one entry per field.
func writeValidationError(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
	}
	middleware.WriteJSON(w, http.StatusBadRequest, map[string]interface{}{
		"error":  "Invalid request",
		"fields": fields,
	})
}
