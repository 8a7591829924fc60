package handlers

import (
	"errors"
	"net/http"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/cash-ledger/internal/api/middleware"
	"github.com/dvloznov/cash-ledger/internal/ledger"
	"github.com/dvloznov/cash-ledger/internal/pipeline"
	"github.com/rs/zerolog"
)

// LedgerHandler serves the computed ledger, alerts, employee floats and discrepancy stats.
// Every request runs a fresh reconciliation over the stored records.
type LedgerHandler struct {
	reconciler Reconciler
	loc        *time.Location
	log        zerolog.Logger
	now        func() time.Time
}

// NewLedgerHandler creates a new ledger handler. loc decides what "today" is for default ranges.
func NewLedgerHandler(reconciler Reconciler, loc *time.Location, log zerolog.Logger) *LedgerHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &LedgerHandler{
		reconciler: reconciler,
		loc:        loc,
		log:        log,
		now:        time.Now,
	}
}

// run parses the query and runs the reconciliation, writing the error response on failure.
func (h *LedgerHandler) run(w http.ResponseWriter, r *http.Request) (*pipeline.Report, bool) {
	rng, err := parseRange(r, civil.DateOf(h.now().In(h.loc)))
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}

	rep, err := h.reconciler.Run(r.Context(), pipeline.Request{
		StoreIDs: parseStoreIDs(r),
		Range:    rng,
	})
	if err != nil {
		if errors.Is(err, ledger.ErrInvalidRange) {
			middleware.WriteError(w, http.StatusBadRequest, err.Error())
			return nil, false
		}
		h.log.Error().Err(err).Str("range", rng.String()).Msg("Failed to compute ledger")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to compute ledger")
		return nil, false
	}
	return rep, true
}

// GetLedger handles GET /api/ledger?store_id=A,B&start=2024-03-01&end=2024-03-31
func (h *LedgerHandler) GetLedger(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.run(w, r)
	if !ok {
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"start":    rep.Start,
		"end":      rep.End,
		"stores":   rep.Ledger.Stores,
		"totals":   rep.Ledger.Totals,
		"stats":    rep.Stats,
		"warnings": rep.Warnings,
	})
}

// GetAlerts handles GET /api/alerts
func (h *LedgerHandler) GetAlerts(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.run(w, r)
	if !ok {
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": rep.Alerts,
		"count":  len(rep.Alerts),
	})
}

// GetFloats handles GET /api/floats
func (h *LedgerHandler) GetFloats(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.run(w, r)
	if !ok {
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"floats": rep.Floats,
		"count":  len(rep.Floats),
	})
}

// GetStats handles GET /api/stats
func (h *LedgerHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.run(w, r)
	if !ok {
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"start":  rep.Start,
		"end":    rep.End,
		"stats":  rep.Stats,
		"totals": rep.Ledger.Totals,
	})
}
