package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/cash-ledger/internal/api/middleware"
	bq "github.com/dvloznov/cash-ledger/internal/bigquery"
	"github.com/dvloznov/cash-ledger/internal/jobs"
	"github.com/dvloznov/cash-ledger/internal/ledger"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// localTimestampLayout is how server-stamped times are stored, matching what the cash forms write.
const localTimestampLayout = "2006-01-02 15:04:05"

// OverrideRequest is the body of POST /api/overrides.
type OverrideRequest struct {
	StoreID      string `json:"store_id" validate:"required"`
	BusinessDate string `json:"business_date" validate:"required,datetime=2006-01-02"`
	Value        string `json:"value" validate:"required,amount"`
	SetBy        string `json:"set_by" validate:"required"`
}

// WithdrawalRequest is the body of POST /api/withdrawals. WithdrawnAt defaults to now.
type WithdrawalRequest struct {
	StoreID     string `json:"store_id" validate:"required"`
	WithdrawnAt string `json:"withdrawn_at" validate:"omitempty,timestamp"`
	Amount      string `json:"amount" validate:"required,amount"`
	RecordedBy  string `json:"recorded_by" validate:"required"`
	Note        string `json:"note" validate:"max=500"`
}

// DepositRequest is the body of POST /api/deposits. DepositedAt defaults to now and Kind to ordinary.
type DepositRequest struct {
	StoreID     string `json:"store_id" validate:"required"`
	DepositedAt string `json:"deposited_at" validate:"omitempty,timestamp"`
	Amount      string `json:"amount" validate:"required,amount"`
	RecordedBy  string `json:"recorded_by" validate:"required"`
	Kind        string `json:"kind" validate:"omitempty,deposit_kind"`
	Note        string `json:"note" validate:"max=500"`
}

// WritesHandler stores overrides and cash movements, then asks for the affected ledger to be
// recomputed.
type WritesHandler struct {
	overrides bq.OverrideRepository
	movements bq.MovementRepository
	publisher jobs.Publisher
	validate  *validator.Validate
	loc       *time.Location
	log       zerolog.Logger
	now       func() time.Time
}

// NewWritesHandler creates a new writes handler. A nil publisher disables recompute jobs.
func NewWritesHandler(overrides bq.OverrideRepository, movements bq.MovementRepository, publisher jobs.Publisher, loc *time.Location, log zerolog.Logger) *WritesHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &WritesHandler{
		overrides: overrides,
		movements: movements,
		publisher: publisher,
		validate:  NewValidator(),
		loc:       loc,
		log:       log,
		now:       time.Now,
	}
}

// decode reads and validates a JSON body into v, writing a 400 on failure.
func (h *WritesHandler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		writeValidationError(w, err)
		return false
	}
	return true
}

func (h *WritesHandler) today() civil.Date {
	return civil.DateOf(h.now().In(h.loc))
}

// stamp returns at unchanged, or the current local time when at is empty.
func (h *WritesHandler) stamp(at string) string {
	if at = strings.TrimSpace(at); at != "" {
		return at
	}
	return h.now().In(h.loc).Format(localTimestampLayout)
}

// publishRecompute enqueues a recompute of stores from `from` to today and returns the job ID.
// A failure is logged: the write itself already succeeded.
func (h *WritesHandler) publishRecompute(ctx context.Context, stores []string, from civil.Date, reason string) string {
	if h.publisher == nil {
		return ""
	}

	end := h.today()
	if from.After(end) {
		end = from
	}
	job := &jobs.RecomputeJob{
		StoreIDs: stores,
		Start:    from,
		End:      end,
		Reason:   reason,
	}
	if err := h.publisher.PublishRecompute(ctx, job); err != nil {
		h.log.Error().Err(err).Strs("store_ids", stores).Str("reason", reason).Msg("Failed to enqueue recompute job")
		return ""
	}

	h.log.Info().Str("job_id", job.JobID).Strs("store_ids", stores).Str("reason", reason).Msg("Recompute job enqueued")
	return job.JobID
}

// CreateOverride handles POST /api/overrides
func (h *WritesHandler) CreateOverride(w http.ResponseWriter, r *http.Request) {
	var req OverrideRequest
	if !h.decode(w, r, &req) {
		return
	}
	ctx := r.Context()

	row := &bq.OverrideRow{
		OverrideID:   uuid.New().String(),
		StoreID:      strings.TrimSpace(req.StoreID),
		BusinessDate: bq.Text(req.BusinessDate),
		Value:        bq.Text(req.Value),
		SetBy:        bq.Text(strings.TrimSpace(req.SetBy)),
		SetAt:        bq.Text(h.now().UTC().Format(time.RFC3339)),
	}
	if err := h.overrides.InsertOverride(ctx, row); err != nil {
		h.log.Error().Err(err).Str("store_id", row.StoreID).Msg("Failed to insert override")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to save override")
		return
	}

	date, _ := civil.ParseDate(req.BusinessDate)
	jobID := h.publishRecompute(ctx, []string{row.StoreID}, date, "override created")

	middleware.WriteJSON(w, http.StatusCreated, map[string]string{
		"override_id": row.OverrideID,
		"job_id":      jobID,
	})
}

// DeleteOverride handles DELETE /api/overrides/{id}?store_id=A
// The optional store_id narrows the recompute job; without it every store is recomputed.
func (h *WritesHandler) DeleteOverride(w http.ResponseWriter, r *http.Request, overrideID string) {
	ctx := r.Context()

	if err := h.overrides.DeleteOverride(ctx, overrideID); err != nil {
		if errors.Is(err, bq.ErrNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "Override not found")
			return
		}
		h.log.Error().Err(err).Str("override_id", overrideID).Msg("Failed to delete override")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to delete override")
		return
	}

	var stores []string
	for _, id := range parseStoreIDs(r) {
		stores = append(stores, string(id))
	}
	from := h.today().AddDays(-DefaultWindowDays)
	jobID := h.publishRecompute(ctx, stores, from, "override deleted")

	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"override_id": overrideID,
		"status":      "deleted",
		"job_id":      jobID,
	})
}

// CreateWithdrawal handles POST /api/withdrawals
func (h *WritesHandler) CreateWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req WithdrawalRequest
	if !h.decode(w, r, &req) {
		return
	}
	ctx := r.Context()

	row := &bq.WithdrawalRow{
		WithdrawalID: uuid.New().String(),
		StoreID:      strings.TrimSpace(req.StoreID),
		WithdrawnAt:  bq.Text(h.stamp(req.WithdrawnAt)),
		Amount:       bq.Text(req.Amount),
		RecordedBy:   bq.Text(strings.TrimSpace(req.RecordedBy)),
		Note:         bq.Text(req.Note),
	}
	if err := h.movements.InsertWithdrawal(ctx, row); err != nil {
		h.log.Error().Err(err).Str("store_id", row.StoreID).Msg("Failed to insert withdrawal")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to save withdrawal")
		return
	}

	jobID := h.publishRecompute(ctx, []string{row.StoreID}, h.dayOf(row.WithdrawnAt.StringVal), "withdrawal recorded")

	middleware.WriteJSON(w, http.StatusCreated, map[string]string{
		"withdrawal_id": row.WithdrawalID,
		"job_id":        jobID,
	})
}

// CreateDeposit handles POST /api/deposits
func (h *WritesHandler) CreateDeposit(w http.ResponseWriter, r *http.Request) {
	var req DepositRequest
	if !h.decode(w, r, &req) {
		return
	}
	ctx := r.Context()

	kind, _ := ledger.ParseDepositKind(req.Kind)
	row := &bq.DepositRow{
		DepositID:   uuid.New().String(),
		StoreID:     strings.TrimSpace(req.StoreID),
		DepositedAt: bq.Text(h.stamp(req.DepositedAt)),
		Amount:      bq.Text(req.Amount),
		RecordedBy:  bq.Text(strings.TrimSpace(req.RecordedBy)),
		Kind:        bq.Text(string(kind)),
		Note:        bq.Text(req.Note),
	}
	if err := h.movements.InsertDeposit(ctx, row); err != nil {
		h.log.Error().Err(err).Str("store_id", row.StoreID).Msg("Failed to insert deposit")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to save deposit")
		return
	}

	jobID := h.publishRecompute(ctx, []string{row.StoreID}, h.dayOf(row.DepositedAt.StringVal), "deposit recorded")

	middleware.WriteJSON(w, http.StatusCreated, map[string]string{
		"deposit_id": row.DepositID,
		"job_id":     jobID,
	})
}

// dayOf returns the business day of a validated timestamp.
func (h *WritesHandler) dayOf(at string) civil.Date {
	t, err := ledger.ParseTimestamp(at, h.loc)
	if err != nil {
		return h.today()
	}
	return civil.DateOf(t)
}
