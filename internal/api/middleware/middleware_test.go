package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dvloznov/cash-ledger/internal/logger"
	"github.com/rs/zerolog"
)

func TestChain_RequestIDAndLogging(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)

	var seenID string
	h := Chain(log, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID = RequestIDFromContext(r.Context())
		reqLog := logger.FromContext(r.Context())
		reqLog.Info().Msg("inside handler")
		WriteJSON(w, http.StatusTeapot, map[string]string{"ok": "yes"})
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/ledger", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if seenID != "req-42" || rec.Header().Get("X-Request-ID") != "req-42" {
		t.Errorf("request ID = %q, header %q", seenID, rec.Header().Get("X-Request-ID"))
	}
	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d", rec.Code)
	}

	logs := buf.String()
	if !strings.Contains(logs, `"message":"inside handler"`) || strings.Count(logs, `"request_id":"req-42"`) != 2 {
		t.Errorf("logs should carry the request ID on both lines:\n%s", logs)
	}
	if !strings.Contains(logs, `"status":418`) {
		t.Errorf("access log missing status:\n%s", logs)
	}
}

func TestRequestID_Generated(t *testing.T) {
	var seenID string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID = RequestIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if len(seenID) != 36 || rec.Header().Get("X-Request-ID") != seenID {
		t.Errorf("generated ID = %q, header %q", seenID, rec.Header().Get("X-Request-ID"))
	}
}

func TestRecovery(t *testing.T) {
	h := Recovery(zerolog.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Internal server error") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestCORS_Preflight(t *testing.T) {
	called := false
	h := CORS(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/overrides", nil))

	if rec.Code != http.StatusNoContent || called {
		t.Errorf("preflight status = %d, handler called = %v", rec.Code, called)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}
}
