package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/bankrec_backend/bankrec"
	"github.com/mmdatafocus/bankrec_backend/models"
	"github.com/mmdatafocus/bankrec_backend/utils"
	"github.com/mmdatafocus/bankrec_backend/workflow"
	"gorm.io/gorm"
)

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{workflow.ErrSessionNotFound, http.StatusNotFound},
		{fmt.Errorf("statement line 7: %w", gorm.ErrRecordNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: no line at index 9", bankrec.ErrValidation), http.StatusBadRequest},
		{bankrec.ErrRemainderPolicyUnset, http.StatusBadRequest},
		{fmt.Errorf("%w: aml 3 is reconciled", bankrec.ErrReconciliationConflict), http.StatusConflict},
		{workflow.ErrSessionBusy, http.StatusConflict},
		{workflow.ErrIdempotencyInProgress, http.StatusConflict},
		{workflow.ErrPostingLockBusy, http.StatusConflict},
		{fmt.Errorf("convert: %w", models.ErrCurrencyRateMissing), http.StatusUnprocessableEntity},
		{utils.ErrorBusinessIdRequired, http.StatusUnauthorized},
		{bankrec.ErrHostContract, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := errorStatus(tt.err); got != tt.want {
			t.Errorf("errorStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func newTestRouter(t *testing.T, store *workflow.SessionStore) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if biz := c.GetHeader("X-Test-Business"); biz != "" {
			c.Request = c.Request.WithContext(utils.SetBusinessIdInContext(c.Request.Context(), biz))
		}
		c.Next()
	})
	h := &bankrecHandlers{
		sessions:  func() *workflow.SessionStore { return store },
		validator: func() *workflow.Validator { return &workflow.Validator{} },
	}
	registerBankrecRoutes(r.Group("/bankrec"), h)
	return r
}

func doRequest(r http.Handler, method, path, business, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if business != "" {
		req.Header.Set("X-Test-Business", business)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestGetSession_Missing(t *testing.T) {
	r := newTestRouter(t, workflow.NewSessionStore(nil, nil, 0, nil))
	w := doRequest(r, http.MethodGet, "/bankrec/sessions/nope", "biz-1", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 (%s)", w.Code, w.Body.String())
	}
}

func TestDiscardSession(t *testing.T) {
	store := workflow.NewSessionStore(nil, nil, 0, nil)
	if err := store.Save(context.Background(), &bankrec.Session{ID: "s1", BusinessId: "biz-1", StatementLineId: 7}); err != nil {
		t.Fatal(err)
	}
	r := newTestRouter(t, store)

	if w := doRequest(r, http.MethodDelete, "/bankrec/sessions/s1", "biz-2", ""); w.Code != http.StatusNotFound {
		t.Fatalf("other business: status = %d, want 404", w.Code)
	}
	if w := doRequest(r, http.MethodDelete, "/bankrec/sessions/s1", "biz-1", ""); w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204 (%s)", w.Code, w.Body.String())
	}
	if _, err := store.Load(context.Background(), "biz-1", "s1"); !errors.Is(err, workflow.ErrSessionNotFound) {
		t.Fatalf("session still stored: %v", err)
	}
}

func TestBadRequests(t *testing.T) {
	store := workflow.NewSessionStore(nil, nil, 0, nil)
	if err := store.Save(context.Background(), &bankrec.Session{ID: "s1", BusinessId: "biz-1"}); err != nil {
		t.Fatal(err)
	}
	r := newTestRouter(t, store)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
	}{
		{"new session without statement line", http.MethodPost, "/bankrec/sessions", `{}`},
		{"new session with malformed json", http.MethodPost, "/bankrec/sessions", `{"statement_line_id":`},
		{"empty aml ids", http.MethodPost, "/bankrec/sessions/s1/amls", `{"aml_ids":[]}`},
		{"negative aml id", http.MethodPost, "/bankrec/sessions/s1/amls", `{"aml_ids":[4,-1]}`},
		{"batch id not a number", http.MethodPost, "/bankrec/sessions/s1/batch-payments/abc", ""},
		{"expand without ids", http.MethodPost, "/bankrec/sessions/s1/batch-payments/expand", `{}`},
		{"remove without ids", http.MethodPost, "/bankrec/sessions/s1/lines/remove", `{"line_ids":[]}`},
		{"manual line without account", http.MethodPost, "/bankrec/sessions/s1/lines/manual", `{"amount_currency":"10"}`},
		{"edit with garbage amount", http.MethodPatch, "/bankrec/sessions/s1/lines/AB", `{"amount_currency":"abc"}`},
		{"edit without amount", http.MethodPatch, "/bankrec/sessions/s1/lines/AB", `{}`},
		{"negative redirect index", http.MethodGet, "/bankrec/sessions/s1/redirect/-1", ""},
		{"candidates with bad batch id", http.MethodGet, "/bankrec/sessions/s1/candidates?batch_payment_ids=x", ""},
		{"restore with unknown op", http.MethodPost, "/bankrec/restore", `{"statement_line_id":7,"commands":[{"op":"merge"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(r, tt.method, tt.path, "biz-1", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400 (%s)", w.Code, w.Body.String())
			}
		})
	}
}

func TestMutation_MissingSession(t *testing.T) {
	r := newTestRouter(t, workflow.NewSessionStore(nil, nil, 0, nil))
	w := doRequest(r, http.MethodPatch, "/bankrec/sessions/gone/lines/AB", "biz-1", `{"amount_currency":"1,250.00"}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 (%s)", w.Code, w.Body.String())
	}
}

func TestSplitAndTrim(t *testing.T) {
	got := splitAndTrim(" https://a.example , ,https://b.example")
	if len(got) != 2 || got[0] != "https://a.example" || got[1] != "https://b.example" {
		t.Fatalf("splitAndTrim = %q", got)
	}
	if splitAndTrim("  ") != nil {
		t.Fatal("blank list should be nil")
	}
}
