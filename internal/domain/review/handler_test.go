package review

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/woundcare/internal/domain/alerting"
	"github.com/ehr/woundcare/internal/platform/auth"
)

func newTestHandler(t *testing.T) (*Handler, *echo.Echo, *Review) {
	t.Helper()
	svc, _, _ := newTestService()
	r := openReview(t, svc, alerting.TierUrgent, "")
	return NewHandler(svc), echo.New(), r
}

func postTransition(e *echo.Echo, id, body, user string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if user != "" {
		req = req.WithContext(context.WithValue(req.Context(), auth.UserIDKey, user))
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(id)
	return c, rec
}

func TestHandler_AssignThenAcknowledge(t *testing.T) {
	h, e, r := newTestHandler(t)

	c, rec := postTransition(e, r.ID.String(), `{"clinician":"dr-okafor"}`, "charge-nurse")
	if err := h.Assign(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	var got Review
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got.Status != StatusUnderReview || got.AssignedTo != "dr-okafor" {
		t.Errorf("got %s / %q", got.Status, got.AssignedTo)
	}

	c, rec = postTransition(e, r.ID.String(), `{"note":"reviewed photos"}`, "dr-okafor")
	if err := h.Acknowledge(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got.Status != StatusAcknowledged {
		t.Errorf("expected acknowledged, got %s", got.Status)
	}
}

func TestHandler_InvalidTransitionConflict(t *testing.T) {
	h, e, r := newTestHandler(t)
	c, _ := postTransition(e, r.ID.String(), `{"decision":"action_taken","rationale":"x"}`, "dr-okafor")
	err := h.Decide(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusConflict {
		t.Errorf("expected 409, got %v", err)
	}
}

func TestHandler_NotFoundAndBadID(t *testing.T) {
	h, e, _ := newTestHandler(t)

	c, _ := postTransition(e, uuid.New().String(), "", "dr-okafor")
	if he, ok := h.Start(c).(*echo.HTTPError); !ok || he.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %v", he)
	}

	c, _ = postTransition(e, "not-a-uuid", "", "dr-okafor")
	if he, ok := h.Start(c).(*echo.HTTPError); !ok || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", he)
	}
}

func TestHandler_RequiresUser(t *testing.T) {
	h, e, r := newTestHandler(t)
	c, _ := postTransition(e, r.ID.String(), "", "")
	if he, ok := h.Start(c).(*echo.HTTPError); !ok || he.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %v", he)
	}
}

func TestHandler_ListReviews(t *testing.T) {
	h, e, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/?status=pending_review", nil)
	rec := httptest.NewRecorder()
	if err := h.ListReviews(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body struct {
		Data  []Review `json:"data"`
		Total int      `json:"total"`
	}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Total != 1 || len(body.Data) != 1 {
		t.Errorf("expected 1 review, got %d", body.Total)
	}

	req = httptest.NewRequest(http.MethodGet, "/?status=closed", nil)
	rec = httptest.NewRecorder()
	if he, ok := h.ListReviews(e.NewContext(req, rec)).(*echo.HTTPError); !ok || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown status, got %v", he)
	}
}

func TestHandler_GetReview(t *testing.T) {
	h, e, r := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(r.ID.String())
	if err := h.GetReview(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}
