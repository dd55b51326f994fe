package profile

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/rxcheck/rxcheck/internal/platform/apperr"
)

func newTestHandler() (*Handler, *echo.Echo) {
	return NewHandler(newTestService()), echo.New()
}

func newContext(e *echo.Echo, method, target, body, userID string) (echo.Context, *httptest.ResponseRecorder) {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("userId")
	c.SetParamValues(userID)
	return c, rec
}

func TestHandler_SaveAndGetProfile(t *testing.T) {
	h, e := newTestHandler()

	c, rec := newContext(e, http.MethodPut, "/profiles/u1", `{"weight":70,"allergies":"none","callConsent":true}`, "u1")
	if err := h.SaveProfile(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	c, rec = newContext(e, http.MethodGet, "/profiles/u1", "", "u1")
	if err := h.GetProfile(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var p Profile
	json.Unmarshal(rec.Body.Bytes(), &p)
	if p.Weight != 70 || !p.CallConsent || p.UserID != "u1" {
		t.Errorf("unexpected profile: %+v", p)
	}
}

func TestHandler_GetProfile_NotFound(t *testing.T) {
	h, e := newTestHandler()
	c, _ := newContext(e, http.MethodGet, "/profiles/ghost", "", "ghost")
	err := h.GetProfile(c)
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestHandler_SaveProfile_OtherUserRejected(t *testing.T) {
	h, e := newTestHandler()
	c, _ := newContext(e, http.MethodPut, "/profiles/u1", `{"weight":70}`, "u1")
	c.Set("auth_uid", "someone-else")
	err := h.SaveProfile(c)
	if !errors.Is(err, apperr.ErrAuth) {
		t.Fatalf("expected auth error, got %v", err)
	}
}

func TestHandler_ListReports_Paginated(t *testing.T) {
	h, e := newTestHandler()
	for i := 0; i < 5; i++ {
		h.svc.CreateReport(context.Background(), &Report{UserID: "u1", Analysis: "r"})
	}

	c, rec := newContext(e, http.MethodGet, "/profiles/u1/reports?limit=2&offset=2", "", "u1")
	if err := h.ListReports(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp struct {
		Data    []Report `json:"data"`
		Total   int      `json:"total"`
		HasMore bool     `json:"hasMore"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 5 || len(resp.Data) != 2 || !resp.HasMore {
		t.Errorf("unexpected page: total=%d len=%d hasMore=%v", resp.Total, len(resp.Data), resp.HasMore)
	}
}

func TestHandler_ListCallLogs_Empty(t *testing.T) {
	h, e := newTestHandler()
	c, rec := newContext(e, http.MethodGet, "/profiles/u1/call-logs", "", "u1")
	if err := h.ListCallLogs(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"data":[]`) {
		t.Errorf("expected empty data array, got %s", rec.Body.String())
	}
}
