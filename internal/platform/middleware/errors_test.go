package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/rxcheck/rxcheck/internal/platform/apperr"
)

type captured struct {
	errs []error
	tags []map[string]string
}

func (r *captured) Capture(err error, tags map[string]string) {
	r.errs = append(r.errs, err)
	r.tags = append(r.tags, tags)
}

func TestErrorHandler(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantCode   int
		wantBody   string
		wantReport bool
	}{
		{"validation", apperr.Validation("User ID and symptoms are required."), http.StatusBadRequest, `{"error":"User ID and symptoms are required."}`, false},
		{"not found", apperr.NotFound("User profile not found."), http.StatusNotFound, `{"error":"User profile not found."}`, false},
		{"auth", apperr.Auth("nope"), http.StatusUnauthorized, `{"error":"nope"}`, false},
		{"overloaded", apperr.Overloaded("Gemini model is overloaded", errors.New("503")), http.StatusServiceUnavailable, `{"error":"Gemini model is overloaded"}`, true},
		{"upstream", apperr.Upstream("Failed to generate content", errors.New("secret")), http.StatusBadGateway, `{"error":"Failed to generate content"}`, true},
		{"http error", echo.NewHTTPError(http.StatusBadRequest, "No file uploaded."), http.StatusBadRequest, `{"error":"No file uploaded."}`, false},
		{"plain error", errors.New("pq: connection refused"), http.StatusInternalServerError, `{"error":"Internal Server Error"}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reporter := &captured{}
			e := echo.New()
			req := httptest.NewRequest(http.MethodPost, "/analyze", nil)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)
			c.Set("request_id", "rid-1")

			ErrorHandler(zerolog.Nop(), reporter)(tt.err, c)

			if rec.Code != tt.wantCode {
				t.Errorf("expected %d, got %d", tt.wantCode, rec.Code)
			}
			if got := strings.TrimSpace(rec.Body.String()); got != tt.wantBody {
				t.Errorf("expected %s, got %s", tt.wantBody, got)
			}
			if strings.Contains(rec.Body.String(), "secret") {
				t.Error("cause leaked to client")
			}
			if (len(reporter.errs) > 0) != tt.wantReport {
				t.Errorf("reported = %v, want %v", len(reporter.errs) > 0, tt.wantReport)
			}
			if tt.wantReport && reporter.tags[0]["request_id"] != "rid-1" {
				t.Errorf("expected request id tag, got %v", reporter.tags[0])
			}
		})
	}
}

func TestErrorHandler_HeadHasNoBody(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodHead, "/health", nil)
	rec := httptest.NewRecorder()
	ErrorHandler(zerolog.Nop(), nil)(apperr.NotFound("gone"), e.NewContext(req, rec))
	if rec.Code != http.StatusNotFound || rec.Body.Len() != 0 {
		t.Errorf("unexpected response %d %q", rec.Code, rec.Body.String())
	}
}

func TestErrorHandler_CommittedResponseUntouched(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.String(http.StatusOK, "done")

	ErrorHandler(zerolog.Nop(), nil)(errors.New("late"), c)
	if rec.Code != http.StatusOK || rec.Body.String() != "done" {
		t.Errorf("expected committed response to be kept, got %d %q", rec.Code, rec.Body.String())
	}
}
