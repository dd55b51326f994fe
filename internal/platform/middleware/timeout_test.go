package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func runWithTimeout(timeout time.Duration, path string, skip []string, h echo.HandlerFunc) (*httptest.ResponseRecorder, error) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, path, nil), rec)
	c.SetPath(path)
	return rec, RequestTimeout(timeout, skip...)(h)(c)
}

// waitForModel blocks like an upstream call honouring the request context.
func waitForModel(c echo.Context) error {
	select {
	case <-time.After(2 * time.Second):
		return c.String(http.StatusOK, "done")
	case <-c.Request().Context().Done():
		return c.Request().Context().Err()
	}
}

func TestRequestTimeout_FastHandler(t *testing.T) {
	rec, err := runWithTimeout(time.Second, "/analyze", nil, func(c echo.Context) error {
		if _, ok := c.Request().Context().Deadline(); !ok {
			t.Error("expected a deadline on the request context")
		}
		return c.String(http.StatusOK, "ok")
	})
	if err != nil || rec.Code != http.StatusOK {
		t.Fatalf("unexpected result %d %v", rec.Code, err)
	}
}

func TestRequestTimeout_Expired(t *testing.T) {
	_, err := runWithTimeout(20*time.Millisecond, "/symptom-analyzer", nil, waitForModel)
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusGatewayTimeout {
		t.Fatalf("expected 504, got %v", err)
	}
	if !errors.Is(he.Internal, context.DeadlineExceeded) {
		t.Errorf("expected deadline cause, got %v", he.Internal)
	}
}

func TestRequestTimeout_CommittedResponseKept(t *testing.T) {
	rec, err := runWithTimeout(20*time.Millisecond, "/analyze", nil, func(c echo.Context) error {
		c.String(http.StatusOK, "partial")
		<-c.Request().Context().Done()
		return nil
	})
	if err != nil || rec.Code != http.StatusOK {
		t.Fatalf("expected committed 200 kept, got %d %v", rec.Code, err)
	}
}

func TestRequestTimeout_SkippedRoute(t *testing.T) {
	_, err := runWithTimeout(time.Millisecond, "/health/db", []string{"/health/db"}, func(c echo.Context) error {
		if _, ok := c.Request().Context().Deadline(); ok {
			t.Error("skipped route should have no deadline")
		}
		return c.NoContent(http.StatusOK)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRequestTimeout_Disabled(t *testing.T) {
	_, err := runWithTimeout(0, "/analyze", nil, func(c echo.Context) error {
		if _, ok := c.Request().Context().Deadline(); ok {
			t.Error("zero timeout should leave the context alone")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
