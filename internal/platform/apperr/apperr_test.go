package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatus_ByKind(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{Validation("symptoms are required"), http.StatusBadRequest},
		{Auth("user id is required"), http.StatusUnauthorized},
		{NotFound("profile not found"), http.StatusNotFound},
		{Upstream("model failed", errors.New("boom")), http.StatusBadGateway},
		{Overloaded("model overloaded", errors.New("503")), http.StatusServiceUnavailable},
		{Configuration("RETELL_AGENT_ID is not configured"), http.StatusInternalServerError},
		{Persistence("save failed", errors.New("db down")), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := From(tc.err).HTTPStatus(); got != tc.want {
			t.Errorf("%v: expected %d, got %d", tc.err, tc.want, got)
		}
	}
}

func TestIs_MatchesKindThroughWrapping(t *testing.T) {
	err := fmt.Errorf("load profile: %w", NotFound("User profile not found."))
	if !errors.Is(err, ErrNotFound) {
		t.Error("expected wrapped not-found error to match ErrNotFound")
	}
	if errors.Is(err, ErrValidation) {
		t.Error("did not expect not-found error to match ErrValidation")
	}
}

func TestFrom_Unclassified(t *testing.T) {
	e := From(errors.New("raw"))
	if e.Kind != KindInternal {
		t.Errorf("expected internal kind, got %s", e.Kind)
	}
	if e.HTTPStatus() != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", e.HTTPStatus())
	}
	if From(nil) != nil {
		t.Error("expected nil for nil error")
	}
}

func TestUnwrap_ExposesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Persistence("failed to save report", cause)
	if !errors.Is(err, cause) {
		t.Error("expected cause to be reachable via errors.Is")
	}
	if KindOf(err) != KindPersistence {
		t.Errorf("expected persistence kind, got %s", KindOf(err))
	}
}
