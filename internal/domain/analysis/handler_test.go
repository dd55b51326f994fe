package analysis

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/rxcheck/rxcheck/internal/platform/apperr"
	"github.com/rxcheck/rxcheck/internal/platform/webhook"
)

func newTestHandler(cfg HandlerConfig) (*Handler, *testEnv, *echo.Echo) {
	env := newTestEnv(Config{})
	return NewHandler(env.svc, cfg, zerolog.Nop()), env, echo.New()
}

func jsonContext(e *echo.Echo, method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestHandler_Analyze(t *testing.T) {
	h, env, e := newTestHandler(HandlerConfig{})
	env.model.reply = "✅ Safe"

	c, rec := jsonContext(e, http.MethodPost, "/analyze",
		`{"userId":"u1","userProfile":{"age":40},"prescription":"Aspirin","labReport":"normal"}`)
	if err := h.Analyze(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]string
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["report"] != "✅ Safe" {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
}

func TestHandler_Analyze_MissingUser(t *testing.T) {
	h, _, e := newTestHandler(HandlerConfig{})
	c, _ := jsonContext(e, http.MethodPost, "/analyze", `{"prescription":"Aspirin"}`)
	err := h.Analyze(c)
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestHandler_Analyze_UpstreamFailureIsGeneric(t *testing.T) {
	h, env, e := newTestHandler(HandlerConfig{})
	env.model.err = apperr.Upstream("Failed to generate content", errors.New("secret detail"))

	c, _ := jsonContext(e, http.MethodPost, "/analyze", `{"userId":"u1"}`)
	err := h.Analyze(c)
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("expected HTTP error, got %v", err)
	}
	if he.Code != http.StatusInternalServerError || he.Message != "Failed to generate analysis." {
		t.Errorf("unexpected error: %d %v", he.Code, he.Message)
	}
}

func TestHandler_Analyze_UsesAuthenticatedUser(t *testing.T) {
	h, env, e := newTestHandler(HandlerConfig{})
	c, _ := jsonContext(e, http.MethodPost, "/analyze", `{"userId":"u2"}`)
	c.Set("auth_uid", "u1")
	if err := h.Analyze(c); !errors.Is(err, apperr.ErrAuth) {
		t.Fatalf("expected auth error for mismatched user, got %v", err)
	}
	if env.model.calls() != 0 {
		t.Error("expected no model call")
	}
}

func TestHandler_AnalyzeSymptoms_ResponseShape(t *testing.T) {
	h, env, e := newTestHandler(HandlerConfig{})
	env.saveProfile(t, "u1", "", false)
	env.model.reply = "✅ Safe"

	c, rec := jsonContext(e, http.MethodPost, "/symptom-analyzer", `{"userId":"u1","symptoms":"cough"}`)
	if err := h.AnalyzeSymptoms(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := strings.TrimSpace(rec.Body.String())
	want := `{"analysis":"✅ Safe","callData":null,"error":null}`
	if got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestHandler_AnalyzeSymptoms_Escalated(t *testing.T) {
	h, env, e := newTestHandler(HandlerConfig{})
	env.saveProfile(t, "u1", "Diabetes", true)
	env.model.reply = "❌ Critical"

	c, rec := jsonContext(e, http.MethodPost, "/symptom-analyzer", `{"userId":"u1","symptoms":"chest pain and shortness of breath"}`)
	if err := h.AnalyzeSymptoms(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body struct {
		Analysis string          `json:"analysis"`
		CallData json.RawMessage `json:"callData"`
		Error    *string         `json:"error"`
	}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if !strings.Contains(string(body.CallData), `"access_token":"tok"`) || body.Error != nil {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
}

func TestHandler_AnalyzeSymptoms_ProfileNotFound(t *testing.T) {
	h, _, e := newTestHandler(HandlerConfig{})
	c, _ := jsonContext(e, http.MethodPost, "/symptom-analyzer", `{"userId":"ghost","symptoms":"cough"}`)
	err := h.AnalyzeSymptoms(c)
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestHandler_RetellWebhook(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		modelErr error
		wantCode int
		wantBody string
	}{
		{"other event", `{"event":"call_started","call":{"call_id":"c1"}}`, nil, http.StatusOK, `"status":"success"`},
		{"missing transcript", `{"event":"call_ended","call":{"call_id":"c1"}}`, nil, http.StatusBadRequest, `"message":"Missing transcript or call_id"`},
		{"no user id", `{"event":"call_ended","call":{"call_id":"c1","transcript":"hi"}}`, nil, http.StatusOK, `"status":"success"`},
		{"overloaded", `{"event":"call_ended","call":{"call_id":"c1","transcript":"hi"}}`,
			apperr.Overloaded("Gemini model is overloaded", errors.New("503")), http.StatusServiceUnavailable,
			`"error":"Gemini model is overloaded, could not generate summary."`},
		{"model failure", `{"event":"call_ended","call":{"call_id":"c1","transcript":"hi"}}`,
			apperr.Upstream("Failed to generate content", errors.New("boom")), http.StatusInternalServerError,
			`"error":"Internal Server Error"`},
		{"malformed", `{"event":`, nil, http.StatusBadRequest, `"status":"error"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, env, e := newTestHandler(HandlerConfig{})
			env.model.err = tt.modelErr
			c, rec := jsonContext(e, http.MethodPost, "/retell-webhook", tt.body)
			if err := h.RetellWebhook(c); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if rec.Code != tt.wantCode {
				t.Errorf("expected %d, got %d", tt.wantCode, rec.Code)
			}
			if !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("expected body to contain %s, got %s", tt.wantBody, rec.Body.String())
			}
		})
	}
}

func TestHandler_RetellWebhook_SignatureRoute(t *testing.T) {
	h, _, e := newTestHandler(HandlerConfig{WebhookSecret: "whsec"})
	h.RegisterRoutes(e.Group(""))
	body := `{"event":"call_started"}`

	req := httptest.NewRequest(http.MethodPost, "/retell-webhook", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without signature, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/retell-webhook", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(webhook.SignatureHeader, webhook.SignPayload([]byte(body), "whsec", time.Now()))
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with valid signature, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandler_DebugEnv(t *testing.T) {
	h, _, e := newTestHandler(HandlerConfig{RetellAPIKeySet: true})
	req := httptest.NewRequest(http.MethodGet, "/debug-env", nil)
	rec := httptest.NewRecorder()
	if err := h.DebugEnv(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := strings.TrimSpace(rec.Body.String())
	want := `{"retellAgentIdExists":false,"retellApiKeyExists":true}`
	if got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}
