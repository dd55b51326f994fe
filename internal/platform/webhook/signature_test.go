package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const testBody = `{"event":"call_ended","call_id":"call_123","transcript":"hello"}`

var signedAt = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func TestSignPayload_Format(t *testing.T) {
	mac := hmac.New(sha256.New, []byte("secret-key"))
	mac.Write([]byte(testBody + "1772359200000"))
	want := "v=1772359200000,d=" + hex.EncodeToString(mac.Sum(nil))

	if got := SignPayload([]byte(testBody), "secret-key", signedAt); got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestVerifySignature(t *testing.T) {
	payload := []byte(testBody)
	sig := SignPayload(payload, "secret-key", signedAt)
	stamp, sum, _ := strings.Cut(sig, ",d=")

	tests := []struct {
		name   string
		secret string
		header string
		now    time.Time
		want   bool
	}{
		{"valid", "secret-key", sig, signedAt.Add(time.Second), true},
		{"uppercase digest", "secret-key", stamp + ",d=" + strings.ToUpper(sum), signedAt, true},
		{"wrong secret", "wrong-secret", sig, signedAt, false},
		{"too old", "secret-key", sig, signedAt.Add(MaxSignatureAge + time.Second), false},
		{"from the future", "secret-key", sig, signedAt.Add(-MaxSignatureAge - time.Second), false},
		{"bare digest", "secret-key", sum, signedAt, false},
		{"no timestamp", "secret-key", "d=abc", signedAt, false},
		{"bad timestamp", "secret-key", "v=soon,d=abc", signedAt, false},
		{"garbage", "secret-key", "invalid-sig", signedAt, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := VerifySignature(payload, tt.secret, tt.header, tt.now); got != tt.want {
				t.Errorf("VerifySignature = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVerifySignature_TamperedBody(t *testing.T) {
	sig := SignPayload([]byte(testBody), "secret-key", signedAt)
	if VerifySignature([]byte(testBody+" "), "secret-key", sig, signedAt) {
		t.Error("expected modified body to fail verification")
	}
}

func runSigned(t *testing.T, secret, sig string) (*httptest.ResponseRecorder, bool, string) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/retell-webhook", strings.NewReader(testBody))
	if sig != "" {
		req.Header.Set(SignatureHeader, sig)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	called := false
	var seen string
	mw := requireSignature(secret, zerolog.Nop(), func() time.Time { return signedAt.Add(30 * time.Second) })
	h := mw(func(c echo.Context) error {
		called = true
		b, _ := io.ReadAll(c.Request().Body)
		seen = string(b)
		return c.NoContent(http.StatusOK)
	})
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return rec, called, seen
}

func TestRequireSignature_Valid(t *testing.T) {
	rec, called, seen := runSigned(t, "s3cret", SignPayload([]byte(testBody), "s3cret", signedAt))
	if !called {
		t.Fatal("expected handler to be called")
	}
	if seen != testBody {
		t.Errorf("expected body to be restored, got %q", seen)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestRequireSignature_Replayed(t *testing.T) {
	rec, called, _ := runSigned(t, "s3cret", SignPayload([]byte(testBody), "s3cret", signedAt.Add(-time.Hour)))
	if called {
		t.Error("handler must not run for a stale signature")
	}
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestRequireSignature_Missing(t *testing.T) {
	rec, called, _ := runSigned(t, "s3cret", "")
	if called {
		t.Error("handler must not run without a signature")
	}
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestRequireSignature_DisabledWithoutSecret(t *testing.T) {
	_, called, _ := runSigned(t, "", "")
	if !called {
		t.Error("expected handler to be called when verification is disabled")
	}
}
