// Package webhook authenticates inbound Retell webhook deliveries.
//
// Retell signs each delivery with the account API key and sends
// "v=<unix millis>,d=<hex digest>" in SignatureHeader, where the digest is
// HMAC-SHA256 over the raw body followed by the decimal timestamp.
package webhook

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const SignatureHeader = "X-Retell-Signature"

// MaxSignatureAge bounds the distance between the signed timestamp and the
// receiver's clock.
const MaxSignatureAge = 5 * time.Minute

// SignPayload returns the SignatureHeader value for payload signed at ts.
func SignPayload(payload []byte, secret string, ts time.Time) string {
	stamp := strconv.FormatInt(ts.UnixMilli(), 10)
	return "v=" + stamp + ",d=" + digest(payload, secret, stamp)
}

func digest(payload []byte, secret, stamp string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	mac.Write([]byte(stamp))
	return hex.EncodeToString(mac.Sum(nil))
}

// parseSignature splits a header value into its timestamp and digest parts.
func parseSignature(header string) (stamp, sum string, ok bool) {
	for _, part := range strings.Split(strings.TrimSpace(header), ",") {
		k, v, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			return "", "", false
		}
		switch k {
		case "v":
			stamp = v
		case "d":
			sum = v
		}
	}
	return stamp, sum, stamp != "" && sum != ""
}

// VerifySignature reports whether header is a valid signature of payload
// under secret, signed within MaxSignatureAge of now.
func VerifySignature(payload []byte, secret, header string, now time.Time) bool {
	stamp, sum, ok := parseSignature(header)
	if !ok {
		return false
	}
	ms, err := strconv.ParseInt(stamp, 10, 64)
	if err != nil {
		return false
	}
	age := now.Sub(time.UnixMilli(ms))
	if age > MaxSignatureAge || age < -MaxSignatureAge {
		return false
	}
	expected := digest(payload, secret, stamp)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(sum)))
}

// RequireSignature rejects requests whose SignatureHeader does not match the
// body. With an empty secret verification is skipped. The body is restored
// for the downstream handler.
func RequireSignature(secret string, logger zerolog.Logger) echo.MiddlewareFunc {
	return requireSignature(secret, logger, time.Now)
}

func requireSignature(secret string, logger zerolog.Logger, now func() time.Time) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if secret == "" {
			return next
		}
		return func(c echo.Context) error {
			body, err := io.ReadAll(c.Request().Body)
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, "unable to read request body")
			}
			c.Request().Body = io.NopCloser(bytes.NewReader(body))

			sig := c.Request().Header.Get(SignatureHeader)
			if sig == "" || !VerifySignature(body, secret, sig, now()) {
				rid, _ := c.Get("request_id").(string)
				logger.Warn().
					Str("request_id", rid).
					Str("remote_ip", c.RealIP()).
					Bool("signature_present", sig != "").
					Msg("webhook signature rejected")
				return c.JSON(http.StatusUnauthorized, map[string]string{
					"status":  "error",
					"message": "Invalid webhook signature",
				})
			}
			return next(c)
		}
	}
}
