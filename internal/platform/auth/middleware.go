// Package auth authenticates callers with Firebase ID tokens and binds the
// verified uid to the request.
package auth

import (
	"context"
	"net/http"
	"strings"

	fbauth "firebase.google.com/go/v4/auth"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/rxcheck/rxcheck/internal/platform/apperr"
)

type contextKey string

const UserIDKey contextKey = "user_id"

// echo context key for the verified uid
const uidKey = "auth_uid"

// TokenVerifier verifies a Firebase ID token. *fbauth.Client satisfies it.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*fbauth.Token, error)
}

// FirebaseMiddleware requires a valid "Authorization: Bearer <id token>"
// header on every request the skipper does not exempt.
func FirebaseMiddleware(verifier TokenVerifier, skipper func(echo.Context) bool, logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if skipper != nil && skipper(c) {
				return next(c)
			}

			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
			}

			token, err := verifier.VerifyIDToken(c.Request().Context(), strings.TrimSpace(parts[1]))
			if err != nil {
				rid, _ := c.Get("request_id").(string)
				logger.Warn().Err(err).Str("request_id", rid).Msg("id token rejected")
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
			}

			c.Set(uidKey, token.UID)
			ctx := context.WithValue(c.Request().Context(), UserIDKey, token.UID)
			c.SetRequest(c.Request().WithContext(ctx))

			return next(c)
		}
	}
}

// UserIDFromContext returns the verified uid, or "" when the request was not
// authenticated.
func UserIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(UserIDKey).(string)
	return v
}

// AuthorizeUser checks that a user id named in the request belongs to the
// caller. Unauthenticated requests (AUTH_MODE=none) are allowed through.
func AuthorizeUser(c echo.Context, userID string) error {
	uid, _ := c.Get(uidKey).(string)
	if uid == "" || userID == "" {
		return nil
	}
	if uid != userID {
		return apperr.Auth("User ID does not match the authenticated user.")
	}
	return nil
}
