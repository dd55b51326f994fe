package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/rxcheck/rxcheck/internal/platform/apperr"
)

// ErrorReporter receives server-side failures. *errtrack.Tracker satisfies it.
type ErrorReporter interface {
	Capture(err error, tags map[string]string)
}

// ErrorHandler renders every error as {"error": "<message>"}. Classified
// errors use their kind's status; causes are logged and never sent to the
// client.
func ErrorHandler(logger zerolog.Logger, reporter ErrorReporter) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		msg := http.StatusText(status)

		var he *echo.HTTPError
		switch {
		case errors.As(err, &he):
			status = he.Code
			if m, ok := he.Message.(string); ok {
				msg = m
			} else {
				msg = fmt.Sprint(he.Message)
			}
		default:
			ae := apperr.From(err)
			status = ae.HTTPStatus()
			if ae.Kind != apperr.KindInternal {
				msg = ae.Msg
			}
		}

		if status >= 500 {
			rid, _ := c.Get("request_id").(string)
			logger.Error().Err(err).Str("request_id", rid).Int("status", status).Msg("request failed")
			if reporter != nil {
				reporter.Capture(err, map[string]string{
					"request_id": rid,
					"path":       c.Path(),
					"kind":       string(apperr.KindOf(err)),
				})
			}
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(status)
		} else {
			werr = c.JSON(status, map[string]string{"error": msg})
		}
		if werr != nil {
			logger.Error().Err(werr).Msg("failed to write error response")
		}
	}
}
