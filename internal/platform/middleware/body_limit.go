package middleware

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

const defaultBodyLimit = 1 << 20

var sizeSuffixes = []struct {
	suffix string
	mult   int64
}{
	{"GB", 1 << 30}, {"G", 1 << 30},
	{"MB", 1 << 20}, {"M", 1 << 20},
	{"KB", 1 << 10}, {"K", 1 << 10},
}

// parseLimit reads sizes like "512K", "1M" or "10MB". A bare number is bytes;
// anything unparseable is 1 MB.
func parseLimit(s string) int64 {
	s = strings.ToUpper(strings.TrimSpace(s))
	mult := int64(1)
	for _, sf := range sizeSuffixes {
		if strings.HasSuffix(s, sf.suffix) {
			s, mult = strings.TrimSuffix(s, sf.suffix), sf.mult
			break
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return defaultBodyLimit
	}
	return n * mult
}

// cappedBody records whether the wrapped http.MaxBytesReader tripped, so the
// middleware can answer 413 however the handler reported the read failure.
type cappedBody struct {
	io.ReadCloser
	exceeded bool
}

func (b *cappedBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		b.exceeded = true
	}
	return n, err
}

// BodyLimit caps request bodies at defaultLimit, or at the limit given for
// the route path in routeLimits.
func BodyLimit(defaultLimit string, routeLimits map[string]string) echo.MiddlewareFunc {
	def := parseLimit(defaultLimit)
	perRoute := make(map[string]int64, len(routeLimits))
	for path, l := range routeLimits {
		perRoute[path] = parseLimit(l)
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Body == nil || req.Body == http.NoBody {
				return next(c)
			}

			limit := def
			if l, ok := perRoute[c.Path()]; ok {
				limit = l
			}
			if req.ContentLength > limit {
				return tooLarge(limit)
			}

			body := &cappedBody{ReadCloser: http.MaxBytesReader(c.Response(), req.Body, limit)}
			req.Body = body

			err := next(c)
			if body.exceeded && !c.Response().Committed {
				return tooLarge(limit)
			}
			return err
		}
	}
}

func tooLarge(limit int64) error {
	return echo.NewHTTPError(http.StatusRequestEntityTooLarge,
		fmt.Sprintf("Request body exceeds the %d byte limit.", limit))
}
