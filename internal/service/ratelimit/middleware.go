package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"time"

	xhttp "ModelHub/pkg/http"

	"github.com/labstack/echo/v4"
)

// KeyFunc extracts the bucket key for a request.
type KeyFunc func(c echo.Context) string

// RealIP keys buckets by client address.
func RealIP(c echo.Context) string { return c.RealIP() }

// Middleware answers 429 with Retry-After once the caller's bucket is empty.
// Training is CPU bound, so it guards the train routes only.
func Middleware(l *Limiter, key KeyFunc) echo.MiddlewareFunc {
	if key == nil {
		key = RealIP
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ok, wait := l.Allow(key(c))
			if ok {
				return next(c)
			}
			secs := int64(math.Ceil(wait.Seconds()))
			if wait >= time.Duration(math.MaxInt64) {
				secs = 0
			} else {
				c.Response().Header().Set("Retry-After", strconv.FormatInt(secs, 10))
			}
			appErr := xhttp.NewAppError("ERR_RATE_LIMITED", "", "too many training requests", http.StatusTooManyRequests)
			if secs > 0 {
				appErr.WithParam("retry_after_seconds", secs)
			}
			return xhttp.AppErrorResponse(c, appErr)
		}
	}
}
