package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// TimeoutMessage is the body message of a 504 produced by RequestTimeout.
const TimeoutMessage = "report generation exceeded the allowed time limit"

// RequestTimeout bounds each request with a context deadline. The handler
// runs on the request goroutine against a buffered writer; once the deadline
// has passed its output is discarded and a 504 JSON error is returned.
// Paths listed in skip (exact match) run without a deadline.
func RequestTimeout(timeout time.Duration, skip ...string) echo.MiddlewareFunc {
	skipped := make(map[string]bool, len(skip))
	for _, p := range skip {
		skipped[p] = true
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if timeout <= 0 || skipped[c.Request().URL.Path] {
				return next(c)
			}

			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))

			res := c.Response()
			orig := res.Writer
			buf := &bufferedWriter{writer: orig, status: http.StatusOK}
			res.Writer = buf
			err := next(c)
			res.Writer = orig

			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				res.Committed = false
				res.Status = 0
				res.Size = 0
				return echo.NewHTTPError(http.StatusGatewayTimeout, TimeoutMessage)
			}
			if res.Committed {
				if ferr := buf.flush(); ferr != nil && err == nil {
					err = ferr
				}
			}
			return err
		}
	}
}
