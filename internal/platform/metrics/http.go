package metrics

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsPath = "/metrics"

// Middleware records HTTP request metrics. The path label is the matched
// route template, so query strings and ids never create new series.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Request().URL.Path == metricsPath {
				return next(c)
			}

			HTTPRequestsInFlight.Inc()
			defer HTTPRequestsInFlight.Dec()

			start := time.Now()
			err := next(c)

			status := c.Response().Status
			var he *echo.HTTPError
			if errors.As(err, &he) {
				status = he.Code
			} else if err != nil {
				status = http.StatusInternalServerError
			}

			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			method := c.Request().Method
			HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
			HTTPRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// Handler exposes the default registry. When username or password is set the
// endpoint requires matching basic auth credentials.
func Handler(username, password string) echo.HandlerFunc {
	h := echo.WrapHandler(promhttp.Handler())
	if username == "" && password == "" {
		return h
	}
	return func(c echo.Context) error {
		user, pass, ok := c.Request().BasicAuth()
		userMatch := subtle.ConstantTimeCompare([]byte(user), []byte(username)) == 1
		passMatch := subtle.ConstantTimeCompare([]byte(pass), []byte(password)) == 1
		if !ok || !userMatch || !passMatch {
			c.Response().Header().Set("WWW-Authenticate", `Basic realm="metrics"`)
			return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
		}
		return h(c)
	}
}

// Register mounts the metrics endpoint on e.
func Register(e *echo.Echo, username, password string) {
	e.GET(metricsPath, Handler(username, password))
}
