package http

import (
	"fmt"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	applogger "ModelHub/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelhub_http_requests_total",
			Help: "HTTP requests by route template and status",
		},
		[]string{"route", "method", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "modelhub_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.005, 0.025, 0.1, 0.5, 1, 5, 15, 60, 180, 300},
		},
		[]string{"route", "method"},
	)
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "modelhub_http_in_flight_requests",
		Help: "Requests currently being served",
	})
	httpMetricsOnce sync.Once
)

// recoverPanics turns a handler panic into a logged 500 in the normal envelope.
func recoverPanics(l *applogger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				perr, ok := r.(error)
				if !ok {
					perr = fmt.Errorf("%v", r)
				}
				l.Error("http handler panic",
					applogger.String("route", c.Path()),
					applogger.Error(perr),
					applogger.String("stack", string(debug.Stack())),
				)
				err = AppErrorResponse(c, InternalError("internal error").WithError(perr))
			}()
			return next(c)
		}
	}
}

// observeRequests records metrics per route template and logs the request:
// 5xx at error, slow requests at warn, the rest at debug.
func observeRequests(l *applogger.Logger, slow time.Duration) echo.MiddlewareFunc {
	httpMetricsOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, httpInFlight)
	})

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			httpInFlight.Inc()
			defer httpInFlight.Dec()
			start := time.Now()

			err := next(c)
			if err != nil {
				// render now so the recorded status is the one the client sees
				c.Error(err)
			}

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			req, res := c.Request(), c.Response()
			took := time.Since(start)
			status := strconv.Itoa(res.Status)
			httpRequests.WithLabelValues(route, req.Method, status).Inc()
			httpDuration.WithLabelValues(route, req.Method).Observe(took.Seconds())

			fields := []applogger.Field{
				applogger.String("route", route),
				applogger.String("method", req.Method),
				applogger.Int("status", res.Status),
				applogger.Duration("took_ms", took),
				applogger.Int64("bytes", res.Size),
				applogger.String("remote", c.RealIP()),
			}
			switch {
			case res.Status >= 500:
				if err != nil {
					fields = append(fields, applogger.Error(err))
				}
				l.Error("http request failed", fields...)
			case slow > 0 && took >= slow:
				l.Warn("http request slow", fields...)
			default:
				l.Debug("http request", fields...)
			}
			return nil
		}
	}
}
