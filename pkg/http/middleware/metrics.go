package middleware

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpOnce     sync.Once
	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec
	httpInFlight prometheus.Gauge
)

func initHTTPMetrics() {
	httpOnce.Do(func() {
		httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "setupscan_http_requests_total",
			Help: "HTTP requests by route template and status code",
		}, []string{"route", "method", "status"})
		httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "setupscan_http_request_duration_seconds",
			Help:    "HTTP request latency by route template",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"route", "method"})
		httpInFlight = promauto.NewGauge(prometheus.GaugeOpts{
			Name: "setupscan_http_in_flight_requests",
			Help: "Requests currently being served",
		})
	})
}

// Metrics counts requests per route template. The scrape endpoint and websocket
// upgrades are skipped: one holds a connection open for minutes, the other would
// measure itself.
func Metrics() echo.MiddlewareFunc {
	initHTTPMetrics()
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			route := routeOf(c)
			if route == "/metrics" || strings.HasPrefix(route, "/ws/") {
				return next(c)
			}
			httpInFlight.Inc()
			defer httpInFlight.Dec()

			start := time.Now()
			err := next(c)
			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			method := c.Request().Method
			httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
			httpLatency.WithLabelValues(route, method).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// routeOf returns the registered template so /api/models/:id stays one series.
// Unmatched paths collapse into one label.
func routeOf(c echo.Context) string {
	if p := c.Path(); p != "" {
		return p
	}
	return "unmatched"
}
