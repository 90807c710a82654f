package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics are scraped from /metrics alongside the GORM pool collectors.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func NewHTTPMetrics() (*HTTPMetrics, error) {
	return newHTTPMetrics(prometheus.DefaultRegisterer)
}

func newHTTPMetrics(reg prometheus.Registerer) (*HTTPMetrics, error) {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "eksporyuk_http_requests_total",
		Help: "HTTP requests by route, method and status code.",
	}, []string{"route", "method", "status_code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "eksporyuk_http_request_duration_seconds",
		Help:    "HTTP request latency by route and method.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"route", "method"})

	var err error
	if requests, err = registerOrReuse(reg, requests); err != nil {
		return nil, err
	}
	if duration, err = registerOrReuse(reg, duration); err != nil {
		return nil, err
	}
	return &HTTPMetrics{requests: requests, duration: duration}, nil
}

func registerOrReuse[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// GinMiddleware records request counts and latency. A nil HTTPMetrics is a no-op.
func GinMiddleware(m *HTTPMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		m.requests.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		m.duration.WithLabelValues(route, c.Request.Method).Observe(time.Since(start).Seconds())
	}
}
