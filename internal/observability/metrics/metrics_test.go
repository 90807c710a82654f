package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("provider", "xendit"),
		attribute.String("transaction_id", "123"),
		attribute.String("outcome", "newly_settled"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	for _, attr := range attrs {
		if attr.Key == "transaction_id" {
			t.Fatalf("transaction_id must not be a metric label")
		}
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	m.RecordWebhookEvent(ctx, "xendit", "invoice.paid", "ok")
	m.RecordReconcile(ctx, "not_found")
	m.RecordFulfillmentTask(ctx, "membership.grant", "ok", time.Millisecond)
	m.RecordNotification(ctx, "email", "sent")
	m.RecordCreditTopup(ctx, "applied")
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{}, noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	m.RecordReconcile(context.Background(), "newly_settled")
}

func TestHTTPMiddlewareCountsRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	m, err := newHTTPMetrics(reg)
	if err != nil {
		t.Fatalf("new http metrics: %v", err)
	}
	again, err := newHTTPMetrics(reg)
	if err != nil {
		t.Fatalf("re-register http metrics: %v", err)
	}
	if again.requests != m.requests {
		t.Fatalf("expected existing collector to be reused")
	}

	r := gin.New()
	r.Use(GinMiddleware(m))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	}

	got := testutil.ToFloat64(m.requests.WithLabelValues("/health", http.MethodGet, "200"))
	if got != 3 {
		t.Fatalf("expected 3 requests, got %v", got)
	}
}
