package tracing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/eksporyuk/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func recordSpans(t *testing.T, sampler sdktrace.Sampler) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sampler),
		sdktrace.WithSpanProcessor(recorder),
	)
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() {
		otel.SetTracerProvider(previous)
		_ = provider.Shutdown(context.Background())
	})
	return recorder
}

func webhookEngine(status int, outcome string, err error) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware())
	r.POST("/webhooks/xendit", func(c *gin.Context) {
		c.Set(obscontext.GinKeyWebhookProvider, "xendit")
		if outcome != "" {
			c.Set(obscontext.GinKeyWebhookOutcome, outcome)
		}
		if err != nil {
			_ = c.Error(err)
		}
		c.Status(status)
	})
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func serve(r *gin.Engine, method, path string) {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, path, nil))
}

func attrs(span sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	out := map[attribute.Key]attribute.Value{}
	for _, kv := range span.Attributes() {
		out[kv.Key] = kv.Value
	}
	return out
}

func TestWebhookSpanCarriesProviderAndOutcome(t *testing.T) {
	recorder := recordSpans(t, sdktrace.AlwaysSample())

	serve(webhookEngine(http.StatusOK, "newly_settled", nil), http.MethodPost, "/webhooks/xendit")

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, "POST /webhooks/xendit", span.Name())
	assert.Equal(t, trace.SpanKindServer, span.SpanKind())
	assert.Equal(t, codes.Ok, span.Status().Code)

	got := attrs(span)
	assert.True(t, got[AttrWebhook].AsBool())
	assert.Equal(t, "xendit", got[attrWebhookProvider].AsString())
	assert.Equal(t, "newly_settled", got[attrWebhookOutcome].AsString())
	assert.Equal(t, int64(http.StatusOK), got["http.status_code"].AsInt64())
}

func TestWebhookSpanStatusFollowsResponse(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		err      error
		wantCode codes.Code
		wantDesc string
		recorded bool
	}{
		{"rejected signature", http.StatusUnauthorized, errors.New("invalid_signature"), codes.Error, "signature rejected", true},
		{"inbox unavailable", http.StatusInternalServerError, errors.New("record payment event: conn refused"), codes.Error, "callback not recorded", true},
		{"bad payload", http.StatusBadRequest, errors.New("invalid_payload"), codes.Unset, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := recordSpans(t, sdktrace.AlwaysSample())

			serve(webhookEngine(tt.status, "", tt.err), http.MethodPost, "/webhooks/xendit")

			spans := recorder.Ended()
			require.Len(t, spans, 1)
			assert.Equal(t, tt.wantCode, spans[0].Status().Code)
			assert.Equal(t, tt.wantDesc, spans[0].Status().Description)
			assert.Equal(t, tt.recorded, len(spans[0].Events()) > 0)
		})
	}
}

func TestSamplerKeepsWebhooksOnly(t *testing.T) {
	recorder := recordSpans(t, NewSampler(0))
	r := webhookEngine(http.StatusOK, "ignored", nil)

	serve(r, http.MethodGet, "/health")
	serve(r, http.MethodPost, "/webhooks/xendit")

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "POST /webhooks/xendit", spans[0].Name())
}

func TestIsWebhookRoute(t *testing.T) {
	assert.True(t, IsWebhookRoute("/webhooks/xendit"))
	assert.True(t, IsWebhookRoute("/api/webhooks/:provider"))
	assert.False(t, IsWebhookRoute("/health"))
	assert.False(t, IsWebhookRoute("unknown"))
}
