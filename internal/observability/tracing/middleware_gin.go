package tracing

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/eksporyuk/internal/observability/context"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// AttrWebhook marks a server span as a provider callback.
const AttrWebhook = attribute.Key("eksporyuk.webhook")

const (
	attrWebhookProvider = attribute.Key("webhook.provider")
	attrWebhookOutcome  = attribute.Key("webhook.outcome")
)

// GinMiddleware opens the server span for each request. The span is named
// after the matched route, and webhook routes carry AttrWebhook from the
// start so the sampler can keep them. After the handler ran, the span picks
// up the provider and reconcile outcome the handler stored on the gin
// context, and its status follows what the provider was told.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		webhook := IsWebhookRoute(route)

		ctx := ExtractContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := otel.Tracer(tracerName).Start(ctx, c.Request.Method+" "+route,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", c.Request.Method),
				attribute.String("http.route", route),
				AttrWebhook.Bool(webhook),
			),
		)
		defer span.End()

		if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
			span.SetAttributes(attribute.String("request_id", requestID))
		}

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(attribute.Int("http.status_code", status))

		outcome := ""
		if webhook {
			if provider := strings.TrimSpace(c.GetString(obscontext.GinKeyWebhookProvider)); provider != "" {
				span.SetAttributes(attrWebhookProvider.String(provider))
			}
			outcome = strings.TrimSpace(c.GetString(obscontext.GinKeyWebhookOutcome))
			if outcome != "" {
				span.SetAttributes(attrWebhookOutcome.String(outcome))
			}
		}

		code, description := responseStatus(status, webhook, outcome)
		if code == codes.Error {
			if lastErr := c.Errors.Last(); lastErr != nil {
				span.RecordError(SafeError(lastErr.Err))
			}
		}
		span.SetStatus(code, description)
	}
}

// IsWebhookRoute reports whether route receives provider callbacks.
func IsWebhookRoute(route string) bool {
	return strings.HasPrefix(route, "/webhooks/") || strings.HasPrefix(route, "/api/webhooks/")
}

// responseStatus maps the response to a span status. A 5xx makes the
// provider retry; a 401 means a misconfigured token or a forged callback.
// Other client errors are the caller's problem and leave the span unset.
func responseStatus(status int, webhook bool, outcome string) (codes.Code, string) {
	switch {
	case status >= http.StatusInternalServerError && webhook:
		return codes.Error, "callback not recorded"
	case status >= http.StatusInternalServerError:
		return codes.Error, "server error"
	case status == http.StatusUnauthorized && webhook:
		return codes.Error, "signature rejected"
	case status >= http.StatusBadRequest:
		return codes.Unset, ""
	case webhook && outcome != "":
		return codes.Ok, ""
	default:
		return codes.Unset, ""
	}
}
