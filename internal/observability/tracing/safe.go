package tracing

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "eksporyuk"

// ExtractContext pulls the remote span context from carrier headers.
func ExtractContext(ctx context.Context, carrier propagation.TextMapCarrier) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}

// StartSpan starts an internal span under the eksporyuk tracer.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(SafeAttributes(attrs...)...))
}

// EndSpan records err on the span before ending it.
func EndSpan(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		if safeErr := SafeError(err); safeErr != nil {
			span.RecordError(safeErr)
		}
		span.SetStatus(codes.Error, "error")
	}
	span.End()
}

var blockedAttributeKeys = map[string]struct{}{
	"customer_email":    {},
	"customer_name":     {},
	"customer_whatsapp": {},
	"email":             {},
	"phone":             {},
	"whatsapp":          {},
	"callback_token":    {},
	"authorization":     {},
	"payload":           {},
}

// SafeAttributes drops attributes that would carry personal data or secrets.
func SafeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		key := strings.ToLower(string(attr.Key))
		if _, blocked := blockedAttributeKeys[key]; blocked {
			continue
		}
		if strings.Contains(key, "token") || strings.Contains(key, "secret") {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}

// SafeError returns an error whose message is bounded in size. Provider
// errors can echo response bodies back.
func SafeError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	const max = 256
	if len(msg) > max {
		msg = msg[:max] + "..."
	}
	return errors.New(msg)
}
