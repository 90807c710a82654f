package context

import (
	"context"
	"strings"
)

// Gin context keys a webhook handler sets for the request log and span.
const (
	GinKeyWebhookProvider = "webhook_provider"
	GinKeyWebhookOutcome  = "webhook_outcome"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	transactionIDKey
	externalIDKey
	runIDKey
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return withString(ctx, requestIDKey, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	return stringFrom(ctx, requestIDKey)
}

// WithTransaction tags the context with the transaction a fan-out is working on.
func WithTransaction(ctx context.Context, transactionID, externalID string) context.Context {
	ctx = withString(ctx, transactionIDKey, transactionID)
	return withString(ctx, externalIDKey, externalID)
}

func TransactionFromContext(ctx context.Context) (string, string) {
	return stringFrom(ctx, transactionIDKey), stringFrom(ctx, externalIDKey)
}

func WithRunID(ctx context.Context, runID string) context.Context {
	return withString(ctx, runIDKey, runID)
}

func RunIDFromContext(ctx context.Context) string {
	return stringFrom(ctx, runIDKey)
}

func withString(ctx context.Context, key ctxKey, value string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func stringFrom(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(key).(string)
	return value
}
