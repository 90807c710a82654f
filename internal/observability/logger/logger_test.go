package logger

import (
	"context"
	"testing"

	obscontext "github.com/smallbiznis/eksporyuk/internal/observability/context"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithContextAddsCorrelationFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	base := zap.New(core)

	ctx := obscontext.WithRequestID(context.Background(), "req-1")
	ctx = obscontext.WithTransaction(ctx, "42", "INV-42")
	ctx = obscontext.WithRunID(ctx, "run-1")

	WithContext(ctx, base).Info("hello")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	for key, want := range map[string]string{
		"request_id":     "req-1",
		"transaction_id": "42",
		"external_id":    "INV-42",
		"run_id":         "run-1",
	} {
		if got := fields[key]; got != want {
			t.Fatalf("expected %s=%s, got %v", key, want, got)
		}
	}
	if _, ok := fields["trace_id"]; ok {
		t.Fatalf("trace_id should be omitted without a span")
	}
}

func TestOperationFromSQL(t *testing.T) {
	cases := map[string]string{
		"SELECT 1":                                 "SELECT",
		"  update transactions set status = ?":     "UPDATE",
		"WITH x AS (SELECT 1) INSERT INTO t VALUES": "SELECT",
		"":                                         "UNKNOWN",
	}
	for sql, want := range cases {
		if got := operationFromSQL(sql); got != want {
			t.Fatalf("operationFromSQL(%q) = %s, want %s", sql, got, want)
		}
	}
}
