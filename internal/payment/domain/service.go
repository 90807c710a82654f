package domain

import (
	"context"
	"net/http"
)

// Service ingests raw provider callbacks.
type Service interface {
	IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) (*IngestResult, error)
}

type IngestResult struct {
	Provider   string
	EventType  string
	ExternalID string
	Outcome    string
	// FulfillmentErr aggregates task failures. It is never surfaced over
	// HTTP.
	FulfillmentErr error
}

type AdapterConfig struct {
	Provider string
	Config   map[string]any
}

type PaymentAdapter interface {
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	Parse(ctx context.Context, payload []byte, headers http.Header) (*PaymentEvent, error)
}

type AdapterFactory interface {
	Provider() string
	NewAdapter(cfg AdapterConfig) (PaymentAdapter, error)
}

// Fulfiller runs the fan-out plan for a settled transaction.
type Fulfiller interface {
	Fulfill(ctx context.Context, txn *Transaction) error
}
