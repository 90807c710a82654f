package xendit

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/smallbiznis/eksporyuk/internal/config"
	paymentdomain "github.com/smallbiznis/eksporyuk/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newAdapter(t *testing.T, mode, token string) *Adapter {
	t.Helper()
	adapter, err := NewFactory(zap.NewNop()).NewAdapter(paymentdomain.AdapterConfig{
		Provider: "xendit",
		Config:   map[string]any{"webhook_token": token, "verification": mode},
	})
	require.NoError(t, err)
	return adapter.(*Adapter)
}

func TestNewAdapterRequiresTokenForVerifyingModes(t *testing.T) {
	factory := NewFactory(zap.NewNop())
	for _, mode := range []string{config.VerificationHMAC, config.VerificationToken, ""} {
		_, err := factory.NewAdapter(paymentdomain.AdapterConfig{
			Config: map[string]any{"webhook_token": "  ", "verification": mode},
		})
		assert.ErrorIs(t, err, paymentdomain.ErrInvalidConfig, "mode %q", mode)
	}

	_, err := factory.NewAdapter(paymentdomain.AdapterConfig{
		Config: map[string]any{"verification": "rot13"},
	})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidConfig)
}

func TestVerifyHMAC(t *testing.T) {
	adapter := newAdapter(t, config.VerificationHMAC, "secret")
	payload := []byte(`{"event":"invoice.paid"}`)

	headers := http.Header{}
	headers.Set(HeaderCallbackToken, Sign("secret", payload))
	assert.NoError(t, adapter.Verify(context.Background(), payload, headers))

	headers.Set(HeaderCallbackToken, Sign("wrong", payload))
	assert.ErrorIs(t, adapter.Verify(context.Background(), payload, headers), paymentdomain.ErrInvalidSignature)

	headers.Set(HeaderCallbackToken, "secret")
	assert.ErrorIs(t, adapter.Verify(context.Background(), payload, headers), paymentdomain.ErrInvalidSignature)

	assert.ErrorIs(t, adapter.Verify(context.Background(), payload, http.Header{}), paymentdomain.ErrInvalidSignature)
}

func TestVerifyToken(t *testing.T) {
	adapter := newAdapter(t, config.VerificationToken, "secret")
	headers := http.Header{}
	headers.Set(HeaderCallbackToken, "secret")
	assert.NoError(t, adapter.Verify(context.Background(), []byte(`{}`), headers))

	headers.Set(HeaderCallbackToken, "Secret")
	assert.ErrorIs(t, adapter.Verify(context.Background(), []byte(`{}`), headers), paymentdomain.ErrInvalidSignature)
}

func TestVerifySkipWarnsEveryRequest(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	adapter, err := NewFactory(zap.New(core)).NewAdapter(paymentdomain.AdapterConfig{
		Config: map[string]any{"verification": config.VerificationSkip},
	})
	require.NoError(t, err)

	require.NoError(t, adapter.Verify(context.Background(), []byte(`{}`), http.Header{}))
	require.NoError(t, adapter.Verify(context.Background(), []byte(`{}`), http.Header{}))
	assert.Equal(t, 3, logs.Len())
}

func TestParseClassifiesEventShapes(t *testing.T) {
	adapter := newAdapter(t, config.VerificationToken, "secret")

	tests := []struct {
		name        string
		payload     string
		wantType    string
		wantKind    paymentdomain.EventKind
		wantRef     string
		wantEventID string
		wantMethod  string
		wantAmount  int64
		wantFailure string
	}{{
		name:        "invoice paid",
		payload:     `{"event":"invoice.paid","data":{"id":"inv_1","external_id":"TXN-1","amount":500000,"payment_channel":"bca","paid_at":"2026-01-02T03:04:05Z"}}`,
		wantType:    EventInvoicePaid,
		wantKind:    paymentdomain.EventKindSettled,
		wantRef:     "TXN-1",
		wantEventID: "invoice.paid:inv_1",
		wantMethod:  "BCA",
		wantAmount:  500000,
	}, {
		name:        "va payment complete with bank",
		payload:     `{"event":"va.payment.complete","data":{"payment_id":"pay_9","external_id":"TXN-1","amount":"500000","bank_code":"bni"}}`,
		wantType:    EventVAPaymentComplete,
		wantKind:    paymentdomain.EventKindSettled,
		wantRef:     "TXN-1",
		wantEventID: "va.payment.complete:pay_9",
		wantMethod:  "VA_BNI",
		wantAmount:  500000,
	}, {
		name:        "payment request succeeded with nested channel",
		payload:     `{"type":"payment_request.succeeded","data":{"id":"pr_1","reference_id":"TXN-2","captured_amount":150000,"payment_method":{"virtual_account":{"channel_code":"mandiri"}}}}`,
		wantType:    EventPaymentRequestSucceeded,
		wantKind:    paymentdomain.EventKindSettled,
		wantRef:     "TXN-2",
		wantEventID: "payment_request.succeeded:pr_1",
		wantMethod:  "VA_MANDIRI",
		wantAmount:  150000,
	}, {
		name:        "ewallet capture",
		payload:     `{"event":"ewallet.capture.completed","data":{"id":"ewc_1","reference_id":"TXN-3","capture_amount":75000,"channel_code":"ID_OVO"}}`,
		wantType:    EventEwalletCaptureCompleted,
		wantKind:    paymentdomain.EventKindSettled,
		wantRef:     "TXN-3",
		wantEventID: "ewallet.capture.completed:ewc_1",
		wantMethod:  "EWALLET_ID_OVO",
		wantAmount:  75000,
	}, {
		name:        "payment request failed",
		payload:     `{"event":"payment_request.failed","data":{"id":"pr_2","reference_id":"TXN-4","failure_code":"INSUFFICIENT_BALANCE"}}`,
		wantType:    EventPaymentRequestFailed,
		wantKind:    paymentdomain.EventKindFailed,
		wantRef:     "TXN-4",
		wantEventID: "payment_request.failed:pr_2",
		wantMethod:  "ONLINE",
		wantFailure: "INSUFFICIENT_BALANCE",
	}, {
		name:        "legacy invoice callback",
		payload:     `{"id":"inv_2","external_id":"TXN-5","status":"SETTLED","paid_amount":10000}`,
		wantType:    EventInvoicePaid,
		wantKind:    paymentdomain.EventKindSettled,
		wantRef:     "TXN-5",
		wantEventID: "invoice.paid:inv_2",
		wantMethod:  "ONLINE",
		wantAmount:  10000,
	}, {
		name:        "legacy expired invoice",
		payload:     `{"id":"inv_3","external_id":"TXN-6","status":"EXPIRED"}`,
		wantType:    EventInvoiceExpired,
		wantKind:    paymentdomain.EventKindExpired,
		wantRef:     "TXN-6",
		wantEventID: "invoice.expired:inv_3",
		wantMethod:  "ONLINE",
	}, {
		name:        "legacy fixed va callback",
		payload:     `{"callback_virtual_account_id":"cva_1","payment_id":"pay_1","external_id":"TXN-7","amount":20000}`,
		wantType:    EventVAPaymentComplete,
		wantKind:    paymentdomain.EventKindSettled,
		wantRef:     "TXN-7",
		wantEventID: "va.payment.complete:pay_1",
		wantMethod:  "VIRTUAL_ACCOUNT",
		wantAmount:  20000,
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := adapter.Parse(context.Background(), []byte(tt.payload), nil)
			require.NoError(t, err)
			assert.Equal(t, "xendit", event.Provider)
			assert.Equal(t, tt.wantType, event.Type)
			assert.Equal(t, tt.wantKind, event.Kind)
			assert.Equal(t, tt.wantRef, event.ExternalID)
			assert.Equal(t, tt.wantEventID, event.ProviderEventID)
			assert.Equal(t, tt.wantMethod, event.PaymentMethod)
			assert.Equal(t, tt.wantAmount, event.Amount)
			assert.Equal(t, tt.wantFailure, event.FailureReason)
		})
	}
}

func TestParsePrefersWebhookIDHeader(t *testing.T) {
	adapter := newAdapter(t, config.VerificationToken, "secret")
	headers := http.Header{}
	headers.Set(HeaderWebhookID, "wh_123")

	event, err := adapter.Parse(context.Background(), []byte(`{"event":"invoice.paid","data":{"id":"inv_1","external_id":"TXN-1"}}`), headers)
	require.NoError(t, err)
	assert.Equal(t, "wh_123", event.ProviderEventID)
}

func TestParseRejectsAndIgnores(t *testing.T) {
	adapter := newAdapter(t, config.VerificationToken, "secret")

	_, err := adapter.Parse(context.Background(), []byte(`{"event":"recurring.plan.activated","data":{"id":"x"}}`), nil)
	assert.True(t, errors.Is(err, paymentdomain.ErrEventIgnored))

	_, err = adapter.Parse(context.Background(), []byte(`{"event":"invoice.paid","data":{"id":"inv_1"}}`), nil)
	assert.True(t, errors.Is(err, paymentdomain.ErrInvalidEvent))

	_, err = adapter.Parse(context.Background(), []byte(`not json`), nil)
	assert.True(t, errors.Is(err, paymentdomain.ErrInvalidPayload))

	_, err = adapter.Parse(context.Background(), []byte(`{"id":"inv_4","external_id":"TXN-8","status":"PENDING"}`), nil)
	assert.True(t, errors.Is(err, paymentdomain.ErrEventIgnored))
}
