package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/eksporyuk/internal/config"
	"github.com/smallbiznis/eksporyuk/internal/observability"
	paymentdomain "github.com/smallbiznis/eksporyuk/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIngestService struct {
	provider string
	payload  []byte
	result   *paymentdomain.IngestResult
	err      error
}

func (f *fakeIngestService) IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) (*paymentdomain.IngestResult, error) {
	f.provider = provider
	f.payload = payload
	return f.result, f.err
}

func newTestServer(t *testing.T, svc paymentdomain.Service) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	return NewServer(ServerParams{
		Gin:        NewEngine(observability.Config{}, nil),
		Cfg:        config.Config{},
		PaymentSvc: svc,
	})
}

func post(s *Server, path string, body []byte) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.Engine().ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Error
}

func TestXenditWebhookAcknowledgesReceipt(t *testing.T) {
	svc := &fakeIngestService{result: &paymentdomain.IngestResult{Provider: "xendit", Outcome: "newly_settled"}}
	s := newTestServer(t, svc)

	body := []byte(`{"event":"invoice.paid"}`)
	w := post(s, "/webhooks/xendit", body)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"received"}`, w.Body.String())
	assert.Equal(t, "xendit", svc.provider)
	assert.Equal(t, body, svc.payload)
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))
}

func TestProviderRouteNormalizesName(t *testing.T) {
	svc := &fakeIngestService{result: &paymentdomain.IngestResult{Outcome: "ignored"}}
	s := newTestServer(t, svc)

	w := post(s, "/api/webhooks/Xendit", []byte(`{}`))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "xendit", svc.provider)
}

func TestFulfillmentFailuresStayInvisible(t *testing.T) {
	svc := &fakeIngestService{result: &paymentdomain.IngestResult{
		Outcome:        "newly_settled",
		FulfillmentErr: fmt.Errorf("membership.grant: %w", context.DeadlineExceeded),
	}}
	s := newTestServer(t, svc)

	w := post(s, "/webhooks/xendit", []byte(`{}`))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"received"}`, w.Body.String())
}

func TestWebhookErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
	}{
		{"bad signature", paymentdomain.ErrInvalidSignature, http.StatusUnauthorized, "unauthorized"},
		{"not json", paymentdomain.ErrInvalidPayload, http.StatusBadRequest, "validation_error"},
		{"missing reference", paymentdomain.ErrInvalidEvent, http.StatusBadRequest, "validation_error"},
		{"unknown provider", paymentdomain.ErrProviderNotFound, http.StatusNotFound, "not_found"},
		{"inbox write failed", fmt.Errorf("record payment event: %w", context.Canceled), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, &fakeIngestService{err: tt.err})

			w := post(s, "/webhooks/xendit", []byte(`{}`))

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantType, decodeError(t, w).Type)
		})
	}
}

func TestMissingReferenceNamesField(t *testing.T) {
	s := newTestServer(t, &fakeIngestService{err: paymentdomain.ErrInvalidEvent})

	w := post(s, "/webhooks/xendit", []byte(`{}`))

	payload := decodeError(t, w)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "external_id", payload.Errors[0].Field)
	assert.Equal(t, "invalid_event", payload.Errors[0].Code)
}

func TestOversizedBodyIsRejected(t *testing.T) {
	svc := &fakeIngestService{}
	s := newTestServer(t, svc)

	w := post(s, "/webhooks/xendit", bytes.Repeat([]byte("a"), maxWebhookBody+1))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, svc.provider)
}

func TestHealthAndFallback(t *testing.T) {
	s := newTestServer(t, &fakeIngestService{})

	w := httptest.NewRecorder()
	s.Engine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	s.Engine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestClassifyErrorForLog(t *testing.T) {
	errType, code := classifyErrorForLog(paymentdomain.ErrInvalidPayload)
	assert.Equal(t, "validation_error", errType)
	assert.Equal(t, "invalid_payload", code)

	errType, code = classifyErrorForLog(paymentdomain.ErrInvalidSignature)
	assert.Equal(t, "unauthorized", errType)
	assert.Equal(t, "unauthorized", code)
}
