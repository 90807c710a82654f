package xendit

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/eksporyuk/internal/config"
	paymentdomain "github.com/smallbiznis/eksporyuk/internal/payment/domain"
	"go.uber.org/zap"
)

const (
	providerName = "xendit"

	HeaderCallbackToken = "x-callback-token"
	HeaderWebhookID     = "webhook-id"
)

// Provider event discriminators.
const (
	EventInvoicePaid             = "invoice.paid"
	EventInvoiceExpired          = "invoice.expired"
	EventVAPaymentComplete       = "va.payment.complete"
	EventPaymentRequestSucceeded = "payment_request.succeeded"
	EventPaymentRequestCaptured  = "payment_request.captured"
	EventPaymentRequestFailed    = "payment_request.failed"
	EventEwalletCaptureCompleted = "ewallet.capture.completed"
)

var eventKinds = map[string]paymentdomain.EventKind{
	EventInvoicePaid:             paymentdomain.EventKindSettled,
	EventVAPaymentComplete:       paymentdomain.EventKindSettled,
	EventPaymentRequestSucceeded: paymentdomain.EventKindSettled,
	EventPaymentRequestCaptured:  paymentdomain.EventKindSettled,
	EventEwalletCaptureCompleted: paymentdomain.EventKindSettled,
	EventInvoiceExpired:          paymentdomain.EventKindExpired,
	EventPaymentRequestFailed:    paymentdomain.EventKindFailed,
}

type Factory struct {
	log *zap.Logger
}

func NewFactory(log *zap.Logger) *Factory {
	if log == nil {
		log = zap.NewNop()
	}
	return &Factory{log: log.Named("payment.xendit")}
}

func (f *Factory) Provider() string {
	return providerName
}

// NewAdapter fails when a verifying mode is configured without a token.
func (f *Factory) NewAdapter(cfg paymentdomain.AdapterConfig) (paymentdomain.PaymentAdapter, error) {
	token, _ := readString(cfg.Config, "webhook_token")
	token = strings.TrimSpace(token)
	mode, _ := readString(cfg.Config, "verification")
	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode == "" {
		mode = config.VerificationHMAC
	}

	switch mode {
	case config.VerificationHMAC, config.VerificationToken:
		if token == "" {
			return nil, paymentdomain.ErrInvalidConfig
		}
	case config.VerificationSkip:
		f.log.Warn("xendit webhook verification disabled; every callback will be trusted")
	default:
		return nil, paymentdomain.ErrInvalidConfig
	}

	return &Adapter{
		log:   f.log,
		mode:  mode,
		token: token,
	}, nil
}

type Adapter struct {
	log   *zap.Logger
	mode  string
	token string
}

func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	if a.mode == config.VerificationSkip {
		a.log.Warn("accepting unverified xendit callback")
		return nil
	}

	provided := strings.TrimSpace(headers.Get(HeaderCallbackToken))
	if provided == "" {
		return paymentdomain.ErrInvalidSignature
	}

	expected := a.token
	if a.mode == config.VerificationHMAC {
		expected = Sign(a.token, payload)
		provided = strings.ToLower(provided)
	}
	if !hmac.Equal([]byte(provided), []byte(expected)) {
		return paymentdomain.ErrInvalidSignature
	}
	return nil
}

// Sign returns the lowercase hex HMAC-SHA256 of payload.
func Sign(token string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(token))
	_, _ = mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func (a *Adapter) Parse(ctx context.Context, payload []byte, headers http.Header) (*paymentdomain.PaymentEvent, error) {
	envelope := fields{}
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(&envelope); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}

	body := envelope
	if data, ok := envelope["data"].(map[string]any); ok {
		body = fields(data)
	}

	discriminator := envelope.str("event", "type")
	if discriminator == "" {
		discriminator = legacyDiscriminator(body)
	}
	kind, ok := eventKinds[discriminator]
	if !ok {
		return nil, paymentdomain.ErrEventIgnored
	}

	externalID := body.str("external_id", "reference_id")
	if externalID == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	paymentID := body.str("payment_id", "id")
	bank := body.str("bank_code")
	if bank == "" {
		bank = body.nested("payment_method", "virtual_account", "channel_code")
	}
	channel := body.str("payment_channel", "channel_code")

	return &paymentdomain.PaymentEvent{
		Provider:          providerName,
		ProviderEventID:   providerEventID(headers, discriminator, paymentID, externalID),
		ProviderPaymentID: paymentID,
		Type:              discriminator,
		Kind:              kind,
		ExternalID:        externalID,
		Amount:            body.amount("amount", "paid_amount", "captured_amount", "capture_amount"),
		PaymentMethod:     paymentMethod(discriminator, bank, channel),
		Channel:           channel,
		BankCode:          bank,
		FailureReason:     body.str("failure_reason", "failure_code"),
		OccurredAt:        body.timestamp("paid_at", "transaction_timestamp", "updated", "created"),
		RawPayload:        payload,
	}, nil
}

// legacyDiscriminator recognises callbacks sent before Xendit added the
// event field.
func legacyDiscriminator(body fields) string {
	if body.str("callback_virtual_account_id") != "" && body.str("payment_id") != "" {
		return EventVAPaymentComplete
	}
	if body.str("external_id") == "" {
		return ""
	}
	switch strings.ToUpper(body.str("status")) {
	case "PAID", "SETTLED":
		return EventInvoicePaid
	case "EXPIRED":
		return EventInvoiceExpired
	}
	return ""
}

func providerEventID(headers http.Header, discriminator, paymentID, externalID string) string {
	if headers != nil {
		if id := strings.TrimSpace(headers.Get(HeaderWebhookID)); id != "" {
			return id
		}
	}
	if paymentID != "" {
		return discriminator + ":" + paymentID
	}
	return discriminator + ":" + externalID
}

func paymentMethod(discriminator, bank, channel string) string {
	switch {
	case strings.HasPrefix(discriminator, "va."):
		if bank == "" {
			return "VIRTUAL_ACCOUNT"
		}
		return "VA_" + strings.ToUpper(bank)
	case strings.HasPrefix(discriminator, "ewallet."):
		return "EWALLET_" + strings.ToUpper(channel)
	case strings.HasPrefix(discriminator, "payment_request."):
		if bank != "" {
			return "VA_" + strings.ToUpper(bank)
		}
		if channel != "" {
			return strings.ToUpper(channel)
		}
		return "ONLINE"
	default:
		if channel == "" {
			return "ONLINE"
		}
		return strings.ToUpper(channel)
	}
}

type fields map[string]any

// str returns the first non-empty string value among keys.
func (f fields) str(keys ...string) string {
	for _, key := range keys {
		switch v := f[key].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case json.Number:
			return v.String()
		}
	}
	return ""
}

func (f fields) nested(path ...string) string {
	current := f
	for i, key := range path {
		if i == len(path)-1 {
			return current.str(key)
		}
		next, ok := current[key].(map[string]any)
		if !ok {
			return ""
		}
		current = fields(next)
	}
	return ""
}

func (f fields) amount(keys ...string) int64 {
	for _, key := range keys {
		raw := f.str(key)
		if raw == "" {
			continue
		}
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil || value <= 0 {
			continue
		}
		return int64(math.Round(value))
	}
	return 0
}

func (f fields) timestamp(keys ...string) time.Time {
	for _, key := range keys {
		raw := f.str(key)
		if raw == "" {
			continue
		}
		if parsed, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			return parsed.UTC()
		}
	}
	return time.Time{}
}

func readString(config map[string]any, key string) (string, bool) {
	value, ok := config[key]
	if !ok {
		return "", false
	}
	switch cast := value.(type) {
	case string:
		return cast, true
	default:
		return "", false
	}
}
