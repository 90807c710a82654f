package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	obslogger "github.com/smallbiznis/eksporyuk/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/eksporyuk/internal/observability/metrics"
	"github.com/smallbiznis/eksporyuk/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/eksporyuk/internal/payment/domain"
	paymentservice "github.com/smallbiznis/eksporyuk/internal/payment/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Outcomes reported back to the HTTP layer and metrics.
const (
	OutcomeIgnored   = "ignored"
	OutcomeDuplicate = "duplicate"
)

type Params struct {
	fx.In

	Log        *zap.Logger
	PaymentSvc *paymentservice.Service
	Adapters   *adapters.Registry
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	log        *zap.Logger
	paymentSvc *paymentservice.Service
	adapters   *adapters.Registry
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) paymentdomain.Service {
	return &Service{
		log:        p.Log.Named("payment.webhook"),
		paymentSvc: p.PaymentSvc,
		adapters:   p.Adapters,
		obsMetrics: p.ObsMetrics,
	}
}

// IngestWebhook authenticates, classifies and reconciles one callback.
// Signature failures return before anything is written.
func (s *Service) IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) (*paymentdomain.IngestResult, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return nil, paymentdomain.ErrInvalidProvider
	}
	adapter, err := s.adapters.Adapter(provider)
	if err != nil {
		return nil, err
	}
	log := obslogger.WithContext(ctx, s.log).With(zap.String("provider", provider))

	if err := adapter.Verify(ctx, payload, headers); err != nil {
		if errors.Is(err, paymentdomain.ErrInvalidSignature) {
			log.Warn("rejected webhook with invalid signature")
			s.obsMetrics.RecordWebhookEvent(ctx, provider, "unknown", "invalid_signature")
		}
		return nil, err
	}
	if !json.Valid(payload) {
		return nil, paymentdomain.ErrInvalidPayload
	}

	event, err := adapter.Parse(ctx, payload, headers)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrEventIgnored) {
			log.Info("ignoring unhandled payment event")
			s.obsMetrics.RecordWebhookEvent(ctx, provider, "unknown", OutcomeIgnored)
			return &paymentdomain.IngestResult{Provider: provider, Outcome: OutcomeIgnored}, nil
		}
		return nil, err
	}
	if s.paymentSvc == nil {
		return nil, errors.New("payment_service_unavailable")
	}

	result := &paymentdomain.IngestResult{
		Provider:   provider,
		EventType:  event.Type,
		ExternalID: event.ExternalID,
	}
	log = log.With(
		zap.String("event_type", event.Type),
		zap.String("external_id", event.ExternalID),
		zap.String("provider_event_id", event.ProviderEventID),
	)

	processed, err := s.paymentSvc.ProcessEvent(ctx, event)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrEventAlreadyProcessed) {
			log.Debug("duplicate payment event delivery")
			result.Outcome = OutcomeDuplicate
			s.obsMetrics.RecordWebhookEvent(ctx, provider, event.Type, result.Outcome)
			return result, nil
		}
		s.obsMetrics.RecordWebhookEvent(ctx, provider, event.Type, "error")
		return nil, err
	}

	result.Outcome = string(processed.Reconcile.Outcome)
	result.FulfillmentErr = processed.FulfillmentErr
	if processed.FulfillmentErr != nil {
		log.Error("fulfillment finished with failures",
			zap.String("transaction_id", processed.Reconcile.Transaction.ID.String()),
			zap.Error(processed.FulfillmentErr),
		)
	}
	s.obsMetrics.RecordWebhookEvent(ctx, provider, event.Type, result.Outcome)
	return result, nil
}
