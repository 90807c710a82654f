package payment

import (
	"github.com/smallbiznis/eksporyuk/internal/config"
	"github.com/smallbiznis/eksporyuk/internal/payment/adapters"
	"github.com/smallbiznis/eksporyuk/internal/payment/adapters/xendit"
	paymentdomain "github.com/smallbiznis/eksporyuk/internal/payment/domain"
	"github.com/smallbiznis/eksporyuk/internal/payment/repository"
	paymentservice "github.com/smallbiznis/eksporyuk/internal/payment/service"
	"github.com/smallbiznis/eksporyuk/internal/payment/webhook"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(NewRegistry),
	fx.Provide(paymentservice.NewService),
	fx.Provide(webhook.NewService),
)

// NewRegistry builds the provider adapters from config. A verifying mode
// without a token fails startup.
func NewRegistry(cfg config.Config, log *zap.Logger) (*adapters.Registry, error) {
	registry := adapters.NewRegistry(xendit.NewFactory(log))
	if err := registry.Init(paymentdomain.AdapterConfig{
		Provider: "xendit",
		Config: map[string]any{
			"webhook_token": cfg.Xendit.WebhookToken,
			"verification":  cfg.Xendit.Verification,
		},
	}); err != nil {
		return nil, err
	}
	return registry, nil
}
