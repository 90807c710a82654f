package whatsapp

import (
	"github.com/smallbiznis/eksporyuk/internal/config"
	"github.com/smallbiznis/eksporyuk/internal/notification/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("providers.whatsapp",
	fx.Provide(fx.Annotate(NewFromConfig, fx.ResultTags(`group:"notification_senders"`))),
)

func NewFromConfig(cfg config.Config, log *zap.Logger) domain.Sender {
	if cfg.Starsender.APIKey == "" {
		log.Named("providers.whatsapp").Warn("STARSENDER_API_KEY not set, whatsapp messages will be dropped")
		return NoOpSender{}
	}
	return NewSender(NewClient(Config{
		APIKey:   cfg.Starsender.APIKey,
		BaseURL:  cfg.Starsender.BaseURL,
		DeviceID: cfg.Starsender.DeviceID,
		Timeout:  cfg.Fulfillment.ExternalTimeout,
	}))
}
