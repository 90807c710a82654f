package push

import (
	"github.com/smallbiznis/eksporyuk/internal/config"
	"github.com/smallbiznis/eksporyuk/internal/notification/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("providers.push",
	fx.Provide(fx.Annotate(NewFromConfig, fx.ResultTags(`group:"notification_senders"`))),
)

func NewFromConfig(cfg config.Config, log *zap.Logger) domain.Sender {
	if cfg.OneSignal.AppID == "" || cfg.OneSignal.APIKey == "" {
		log.Named("providers.push").Warn("OneSignal not configured, push notifications will be dropped")
		return NoOpSender{}
	}
	return NewSender(NewClient(Config{
		AppID:   cfg.OneSignal.AppID,
		APIKey:  cfg.OneSignal.APIKey,
		Timeout: cfg.Fulfillment.ExternalTimeout,
	}))
}
