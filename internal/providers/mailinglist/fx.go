package mailinglist

import (
	"github.com/smallbiznis/eksporyuk/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("providers.mailinglist",
	fx.Provide(NewFromConfig),
)

func NewFromConfig(cfg config.Config, log *zap.Logger) Subscriber {
	if cfg.Mailketing.APIToken == "" {
		log.Named("providers.mailinglist").Warn("MAILKETING_API_TOKEN not set, list subscriptions are skipped")
		return NoOp{}
	}
	return NewMailketing(Config{
		APIToken: cfg.Mailketing.APIToken,
		BaseURL:  cfg.Mailketing.BaseURL,
		Timeout:  cfg.Fulfillment.ExternalTimeout,
	})
}
