package email

import (
	"github.com/smallbiznis/eksporyuk/internal/config"
	"github.com/smallbiznis/eksporyuk/internal/notification/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("providers.email",
	fx.Provide(NewFromConfig),
	fx.Provide(fx.Annotate(NewSender, fx.As(new(domain.Sender)), fx.ResultTags(`group:"notification_senders"`))),
)

func NewFromConfig(cfg config.Config, log *zap.Logger) Provider {
	if cfg.Email.SMTPHost == "" {
		log.Named("providers.email").Warn("SMTP_HOST not set, emails will be dropped")
		return &NoOpProvider{}
	}
	return NewSMTP(Config{
		Host:     cfg.Email.SMTPHost,
		Port:     cfg.Email.SMTPPort,
		Username: cfg.Email.SMTPUsername,
		Password: cfg.Email.SMTPPassword,
		From:     cfg.Email.SMTPFrom,
	})
}
