package fulfillment

import (
	"context"

	"github.com/smallbiznis/eksporyuk/internal/config"
	"github.com/smallbiznis/eksporyuk/internal/fulfillment/recovery"
	"github.com/smallbiznis/eksporyuk/internal/fulfillment/service"
	paymentdomain "github.com/smallbiznis/eksporyuk/internal/payment/domain"
	paymentservice "github.com/smallbiznis/eksporyuk/internal/payment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("fulfillment.service",
	fx.Provide(
		fx.Annotate(
			service.NewService,
			fx.As(fx.Self()),
			fx.As(new(paymentdomain.Fulfiller)),
		),
	),
	fx.Provide(func(s *paymentservice.Service) recovery.Source { return s }),
	fx.Provide(recovery.NewSweeper),
)

// RecoveryModule runs the unfinished-fulfillment sweeper in the service
// process.
var RecoveryModule = fx.Module("fulfillment.recovery",
	fx.Invoke(RunSweeper),
)

func RunSweeper(lc fx.Lifecycle, cfg config.Config, sweeper *recovery.Sweeper) {
	if !cfg.Fulfillment.SweepEnabled {
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())

			go sweeper.RunForever(ctx)

			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})

			return nil
		},
	})
}
