package notification

import (
	"context"

	"github.com/smallbiznis/eksporyuk/internal/config"
	"github.com/smallbiznis/eksporyuk/internal/notification/domain"
	"github.com/smallbiznis/eksporyuk/internal/notification/repository"
	"github.com/smallbiznis/eksporyuk/internal/notification/service"
	"github.com/smallbiznis/eksporyuk/internal/notification/worker"
	"go.uber.org/fx"
)

var Module = fx.Module("notification",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
	fx.Provide(func(s *service.Service) domain.Publisher { return s }),
	fx.Provide(ProvideWorkerConfig),
	fx.Provide(worker.New),
)

// WorkerModule runs the outbox worker inside the service process.
var WorkerModule = fx.Module("notification.worker",
	fx.Invoke(RunWorker),
)

func ProvideWorkerConfig(cfg config.Config) worker.Config {
	wc := worker.DefaultConfig()
	wc.PollInterval = cfg.Notification.PollInterval
	wc.BatchSize = cfg.Notification.BatchSize
	wc.MaxAttempts = cfg.Notification.MaxAttempts
	wc.SendTimeout = cfg.Fulfillment.ExternalTimeout
	return wc
}

func RunWorker(lc fx.Lifecycle, cfg config.Config, w *worker.Worker) {
	if !cfg.Notification.WorkerEnabled {
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())

			go w.RunForever(ctx)

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
