package main

import (
	"github.com/smallbiznis/eksporyuk/internal/catalog"
	"github.com/smallbiznis/eksporyuk/internal/clock"
	"github.com/smallbiznis/eksporyuk/internal/config"
	"github.com/smallbiznis/eksporyuk/internal/credit"
	"github.com/smallbiznis/eksporyuk/internal/entitlement"
	"github.com/smallbiznis/eksporyuk/internal/fulfillment"
	"github.com/smallbiznis/eksporyuk/internal/idgen"
	"github.com/smallbiznis/eksporyuk/internal/locker"
	"github.com/smallbiznis/eksporyuk/internal/migration"
	"github.com/smallbiznis/eksporyuk/internal/notification"
	"github.com/smallbiznis/eksporyuk/internal/observability"
	"github.com/smallbiznis/eksporyuk/internal/payment"
	"github.com/smallbiznis/eksporyuk/internal/providers"
	"github.com/smallbiznis/eksporyuk/internal/revenue"
	"github.com/smallbiznis/eksporyuk/internal/server"
	"github.com/smallbiznis/eksporyuk/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		idgen.Module,
		db.Module,
		clock.Module,
		migration.Module,
		locker.Module,

		// Functional Domains
		catalog.Module,
		providers.Module,
		notification.Module,
		payment.Module,
		entitlement.Module,
		revenue.Module,
		credit.Module,
		fulfillment.Module,

		// Background loops
		notification.WorkerModule,
		fulfillment.RecoveryModule,

		server.Module,

		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
	)
	app.Run()
}
