package main

import (
	"context"
	"fmt"
	"time"

	"github.com/smallbiznis/eksporyuk/internal/catalog"
	"github.com/smallbiznis/eksporyuk/internal/clock"
	"github.com/smallbiznis/eksporyuk/internal/config"
	"github.com/smallbiznis/eksporyuk/internal/credit"
	creditservice "github.com/smallbiznis/eksporyuk/internal/credit/service"
	"github.com/smallbiznis/eksporyuk/internal/entitlement"
	"github.com/smallbiznis/eksporyuk/internal/fulfillment"
	fulfillmentservice "github.com/smallbiznis/eksporyuk/internal/fulfillment/service"
	"github.com/smallbiznis/eksporyuk/internal/idgen"
	"github.com/smallbiznis/eksporyuk/internal/locker"
	"github.com/smallbiznis/eksporyuk/internal/notification"
	"github.com/smallbiznis/eksporyuk/internal/notification/worker"
	"github.com/smallbiznis/eksporyuk/internal/observability"
	paymentrepository "github.com/smallbiznis/eksporyuk/internal/payment/repository"
	paymentservice "github.com/smallbiznis/eksporyuk/internal/payment/service"
	"github.com/smallbiznis/eksporyuk/internal/providers"
	"github.com/smallbiznis/eksporyuk/internal/revenue"
	"github.com/smallbiznis/eksporyuk/pkg/db"
	"github.com/spf13/viper"
	"go.uber.org/fx"
)

type deps struct {
	payments    *paymentservice.Service
	fulfillment *fulfillmentservice.Service
	credits     *creditservice.Service
	outbox      *worker.Worker
}

// withDeps starts the domain graph without the HTTP server, background
// loops or migrations, runs fn and stops the graph again. Webhook
// verification is not wired, so the CLI starts without a Xendit token.
func withDeps(parent context.Context, v *viper.Viper, fn func(ctx context.Context, d deps) error) error {
	timeout := v.GetDuration("timeout")
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	var d deps
	app := fx.New(
		fx.NopLogger,
		config.Module,
		observability.Module,
		idgen.Module,
		db.Module,
		clock.Module,
		locker.Module,
		catalog.Module,
		providers.Module,
		notification.Module,
		fx.Provide(paymentrepository.Provide),
		fx.Provide(paymentservice.NewService),
		entitlement.Module,
		revenue.Module,
		credit.Module,
		fulfillment.Module,
		fx.Populate(&d.payments, &d.fulfillment, &d.credits, &d.outbox),
	)
	if err := app.Err(); err != nil {
		return fmt.Errorf("build application: %w", err)
	}
	if err := app.Start(ctx); err != nil {
		return fmt.Errorf("start application: %w", err)
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer stopCancel()
		_ = app.Stop(stopCtx)
	}()

	return fn(ctx, d)
}
