package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	catalogservice "github.com/smallbiznis/eksporyuk/internal/catalog/service"
	"github.com/smallbiznis/eksporyuk/internal/clock"
	"github.com/smallbiznis/eksporyuk/internal/config"
	creditservice "github.com/smallbiznis/eksporyuk/internal/credit/service"
	entitlementservice "github.com/smallbiznis/eksporyuk/internal/entitlement/service"
	"github.com/smallbiznis/eksporyuk/internal/fulfillment/router"
	"github.com/smallbiznis/eksporyuk/internal/locker"
	notificationdomain "github.com/smallbiznis/eksporyuk/internal/notification/domain"
	obslogger "github.com/smallbiznis/eksporyuk/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/eksporyuk/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/eksporyuk/internal/payment/domain"
	revenueservice "github.com/smallbiznis/eksporyuk/internal/revenue/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrFulfillmentInProgress = errors.New("fulfillment_in_progress")

const (
	TaskMembershipGrant = "membership.grant"
	TaskCourseGrant     = "course.grant"
	TaskProductGrant    = "product.grant"
	TaskEventGrant      = "event.grant"
	TaskSupplierGrant   = "supplier.grant"
	TaskCreditTopUp     = "credit.topup"
	TaskRevenue         = "revenue.distribute"
	TaskNotifyPayment   = "notify.payment_success"
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	Cfg          config.Config
	Clock        clock.Clock
	Payments     paymentdomain.Repository
	Catalog      *catalogservice.Service
	Entitlements *entitlementservice.Service
	Revenue      *revenueservice.Service
	Credits      *creditservice.Service
	Publisher    notificationdomain.Publisher
	Locker       *locker.Locker      `optional:"true"`
	ObsMetrics   *obsmetrics.Metrics `optional:"true"`
}

// Service turns a settled transaction into its fulfillment plan and runs it.
type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	clock        clock.Clock
	payments     paymentdomain.Repository
	catalog      *catalogservice.Service
	entitlements *entitlementservice.Service
	revenue      *revenueservice.Service
	credits      *creditservice.Service
	publisher    notificationdomain.Publisher
	locker       *locker.Locker
	lockTTL      time.Duration
	router       *router.Router
}

func NewService(p Params) *Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	lockTTL := p.Cfg.Fulfillment.LockTTL
	if lockTTL <= 0 {
		lockTTL = 2 * time.Minute
	}
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("fulfillment.service"),
		clock:        clk,
		payments:     p.Payments,
		catalog:      p.Catalog,
		entitlements: p.Entitlements,
		revenue:      p.Revenue,
		credits:      p.Credits,
		publisher:    p.Publisher,
		locker:       p.Locker,
		lockTTL:      lockTTL,
		router:       router.New(p.Log, p.Cfg.Fulfillment.TaskTimeout, p.ObsMetrics),
	}
}

// Fulfill runs the plan for txn and stamps fulfilled_at afterwards, also
// when tasks failed. The returned error joins the task failures.
func (s *Service) Fulfill(ctx context.Context, txn *paymentdomain.Transaction) error {
	if txn == nil || txn.ID == 0 {
		return paymentdomain.ErrInvalidEvent
	}
	if txn.Status != paymentdomain.StatusSuccess {
		return fmt.Errorf("%w: transaction is %s", paymentdomain.ErrInvalidStatus, txn.Status)
	}
	log := obslogger.WithContext(ctx, s.log).With(
		zap.String("transaction_id", txn.ID.String()),
		zap.String("external_id", txn.ExternalID),
		zap.String("product_type", string(txn.ProductType)),
	)

	release, err := s.lock(ctx, txn)
	if err != nil {
		log.Warn("fulfillment already running elsewhere", zap.Error(err))
		return err
	}
	defer release()

	purchase, err := paymentdomain.DecodePurchase(txn)
	if err != nil {
		log.Error("invalid purchase metadata", zap.Error(err))
		s.markFulfilled(ctx, log, txn)
		return err
	}

	outcome := s.router.Run(ctx, s.plan(txn, purchase))
	s.markFulfilled(ctx, log, txn)

	if outcome.Err != nil {
		log.Error("fulfillment finished with failures",
			zap.String("run_id", outcome.RunID),
			zap.Strings("failed_tasks", outcome.Failed()),
		)
		return outcome.Err
	}
	log.Info("fulfillment finished", zap.String("run_id", outcome.RunID), zap.Int("tasks", len(outcome.Results)))
	return nil
}

// Plan returns the task names that Fulfill would run for txn.
func (s *Service) Plan(txn *paymentdomain.Transaction) ([]string, error) {
	purchase, err := paymentdomain.DecodePurchase(txn)
	if err != nil {
		return nil, err
	}
	tasks := s.plan(txn, purchase)
	names := make([]string, 0, len(tasks))
	for _, task := range tasks {
		names = append(names, task.Name)
	}
	return names, nil
}

func (s *Service) plan(txn *paymentdomain.Transaction, purchase paymentdomain.Purchase) []router.Task {
	var grant router.Task
	switch p := purchase.(type) {
	case paymentdomain.MembershipPurchase:
		grant = router.Task{Name: TaskMembershipGrant, Run: func(ctx context.Context) error { return s.entitlements.GrantMembership(ctx, txn, p) }}
	case paymentdomain.CoursePurchase:
		grant = router.Task{Name: TaskCourseGrant, Run: func(ctx context.Context) error { return s.entitlements.GrantCourse(ctx, txn, p) }}
	case paymentdomain.ProductPurchase:
		grant = router.Task{Name: TaskProductGrant, Run: func(ctx context.Context) error { return s.entitlements.GrantProduct(ctx, txn, p) }}
	case paymentdomain.EventPurchase:
		grant = router.Task{Name: TaskEventGrant, Run: func(ctx context.Context) error { return s.entitlements.GrantEvent(ctx, txn, p) }}
	case paymentdomain.SupplierPurchase:
		grant = router.Task{Name: TaskSupplierGrant, Run: func(ctx context.Context) error { return s.entitlements.GrantSupplier(ctx, txn, p) }}
	case paymentdomain.CreditTopUpPurchase:
		return []router.Task{
			{Name: TaskCreditTopUp, Run: func(ctx context.Context) error {
				_, err := s.credits.TopUpFromPurchase(ctx, txn, p)
				return err
			}},
			s.notifyTask(txn, purchase),
		}
	}

	return []router.Task{
		grant,
		{Name: TaskRevenue, Run: func(ctx context.Context) error {
			_, err := s.revenue.Distribute(ctx, txn, purchase)
			return err
		}},
		s.notifyTask(txn, purchase),
	}
}

func (s *Service) notifyTask(txn *paymentdomain.Transaction, purchase paymentdomain.Purchase) router.Task {
	return router.Task{Name: TaskNotifyPayment, Run: func(ctx context.Context) error {
		return s.notifyPaymentSuccess(ctx, txn, purchase)
	}}
}

// notifyPaymentSuccess queues the buyer receipt by email, and by WhatsApp
// when checkout captured a number.
func (s *Service) notifyPaymentSuccess(ctx context.Context, txn *paymentdomain.Transaction, purchase paymentdomain.Purchase) error {
	name, email, phone := txn.CustomerName, txn.CustomerEmail, txn.CustomerWhatsapp
	if phone == "" {
		phone = purchase.Attribution().CustomerWhatsapp
	}
	if email == "" && txn.UserID != 0 {
		if user, err := s.catalog.User(ctx, txn.UserID); err == nil {
			if name == "" {
				name = user.Name
			}
			email = user.Email
		}
	}
	if name == "" {
		name = "Member"
	}

	item := s.itemName(ctx, purchase)
	amount := notificationdomain.FormatAmount(txn.Amount)
	var errs error

	if email != "" {
		_, err := s.publisher.Publish(ctx, notificationdomain.Message{
			Kind:      notificationdomain.KindPaymentSuccess,
			Channel:   notificationdomain.ChannelEmail,
			Recipient: email,
			Template:  "payment_success",
			Data: map[string]any{
				"name":           name,
				"item":           item,
				"invoice":        txn.ExternalID,
				"amount":         amount,
				"payment_method": txn.PaymentMethod,
			},
			TransactionID: txn.ID,
		})
		errs = errors.Join(errs, err)
	}
	if phone != "" {
		_, err := s.publisher.Publish(ctx, notificationdomain.Message{
			Kind:      notificationdomain.KindPaymentSuccess,
			Channel:   notificationdomain.ChannelWhatsapp,
			Recipient: phone,
			Template:  "payment_success",
			Data: map[string]any{
				"name":    name,
				"item":    item,
				"invoice": txn.ExternalID,
				"amount":  amount,
			},
			TransactionID: txn.ID,
		})
		errs = errors.Join(errs, err)
	}
	return errs
}

// itemName is best effort; the receipt falls back to the product type.
func (s *Service) itemName(ctx context.Context, purchase paymentdomain.Purchase) string {
	fallback := strings.ReplaceAll(strings.ToLower(string(purchase.ProductType())), "_", " ")
	switch p := purchase.(type) {
	case paymentdomain.MembershipPurchase:
		if m, err := s.catalog.Membership(ctx, p.MembershipID); err == nil {
			return m.Name
		}
	case paymentdomain.CoursePurchase:
		if c, err := s.catalog.Course(ctx, p.CourseID); err == nil {
			return c.Title
		}
	case paymentdomain.ProductPurchase:
		if pr, err := s.catalog.Product(ctx, p.ProductID); err == nil {
			return pr.Name
		}
	case paymentdomain.EventPurchase:
		if e, err := s.catalog.Event(ctx, p.EventID); err == nil {
			return e.Title
		}
	case paymentdomain.SupplierPurchase:
		if pkg, err := s.catalog.SupplierPackage(ctx, p.PackageID); err == nil {
			return pkg.Name
		}
	case paymentdomain.CreditTopUpPurchase:
		return fmt.Sprintf("%d kredit", p.Credits)
	}
	return fallback
}

// lock takes the per-transaction redis lock when one is configured. Lock
// errors other than contention fall back to the database guards.
func (s *Service) lock(ctx context.Context, txn *paymentdomain.Transaction) (func(), error) {
	noop := func() {}
	if !s.locker.Enabled() {
		return noop, nil
	}
	key := "fulfillment:txn:" + txn.ID.String()
	token, ok, err := s.locker.TryLock(ctx, key, s.lockTTL)
	if err != nil {
		obslogger.WithContext(ctx, s.log).Warn("fulfillment lock unavailable, relying on idempotency guards", zap.Error(err))
		return noop, nil
	}
	if !ok {
		return noop, ErrFulfillmentInProgress
	}
	return func() {
		// The caller's context may already be done.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.locker.Release(releaseCtx, key, token); err != nil {
			s.log.Warn("failed to release fulfillment lock", zap.String("key", key), zap.Error(err))
		}
	}, nil
}

func (s *Service) markFulfilled(ctx context.Context, log *zap.Logger, txn *paymentdomain.Transaction) {
	if err := s.payments.MarkFulfilled(ctx, s.db, txn.ID, s.clock.Now()); err != nil {
		log.Error("failed to stamp fulfilled_at", zap.Error(err))
	}
}
