package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	catalogrepository "github.com/smallbiznis/eksporyuk/internal/catalog/repository"
	catalogservice "github.com/smallbiznis/eksporyuk/internal/catalog/service"
	"github.com/smallbiznis/eksporyuk/internal/clock"
	"github.com/smallbiznis/eksporyuk/internal/config"
	creditrepository "github.com/smallbiznis/eksporyuk/internal/credit/repository"
	creditservice "github.com/smallbiznis/eksporyuk/internal/credit/service"
	entitlementrepository "github.com/smallbiznis/eksporyuk/internal/entitlement/repository"
	entitlementservice "github.com/smallbiznis/eksporyuk/internal/entitlement/service"
	"github.com/smallbiznis/eksporyuk/internal/fulfillment/service"
	notificationdomain "github.com/smallbiznis/eksporyuk/internal/notification/domain"
	notificationrepository "github.com/smallbiznis/eksporyuk/internal/notification/repository"
	notificationservice "github.com/smallbiznis/eksporyuk/internal/notification/service"
	paymentdomain "github.com/smallbiznis/eksporyuk/internal/payment/domain"
	paymentrepository "github.com/smallbiznis/eksporyuk/internal/payment/repository"
	paymentservice "github.com/smallbiznis/eksporyuk/internal/payment/service"
	"github.com/smallbiznis/eksporyuk/internal/providers/mailinglist"
	revenuerepository "github.com/smallbiznis/eksporyuk/internal/revenue/repository"
	revenueservice "github.com/smallbiznis/eksporyuk/internal/revenue/service"
	"github.com/smallbiznis/eksporyuk/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db          *gorm.DB
	node        *snowflake.Node
	clock       *clock.FakeClock
	fulfillment *service.Service
	payments    *paymentservice.Service
	buyerID     snowflake.ID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithPublisher(t, nil)
}

// newFixtureWithPublisher wires publisher into every service when non-nil,
// otherwise the outbox-backed notification service.
func newFixtureWithPublisher(t *testing.T, publisher notificationdomain.Publisher) *fixture {
	t.Helper()
	db := testutil.OpenDB(t)
	node := testutil.Node(t)
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	log := zap.NewNop()
	cfg := config.Config{Fulfillment: config.FulfillmentConfig{
		TaskTimeout:     5 * time.Second,
		ExternalTimeout: time.Second,
		ResumeAfter:     5 * time.Minute,
	}}

	catalog := catalogservice.NewService(catalogservice.Params{DB: db, Log: log, Repo: catalogrepository.Provide()})
	if publisher == nil {
		publisher = notificationservice.NewService(notificationservice.Params{
			DB: db, Log: log, GenID: node, Repo: notificationrepository.Provide(), Clock: clk,
		})
	}
	entitlements := entitlementservice.NewService(entitlementservice.Params{
		DB: db, Log: log, GenID: node, Clock: clk, Cfg: cfg,
		Repo: entitlementrepository.Provide(), Catalog: catalog, Publisher: publisher, Subscriber: mailinglist.NoOp{},
	})
	revenue := revenueservice.NewService(revenueservice.Params{
		DB: db, Log: log, GenID: node, Clock: clk, Repo: revenuerepository.Provide(),
		Revenue: config.NewStaticRevenueConfigHolder(config.DefaultRevenueConfig()), Publisher: publisher,
	})
	credits := creditservice.NewService(creditservice.Params{
		DB: db, Log: log, GenID: node, Clock: clk, Repo: creditrepository.Provide(), Catalog: catalog, Publisher: publisher,
	})

	paymentRepo := paymentrepository.Provide()
	fulfillment := service.NewService(service.Params{
		DB: db, Log: log, Cfg: cfg, Clock: clk, Payments: paymentRepo, Catalog: catalog,
		Entitlements: entitlements, Revenue: revenue, Credits: credits, Publisher: publisher,
	})
	payments := paymentservice.NewService(paymentservice.Params{
		DB: db, Log: log, GenID: node, Repo: paymentRepo, Clock: clk, Cfg: cfg, Fulfiller: fulfillment,
	})

	return &fixture{
		db:          db,
		node:        node,
		clock:       clk,
		fulfillment: fulfillment,
		payments:    payments,
		buyerID:     testutil.SeedUser(t, db, node, "Budi", "budi@example.com", ""),
	}
}

func (f *fixture) seedTransaction(t *testing.T, externalID string, productType paymentdomain.ProductType, amount int64, metadata map[string]any) snowflake.ID {
	t.Helper()
	return testutil.SeedTransaction(t, f.db, f.node, testutil.TransactionFixture{
		ExternalID:  externalID,
		UserID:      f.buyerID,
		ProductType: string(productType),
		Amount:      amount,
		Metadata:    metadata,
		CreatedAt:   f.clock.Now(),
	})
}

func (f *fixture) seedMembership(t *testing.T) snowflake.ID {
	t.Helper()
	id := f.node.Generate()
	testutil.Exec(t, f.db,
		`INSERT INTO memberships (id, name, slug, duration, price, created_at) VALUES (?, 'Paket Pro', 'paket-pro', 'TWELVE_MONTHS', 500000, ?)`,
		id, f.clock.Now(),
	)
	return id
}

func event(externalID, eventType, eventID string, kind paymentdomain.EventKind) *paymentdomain.PaymentEvent {
	return &paymentdomain.PaymentEvent{
		Provider:        "xendit",
		ProviderEventID: eventID,
		Type:            eventType,
		Kind:            kind,
		ExternalID:      externalID,
		PaymentMethod:   "VA_BCA",
		RawPayload:      []byte(`{}`),
	}
}

func (f *fixture) deliver(t *testing.T, ev *paymentdomain.PaymentEvent) *paymentservice.ProcessResult {
	t.Helper()
	res, err := f.payments.ProcessEvent(context.Background(), ev)
	require.NoError(t, err)
	return res
}

func TestMembershipWithAffiliateDeliveredTwice(t *testing.T) {
	f := newFixture(t)
	membershipID := f.seedMembership(t)
	affiliateID := testutil.SeedUser(t, f.db, f.node, "Affiliate", "aff@example.com", "AFFILIATE")
	txnID := f.seedTransaction(t, "INV-MEM-1", paymentdomain.ProductTypeMembership, 500000, map[string]any{
		"membershipId":        membershipID.String(),
		"affiliateId":         affiliateID.String(),
		"affiliateCommission": 50000,
		"customerWhatsapp":    "081234567890",
	})

	first := f.deliver(t, event("INV-MEM-1", "invoice.paid", "evt-1", paymentdomain.EventKindSettled))
	assert.Equal(t, paymentdomain.OutcomeNewlySettled, first.Reconcile.Outcome)
	require.NoError(t, first.FulfillmentErr)

	second := f.deliver(t, event("INV-MEM-1", "payment_request.succeeded", "evt-2", paymentdomain.EventKindSettled))
	assert.Equal(t, paymentdomain.OutcomeAlreadySettled, second.Reconcile.Outcome)

	testutil.AssertCount(t, f.db, 1, "transactions", "id = ? AND status = 'SUCCESS' AND fulfilled_at IS NOT NULL", txnID)
	testutil.AssertCount(t, f.db, 1, "user_memberships", "user_id = ? AND membership_id = ? AND status = 'ACTIVE'", f.buyerID, membershipID)
	testutil.AssertCount(t, f.db, 1, "pending_revenues", "transaction_id = ?", txnID)
	testutil.AssertCount(t, f.db, 1, "wallets", "user_id = ? AND balance_pending = 50000", affiliateID)
	testutil.AssertCount(t, f.db, 1, "notification_outbox", "kind = 'payment_success' AND channel = 'email'")
	testutil.AssertCount(t, f.db, 1, "notification_outbox", "kind = 'payment_success' AND channel = 'whatsapp'")
	testutil.AssertCount(t, f.db, 1, "notification_outbox", "kind = 'commission_earned' AND recipient = ?", affiliateID.String())
	testutil.AssertCount(t, f.db, 2, "payment_events", "processed_at IS NOT NULL")
}

func TestCreditTopUpDeliveredTwice(t *testing.T) {
	f := newFixture(t)
	txnID := f.seedTransaction(t, "INV-CR-1", paymentdomain.ProductTypeCreditTopUp, 100000, map[string]any{
		"type":    "CREDIT_TOPUP",
		"credits": 100,
	})

	first := f.deliver(t, event("INV-CR-1", "invoice.paid", "evt-cr-1", paymentdomain.EventKindSettled))
	require.NoError(t, first.FulfillmentErr)
	second := f.deliver(t, event("INV-CR-1", "va.payment.complete", "evt-cr-2", paymentdomain.EventKindSettled))
	assert.Equal(t, paymentdomain.OutcomeAlreadySettled, second.Reconcile.Outcome)

	testutil.AssertCount(t, f.db, 1, "affiliate_credits", "affiliate_id = ? AND balance = 100 AND total_top_up = 100", f.buyerID)
	testutil.AssertCount(t, f.db, 1, "affiliate_credit_transactions", "reference_id = ? AND type = 'TOPUP'", txnID.String())
	testutil.AssertCount(t, f.db, 0, "pending_revenues", "transaction_id = ?", txnID)
}

func TestPartialFailureIsContained(t *testing.T) {
	f := newFixture(t)
	affiliateID := testutil.SeedUser(t, f.db, f.node, "Affiliate", "aff@example.com", "AFFILIATE")
	txnID := f.seedTransaction(t, "INV-BROKEN", paymentdomain.ProductTypeMembership, 500000, map[string]any{
		"membershipId":        f.node.Generate().String(),
		"affiliateId":         affiliateID.String(),
		"affiliateCommission": 50000,
	})

	res := f.deliver(t, event("INV-BROKEN", "invoice.paid", "evt-broken", paymentdomain.EventKindSettled))
	require.Error(t, res.FulfillmentErr)
	assert.Contains(t, res.FulfillmentErr.Error(), "membership.grant")

	// Sibling tasks still ran and the transaction is stamped.
	testutil.AssertCount(t, f.db, 1, "pending_revenues", "transaction_id = ?", txnID)
	testutil.AssertCount(t, f.db, 1, "notification_outbox", "kind = 'payment_success'")
	testutil.AssertCount(t, f.db, 1, "transactions", "id = ? AND fulfilled_at IS NOT NULL", txnID)
	testutil.AssertCount(t, f.db, 0, "entitlement_grants", "transaction_id = ?", txnID)
}

type failingPublisher struct{}

func (failingPublisher) Publish(ctx context.Context, msg notificationdomain.Message) (bool, error) {
	return false, errors.New("dispatcher down")
}

func TestDispatcherFailureKeepsEntitlement(t *testing.T) {
	f := newFixtureWithPublisher(t, failingPublisher{})
	membershipID := f.seedMembership(t)
	affiliateID := testutil.SeedUser(t, f.db, f.node, "Affiliate", "aff@example.com", "AFFILIATE")
	txnID := f.seedTransaction(t, "INV-NOTIFY-DOWN", paymentdomain.ProductTypeMembership, 500000, map[string]any{
		"membershipId":        membershipID.String(),
		"affiliateId":         affiliateID.String(),
		"affiliateCommission": 50000,
	})

	res := f.deliver(t, event("INV-NOTIFY-DOWN", "invoice.paid", "evt-notify-down", paymentdomain.EventKindSettled))
	assert.Equal(t, paymentdomain.OutcomeNewlySettled, res.Reconcile.Outcome)
	require.Error(t, res.FulfillmentErr)
	assert.Contains(t, res.FulfillmentErr.Error(), service.TaskNotifyPayment)
	assert.NotContains(t, res.FulfillmentErr.Error(), service.TaskMembershipGrant)

	testutil.AssertCount(t, f.db, 1, "transactions", "id = ? AND status = 'SUCCESS' AND fulfilled_at IS NOT NULL", txnID)
	testutil.AssertCount(t, f.db, 1, "user_memberships", "user_id = ? AND membership_id = ? AND status = 'ACTIVE'", f.buyerID, membershipID)
	testutil.AssertCount(t, f.db, 1, "pending_revenues", "transaction_id = ?", txnID)
	testutil.AssertCount(t, f.db, 0, "notification_outbox", "1 = 1")
}

func TestConcurrentSettleKindsFulfillOnce(t *testing.T) {
	f := newFixture(t)
	membershipID := f.seedMembership(t)
	txnID := f.seedTransaction(t, "INV-RACE", paymentdomain.ProductTypeMembership, 500000, map[string]any{
		"membershipId": membershipID.String(),
	})

	kinds := []string{"invoice.paid", "va.payment.complete", "ewallet.capture.completed", "payment_request.succeeded"}
	const deliveries = 16

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		won      int
		outcomes = map[paymentdomain.ReconcileOutcome]int{}
	)
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			eventType := kinds[i%len(kinds)]
			// Every event id is delivered twice, like a provider retry.
			ev := event("INV-RACE", eventType, fmt.Sprintf("evt-race-%d", i%(deliveries/2)), paymentdomain.EventKindSettled)
			res, err := f.payments.ProcessEvent(context.Background(), ev)
			if err != nil {
				assert.ErrorIs(t, err, paymentdomain.ErrEventAlreadyProcessed)
				return
			}
			assert.NoError(t, res.FulfillmentErr)
			mu.Lock()
			defer mu.Unlock()
			outcomes[res.Reconcile.Outcome]++
			if res.Reconcile.Outcome == paymentdomain.OutcomeNewlySettled {
				won++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, won)
	assert.Zero(t, outcomes[paymentdomain.OutcomeResumed])
	testutil.AssertCount(t, f.db, 1, "entitlement_grants", "transaction_id = ?", txnID)
	testutil.AssertCount(t, f.db, 1, "user_memberships", "user_id = ? AND membership_id = ?", f.buyerID, membershipID)
	testutil.AssertCount(t, f.db, 1, "transactions", "id = ? AND status = 'SUCCESS' AND fulfilled_at IS NOT NULL", txnID)
	testutil.AssertCount(t, f.db, 1, "notification_outbox", "kind = 'payment_success' AND channel = 'email'")
}

func TestEventOrderDoesNotResurrect(t *testing.T) {
	f := newFixture(t)
	membershipID := f.seedMembership(t)
	meta := map[string]any{"membershipId": membershipID.String()}
	expiredFirst := f.seedTransaction(t, "INV-A", paymentdomain.ProductTypeMembership, 500000, meta)
	paidFirst := f.seedTransaction(t, "INV-B", paymentdomain.ProductTypeMembership, 500000, meta)

	f.deliver(t, event("INV-A", "invoice.expired", "evt-a-1", paymentdomain.EventKindExpired))
	late := f.deliver(t, event("INV-A", "invoice.paid", "evt-a-2", paymentdomain.EventKindSettled))
	assert.Equal(t, paymentdomain.OutcomeAlreadySettled, late.Reconcile.Outcome)

	f.deliver(t, event("INV-B", "invoice.paid", "evt-b-1", paymentdomain.EventKindSettled))
	f.deliver(t, event("INV-B", "invoice.expired", "evt-b-2", paymentdomain.EventKindExpired))

	testutil.AssertCount(t, f.db, 1, "transactions", "id = ? AND status = 'EXPIRED' AND fulfilled_at IS NULL", expiredFirst)
	testutil.AssertCount(t, f.db, 1, "transactions", "id = ? AND status = 'SUCCESS' AND fulfilled_at IS NOT NULL", paidFirst)
	testutil.AssertCount(t, f.db, 0, "entitlement_grants", "transaction_id = ?", expiredFirst)
	testutil.AssertCount(t, f.db, 1, "entitlement_grants", "transaction_id = ?", paidFirst)
}

func TestReplayFillsGapsOnly(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	membershipID := f.seedMembership(t)
	txnID := f.seedTransaction(t, "INV-REPLAY", paymentdomain.ProductTypeMembership, 500000, map[string]any{
		"membershipId": membershipID.String(),
	})
	f.deliver(t, event("INV-REPLAY", "invoice.paid", "evt-r-1", paymentdomain.EventKindSettled))

	testutil.Exec(t, f.db, `DELETE FROM notification_outbox`)
	require.NoError(t, f.payments.Replay(ctx, txnID))

	testutil.AssertCount(t, f.db, 1, "user_memberships", "user_id = ?", f.buyerID)
	testutil.AssertCount(t, f.db, 1, "notification_outbox", "kind = 'payment_success'")
}

func TestPlanByProductType(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		productType paymentdomain.ProductType
		metadata    string
		want        []string
	}{
		{paymentdomain.ProductTypeMembership, `{"membershipId":"1"}`, []string{service.TaskMembershipGrant, service.TaskRevenue, service.TaskNotifyPayment}},
		{paymentdomain.ProductTypeCourse, `{"courseId":"1"}`, []string{service.TaskCourseGrant, service.TaskRevenue, service.TaskNotifyPayment}},
		{paymentdomain.ProductTypeProduct, `{"productId":"1"}`, []string{service.TaskProductGrant, service.TaskRevenue, service.TaskNotifyPayment}},
		{paymentdomain.ProductTypeEvent, `{"eventId":"1"}`, []string{service.TaskEventGrant, service.TaskRevenue, service.TaskNotifyPayment}},
		{paymentdomain.ProductTypeSupplierMembership, `{"packageId":"1"}`, []string{service.TaskSupplierGrant, service.TaskRevenue, service.TaskNotifyPayment}},
		{paymentdomain.ProductTypeCreditTopUp, `{"credits":10}`, []string{service.TaskCreditTopUp, service.TaskNotifyPayment}},
	}

	for _, tt := range tests {
		t.Run(string(tt.productType), func(t *testing.T) {
			names, err := f.fulfillment.Plan(&paymentdomain.Transaction{
				UserID:      1,
				ProductType: tt.productType,
				Metadata:    []byte(tt.metadata),
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, names)
		})
	}
}

func TestFulfillRejectsUnsettledTransaction(t *testing.T) {
	f := newFixture(t)
	err := f.fulfillment.Fulfill(context.Background(), &paymentdomain.Transaction{ID: 1, Status: paymentdomain.StatusPending})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidStatus)
}
