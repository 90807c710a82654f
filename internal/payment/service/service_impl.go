package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/eksporyuk/internal/clock"
	"github.com/smallbiznis/eksporyuk/internal/config"
	obscontext "github.com/smallbiznis/eksporyuk/internal/observability/context"
	obslogger "github.com/smallbiznis/eksporyuk/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/eksporyuk/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/eksporyuk/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       paymentdomain.Repository
	Clock      clock.Clock
	Cfg        config.Config
	Fulfiller  paymentdomain.Fulfiller `optional:"true"`
	ObsMetrics *obsmetrics.Metrics     `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	repo        paymentdomain.Repository
	clock       clock.Clock
	fulfiller   paymentdomain.Fulfiller
	resumeAfter time.Duration
	obsMetrics  *obsmetrics.Metrics
}

func NewService(p Params) *Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	resumeAfter := p.Cfg.Fulfillment.ResumeAfter
	if resumeAfter <= 0 {
		resumeAfter = 5 * time.Minute
	}
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("payment.service"),
		genID:       p.GenID,
		repo:        p.Repo,
		clock:       clk,
		fulfiller:   p.Fulfiller,
		resumeAfter: resumeAfter,
		obsMetrics:  p.ObsMetrics,
	}
}

// ProcessResult describes what one delivery did.
type ProcessResult struct {
	Reconcile      paymentdomain.ReconcileResult
	FulfillmentErr error
}

// ProcessEvent records the callback in the inbox, reconciles the
// transaction and, when this delivery won the transition, runs fan-out.
// Fan-out failures are returned in the result, never as the error.
func (s *Service) ProcessEvent(ctx context.Context, event *paymentdomain.PaymentEvent) (*ProcessResult, error) {
	if err := validateEvent(event); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	payload := event.RawPayload
	if !json.Valid(payload) {
		payload = []byte("{}")
	}
	received := paymentdomain.EventRecord{
		ID:              s.genID.Generate(),
		Provider:        event.Provider,
		ProviderEventID: event.ProviderEventID,
		EventType:       event.Type,
		ExternalID:      event.ExternalID,
		Payload:         datatypes.JSON(payload),
		ReceivedAt:      now,
	}

	inserted, err := s.repo.InsertEvent(ctx, s.db, &received)
	if err != nil {
		return nil, fmt.Errorf("record payment event: %w", err)
	}
	stored := &received
	if !inserted {
		stored, err = s.repo.FindEvent(ctx, s.db, event.Provider, event.ProviderEventID)
		if err != nil {
			return nil, fmt.Errorf("load payment event: %w", err)
		}
		if stored == nil {
			return nil, paymentdomain.ErrInvalidEvent
		}
		if stored.ProcessedAt != nil {
			return nil, paymentdomain.ErrEventAlreadyProcessed
		}
	}

	result, err := s.Reconcile(ctx, paymentdomain.ReconcileRequest{
		ExternalID: event.ExternalID,
		Status:     event.Kind.TargetStatus(),
		PaidAt:     event.OccurredAt,
		Details: paymentdomain.PaymentDetails{
			Provider:          event.Provider,
			EventType:         event.Type,
			ProviderEventID:   event.ProviderEventID,
			ProviderPaymentID: event.ProviderPaymentID,
			PaymentMethod:     event.PaymentMethod,
			Channel:           event.Channel,
			BankCode:          event.BankCode,
			PaidAmount:        event.Amount,
			FailureReason:     event.FailureReason,
		},
	})
	if err != nil {
		return nil, err
	}

	out := &ProcessResult{Reconcile: result}
	if result.ShouldFulfill() {
		out.FulfillmentErr = s.fulfill(ctx, result.Transaction)
	}

	// Unknown references stay unprocessed so a provider retry after checkout
	// catches up is reconciled again.
	if result.Outcome != paymentdomain.OutcomeNotFound {
		if err := s.repo.MarkProcessed(ctx, s.db, stored.ID, s.clock.Now()); err != nil {
			return nil, fmt.Errorf("mark payment event processed: %w", err)
		}
	}
	return out, nil
}

func validateEvent(event *paymentdomain.PaymentEvent) error {
	if event == nil {
		return paymentdomain.ErrInvalidEvent
	}
	event.Provider = strings.ToLower(strings.TrimSpace(event.Provider))
	if event.Provider == "" {
		return paymentdomain.ErrInvalidProvider
	}
	event.ProviderEventID = strings.TrimSpace(event.ProviderEventID)
	event.ExternalID = strings.TrimSpace(event.ExternalID)
	event.Type = strings.TrimSpace(event.Type)
	if event.ProviderEventID == "" || event.ExternalID == "" || event.Type == "" {
		return paymentdomain.ErrInvalidEvent
	}
	switch event.Kind {
	case paymentdomain.EventKindSettled, paymentdomain.EventKindExpired, paymentdomain.EventKindFailed:
	default:
		return paymentdomain.ErrInvalidEvent
	}
	return nil
}

// Reconcile applies a provider-reported status with a single conditional
// update. Only the caller whose update moved the row out of PENDING gets
// OutcomeNewlySettled.
func (s *Service) Reconcile(ctx context.Context, req paymentdomain.ReconcileRequest) (paymentdomain.ReconcileResult, error) {
	req.ExternalID = strings.TrimSpace(req.ExternalID)
	if req.ExternalID == "" {
		return paymentdomain.ReconcileResult{}, paymentdomain.ErrInvalidEvent
	}
	if !req.Status.Terminal() {
		return paymentdomain.ReconcileResult{}, paymentdomain.ErrInvalidStatus
	}

	now := s.clock.Now()
	details, err := json.Marshal(req.Details)
	if err != nil {
		return paymentdomain.ReconcileResult{}, err
	}

	fields := paymentdomain.TransitionFields{
		Status:            req.Status,
		PaymentMethod:     req.Details.PaymentMethod,
		ProviderPaymentID: req.Details.ProviderPaymentID,
		PaymentDetails:    datatypes.JSON(details),
		UpdatedAt:         now,
	}
	if req.Status == paymentdomain.StatusSuccess {
		paidAt := req.PaidAt
		if paidAt.IsZero() {
			paidAt = now
		}
		paidAt = paidAt.UTC()
		fields.PaidAt = &paidAt
	} else {
		fields.FailureReason = req.Details.FailureReason
	}

	won, err := s.repo.TransitionFromPending(ctx, s.db, req.ExternalID, fields)
	if err != nil {
		return paymentdomain.ReconcileResult{}, fmt.Errorf("transition transaction: %w", err)
	}

	txn, err := s.repo.FindTransactionByExternalID(ctx, s.db, req.ExternalID)
	if err != nil {
		return paymentdomain.ReconcileResult{}, fmt.Errorf("load transaction: %w", err)
	}

	log := obslogger.WithContext(ctx, s.log).With(
		zap.String("external_id", req.ExternalID),
		zap.String("requested_status", string(req.Status)),
	)

	var result paymentdomain.ReconcileResult
	switch {
	case txn == nil:
		log.Warn("transaction not found for payment event")
		result = paymentdomain.ReconcileResult{Outcome: paymentdomain.OutcomeNotFound}
	case won && req.Status == paymentdomain.StatusSuccess:
		if req.Details.PaidAmount > 0 && req.Details.PaidAmount != txn.Amount {
			log.Warn("paid amount differs from transaction amount",
				zap.Int64("paid_amount", req.Details.PaidAmount),
				zap.Int64("transaction_amount", txn.Amount),
			)
		}
		log.Info("transaction settled", zap.String("transaction_id", txn.ID.String()))
		result = paymentdomain.ReconcileResult{Outcome: paymentdomain.OutcomeNewlySettled, Transaction: txn}
	case won:
		log.Info("transaction closed", zap.String("transaction_id", txn.ID.String()), zap.String("status", string(txn.Status)))
		result = paymentdomain.ReconcileResult{Outcome: paymentdomain.OutcomeNewlyFailed, Transaction: txn}
	case s.resumable(txn, req.Status, now):
		log.Warn("resuming unfinished fulfillment", zap.String("transaction_id", txn.ID.String()))
		result = paymentdomain.ReconcileResult{Outcome: paymentdomain.OutcomeResumed, Transaction: txn}
	default:
		log.Debug("transaction already settled", zap.String("status", string(txn.Status)))
		result = paymentdomain.ReconcileResult{Outcome: paymentdomain.OutcomeAlreadySettled, Transaction: txn}
	}

	s.obsMetrics.RecordReconcile(ctx, string(result.Outcome))
	return result, nil
}

// resumable reports whether a settled transaction was left mid fan-out long
// enough ago that the original worker is assumed dead. The window is measured
// from the local transition (updated_at), not the provider's paid_at, so a
// late callback cannot trigger a second fan-out next to a live one.
func (s *Service) resumable(txn *paymentdomain.Transaction, requested paymentdomain.Status, now time.Time) bool {
	if txn == nil || requested != paymentdomain.StatusSuccess {
		return false
	}
	if txn.Status != paymentdomain.StatusSuccess || txn.FulfilledAt != nil {
		return false
	}
	return now.Sub(txn.UpdatedAt) >= s.resumeAfter
}

func (s *Service) fulfill(ctx context.Context, txn *paymentdomain.Transaction) error {
	if s.fulfiller == nil {
		s.log.Warn("no fulfiller configured, skipping fan-out", zap.String("transaction_id", txn.ID.String()))
		return nil
	}
	ctx = obscontext.WithTransaction(ctx, txn.ID.String(), txn.ExternalID)
	return s.fulfiller.Fulfill(ctx, txn)
}

func (s *Service) FindByID(ctx context.Context, id snowflake.ID) (*paymentdomain.Transaction, error) {
	txn, err := s.repo.FindTransactionByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if txn == nil {
		return nil, paymentdomain.ErrTransactionNotFound
	}
	return txn, nil
}

func (s *Service) FindByExternalID(ctx context.Context, externalID string) (*paymentdomain.Transaction, error) {
	txn, err := s.repo.FindTransactionByExternalID(ctx, s.db, strings.TrimSpace(externalID))
	if err != nil {
		return nil, err
	}
	if txn == nil {
		return nil, paymentdomain.ErrTransactionNotFound
	}
	return txn, nil
}

func (s *Service) MarkFulfilled(ctx context.Context, id snowflake.ID) error {
	return s.repo.MarkFulfilled(ctx, s.db, id, s.clock.Now())
}

// ListUnfulfilled returns settled transactions whose fan-out never stamped
// fulfilled_at and that settled before the resume window.
func (s *Service) ListUnfulfilled(ctx context.Context, limit int) ([]paymentdomain.Transaction, error) {
	return s.repo.ListUnfulfilled(ctx, s.db, s.clock.Now().Add(-s.resumeAfter), limit)
}

// Replay re-runs fan-out for a settled transaction regardless of
// fulfilled_at. Every handler is idempotent so a replay only fills gaps.
func (s *Service) Replay(ctx context.Context, id snowflake.ID) error {
	txn, err := s.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if txn.Status != paymentdomain.StatusSuccess {
		return fmt.Errorf("%w: transaction is %s", paymentdomain.ErrInvalidStatus, txn.Status)
	}
	if s.fulfiller == nil {
		return errors.New("fulfiller_unavailable")
	}
	return s.fulfill(ctx, txn)
}
