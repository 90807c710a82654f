package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	catalogservice "github.com/smallbiznis/eksporyuk/internal/catalog/service"
	"github.com/smallbiznis/eksporyuk/internal/clock"
	"github.com/smallbiznis/eksporyuk/internal/credit/domain"
	notificationdomain "github.com/smallbiznis/eksporyuk/internal/notification/domain"
	obslogger "github.com/smallbiznis/eksporyuk/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/eksporyuk/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/eksporyuk/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       domain.Repository
	Catalog    *catalogservice.Service
	Publisher  notificationdomain.Publisher
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       domain.Repository
	catalog    *catalogservice.Service
	publisher  notificationdomain.Publisher
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) *Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("credit.service"),
		genID:      p.GenID,
		clock:      clk,
		repo:       p.Repo,
		catalog:    p.Catalog,
		publisher:  p.Publisher,
		obsMetrics: p.ObsMetrics,
	}
}

// TopUp adds credits for a paid transaction. The ledger row keyed by
// (PAYMENT, transaction, TOPUP) makes it apply at most once.
func (s *Service) TopUp(ctx context.Context, req domain.TopUpRequest) (domain.Result, error) {
	if req.AffiliateID == 0 || req.TransactionID == 0 || req.Credits <= 0 {
		return domain.Result{}, domain.ErrInvalidTopUp
	}
	referenceID := req.TransactionID.String()
	description := strings.TrimSpace(req.Description)
	if description == "" {
		description = fmt.Sprintf("Top up %d kredit", req.Credits)
		if req.PaymentRef != "" {
			description += " (" + req.PaymentRef + ")"
		}
	}

	now := s.clock.Now()
	var result domain.Result
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		account, err := s.repo.EnsureAccount(ctx, tx, s.genID.Generate(), req.AffiliateID, now)
		if err != nil {
			return fmt.Errorf("ensure credit account: %w", err)
		}
		if account == nil {
			return domain.ErrAccountNotFound
		}

		existing, err := s.repo.FindEntry(ctx, tx, domain.ReferencePayment, referenceID, domain.EntryTopUp)
		if err != nil {
			return err
		}
		if existing != nil {
			return domain.ErrDuplicateEntry
		}

		if err := s.repo.AddBalance(ctx, tx, account.ID, req.Credits, now); err != nil {
			return fmt.Errorf("add credits: %w", err)
		}
		updated, err := s.repo.FindAccount(ctx, tx, req.AffiliateID)
		if err != nil {
			return err
		}
		result = domain.Result{
			Outcome:       domain.OutcomeApplied,
			BalanceBefore: updated.Balance - req.Credits,
			BalanceAfter:  updated.Balance,
		}

		inserted, err := s.repo.InsertEntry(ctx, tx, domain.Entry{
			ID:            s.genID.Generate(),
			CreditID:      account.ID,
			AffiliateID:   req.AffiliateID,
			Type:          domain.EntryTopUp,
			Amount:        req.Credits,
			BalanceBefore: result.BalanceBefore,
			BalanceAfter:  result.BalanceAfter,
			Description:   description,
			ReferenceType: domain.ReferencePayment,
			ReferenceID:   referenceID,
			CreatedAt:     now,
		})
		if err != nil {
			return fmt.Errorf("insert credit entry: %w", err)
		}
		if !inserted {
			// A concurrent top-up won; roll back the balance change.
			return domain.ErrDuplicateEntry
		}
		return nil
	})

	log := obslogger.WithContext(ctx, s.log).With(
		zap.String("affiliate_id", req.AffiliateID.String()),
		zap.String("transaction_id", referenceID),
	)
	switch {
	case errors.Is(err, domain.ErrDuplicateEntry):
		s.obsMetrics.RecordCreditTopup(ctx, string(domain.OutcomeDuplicate))
		log.Debug("credit top-up already applied")
		return domain.Result{Outcome: domain.OutcomeDuplicate}, nil
	case err != nil:
		s.obsMetrics.RecordCreditTopup(ctx, "error")
		return domain.Result{}, err
	}

	s.obsMetrics.RecordCreditTopup(ctx, string(domain.OutcomeApplied))
	log.Info("credit top-up applied",
		zap.Int64("credits", req.Credits),
		zap.Int64("balance_after", result.BalanceAfter),
	)
	return result, nil
}

// Spend consumes credits, failing with ErrInsufficientCredit when the
// balance does not cover them. A repeated reference is reported as
// duplicate without charging twice.
func (s *Service) Spend(ctx context.Context, req domain.SpendRequest) (domain.Result, error) {
	req.ReferenceType = strings.TrimSpace(req.ReferenceType)
	req.ReferenceID = strings.TrimSpace(req.ReferenceID)
	if req.AffiliateID == 0 || req.Credits <= 0 || req.ReferenceType == "" || req.ReferenceID == "" {
		return domain.Result{}, domain.ErrInvalidSpend
	}

	now := s.clock.Now()
	var result domain.Result
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		account, err := s.repo.FindAccount(ctx, tx, req.AffiliateID)
		if err != nil {
			return err
		}
		if account == nil {
			return domain.ErrAccountNotFound
		}

		existing, err := s.repo.FindEntry(ctx, tx, req.ReferenceType, req.ReferenceID, domain.EntryUse)
		if err != nil {
			return err
		}
		if existing != nil {
			return domain.ErrDuplicateEntry
		}

		applied, err := s.repo.SubtractBalance(ctx, tx, account.ID, req.Credits, now)
		if err != nil {
			return fmt.Errorf("use credits: %w", err)
		}
		if !applied {
			return domain.ErrInsufficientCredit
		}
		updated, err := s.repo.FindAccount(ctx, tx, req.AffiliateID)
		if err != nil {
			return err
		}
		result = domain.Result{
			Outcome:       domain.OutcomeApplied,
			BalanceBefore: updated.Balance + req.Credits,
			BalanceAfter:  updated.Balance,
		}

		inserted, err := s.repo.InsertEntry(ctx, tx, domain.Entry{
			ID:            s.genID.Generate(),
			CreditID:      account.ID,
			AffiliateID:   req.AffiliateID,
			Type:          domain.EntryUse,
			Amount:        req.Credits,
			BalanceBefore: result.BalanceBefore,
			BalanceAfter:  result.BalanceAfter,
			Description:   req.Description,
			ReferenceType: req.ReferenceType,
			ReferenceID:   req.ReferenceID,
			CreatedAt:     now,
		})
		if err != nil {
			return fmt.Errorf("insert credit entry: %w", err)
		}
		if !inserted {
			return domain.ErrDuplicateEntry
		}
		return nil
	})
	if errors.Is(err, domain.ErrDuplicateEntry) {
		return domain.Result{Outcome: domain.OutcomeDuplicate}, nil
	}
	if err != nil {
		return domain.Result{}, err
	}
	return result, nil
}

func (s *Service) Balance(ctx context.Context, affiliateID snowflake.ID) (int64, error) {
	account, err := s.repo.FindAccount(ctx, s.db, affiliateID)
	if err != nil {
		return 0, err
	}
	if account == nil {
		return 0, nil
	}
	return account.Balance, nil
}

// Audit compares the stored balance and totals against the ledger.
func (s *Service) Audit(ctx context.Context, affiliateID snowflake.ID) (domain.AuditReport, error) {
	account, err := s.repo.FindAccount(ctx, s.db, affiliateID)
	if err != nil {
		return domain.AuditReport{}, err
	}
	if account == nil {
		return domain.AuditReport{}, domain.ErrAccountNotFound
	}
	topUp, use, err := s.repo.SumEntries(ctx, s.db, affiliateID)
	if err != nil {
		return domain.AuditReport{}, err
	}
	return domain.AuditReport{
		AffiliateID: affiliateID,
		Balance:     account.Balance,
		TotalTopUp:  account.TotalTopUp,
		TotalUsed:   account.TotalUsed,
		LedgerTopUp: topUp,
		LedgerUse:   use,
	}, nil
}

// TopUpFromPurchase applies a paid credit package and, on first
// application, notifies the buyer and every admin.
func (s *Service) TopUpFromPurchase(ctx context.Context, txn *paymentdomain.Transaction, p paymentdomain.CreditTopUpPurchase) (domain.Result, error) {
	if txn == nil {
		return domain.Result{}, domain.ErrInvalidTopUp
	}
	result, err := s.TopUp(ctx, domain.TopUpRequest{
		AffiliateID:   p.AffiliateID,
		Credits:       p.Credits,
		TransactionID: txn.ID,
		PaymentRef:    txn.ExternalID,
	})
	if err != nil || result.Outcome != domain.OutcomeApplied {
		return result, err
	}

	s.notifyTopUp(ctx, txn, p, result)
	return result, nil
}

func (s *Service) notifyTopUp(ctx context.Context, txn *paymentdomain.Transaction, p paymentdomain.CreditTopUpPurchase, result domain.Result) {
	if s.publisher == nil {
		return
	}
	message := fmt.Sprintf("%d kredit berhasil ditambahkan. Saldo: %d kredit", p.Credits, result.BalanceAfter)
	s.publish(ctx, notificationdomain.Message{
		Kind:          notificationdomain.KindCreditTopUp,
		Channel:       notificationdomain.ChannelPush,
		Recipient:     p.AffiliateID.String(),
		Subject:       "Top up kredit berhasil",
		Data:          map[string]any{"message": message},
		TransactionID: txn.ID,
	})

	name, email := txn.CustomerName, txn.CustomerEmail
	if email == "" && s.catalog != nil {
		if user, err := s.catalog.User(ctx, p.AffiliateID); err == nil {
			name, email = user.Name, user.Email
		}
	}
	if email != "" {
		s.publish(ctx, notificationdomain.Message{
			Kind:      notificationdomain.KindCreditTopUp,
			Channel:   notificationdomain.ChannelEmail,
			Recipient: email,
			Template:  "credit_topup",
			Data: map[string]any{
				"name":    name,
				"credits": p.Credits,
				"balance": result.BalanceAfter,
				"invoice": txn.ExternalID,
			},
			TransactionID: txn.ID,
		})
	}

	if s.catalog == nil {
		return
	}
	admins, err := s.catalog.Admins(ctx)
	if err != nil {
		obslogger.WithContext(ctx, s.log).Warn("failed to load admins for credit notification", zap.Error(err))
		return
	}
	for _, admin := range admins {
		s.publish(ctx, notificationdomain.Message{
			Kind:      notificationdomain.KindCreditSold,
			Channel:   notificationdomain.ChannelPush,
			Recipient: admin.ID.String(),
			Subject:   "Kredit terjual",
			Data: map[string]any{
				"message": fmt.Sprintf("%s membeli %d kredit (Rp %s)", displayName(name), p.Credits, notificationdomain.FormatAmount(txn.Amount)),
			},
			TransactionID: txn.ID,
		})
	}
}

func (s *Service) publish(ctx context.Context, msg notificationdomain.Message) {
	if _, err := s.publisher.Publish(ctx, msg); err != nil {
		obslogger.WithContext(ctx, s.log).Warn("failed to queue notification",
			zap.String("kind", string(msg.Kind)),
			zap.String("channel", string(msg.Channel)),
			zap.Error(err),
		)
	}
}

func displayName(name string) string {
	if strings.TrimSpace(name) == "" {
		return "Affiliate"
	}
	return name
}
