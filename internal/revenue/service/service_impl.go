package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/eksporyuk/internal/clock"
	"github.com/smallbiznis/eksporyuk/internal/config"
	notificationdomain "github.com/smallbiznis/eksporyuk/internal/notification/domain"
	obslogger "github.com/smallbiznis/eksporyuk/internal/observability/logger"
	paymentdomain "github.com/smallbiznis/eksporyuk/internal/payment/domain"
	"github.com/smallbiznis/eksporyuk/internal/revenue/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Repo      domain.Repository
	Revenue   *config.RevenueConfigHolder
	Publisher notificationdomain.Publisher
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      domain.Repository
	revenue   *config.RevenueConfigHolder
	publisher notificationdomain.Publisher
}

func NewService(p Params) *Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("revenue.service"),
		genID:     p.GenID,
		clock:     clk,
		repo:      p.Repo,
		revenue:   p.Revenue,
		publisher: p.Publisher,
	}
}

// Distribute records each share as a PENDING revenue row and raises the
// owner's pending balance. A repeated call for the same transaction finds
// every row already present and changes nothing.
func (s *Service) Distribute(ctx context.Context, txn *paymentdomain.Transaction, purchase paymentdomain.Purchase) (domain.Distribution, error) {
	if txn == nil || txn.ID == 0 || purchase == nil {
		return domain.Distribution{}, domain.ErrInvalidDistribution
	}
	out := domain.Distribution{TransactionID: txn.ID}

	shares, err := domain.Split(txn.Amount, purchase.Attribution(), s.revenue.Get())
	if err != nil {
		return out, err
	}
	out.Shares = shares
	if len(shares) == 0 {
		return out, nil
	}

	now := s.clock.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, share := range shares {
			wallet, err := s.repo.EnsureWallet(ctx, tx, s.genID.Generate(), share.UserID, now)
			if err != nil {
				return fmt.Errorf("ensure wallet: %w", err)
			}
			if wallet == nil {
				return fmt.Errorf("wallet for user %s not found after insert", share.UserID)
			}

			inserted, err := s.repo.InsertPendingRevenue(ctx, tx, domain.PendingRevenue{
				ID:            s.genID.Generate(),
				WalletID:      wallet.ID,
				UserID:        share.UserID,
				TransactionID: txn.ID,
				Type:          share.Type,
				Amount:        share.Amount,
				Percent:       share.Percent,
				Status:        domain.StatusPending,
				CreatedAt:     now,
			})
			if err != nil {
				return fmt.Errorf("insert %s revenue: %w", share.Type, err)
			}
			if !inserted {
				continue
			}
			if err := s.repo.AddPendingBalance(ctx, tx, wallet.ID, share.Amount, now); err != nil {
				return fmt.Errorf("add pending balance: %w", err)
			}
			out.Inserted = append(out.Inserted, share)
		}
		return nil
	})
	if err != nil {
		out.Inserted = nil
		return out, err
	}

	log := obslogger.WithContext(ctx, s.log)
	if len(out.Inserted) == 0 {
		log.Debug("revenue already distributed", zap.String("transaction_id", txn.ID.String()))
		return out, nil
	}
	log.Info("revenue distributed",
		zap.String("transaction_id", txn.ID.String()),
		zap.Int("shares", len(out.Inserted)),
	)

	for _, share := range out.Inserted {
		if share.Type == domain.ShareAffiliate {
			s.notifyCommission(ctx, txn, share)
		}
	}
	return out, nil
}

func (s *Service) notifyCommission(ctx context.Context, txn *paymentdomain.Transaction, share domain.Share) {
	if s.publisher == nil {
		return
	}
	_, err := s.publisher.Publish(ctx, notificationdomain.Message{
		Kind:      notificationdomain.KindCommissionEarned,
		Channel:   notificationdomain.ChannelPush,
		Recipient: share.UserID.String(),
		Subject:   "Komisi baru",
		Data: map[string]any{
			"message": fmt.Sprintf("Anda mendapat komisi Rp %s dari %s", notificationdomain.FormatAmount(share.Amount), txn.ExternalID),
			"amount":  share.Amount,
		},
		TransactionID: txn.ID,
	})
	if err != nil {
		obslogger.WithContext(ctx, s.log).Warn("failed to queue commission notification",
			zap.String("transaction_id", txn.ID.String()),
			zap.Error(err),
		)
	}
}

// Wallet returns the user's wallet, or nil when none was created yet.
func (s *Service) Wallet(ctx context.Context, userID snowflake.ID) (*domain.Wallet, error) {
	return s.repo.FindWalletByUser(ctx, s.db, userID)
}

func (s *Service) ListByTransaction(ctx context.Context, transactionID snowflake.ID) ([]domain.PendingRevenue, error) {
	return s.repo.ListByTransaction(ctx, s.db, transactionID)
}
