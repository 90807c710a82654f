package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/eksporyuk/internal/revenue/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) EnsureWallet(ctx context.Context, tx *gorm.DB, id, userID snowflake.ID, now time.Time) (*domain.Wallet, error) {
	if err := tx.WithContext(ctx).Exec(
		`INSERT INTO wallets (id, user_id, balance, balance_pending, total_earnings, created_at, updated_at)
		 VALUES (?, ?, 0, 0, 0, ?, ?)
		 ON CONFLICT (user_id) DO NOTHING`,
		id,
		userID,
		now,
		now,
	).Error; err != nil {
		return nil, err
	}
	return r.FindWalletByUser(ctx, tx, userID)
}

func (r *repo) FindWalletByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*domain.Wallet, error) {
	var wallet domain.Wallet
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, balance, balance_pending, total_earnings, created_at, updated_at
		 FROM wallets
		 WHERE user_id = ?`,
		userID,
	).Scan(&wallet).Error
	if err != nil {
		return nil, err
	}
	if wallet.ID == 0 {
		return nil, nil
	}
	return &wallet, nil
}

func (r *repo) InsertPendingRevenue(ctx context.Context, tx *gorm.DB, item domain.PendingRevenue) (bool, error) {
	res := tx.WithContext(ctx).Exec(
		`INSERT INTO pending_revenues (id, wallet_id, user_id, transaction_id, type, amount, percent, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (transaction_id, type) DO NOTHING`,
		item.ID,
		item.WalletID,
		item.UserID,
		item.TransactionID,
		item.Type,
		item.Amount,
		item.Percent,
		item.Status,
		item.CreatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) AddPendingBalance(ctx context.Context, tx *gorm.DB, walletID snowflake.ID, amount int64, now time.Time) error {
	return tx.WithContext(ctx).Exec(
		`UPDATE wallets
		 SET balance_pending = balance_pending + ?, updated_at = ?
		 WHERE id = ?`,
		amount,
		now,
		walletID,
	).Error
}

func (r *repo) ListByTransaction(ctx context.Context, db *gorm.DB, transactionID snowflake.ID) ([]domain.PendingRevenue, error) {
	var items []domain.PendingRevenue
	err := db.WithContext(ctx).Raw(
		`SELECT id, wallet_id, user_id, transaction_id, type, amount, status, created_at
		 FROM pending_revenues
		 WHERE transaction_id = ?
		 ORDER BY id ASC`,
		transactionID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
