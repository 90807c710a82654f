package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/eksporyuk/internal/credit/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) EnsureAccount(ctx context.Context, tx *gorm.DB, id, affiliateID snowflake.ID, now time.Time) (*domain.Account, error) {
	if err := tx.WithContext(ctx).Exec(
		`INSERT INTO affiliate_credits (id, affiliate_id, balance, total_top_up, total_used, created_at, updated_at)
		 VALUES (?, ?, 0, 0, 0, ?, ?)
		 ON CONFLICT (affiliate_id) DO NOTHING`,
		id,
		affiliateID,
		now,
		now,
	).Error; err != nil {
		return nil, err
	}
	return r.FindAccount(ctx, tx, affiliateID)
}

func (r *repo) FindAccount(ctx context.Context, db *gorm.DB, affiliateID snowflake.ID) (*domain.Account, error) {
	var account domain.Account
	err := db.WithContext(ctx).Raw(
		`SELECT id, affiliate_id, balance, total_top_up, total_used, created_at, updated_at
		 FROM affiliate_credits
		 WHERE affiliate_id = ?`,
		affiliateID,
	).Scan(&account).Error
	if err != nil {
		return nil, err
	}
	if account.ID == 0 {
		return nil, nil
	}
	return &account, nil
}

func (r *repo) FindEntry(ctx context.Context, db *gorm.DB, referenceType, referenceID string, entryType domain.EntryType) (*domain.Entry, error) {
	var entry domain.Entry
	err := db.WithContext(ctx).Raw(
		`SELECT id, credit_id, affiliate_id, type, amount, balance_before, balance_after,
			COALESCE(description, '') AS description, reference_type, reference_id, created_at
		 FROM affiliate_credit_transactions
		 WHERE reference_type = ? AND reference_id = ? AND type = ?`,
		referenceType,
		referenceID,
		entryType,
	).Scan(&entry).Error
	if err != nil {
		return nil, err
	}
	if entry.ID == 0 {
		return nil, nil
	}
	return &entry, nil
}

func (r *repo) AddBalance(ctx context.Context, tx *gorm.DB, accountID snowflake.ID, credits int64, now time.Time) error {
	return tx.WithContext(ctx).Exec(
		`UPDATE affiliate_credits
		 SET balance = balance + ?, total_top_up = total_top_up + ?, updated_at = ?
		 WHERE id = ?`,
		credits,
		credits,
		now,
		accountID,
	).Error
}

func (r *repo) SubtractBalance(ctx context.Context, tx *gorm.DB, accountID snowflake.ID, credits int64, now time.Time) (bool, error) {
	res := tx.WithContext(ctx).Exec(
		`UPDATE affiliate_credits
		 SET balance = balance - ?, total_used = total_used + ?, updated_at = ?
		 WHERE id = ? AND balance >= ?`,
		credits,
		credits,
		now,
		accountID,
		credits,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) InsertEntry(ctx context.Context, tx *gorm.DB, entry domain.Entry) (bool, error) {
	res := tx.WithContext(ctx).Exec(
		`INSERT INTO affiliate_credit_transactions (
			id, credit_id, affiliate_id, type, amount, balance_before, balance_after,
			description, reference_type, reference_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (reference_type, reference_id, type) DO NOTHING`,
		entry.ID,
		entry.CreditID,
		entry.AffiliateID,
		entry.Type,
		entry.Amount,
		entry.BalanceBefore,
		entry.BalanceAfter,
		entry.Description,
		entry.ReferenceType,
		entry.ReferenceID,
		entry.CreatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) SumEntries(ctx context.Context, db *gorm.DB, affiliateID snowflake.ID) (int64, int64, error) {
	var sums struct {
		TotalTopUp int64
		TotalUse   int64
	}
	err := db.WithContext(ctx).Raw(
		`SELECT
			COALESCE(SUM(CASE WHEN type = ? THEN amount ELSE 0 END), 0) AS total_top_up,
			COALESCE(SUM(CASE WHEN type = ? THEN amount ELSE 0 END), 0) AS total_use
		 FROM affiliate_credit_transactions
		 WHERE affiliate_id = ?`,
		domain.EntryTopUp,
		domain.EntryUse,
		affiliateID,
	).Scan(&sums).Error
	if err != nil {
		return 0, 0, err
	}
	return sums.TotalTopUp, sums.TotalUse, nil
}
