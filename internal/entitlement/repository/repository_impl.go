package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/eksporyuk/internal/entitlement/domain"
	"github.com/smallbiznis/eksporyuk/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertGrant(ctx context.Context, tx *gorm.DB, grant domain.Grant) (bool, error) {
	res := tx.WithContext(ctx).Exec(
		`INSERT INTO entitlement_grants (id, transaction_id, grant_type, user_id, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (transaction_id, grant_type) DO NOTHING`,
		grant.ID,
		grant.TransactionID,
		grant.GrantType,
		grant.UserID,
		grant.CreatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindUserMembership(ctx context.Context, tx *gorm.DB, userID, membershipID snowflake.ID) (*domain.UserMembership, error) {
	var item domain.UserMembership
	err := tx.WithContext(ctx).Raw(
		`SELECT id, user_id, membership_id, status, is_active, start_date, end_date,
			COALESCE(transaction_id, 0) AS transaction_id,
			activated_at, created_at, updated_at
		 FROM user_memberships
		 WHERE user_id = ? AND membership_id = ?
		 LIMIT 1`,
		userID,
		membershipID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) InsertUserMembership(ctx context.Context, tx *gorm.DB, item domain.UserMembership) error {
	err := tx.WithContext(ctx).Exec(
		`INSERT INTO user_memberships (
			id, user_id, membership_id, status, is_active, start_date, end_date,
			transaction_id, activated_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID,
		item.UserID,
		item.MembershipID,
		item.Status,
		item.IsActive,
		item.StartDate,
		item.EndDate,
		item.TransactionID,
		item.ActivatedAt,
		item.CreatedAt,
		item.UpdatedAt,
	).Error
	if db.IsDuplicateKeyErr(err) {
		return domain.ErrConcurrentGrant
	}
	return err
}

func (r *repo) RenewUserMembership(ctx context.Context, tx *gorm.DB, id snowflake.ID, endDate time.Time, transactionID snowflake.ID, now time.Time) error {
	return tx.WithContext(ctx).Exec(
		`UPDATE user_memberships
		 SET status = ?, is_active = ?, end_date = ?, transaction_id = ?, activated_at = ?, updated_at = ?
		 WHERE id = ?`,
		domain.MembershipStatusActive,
		true,
		endDate,
		transactionID,
		now,
		now,
		id,
	).Error
}

func (r *repo) InsertGroupMember(ctx context.Context, tx *gorm.DB, id, groupID, userID snowflake.ID, now time.Time) (bool, error) {
	res := tx.WithContext(ctx).Exec(
		`INSERT INTO group_members (id, group_id, user_id, role, joined_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (group_id, user_id) DO NOTHING`,
		id,
		groupID,
		userID,
		domain.GroupRoleMember,
		now,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) InsertCourseEnrollment(ctx context.Context, tx *gorm.DB, id, userID, courseID, transactionID snowflake.ID, now time.Time) (bool, error) {
	res := tx.WithContext(ctx).Exec(
		`INSERT INTO course_enrollments (id, user_id, course_id, progress, transaction_id, created_at, updated_at)
		 VALUES (?, ?, ?, 0, ?, ?, ?)
		 ON CONFLICT (user_id, course_id) DO NOTHING`,
		id,
		userID,
		courseID,
		nullableID(transactionID),
		now,
		now,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) InsertUserProduct(ctx context.Context, tx *gorm.DB, id, userID, productID, transactionID snowflake.ID, now time.Time) (bool, error) {
	res := tx.WithContext(ctx).Exec(
		`INSERT INTO user_products (id, user_id, product_id, transaction_id, purchased_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, product_id) DO NOTHING`,
		id,
		userID,
		productID,
		nullableID(transactionID),
		now,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) InsertEventRSVP(ctx context.Context, tx *gorm.DB, id, eventID, userID, transactionID snowflake.ID, now time.Time) (bool, error) {
	res := tx.WithContext(ctx).Exec(
		`INSERT INTO event_rsvps (id, event_id, user_id, transaction_id, status, is_paid, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (event_id, user_id, transaction_id) DO NOTHING`,
		id,
		eventID,
		userID,
		transactionID,
		domain.RSVPStatusGoing,
		true,
		now,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindLatestSupplierMembership(ctx context.Context, tx *gorm.DB, userID, packageID snowflake.ID) (*domain.SupplierMembership, error) {
	var item domain.SupplierMembership
	err := tx.WithContext(ctx).Raw(
		`SELECT id, user_id, package_id, transaction_id, is_active, start_date, end_date, created_at, updated_at
		 FROM supplier_memberships
		 WHERE user_id = ? AND package_id = ?
		 ORDER BY end_date DESC, id DESC
		 LIMIT 1`,
		userID,
		packageID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) DeactivateSupplierMemberships(ctx context.Context, tx *gorm.DB, userID snowflake.ID, now time.Time) (int64, error) {
	res := tx.WithContext(ctx).Exec(
		`UPDATE supplier_memberships
		 SET is_active = ?, updated_at = ?
		 WHERE user_id = ? AND is_active = ?`,
		false,
		now,
		userID,
		true,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) InsertSupplierMembership(ctx context.Context, tx *gorm.DB, item domain.SupplierMembership) error {
	err := tx.WithContext(ctx).Exec(
		`INSERT INTO supplier_memberships (
			id, user_id, package_id, transaction_id, is_active, start_date, end_date, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID,
		item.UserID,
		item.PackageID,
		item.TransactionID,
		item.IsActive,
		item.StartDate,
		item.EndDate,
		item.CreatedAt,
		item.UpdatedAt,
	).Error
	if db.IsDuplicateKeyErr(err) {
		return domain.ErrConcurrentGrant
	}
	return err
}

func (r *repo) RenewSupplierMembership(ctx context.Context, tx *gorm.DB, id snowflake.ID, endDate time.Time, transactionID snowflake.ID, now time.Time) error {
	return tx.WithContext(ctx).Exec(
		`UPDATE supplier_memberships
		 SET is_active = ?, end_date = ?, transaction_id = ?, updated_at = ?
		 WHERE id = ?`,
		true,
		endDate,
		transactionID,
		now,
		id,
	).Error
}

func nullableID(id snowflake.ID) any {
	if id == 0 {
		return nil
	}
	return id
}
