package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/eksporyuk/internal/catalog/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindUser(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.User, error) {
	if id == 0 {
		return nil, nil
	}
	var item domain.User
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, email,
			COALESCE(phone, '') AS phone,
			COALESCE(whatsapp, '') AS whatsapp,
			role, created_at
		 FROM users
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ListUsersByRole(ctx context.Context, db *gorm.DB, role string) ([]domain.User, error) {
	var items []domain.User
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, email,
			COALESCE(phone, '') AS phone,
			COALESCE(whatsapp, '') AS whatsapp,
			role, created_at
		 FROM users
		 WHERE role = ?
		 ORDER BY id ASC`,
		role,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) FindMembership(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Membership, error) {
	if id == 0 {
		return nil, nil
	}
	var item domain.Membership
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, slug, duration, price,
			COALESCE(mailing_list_id, '') AS mailing_list_id,
			auto_add_to_list, is_active
		 FROM memberships
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}

	if item.GroupIDs, err = r.bundle(ctx, db, "membership_groups", "group_id", id); err != nil {
		return nil, err
	}
	if item.CourseIDs, err = r.bundle(ctx, db, "membership_courses", "course_id", id); err != nil {
		return nil, err
	}
	if item.ProductIDs, err = r.bundle(ctx, db, "membership_products", "product_id", id); err != nil {
		return nil, err
	}
	return &item, nil
}

// bundle reads one of the membership join tables. table and column are
// constants from FindMembership.
func (r *repo) bundle(ctx context.Context, db *gorm.DB, table, column string, membershipID snowflake.ID) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).Raw(
		`SELECT `+column+` FROM `+table+`
		 WHERE membership_id = ?
		 ORDER BY `+column+` ASC`,
		membershipID,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repo) FindCourse(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Course, error) {
	if id == 0 {
		return nil, nil
	}
	var item domain.Course
	err := db.WithContext(ctx).Raw(
		`SELECT id, title,
			COALESCE(mentor_id, 0) AS mentor_id,
			COALESCE(mailing_list_id, '') AS mailing_list_id,
			auto_add_to_list
		 FROM courses
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindProduct(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Product, error) {
	if id == 0 {
		return nil, nil
	}
	var item domain.Product
	err := db.WithContext(ctx).Raw(
		`SELECT id, name,
			COALESCE(mailing_list_id, '') AS mailing_list_id,
			auto_add_to_list
		 FROM products
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindEvent(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Event, error) {
	if id == 0 {
		return nil, nil
	}
	var item domain.Event
	err := db.WithContext(ctx).Raw(
		`SELECT id, title,
			COALESCE(creator_id, 0) AS creator_id,
			COALESCE(location, '') AS location,
			starts_at
		 FROM events
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindSupplierPackage(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.SupplierPackage, error) {
	if id == 0 {
		return nil, nil
	}
	var item domain.SupplierPackage
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, tier, duration, price
		 FROM supplier_packages
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}
