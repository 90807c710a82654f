package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrUserNotFound            = errors.New("user_not_found")
	ErrMembershipNotFound      = errors.New("membership_not_found")
	ErrCourseNotFound          = errors.New("course_not_found")
	ErrProductNotFound         = errors.New("product_not_found")
	ErrEventNotFound           = errors.New("event_not_found")
	ErrSupplierPackageNotFound = errors.New("supplier_package_not_found")
)

const RoleAdmin = "ADMIN"

type User struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	Name      string       `json:"name"`
	Email     string       `json:"email"`
	Phone     string       `json:"phone"`
	Whatsapp  string       `json:"whatsapp"`
	Role      string       `json:"role"`
	CreatedAt time.Time    `json:"created_at"`
}

// ContactPhone prefers the WhatsApp number over the account phone.
func (u User) ContactPhone() string {
	if u.Whatsapp != "" {
		return u.Whatsapp
	}
	return u.Phone
}

// MailingList is the optional list a buyer is subscribed to after purchase.
type MailingList struct {
	ID      string
	AutoAdd bool
}

// Enabled reports whether buyers should be subscribed.
func (l MailingList) Enabled() bool { return l.AutoAdd && l.ID != "" }

type Membership struct {
	ID            snowflake.ID `json:"id"`
	Name          string       `json:"name"`
	Slug          string       `json:"slug"`
	Duration      string       `json:"duration"`
	Price         int64        `json:"price"`
	MailingListID string       `json:"mailing_list_id"`
	AutoAddToList bool         `json:"auto_add_to_list"`
	IsActive      bool         `json:"is_active"`

	// Bundled entitlements, joined in this order on activation.
	GroupIDs   []snowflake.ID `json:"group_ids" gorm:"-"`
	CourseIDs  []snowflake.ID `json:"course_ids" gorm:"-"`
	ProductIDs []snowflake.ID `json:"product_ids" gorm:"-"`
}

func (m Membership) MailingList() MailingList {
	return MailingList{ID: m.MailingListID, AutoAdd: m.AutoAddToList}
}

type Course struct {
	ID            snowflake.ID `json:"id"`
	Title         string       `json:"title"`
	MentorID      snowflake.ID `json:"mentor_id"`
	MailingListID string       `json:"mailing_list_id"`
	AutoAddToList bool         `json:"auto_add_to_list"`
}

func (c Course) MailingList() MailingList {
	return MailingList{ID: c.MailingListID, AutoAdd: c.AutoAddToList}
}

type Product struct {
	ID            snowflake.ID `json:"id"`
	Name          string       `json:"name"`
	MailingListID string       `json:"mailing_list_id"`
	AutoAddToList bool         `json:"auto_add_to_list"`
}

func (p Product) MailingList() MailingList {
	return MailingList{ID: p.MailingListID, AutoAdd: p.AutoAddToList}
}

type Event struct {
	ID        snowflake.ID `json:"id"`
	Title     string       `json:"title"`
	CreatorID snowflake.ID `json:"creator_id"`
	Location  string       `json:"location"`
	StartsAt  *time.Time   `json:"starts_at"`
}

type SupplierPackage struct {
	ID       snowflake.ID `json:"id"`
	Name     string       `json:"name"`
	Tier     string       `json:"tier"`
	Duration string       `json:"duration"`
	Price    int64        `json:"price"`
}

// Repository reads the catalog. Lookups return nil, nil when the row is missing.
type Repository interface {
	FindUser(ctx context.Context, db *gorm.DB, id snowflake.ID) (*User, error)
	ListUsersByRole(ctx context.Context, db *gorm.DB, role string) ([]User, error)
	FindMembership(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Membership, error)
	FindCourse(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Course, error)
	FindProduct(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Product, error)
	FindEvent(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Event, error)
	FindSupplierPackage(ctx context.Context, db *gorm.DB, id snowflake.ID) (*SupplierPackage, error)
}
