package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrUnknownDuration = errors.New("unknown_duration")
	ErrInvalidGrant    = errors.New("invalid_grant")
	// ErrConcurrentGrant means another purchase created the same entitlement
	// row first. The transaction rolls back and a replay renews instead.
	ErrConcurrentGrant = errors.New("concurrent_grant")
)

// GrantType names the per-transaction grant recorded in entitlement_grants.
type GrantType string

const (
	GrantMembership GrantType = "membership"
	GrantCourse     GrantType = "course"
	GrantProduct    GrantType = "product"
	GrantEvent      GrantType = "event"
	GrantSupplier   GrantType = "supplier"
)

const (
	MembershipStatusActive = "ACTIVE"
	RSVPStatusGoing        = "GOING"
	GroupRoleMember        = "MEMBER"
)

// MembershipExpiry adds a membership duration to from.
func MembershipExpiry(duration string, from time.Time) (time.Time, error) {
	switch strings.ToUpper(strings.TrimSpace(duration)) {
	case "ONE_MONTH":
		return from.AddDate(0, 1, 0), nil
	case "THREE_MONTHS":
		return from.AddDate(0, 3, 0), nil
	case "SIX_MONTHS":
		return from.AddDate(0, 6, 0), nil
	case "TWELVE_MONTHS":
		return from.AddDate(1, 0, 0), nil
	case "LIFETIME":
		return from.AddDate(100, 0, 0), nil
	default:
		return time.Time{}, fmt.Errorf("%w: %q", ErrUnknownDuration, duration)
	}
}

// SupplierExpiry adds a supplier package duration to from.
func SupplierExpiry(duration string, from time.Time) (time.Time, error) {
	switch strings.ToUpper(strings.TrimSpace(duration)) {
	case "MONTHLY":
		return from.AddDate(0, 1, 0), nil
	case "YEARLY":
		return from.AddDate(1, 0, 0), nil
	case "LIFETIME":
		return from.AddDate(100, 0, 0), nil
	default:
		return time.Time{}, fmt.Errorf("%w: %q", ErrUnknownDuration, duration)
	}
}

// RenewalBase is the later of now and the current end, so renewing early
// never loses paid time.
func RenewalBase(now time.Time, currentEnd *time.Time) time.Time {
	if currentEnd != nil && currentEnd.After(now) {
		return *currentEnd
	}
	return now
}

type Grant struct {
	ID            snowflake.ID
	TransactionID snowflake.ID
	GrantType     GrantType
	UserID        snowflake.ID
	CreatedAt     time.Time
}

type UserMembership struct {
	ID            snowflake.ID `json:"id"`
	UserID        snowflake.ID `json:"user_id"`
	MembershipID  snowflake.ID `json:"membership_id"`
	Status        string       `json:"status"`
	IsActive      bool         `json:"is_active"`
	StartDate     time.Time    `json:"start_date"`
	EndDate       time.Time    `json:"end_date"`
	TransactionID snowflake.ID `json:"transaction_id"`
	ActivatedAt   *time.Time   `json:"activated_at"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

type SupplierMembership struct {
	ID            snowflake.ID `json:"id"`
	UserID        snowflake.ID `json:"user_id"`
	PackageID     snowflake.ID `json:"package_id"`
	TransactionID snowflake.ID `json:"transaction_id"`
	IsActive      bool         `json:"is_active"`
	StartDate     time.Time    `json:"start_date"`
	EndDate       time.Time    `json:"end_date"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// Repository methods take the caller's transaction. Insert methods report
// whether a row was written; an existing unique key is not an error.
type Repository interface {
	InsertGrant(ctx context.Context, tx *gorm.DB, grant Grant) (bool, error)

	FindUserMembership(ctx context.Context, tx *gorm.DB, userID, membershipID snowflake.ID) (*UserMembership, error)
	InsertUserMembership(ctx context.Context, tx *gorm.DB, item UserMembership) error
	RenewUserMembership(ctx context.Context, tx *gorm.DB, id snowflake.ID, endDate time.Time, transactionID snowflake.ID, now time.Time) error

	InsertGroupMember(ctx context.Context, tx *gorm.DB, id, groupID, userID snowflake.ID, now time.Time) (bool, error)
	InsertCourseEnrollment(ctx context.Context, tx *gorm.DB, id, userID, courseID, transactionID snowflake.ID, now time.Time) (bool, error)
	InsertUserProduct(ctx context.Context, tx *gorm.DB, id, userID, productID, transactionID snowflake.ID, now time.Time) (bool, error)
	InsertEventRSVP(ctx context.Context, tx *gorm.DB, id, eventID, userID, transactionID snowflake.ID, now time.Time) (bool, error)

	FindLatestSupplierMembership(ctx context.Context, tx *gorm.DB, userID, packageID snowflake.ID) (*SupplierMembership, error)
	DeactivateSupplierMemberships(ctx context.Context, tx *gorm.DB, userID snowflake.ID, now time.Time) (int64, error)
	InsertSupplierMembership(ctx context.Context, tx *gorm.DB, item SupplierMembership) error
	RenewSupplierMembership(ctx context.Context, tx *gorm.DB, id snowflake.ID, endDate time.Time, transactionID snowflake.ID, now time.Time) error
}
