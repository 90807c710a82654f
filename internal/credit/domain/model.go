package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrInvalidTopUp       = errors.New("invalid_credit_topup")
	ErrInvalidSpend       = errors.New("invalid_credit_spend")
	ErrInsufficientCredit = errors.New("insufficient_credit")
	ErrAccountNotFound    = errors.New("credit_account_not_found")
	ErrDuplicateEntry     = errors.New("duplicate_credit_entry")
)

type EntryType string

const (
	EntryTopUp EntryType = "TOPUP"
	EntryUse   EntryType = "USE"
)

// ReferencePayment marks ledger rows written for a payment transaction.
const ReferencePayment = "PAYMENT"

type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeDuplicate Outcome = "duplicate"
)

// Account is the affiliate's credit balance. Balance always equals the sum
// of TOPUP entries minus the sum of USE entries.
type Account struct {
	ID          snowflake.ID `json:"id"`
	AffiliateID snowflake.ID `json:"affiliate_id"`
	Balance     int64        `json:"balance"`
	TotalTopUp  int64        `json:"total_top_up"`
	TotalUsed   int64        `json:"total_used"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

type Entry struct {
	ID            snowflake.ID `json:"id"`
	CreditID      snowflake.ID `json:"credit_id"`
	AffiliateID   snowflake.ID `json:"affiliate_id"`
	Type          EntryType    `json:"type"`
	Amount        int64        `json:"amount"`
	BalanceBefore int64        `json:"balance_before"`
	BalanceAfter  int64        `json:"balance_after"`
	Description   string       `json:"description"`
	ReferenceType string       `json:"reference_type"`
	ReferenceID   string       `json:"reference_id"`
	CreatedAt     time.Time    `json:"created_at"`
}

type TopUpRequest struct {
	AffiliateID   snowflake.ID
	Credits       int64
	TransactionID snowflake.ID
	// PaymentRef is the provider-facing invoice id, kept for descriptions.
	PaymentRef  string
	Description string
}

type SpendRequest struct {
	AffiliateID   snowflake.ID
	Credits       int64
	ReferenceType string
	ReferenceID   string
	Description   string
}

type Result struct {
	Outcome       Outcome
	BalanceBefore int64
	BalanceAfter  int64
}

type AuditReport struct {
	AffiliateID snowflake.ID
	Balance     int64
	TotalTopUp  int64
	TotalUsed   int64
	LedgerTopUp int64
	LedgerUse   int64
}

// Consistent reports whether the stored balance matches the ledger.
func (r AuditReport) Consistent() bool {
	return r.Balance == r.LedgerTopUp-r.LedgerUse &&
		r.TotalTopUp == r.LedgerTopUp &&
		r.TotalUsed == r.LedgerUse
}

type Repository interface {
	EnsureAccount(ctx context.Context, tx *gorm.DB, id, affiliateID snowflake.ID, now time.Time) (*Account, error)
	FindAccount(ctx context.Context, db *gorm.DB, affiliateID snowflake.ID) (*Account, error)
	FindEntry(ctx context.Context, db *gorm.DB, referenceType, referenceID string, entryType EntryType) (*Entry, error)
	AddBalance(ctx context.Context, tx *gorm.DB, accountID snowflake.ID, credits int64, now time.Time) error
	// SubtractBalance only applies while the balance covers credits and
	// reports whether it did.
	SubtractBalance(ctx context.Context, tx *gorm.DB, accountID snowflake.ID, credits int64, now time.Time) (bool, error)
	InsertEntry(ctx context.Context, tx *gorm.DB, entry Entry) (bool, error)
	SumEntries(ctx context.Context, db *gorm.DB, affiliateID snowflake.ID) (topUp int64, use int64, err error)
}
