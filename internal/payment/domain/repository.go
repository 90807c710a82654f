package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// TransitionFields are written together with the status compare-and-set.
type TransitionFields struct {
	Status            Status
	PaidAt            *time.Time
	PaymentMethod     string
	ProviderPaymentID string
	FailureReason     string
	PaymentDetails    datatypes.JSON
	UpdatedAt         time.Time
}

type Repository interface {
	FindTransactionByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Transaction, error)
	FindTransactionByExternalID(ctx context.Context, db *gorm.DB, externalID string) (*Transaction, error)
	// TransitionFromPending updates the row only while it is still PENDING
	// and reports whether this call performed the transition.
	TransitionFromPending(ctx context.Context, db *gorm.DB, externalID string, fields TransitionFields) (bool, error)
	MarkFulfilled(ctx context.Context, db *gorm.DB, id snowflake.ID, fulfilledAt time.Time) error
	ListUnfulfilled(ctx context.Context, db *gorm.DB, settledBefore time.Time, limit int) ([]Transaction, error)

	FindEvent(ctx context.Context, db *gorm.DB, provider string, providerEventID string) (*EventRecord, error)
	InsertEvent(ctx context.Context, db *gorm.DB, event *EventRecord) (bool, error)
	MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error
}
