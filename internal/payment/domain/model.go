package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type ProductType string

const (
	ProductTypeMembership         ProductType = "MEMBERSHIP"
	ProductTypeCourse             ProductType = "COURSE"
	ProductTypeProduct            ProductType = "PRODUCT"
	ProductTypeEvent              ProductType = "EVENT"
	ProductTypeSupplierMembership ProductType = "SUPPLIER_MEMBERSHIP"
	ProductTypeCreditTopUp        ProductType = "CREDIT_TOPUP"
)

type Status string

const (
	StatusPending Status = "PENDING"
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
	StatusExpired Status = "EXPIRED"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusExpired:
		return true
	default:
		return false
	}
}

// Transaction is one purchase attempt, created by checkout and mutated only
// by reconciliation.
type Transaction struct {
	ID                snowflake.ID   `json:"id" gorm:"primaryKey"`
	ExternalID        string         `json:"external_id" gorm:"type:text;not null;uniqueIndex"`
	UserID            snowflake.ID   `json:"user_id" gorm:"not null"`
	ProductType       ProductType    `json:"product_type" gorm:"type:text;not null"`
	Amount            int64          `json:"amount" gorm:"not null"`
	Status            Status         `json:"status" gorm:"type:text;not null"`
	PaymentMethod     string         `json:"payment_method" gorm:"type:text"`
	ProviderPaymentID string         `json:"provider_payment_id" gorm:"type:text"`
	PaidAt            *time.Time     `json:"paid_at"`
	FailureReason     string         `json:"failure_reason" gorm:"type:text"`
	Metadata          datatypes.JSON `json:"metadata" gorm:"type:jsonb"`
	PaymentDetails    datatypes.JSON `json:"payment_details" gorm:"type:jsonb"`
	CustomerName      string         `json:"customer_name" gorm:"type:text"`
	CustomerEmail     string         `json:"customer_email" gorm:"type:text"`
	CustomerWhatsapp  string         `json:"customer_whatsapp" gorm:"type:text"`
	FulfilledAt       *time.Time     `json:"fulfilled_at"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

func (Transaction) TableName() string { return "transactions" }

// EventRecord is the inbox row for a raw provider callback.
type EventRecord struct {
	ID              snowflake.ID   `json:"id" gorm:"primaryKey"`
	Provider        string         `json:"provider" gorm:"type:text;not null"`
	ProviderEventID string         `json:"provider_event_id" gorm:"type:text;not null"`
	EventType       string         `json:"event_type" gorm:"type:text;not null"`
	ExternalID      string         `json:"external_id" gorm:"type:text;not null"`
	Payload         datatypes.JSON `json:"payload" gorm:"type:jsonb;not null"`
	ReceivedAt      time.Time      `json:"received_at" gorm:"not null"`
	ProcessedAt     *time.Time     `json:"processed_at"`
}

func (EventRecord) TableName() string { return "payment_events" }

// EventKind is the internal classification of a provider callback.
type EventKind string

const (
	EventKindSettled EventKind = "settled"
	EventKindExpired EventKind = "expired"
	EventKindFailed  EventKind = "failed"
)

// TargetStatus maps an event kind to the transaction status it drives.
func (k EventKind) TargetStatus() Status {
	switch k {
	case EventKindSettled:
		return StatusSuccess
	case EventKindExpired:
		return StatusExpired
	default:
		return StatusFailed
	}
}

// PaymentEvent is the canonical payment event parsed by adapters.
type PaymentEvent struct {
	Provider          string
	ProviderEventID   string
	ProviderPaymentID string
	// Type is the provider discriminator, e.g. invoice.paid.
	Type          string
	Kind          EventKind
	ExternalID    string
	Amount        int64
	PaymentMethod string
	Channel       string
	BankCode      string
	FailureReason string
	OccurredAt    time.Time
	RawPayload    []byte
}

// PaymentDetails is written to transactions.payment_details on transition.
type PaymentDetails struct {
	Provider          string `json:"provider"`
	EventType         string `json:"event_type"`
	ProviderEventID   string `json:"provider_event_id,omitempty"`
	ProviderPaymentID string `json:"provider_payment_id,omitempty"`
	PaymentMethod     string `json:"payment_method,omitempty"`
	Channel           string `json:"channel,omitempty"`
	BankCode          string `json:"bank_code,omitempty"`
	PaidAmount        int64  `json:"paid_amount,omitempty"`
	FailureReason     string `json:"failure_reason,omitempty"`
}

type ReconcileOutcome string

const (
	OutcomeNotFound       ReconcileOutcome = "not_found"
	OutcomeAlreadySettled ReconcileOutcome = "already_settled"
	OutcomeNewlySettled   ReconcileOutcome = "newly_settled"
	OutcomeNewlyFailed    ReconcileOutcome = "newly_failed"
	// OutcomeResumed marks a settled transaction whose fan-out never
	// completed and is old enough to be picked up again.
	OutcomeResumed ReconcileOutcome = "resumed"
)

type ReconcileRequest struct {
	ExternalID string
	Status     Status
	PaidAt     time.Time
	Details    PaymentDetails
}

type ReconcileResult struct {
	Outcome     ReconcileOutcome
	Transaction *Transaction
}

// ShouldFulfill reports whether the caller owns fan-out for this result.
func (r ReconcileResult) ShouldFulfill() bool {
	return r.Transaction != nil && (r.Outcome == OutcomeNewlySettled || r.Outcome == OutcomeResumed)
}
