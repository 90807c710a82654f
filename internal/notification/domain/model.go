package domain

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrInvalidMessage     = errors.New("invalid_notification_message")
	ErrUnsupportedChannel = errors.New("unsupported_notification_channel")
	// ErrPermanent marks a delivery failure that retrying cannot fix, such
	// as a rejected recipient. Senders wrap it; the worker dead-letters.
	ErrPermanent = errors.New("permanent_delivery_failure")
)

type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelWhatsapp Channel = "whatsapp"
	ChannelPush     Channel = "push"
)

// Kind names what happened; together with channel, transaction and
// recipient it forms the dedupe key.
type Kind string

const (
	KindPaymentSuccess   Kind = "payment_success"
	KindCourseEnrolled   Kind = "course_enrolled"
	KindEventTicket      Kind = "event_ticket"
	KindTicketSold       Kind = "ticket_sold"
	KindCommissionEarned Kind = "commission_earned"
	KindCreditTopUp      Kind = "credit_topup"
	KindCreditSold       Kind = "credit_sold"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSent       Status = "sent"
	StatusDead       Status = "dead"
)

// Message is what fulfillment handlers publish.
type Message struct {
	Kind          Kind
	Channel       Channel
	Recipient     string
	Subject       string
	Template      string
	Data          map[string]any
	TransactionID snowflake.ID
}

func (m Message) Validate() error {
	if strings.TrimSpace(string(m.Kind)) == "" || strings.TrimSpace(m.Recipient) == "" {
		return ErrInvalidMessage
	}
	switch m.Channel {
	case ChannelEmail, ChannelWhatsapp, ChannelPush:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedChannel, m.Channel)
	}
}

// DedupeKey is <kind>:<channel>:<txn>:<recipient>.
func (m Message) DedupeKey() string {
	return fmt.Sprintf("%s:%s:%d:%s", m.Kind, m.Channel, int64(m.TransactionID), strings.ToLower(strings.TrimSpace(m.Recipient)))
}

// Payload is the JSON stored in notification_outbox.payload.
type Payload struct {
	Template string         `json:"template,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
}

// OutboxRecord is one row of notification_outbox.
type OutboxRecord struct {
	ID            snowflake.ID   `json:"id" gorm:"primaryKey"`
	DedupeKey     string         `json:"dedupe_key"`
	Kind          Kind           `json:"kind"`
	Channel       Channel        `json:"channel"`
	Recipient     string         `json:"recipient"`
	Subject       string         `json:"subject"`
	Payload       datatypes.JSON `json:"payload"`
	TransactionID snowflake.ID   `json:"transaction_id"`
	Status        Status         `json:"status"`
	Attempts      int            `json:"attempts"`
	NextAttemptAt time.Time      `json:"next_attempt_at"`
	LockedUntil   *time.Time     `json:"locked_until"`
	LastError     string         `json:"last_error"`
	SentAt        *time.Time     `json:"sent_at"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

func (OutboxRecord) TableName() string { return "notification_outbox" }

// Delivery is the decoded form handed to a Sender.
type Delivery struct {
	ID        snowflake.ID
	Kind      Kind
	Channel   Channel
	Recipient string
	Subject   string
	Template  string
	Data      map[string]any
}

// Publisher queues a message. It never waits for delivery. The bool is
// false when an identical message was already queued.
type Publisher interface {
	Publish(ctx context.Context, msg Message) (bool, error)
}

// Sender delivers one message over one channel.
type Sender interface {
	Channel() Channel
	Send(ctx context.Context, delivery Delivery) error
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, record *OutboxRecord) (bool, error)
	ListDue(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]OutboxRecord, error)
	Claim(ctx context.Context, db *gorm.DB, id snowflake.ID, now, lockedUntil time.Time) (bool, error)
	MarkSent(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) error
	MarkRetry(ctx context.Context, db *gorm.DB, id snowflake.ID, attempts int, nextAttemptAt time.Time, lastError string, now time.Time) error
	MarkDead(ctx context.Context, db *gorm.DB, id snowflake.ID, attempts int, lastError string, now time.Time) error
	ReleaseStale(ctx context.Context, db *gorm.DB, now time.Time) (int64, error)
	CountByStatus(ctx context.Context, db *gorm.DB) (map[Status]int64, error)
}

// FormatAmount renders rupiah with dot thousand separators, e.g. 1.500.000.
func FormatAmount(amount int64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	digits := strconv.FormatInt(amount, 10)
	var b strings.Builder
	b.WriteString(sign)
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	return b.String()
}
