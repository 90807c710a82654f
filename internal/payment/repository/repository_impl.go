package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/eksporyuk/internal/payment/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const transactionColumns = `id, external_id, user_id, product_type, amount, status,
	COALESCE(payment_method, '') AS payment_method,
	COALESCE(provider_payment_id, '') AS provider_payment_id,
	paid_at,
	COALESCE(failure_reason, '') AS failure_reason,
	metadata, payment_details,
	COALESCE(customer_name, '') AS customer_name,
	COALESCE(customer_email, '') AS customer_email,
	COALESCE(customer_whatsapp, '') AS customer_whatsapp,
	fulfilled_at, created_at, updated_at`

func (r *repo) FindTransactionByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Transaction, error) {
	var item domain.Transaction
	err := db.WithContext(ctx).Raw(
		`SELECT `+transactionColumns+`
		 FROM transactions
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

func (r *repo) FindTransactionByExternalID(ctx context.Context, db *gorm.DB, externalID string) (*domain.Transaction, error) {
	var item domain.Transaction
	err := db.WithContext(ctx).Raw(
		`SELECT `+transactionColumns+`
		 FROM transactions
		 WHERE external_id = ?
		 LIMIT 1`,
		externalID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) TransitionFromPending(ctx context.Context, db *gorm.DB, externalID string, fields domain.TransitionFields) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE transactions
		 SET status = ?,
			paid_at = COALESCE(?, paid_at),
			payment_method = COALESCE(NULLIF(?, ''), payment_method),
			provider_payment_id = COALESCE(NULLIF(?, ''), provider_payment_id),
			failure_reason = NULLIF(?, ''),
			payment_details = ?,
			updated_at = ?
		 WHERE external_id = ? AND status = ?`,
		fields.Status,
		fields.PaidAt,
		fields.PaymentMethod,
		fields.ProviderPaymentID,
		fields.FailureReason,
		fields.PaymentDetails,
		fields.UpdatedAt,
		externalID,
		domain.StatusPending,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) MarkFulfilled(ctx context.Context, db *gorm.DB, id snowflake.ID, fulfilledAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE transactions
		 SET fulfilled_at = ?, updated_at = ?
		 WHERE id = ? AND fulfilled_at IS NULL`,
		fulfilledAt,
		fulfilledAt,
		id,
	).Error
}

func (r *repo) ListUnfulfilled(ctx context.Context, db *gorm.DB, settledBefore time.Time, limit int) ([]domain.Transaction, error) {
	if limit <= 0 {
		limit = 25
	}
	var items []domain.Transaction
	err := db.WithContext(ctx).Raw(
		`SELECT `+transactionColumns+`
		 FROM transactions
		 WHERE status = ? AND fulfilled_at IS NULL AND updated_at < ?
		 ORDER BY updated_at ASC
		 LIMIT ?`,
		domain.StatusSuccess,
		settledBefore,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) FindEvent(ctx context.Context, db *gorm.DB, provider string, providerEventID string) (*domain.EventRecord, error) {
	var item domain.EventRecord
	err := db.WithContext(ctx).Raw(
		`SELECT id, provider, provider_event_id, event_type, external_id,
			payload, received_at, processed_at
		 FROM payment_events
		 WHERE provider = ? AND provider_event_id = ?
		 LIMIT 1`,
		provider,
		providerEventID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) InsertEvent(ctx context.Context, db *gorm.DB, event *domain.EventRecord) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO payment_events (
			id, provider, provider_event_id, event_type, external_id,
			payload, received_at, processed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (provider, provider_event_id) DO NOTHING`,
		event.ID,
		event.Provider,
		event.ProviderEventID,
		event.EventType,
		event.ExternalID,
		event.Payload,
		event.ReceivedAt,
		event.ProcessedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payment_events
		 SET processed_at = ?
		 WHERE id = ?`,
		processedAt,
		id,
	).Error
}
