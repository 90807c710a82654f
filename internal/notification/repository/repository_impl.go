package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/eksporyuk/internal/notification/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, record *domain.OutboxRecord) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO notification_outbox (
			id, dedupe_key, kind, channel, recipient, subject, payload, transaction_id,
			status, attempts, next_attempt_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?)
		ON CONFLICT (dedupe_key) DO NOTHING`,
		record.ID,
		record.DedupeKey,
		record.Kind,
		record.Channel,
		record.Recipient,
		record.Subject,
		record.Payload,
		nullableID(record.TransactionID),
		domain.StatusPending,
		record.NextAttemptAt,
		record.CreatedAt,
		record.UpdatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) ListDue(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]domain.OutboxRecord, error) {
	var items []domain.OutboxRecord
	err := db.WithContext(ctx).Raw(
		`SELECT id, dedupe_key, kind, channel, recipient,
			COALESCE(subject, '') AS subject,
			payload,
			COALESCE(transaction_id, 0) AS transaction_id,
			status, attempts, next_attempt_at, locked_until,
			COALESCE(last_error, '') AS last_error,
			sent_at, created_at, updated_at
		 FROM notification_outbox
		 WHERE status = ? AND next_attempt_at <= ?
		 ORDER BY next_attempt_at ASC, id ASC
		 LIMIT ?`,
		domain.StatusPending,
		now,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// Claim moves a pending row to processing. Only one worker wins.
func (r *repo) Claim(ctx context.Context, db *gorm.DB, id snowflake.ID, now, lockedUntil time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE notification_outbox
		 SET status = ?, locked_until = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.StatusProcessing,
		lockedUntil,
		now,
		id,
		domain.StatusPending,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) MarkSent(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE notification_outbox
		 SET status = ?, attempts = attempts + 1, sent_at = ?, locked_until = NULL, last_error = NULL, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.StatusSent,
		now,
		now,
		id,
		domain.StatusProcessing,
	).Error
}

func (r *repo) MarkRetry(ctx context.Context, db *gorm.DB, id snowflake.ID, attempts int, nextAttemptAt time.Time, lastError string, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE notification_outbox
		 SET status = ?, attempts = ?, next_attempt_at = ?, locked_until = NULL, last_error = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.StatusPending,
		attempts,
		nextAttemptAt,
		lastError,
		now,
		id,
		domain.StatusProcessing,
	).Error
}

func (r *repo) MarkDead(ctx context.Context, db *gorm.DB, id snowflake.ID, attempts int, lastError string, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE notification_outbox
		 SET status = ?, attempts = ?, locked_until = NULL, last_error = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.StatusDead,
		attempts,
		lastError,
		now,
		id,
		domain.StatusProcessing,
	).Error
}

// ReleaseStale returns processing rows whose lock expired to pending. The
// worker that claimed them is assumed dead.
func (r *repo) ReleaseStale(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE notification_outbox
		 SET status = ?, locked_until = NULL, updated_at = ?
		 WHERE status = ? AND locked_until < ?`,
		domain.StatusPending,
		now,
		domain.StatusProcessing,
		now,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) CountByStatus(ctx context.Context, db *gorm.DB) (map[domain.Status]int64, error) {
	var rows []struct {
		Status domain.Status
		Total  int64
	}
	err := db.WithContext(ctx).Raw(
		`SELECT status, COUNT(*) AS total
		 FROM notification_outbox
		 GROUP BY status`,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[domain.Status]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Total
	}
	return counts, nil
}

func nullableID(id snowflake.ID) any {
	if id == 0 {
		return nil
	}
	return id
}
