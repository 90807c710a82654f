package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/smallbiznis/eksporyuk/internal/clock"
	"github.com/smallbiznis/eksporyuk/internal/notification/domain"
	obsmetrics "github.com/smallbiznis/eksporyuk/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidConfig = errors.New("invalid_notification_worker_config")

const maxErrorLength = 512

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Repo       domain.Repository
	Clock      clock.Clock
	Senders    []domain.Sender     `group:"notification_senders"`
	Config     Config              `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

// Worker delivers queued notifications. Several workers may run against the
// same table; the pending to processing update decides who sends a row.
type Worker struct {
	db         *gorm.DB
	log        *zap.Logger
	repo       domain.Repository
	clock      clock.Clock
	cfg        Config
	senders    map[domain.Channel]domain.Sender
	obsMetrics *obsmetrics.Metrics
}

// Stats summarizes one pass.
type Stats struct {
	Released int64
	Claimed  int
	Sent     int
	Retried  int
	Dead     int
}

func New(p Params) (*Worker, error) {
	if p.DB == nil || p.Log == nil || p.Repo == nil {
		return nil, ErrInvalidConfig
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	senders := make(map[domain.Channel]domain.Sender, len(p.Senders))
	for _, sender := range p.Senders {
		if sender == nil {
			continue
		}
		senders[sender.Channel()] = sender
	}
	return &Worker{
		db:         p.DB,
		log:        p.Log.Named("notification.worker"),
		repo:       p.Repo,
		clock:      clk,
		cfg:        p.Config.withDefaults(),
		senders:    senders,
		obsMetrics: p.ObsMetrics,
	}, nil
}

func (w *Worker) RunForever(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
			w.log.Warn("notification pass failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce releases stale claims, then claims and sends one batch of due rows.
// Per-row failures are recorded on the row, not returned.
func (w *Worker) RunOnce(ctx context.Context) (Stats, error) {
	var stats Stats
	now := w.clock.Now()

	released, err := w.repo.ReleaseStale(ctx, w.db, now)
	if err != nil {
		return stats, fmt.Errorf("release stale notifications: %w", err)
	}
	stats.Released = released
	if released > 0 {
		w.log.Warn("released stale notification claims", zap.Int64("count", released))
	}

	due, err := w.repo.ListDue(ctx, w.db, now, w.cfg.BatchSize)
	if err != nil {
		return stats, fmt.Errorf("list due notifications: %w", err)
	}

	for _, record := range due {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		claimed, err := w.repo.Claim(ctx, w.db, record.ID, w.clock.Now(), w.clock.Now().Add(w.cfg.LockWindow))
		if err != nil {
			return stats, fmt.Errorf("claim notification: %w", err)
		}
		if !claimed {
			continue
		}
		stats.Claimed++

		switch w.deliver(ctx, record) {
		case domain.StatusSent:
			stats.Sent++
		case domain.StatusDead:
			stats.Dead++
		default:
			stats.Retried++
		}
	}
	return stats, nil
}

// Drain runs passes until a pass claims nothing. Rows scheduled for a later
// retry are left for the regular loop.
func (w *Worker) Drain(ctx context.Context) (Stats, error) {
	var total Stats
	for {
		stats, err := w.RunOnce(ctx)
		total.Released += stats.Released
		total.Claimed += stats.Claimed
		total.Sent += stats.Sent
		total.Retried += stats.Retried
		total.Dead += stats.Dead
		if err != nil {
			return total, err
		}
		if stats.Claimed == 0 {
			return total, nil
		}
	}
}

func (w *Worker) deliver(ctx context.Context, record domain.OutboxRecord) domain.Status {
	log := w.log.With(
		zap.String("notification_id", record.ID.String()),
		zap.String("kind", string(record.Kind)),
		zap.String("channel", string(record.Channel)),
		zap.String("transaction_id", record.TransactionID.String()),
	)
	attempts := record.Attempts + 1

	err := w.send(ctx, record)
	now := w.clock.Now()
	if err == nil {
		if markErr := w.repo.MarkSent(ctx, w.db, record.ID, now); markErr != nil {
			log.Error("failed to mark notification sent", zap.Error(markErr))
		}
		w.obsMetrics.RecordNotification(ctx, string(record.Channel), "sent")
		return domain.StatusSent
	}

	message := truncate(err.Error())
	if errors.Is(err, domain.ErrPermanent) || errors.Is(err, domain.ErrUnsupportedChannel) || attempts >= w.cfg.MaxAttempts {
		if markErr := w.repo.MarkDead(ctx, w.db, record.ID, attempts, message, now); markErr != nil {
			log.Error("failed to dead-letter notification", zap.Error(markErr))
		}
		log.Error("notification dead-lettered", zap.Int("attempts", attempts), zap.Error(err))
		w.obsMetrics.RecordNotification(ctx, string(record.Channel), "dead")
		return domain.StatusDead
	}

	next := now.Add(w.cfg.backoff(attempts))
	if markErr := w.repo.MarkRetry(ctx, w.db, record.ID, attempts, next, message, now); markErr != nil {
		log.Error("failed to reschedule notification", zap.Error(markErr))
	}
	log.Warn("notification delivery failed, will retry",
		zap.Int("attempts", attempts),
		zap.Time("next_attempt_at", next),
		zap.Error(err),
	)
	w.obsMetrics.RecordNotification(ctx, string(record.Channel), "retry")
	return domain.StatusPending
}

func (w *Worker) send(ctx context.Context, record domain.OutboxRecord) error {
	sender, ok := w.senders[record.Channel]
	if !ok {
		return fmt.Errorf("%w: %q", domain.ErrUnsupportedChannel, record.Channel)
	}

	var payload domain.Payload
	if len(record.Payload) > 0 {
		if err := json.Unmarshal(record.Payload, &payload); err != nil {
			return fmt.Errorf("%w: decode payload: %v", domain.ErrPermanent, err)
		}
	}

	sendCtx, cancel := context.WithTimeout(ctx, w.cfg.SendTimeout)
	defer cancel()
	return sender.Send(sendCtx, domain.Delivery{
		ID:        record.ID,
		Kind:      record.Kind,
		Channel:   record.Channel,
		Recipient: record.Recipient,
		Subject:   record.Subject,
		Template:  payload.Template,
		Data:      payload.Data,
	})
}

// truncate cuts message to at most maxErrorLength bytes on a rune boundary;
// a split UTF-8 sequence would be rejected by PostgreSQL text columns.
func truncate(message string) string {
	if len(message) <= maxErrorLength {
		return message
	}
	cut := maxErrorLength
	for cut > 0 && !utf8.RuneStart(message[cut]) {
		cut--
	}
	return message[:cut]
}
