package service

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/eksporyuk/internal/clock"
	"github.com/smallbiznis/eksporyuk/internal/notification/domain"
	obslogger "github.com/smallbiznis/eksporyuk/internal/observability/logger"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  domain.Repository
	clock clock.Clock
}

func NewService(p Params) *Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("notification.publisher"),
		genID: p.GenID,
		repo:  p.Repo,
		clock: clk,
	}
}

// Publish writes msg to the outbox. A message whose dedupe key was already
// queued is dropped and reported as false.
func (s *Service) Publish(ctx context.Context, msg domain.Message) (bool, error) {
	msg.Recipient = strings.TrimSpace(msg.Recipient)
	if err := msg.Validate(); err != nil {
		return false, err
	}

	payload, err := json.Marshal(domain.Payload{Template: msg.Template, Data: msg.Data})
	if err != nil {
		return false, err
	}

	now := s.clock.Now()
	record := &domain.OutboxRecord{
		ID:            s.genID.Generate(),
		DedupeKey:     msg.DedupeKey(),
		Kind:          msg.Kind,
		Channel:       msg.Channel,
		Recipient:     msg.Recipient,
		Subject:       msg.Subject,
		Payload:       datatypes.JSON(payload),
		TransactionID: msg.TransactionID,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	inserted, err := s.repo.Insert(ctx, s.db, record)
	if err != nil {
		return false, err
	}
	if !inserted {
		obslogger.WithContext(ctx, s.log).Debug("notification already queued",
			zap.String("dedupe_key", record.DedupeKey),
		)
	}
	return inserted, nil
}

// Stats returns outbox row counts by status.
func (s *Service) Stats(ctx context.Context) (map[domain.Status]int64, error) {
	return s.repo.CountByStatus(ctx, s.db)
}

var _ domain.Publisher = (*Service)(nil)
