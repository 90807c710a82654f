// Package recovery re-runs fan-out for transactions that settled but never
// finished fulfillment, e.g. because the process died mid-plan.
package recovery

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/eksporyuk/internal/config"
	paymentdomain "github.com/smallbiznis/eksporyuk/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("invalid_recovery_config")

type Config struct {
	Interval  time.Duration
	BatchSize int
	Timeout   time.Duration
}

func DefaultConfig() Config {
	return Config{
		Interval:  time.Minute,
		BatchSize: 25,
		Timeout:   2 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Interval <= 0 {
		c.Interval = def.Interval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	return c
}

// Source is the slice of the payment service the sweeper needs.
type Source interface {
	ListUnfulfilled(ctx context.Context, limit int) ([]paymentdomain.Transaction, error)
	Replay(ctx context.Context, id snowflake.ID) error
}

type Params struct {
	fx.In

	Log    *zap.Logger
	Cfg    config.Config
	Source Source
}

type Sweeper struct {
	log    *zap.Logger
	cfg    Config
	source Source
}

func NewSweeper(p Params) (*Sweeper, error) {
	if p.Log == nil || p.Source == nil {
		return nil, ErrInvalidConfig
	}
	return &Sweeper{
		log: p.Log.Named("fulfillment.recovery"),
		cfg: Config{
			Interval:  p.Cfg.Fulfillment.SweepInterval,
			BatchSize: p.Cfg.Fulfillment.SweepBatchSize,
			Timeout:   p.Cfg.Fulfillment.TaskTimeout * 8,
		}.withDefaults(),
		source: p.Source,
	}, nil
}

func (s *Sweeper) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
				s.log.Warn("recovery sweep failed", zap.Error(err))
			}
		}
	}
}

// RunOnce replays one batch and returns how many transactions it picked up.
// Replay failures are logged per transaction; only listing errors return.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	pending, err := s.source.ListUnfulfilled(ctx, s.cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	for _, txn := range pending {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		log := s.log.With(
			zap.String("transaction_id", txn.ID.String()),
			zap.String("external_id", txn.ExternalID),
		)
		log.Warn("resuming unfinished fulfillment")
		if err := s.source.Replay(ctx, txn.ID); err != nil {
			log.Error("recovery replay finished with failures", zap.Error(err))
		}
	}
	return len(pending), nil
}
