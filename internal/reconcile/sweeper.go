package reconcile

import (
	"context"
	"errors"
	"time"

	balancedomain "github.com/smallbiznis/loyalty/internal/balance/domain"
	"github.com/smallbiznis/loyalty/internal/clock"
	"github.com/smallbiznis/loyalty/internal/config"
	obsmetrics "github.com/smallbiznis/loyalty/internal/observability/metrics"
	"github.com/smallbiznis/loyalty/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	sweepLockKey     = "loyalty:reconcile:sweep"
	defaultBatchSize = 200
	defaultLockTTL   = 2 * time.Minute
)

var ErrInvalidConfig = errors.New("invalid_reconcile_config")

// Result summarises one sweep pass.
type Result struct {
	Scanned  int
	Repaired int
	Failed   int
	Skipped  bool
}

type Params struct {
	fx.In

	Config     config.Config
	Log        *zap.Logger
	Clock      clock.Clock
	Balance    balancedomain.Service
	Locker     *ratelimit.Locker   `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

// Sweeper periodically repairs cached balances that drifted from the ledger.
type Sweeper struct {
	log      *zap.Logger
	clock    clock.Clock
	balance  balancedomain.Service
	locker   *ratelimit.Locker
	metrics  *obsmetrics.Metrics
	interval time.Duration
	batch    int
	lockTTL  time.Duration
}

func New(p Params) (*Sweeper, error) {
	if p.Log == nil || p.Balance == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	cfg := p.Config.Reconcile
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	lockTTL := cfg.LockTTL
	if lockTTL <= 0 {
		lockTTL = defaultLockTTL
	}
	return &Sweeper{
		log:      p.Log.Named("reconcile.sweeper"),
		clock:    p.Clock,
		balance:  p.Balance,
		locker:   p.Locker,
		metrics:  p.ObsMetrics,
		interval: cfg.Interval,
		batch:    batch,
		lockTTL:  lockTTL,
	}, nil
}

// RunOnce reconciles up to one batch of drifted users. Another instance
// holding the sweep lease makes this a no-op.
func (s *Sweeper) RunOnce(ctx context.Context) (Result, error) {
	var res Result
	ran, err := s.locker.WithLock(ctx, sweepLockKey, s.lockTTL, func(ctx context.Context) error {
		var err error
		res, err = s.sweep(ctx)
		return err
	})
	if err != nil {
		return res, err
	}
	if !ran {
		s.log.Debug("reconcile sweep held elsewhere")
		return Result{Skipped: true}, nil
	}
	return res, nil
}

func (s *Sweeper) sweep(ctx context.Context) (Result, error) {
	start := s.clock.Now()
	users, err := s.balance.FindDrifted(ctx, s.batch)
	if err != nil {
		return Result{}, err
	}

	res := Result{Scanned: len(users)}
	for _, userID := range users {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		out, err := s.balance.Reconcile(ctx, userID)
		if err != nil {
			res.Failed++
			s.log.Warn("reconcile failed", zap.String("user_id", userID), zap.Error(err))
			continue
		}
		if out.Repaired {
			res.Repaired++
			s.metrics.RecordBalanceRepair(ctx, "sweep")
			s.log.Info("balance repaired",
				zap.String("user_id", userID),
				zap.Int64("previous", out.Previous),
				zap.Int64("balance", out.Balance.Points),
			)
		}
	}

	if res.Scanned > 0 {
		s.log.Info("reconcile sweep finished",
			zap.Int("scanned", res.Scanned),
			zap.Int("repaired", res.Repaired),
			zap.Int("failed", res.Failed),
			zap.Duration("elapsed", s.clock.Now().Sub(start)),
		)
	}
	return res, nil
}

func (s *Sweeper) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.log.Warn("reconcile sweep failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
