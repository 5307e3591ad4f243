package service

import (
	"context"
	"errors"

	balancedomain "github.com/smallbiznis/loyalty/internal/balance/domain"
	"github.com/smallbiznis/loyalty/internal/clock"
	ledgerdomain "github.com/smallbiznis/loyalty/internal/ledger/domain"
	"github.com/smallbiznis/loyalty/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	Clock  clock.Clock
	Repo   balancedomain.Repository
	Ledger ledgerdomain.Service
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	clock  clock.Clock
	repo   balancedomain.Repository
	ledger ledgerdomain.Service
}

func New(p Params) balancedomain.Service {
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("balance.service"),
		clock:  p.Clock,
		repo:   p.Repo,
		ledger: p.Ledger,
	}
}

// EnsureRecord creates the user's row if it is missing, seeded from the
// ledger sum so a late-created row starts consistent.
func (s *Service) EnsureRecord(ctx context.Context, tx *gorm.DB, userID string) error {
	userID, err := ledgerdomain.NormalizeUserID(userID)
	if err != nil {
		return err
	}
	conn := s.conn(tx)

	existing, err := s.repo.FindByUserID(ctx, conn, userID)
	if err != nil {
		return db.Classify("balance.ensure", err)
	}
	if existing != nil {
		return nil
	}

	total, err := s.ledger.SumByUser(ctx, conn, userID)
	if err != nil {
		return err
	}
	if err := s.repo.EnsureRecord(ctx, conn, userID, total, s.clock.Now().UTC()); err != nil {
		return db.Classify("balance.ensure", err)
	}
	return nil
}

// Lock takes the row lock on the user's balance. The row must exist.
func (s *Service) Lock(ctx context.Context, tx *gorm.DB, userID string) (balancedomain.Balance, error) {
	userID, err := ledgerdomain.NormalizeUserID(userID)
	if err != nil {
		return balancedomain.Balance{}, err
	}
	item, err := s.repo.LockByUserID(ctx, s.conn(tx), userID)
	if err != nil {
		return balancedomain.Balance{}, db.Classify("balance.lock", err)
	}
	if item == nil {
		return balancedomain.Balance{}, balancedomain.ErrNotFound
	}
	return *item, nil
}

func (s *Service) Get(ctx context.Context, tx *gorm.DB, userID string) (*balancedomain.Balance, error) {
	userID, err := ledgerdomain.NormalizeUserID(userID)
	if err != nil {
		return nil, err
	}
	item, err := s.repo.FindByUserID(ctx, s.conn(tx), userID)
	if err != nil {
		return nil, db.Classify("balance.get", err)
	}
	return item, nil
}

// ApplyDelta moves the cached balance by delta using compare-and-swap on the
// row version. A result below zero is refused with ErrInsufficientPoints.
// The row must already exist; see EnsureRecord.
func (s *Service) ApplyDelta(ctx context.Context, tx *gorm.DB, userID string, delta int64) (int64, error) {
	userID, err := ledgerdomain.NormalizeUserID(userID)
	if err != nil {
		return 0, err
	}
	conn := s.conn(tx)

	for attempt := 1; attempt <= balancedomain.MaxApplyAttempts; attempt++ {
		current, err := s.repo.FindByUserID(ctx, conn, userID)
		if err != nil {
			return 0, db.Classify("balance.apply_delta", err)
		}
		if current == nil {
			return 0, balancedomain.ErrNotFound
		}
		if current.Points+delta < 0 {
			return current.Points, balancedomain.ErrInsufficientPoints
		}
		if delta == 0 {
			return current.Points, nil
		}

		affected, err := s.repo.CompareAndSwap(ctx, conn, userID, current.Version, delta, s.clock.Now().UTC())
		if err != nil {
			return 0, db.Classify("balance.apply_delta", err)
		}
		if affected == 1 {
			return current.Points + delta, nil
		}
		s.log.Debug("balance version moved, retrying",
			zap.Int("attempt", attempt),
			zap.Int64("version", current.Version),
		)
	}
	return 0, balancedomain.ErrConcurrencyConflict
}

// Reconcile recomputes the cached balance from the ledger in its own
// transaction and overwrites it.
func (s *Service) Reconcile(ctx context.Context, userID string) (balancedomain.ReconcileResult, error) {
	userID, err := ledgerdomain.NormalizeUserID(userID)
	if err != nil {
		return balancedomain.ReconcileResult{}, err
	}

	var result balancedomain.ReconcileResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now().UTC()
		if err := s.repo.EnsureRecord(ctx, tx, userID, 0, now); err != nil {
			return err
		}
		current, err := s.repo.LockByUserID(ctx, tx, userID)
		if err != nil {
			return err
		}
		if current == nil {
			return balancedomain.ErrNotFound
		}

		total, err := s.ledger.SumByUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		if total < 0 {
			s.log.Error("ledger sum is negative", zap.Int64("ledger", total))
		}

		result.Previous = current.Points
		result.Repaired = current.Points != total
		if err := s.repo.Overwrite(ctx, tx, userID, total, now); err != nil {
			return err
		}
		result.Balance = balancedomain.Balance{
			UserID:    userID,
			Points:    total,
			Version:   current.Version + 1,
			UpdatedAt: now,
		}
		return nil
	})
	if err != nil {
		return balancedomain.ReconcileResult{}, txErr("balance.reconcile", err)
	}

	if result.Repaired {
		s.log.Warn("balance drift repaired",
			zap.Int64("previous", result.Previous),
			zap.Int64("points", result.Balance.Points),
		)
	}
	return result, nil
}

func (s *Service) Verify(ctx context.Context, userID string) (balancedomain.Verification, error) {
	userID, err := ledgerdomain.NormalizeUserID(userID)
	if err != nil {
		return balancedomain.Verification{}, err
	}

	out := balancedomain.Verification{UserID: userID}
	item, err := s.repo.FindByUserID(ctx, s.db, userID)
	if err != nil {
		return balancedomain.Verification{}, db.Classify("balance.verify", err)
	}
	if item != nil {
		out.HasRecord = true
		out.Cached = item.Points
	}

	total, err := s.ledger.SumByUser(ctx, nil, userID)
	if err != nil {
		return balancedomain.Verification{}, err
	}
	out.Ledger = total
	out.Drift = out.Cached - out.Ledger
	return out, nil
}

// FindDrifted lists users whose cached value disagrees with the ledger,
// including users with entries but no cached row.
func (s *Service) FindDrifted(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	drifted, err := s.repo.ListDrifted(ctx, s.db, limit)
	if err != nil {
		return nil, db.Classify("balance.find_drifted", err)
	}
	if len(drifted) >= limit {
		return drifted, nil
	}

	missing, err := s.repo.ListMissing(ctx, s.db, limit-len(drifted))
	if err != nil {
		return nil, db.Classify("balance.find_drifted", err)
	}
	return append(drifted, missing...), nil
}

func (s *Service) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return s.db
}

func txErr(op string, err error) error {
	switch {
	case errors.Is(err, balancedomain.ErrNotFound),
		errors.Is(err, balancedomain.ErrInsufficientPoints),
		errors.Is(err, ledgerdomain.ErrInvalidUserID):
		return err
	}
	return db.Classify(op, err)
}
