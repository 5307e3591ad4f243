package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	balancedomain "github.com/smallbiznis/loyalty/internal/balance/domain"
	"github.com/smallbiznis/loyalty/internal/claim/domain"
	"github.com/smallbiznis/loyalty/internal/clock"
	"github.com/smallbiznis/loyalty/internal/config"
	ledgerdomain "github.com/smallbiznis/loyalty/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/loyalty/internal/observability/metrics"
	rewarddomain "github.com/smallbiznis/loyalty/internal/reward/domain"
	"github.com/smallbiznis/loyalty/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Config     *config.LoyaltyConfigHolder
	Repo       domain.Repository
	Limiter    domain.Limiter
	Ledger     ledgerdomain.Service
	Balance    balancedomain.Service
	Rewards    rewarddomain.Service
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	config     *config.LoyaltyConfigHolder
	repo       domain.Repository
	limiter    domain.Limiter
	ledger     ledgerdomain.Service
	balance    balancedomain.Service
	rewards    rewarddomain.Service
	obsMetrics *obsmetrics.Metrics

	newCode func(prefix string) (string, error)
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("claim.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		config:     p.Config,
		repo:       p.Repo,
		limiter:    p.Limiter,
		ledger:     p.Ledger,
		balance:    p.Balance,
		rewards:    p.Rewards,
		obsMetrics: p.ObsMetrics,
		newCode:    GenerateCode,
	}
}

// Claim validates, debits and issues a redemption code in one transaction.
// Any failure leaves no trace: no ledger entry, no balance change, no code.
func (s *Service) Claim(ctx context.Context, req domain.ClaimRequest) (domain.ClaimResult, error) {
	userID, err := ledgerdomain.NormalizeUserID(req.UserID)
	if err != nil {
		return domain.ClaimResult{}, err
	}
	if req.RewardID == 0 {
		return domain.ClaimResult{}, rewarddomain.ErrInvalidID
	}

	log := s.log.With(zap.String("reward_id", req.RewardID.String()))
	log.Debug("claim state", zap.String("state", string(domain.StateRequested)))

	cfg := s.config.Get()
	var (
		result     domain.ClaimResult
		rewardType rewarddomain.RewardType
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.balance.EnsureRecord(ctx, tx, userID); err != nil {
			return err
		}
		current, err := s.balance.Lock(ctx, tx, userID)
		if err != nil {
			return err
		}

		now := s.clock.Now().UTC()
		reward, err := s.rewards.Get(ctx, tx, req.RewardID)
		if err != nil {
			return err
		}
		rewardType = reward.Type
		if reward.ExpiredAt(now) {
			return domain.ErrRewardExpired
		}

		used, err := s.limiter.ClaimsToday(ctx, tx, userID)
		if err != nil {
			return err
		}
		if used >= cfg.Claims.DailyLimit {
			return domain.ErrDailyLimitExceeded
		}

		cost := reward.PointsRequired
		if cost > 0 && current.Points < cost {
			return domain.ErrInsufficientPoints
		}
		log.Debug("claim state", zap.String("state", string(domain.StateValidated)))

		if _, err := s.ledger.Append(ctx, tx, ledgerdomain.AppendRequest{
			UserID:      userID,
			PointsDelta: -cost,
			Kind:        ledgerdomain.KindRedeem,
			Description: "Redeemed " + reward.Name,
			RewardID:    reward.ID,
		}); err != nil {
			return err
		}
		balance := current.Points
		if cost > 0 {
			balance, err = s.balance.ApplyDelta(ctx, tx, userID, -cost)
			if err != nil {
				return err
			}
		}
		log.Debug("claim state", zap.String("state", string(domain.StateDebited)), zap.Int64("points_spent", cost))

		code, err := s.issueCode(ctx, tx, cfg.Claims.CodePrefix)
		if err != nil {
			return err
		}
		claim := domain.ClaimedReward{
			ID:             s.genID.Generate(),
			UserID:         userID,
			RewardID:       reward.ID,
			ClaimedAt:      now,
			RedemptionCode: code,
		}
		if err := s.repo.Insert(ctx, tx, &claim); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return fmt.Errorf("redemption code collision: %w", domain.ErrConcurrencyConflict)
			}
			return err
		}

		result = domain.ClaimResult{
			Success:        true,
			RedemptionCode: code,
			ClaimID:        claim.ID,
			PointsSpent:    cost,
			Balance:        balance,
		}
		return nil
	})
	if err != nil {
		err = txErr("claim.claim", err)
		log.Info("claim state",
			zap.String("state", string(domain.StateRejected)),
			zap.String("reason", rejectReason(err)),
		)
		s.obsMetrics.RecordClaim(ctx, rejectReason(err), string(rewardType))
		return domain.ClaimResult{}, err
	}

	log.Info("claim state",
		zap.String("state", string(domain.StateIssued)),
		zap.String("claim_id", result.ClaimID.String()),
		zap.Int64("points_spent", result.PointsSpent),
	)
	s.obsMetrics.RecordClaim(ctx, string(domain.StateIssued), string(rewardType))
	s.obsMetrics.RecordLedgerEntry(ctx, string(ledgerdomain.KindRedeem), result.PointsSpent)
	return result, nil
}

func (s *Service) issueCode(ctx context.Context, tx *gorm.DB, prefix string) (string, error) {
	for attempt := 0; attempt < domain.MaxCodeAttempts; attempt++ {
		code, err := s.newCode(prefix)
		if err != nil {
			return "", err
		}
		exists, err := s.repo.CodeExists(ctx, tx, code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
	}
	return "", domain.ErrCodeSpaceExhausted
}

func (s *Service) DailyStatus(ctx context.Context, userID string) (domain.DailyStatus, error) {
	return s.limiter.Status(ctx, nil, userID)
}

func (s *Service) ListByUser(ctx context.Context, userID string, limit int) ([]domain.ClaimedReward, error) {
	userID, err := ledgerdomain.NormalizeUserID(userID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	items, err := s.repo.ListByUser(ctx, s.db, userID, limit)
	if err != nil {
		return nil, db.Classify("claim.list", err)
	}
	out := make([]domain.ClaimedReward, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		out = append(out, *item)
	}
	return out, nil
}

func (s *Service) GetByCode(ctx context.Context, code string) (domain.ClaimedReward, error) {
	code = NormalizeCode(code)
	if code == "" {
		return domain.ClaimedReward{}, domain.ErrInvalidCode
	}
	item, err := s.repo.FindByCode(ctx, s.db, code)
	if err != nil {
		return domain.ClaimedReward{}, db.Classify("claim.get_by_code", err)
	}
	if item == nil {
		return domain.ClaimedReward{}, domain.ErrNotFound
	}
	return *item, nil
}

// MarkUsed redeems a code at the point of sale. A code can be used once.
func (s *Service) MarkUsed(ctx context.Context, code string) (domain.ClaimedReward, error) {
	code = NormalizeCode(code)
	if code == "" {
		return domain.ClaimedReward{}, domain.ErrInvalidCode
	}

	var out domain.ClaimedReward
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		affected, err := s.repo.MarkUsed(ctx, tx, code, s.clock.Now().UTC())
		if err != nil {
			return err
		}
		item, err := s.repo.FindByCode(ctx, tx, code)
		if err != nil {
			return err
		}
		if item == nil {
			return domain.ErrNotFound
		}
		if affected == 0 {
			return domain.ErrAlreadyUsed
		}
		out = *item
		return nil
	})
	if err != nil {
		return domain.ClaimedReward{}, txErr("claim.mark_used", err)
	}

	s.log.Info("redemption code used", zap.String("claim_id", out.ID.String()))
	return out, nil
}

var passthrough = []error{
	ledgerdomain.ErrInvalidUserID,
	ledgerdomain.ErrInvalidPoints,
	rewarddomain.ErrInvalidID,
	domain.ErrRewardNotFound,
	domain.ErrRewardExpired,
	domain.ErrDailyLimitExceeded,
	domain.ErrInsufficientPoints,
	domain.ErrCodeSpaceExhausted,
	domain.ErrNotFound,
	domain.ErrAlreadyUsed,
	balancedomain.ErrNotFound,
}

func txErr(op string, err error) error {
	for _, known := range passthrough {
		if errors.Is(err, known) {
			return err
		}
	}
	return db.Classify(op, err)
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrRewardNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrRewardExpired):
		return "expired"
	case errors.Is(err, domain.ErrDailyLimitExceeded):
		return "daily_limit_exceeded"
	case errors.Is(err, domain.ErrInsufficientPoints):
		return "insufficient_points"
	case errors.Is(err, domain.ErrConcurrencyConflict):
		return "concurrency_conflict"
	case db.IsStorageError(err):
		return "storage_error"
	default:
		return "rejected"
	}
}
