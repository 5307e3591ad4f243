package service

import (
	"context"
	"errors"
	"math"
	"strings"

	"github.com/bwmarrin/snowflake"
	balancedomain "github.com/smallbiznis/loyalty/internal/balance/domain"
	claimdomain "github.com/smallbiznis/loyalty/internal/claim/domain"
	"github.com/smallbiznis/loyalty/internal/config"
	ledgerdomain "github.com/smallbiznis/loyalty/internal/ledger/domain"
	"github.com/smallbiznis/loyalty/internal/loyalty/domain"
	obsmetrics "github.com/smallbiznis/loyalty/internal/observability/metrics"
	pendingdomain "github.com/smallbiznis/loyalty/internal/pendingcredit/domain"
	profiledomain "github.com/smallbiznis/loyalty/internal/profile/domain"
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
	Config     *config.LoyaltyConfigHolder
	Ledger     ledgerdomain.Service
	Balance    balancedomain.Service
	Rewards    rewarddomain.Service
	Claims     claimdomain.Service
	Credits    pendingdomain.Service
	Profiles   profiledomain.Service `optional:"true"`
	ObsMetrics *obsmetrics.Metrics   `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	config     *config.LoyaltyConfigHolder
	ledger     ledgerdomain.Service
	balance    balancedomain.Service
	rewards    rewarddomain.Service
	claims     claimdomain.Service
	credits    pendingdomain.Service
	profiles   profiledomain.Service
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("loyalty.service"),
		config:     p.Config,
		ledger:     p.Ledger,
		balance:    p.Balance,
		rewards:    p.Rewards,
		claims:     p.Claims,
		credits:    p.Credits,
		profiles:   p.Profiles,
		obsMetrics: p.ObsMetrics,
	}
}

// OnOrderCompleted credits a known user immediately and defers the credit
// otherwise.
func (s *Service) OnOrderCompleted(ctx context.Context, event domain.OrderCompleted) (domain.OrderCreditResult, error) {
	orderID, err := ledgerdomain.NormalizeOrderID(event.OrderID)
	if err != nil {
		return domain.OrderCreditResult{}, err
	}
	points, err := s.earnedPoints(event)
	if err != nil {
		return domain.OrderCreditResult{}, err
	}

	log := s.log.With(zap.String("order_id", orderID))
	if strings.TrimSpace(event.UserID) == "" {
		_, err := s.credits.Enqueue(ctx, pendingdomain.EnqueueRequest{
			OrderID:  orderID,
			GuestRef: event.GuestRef,
			Points:   points,
		})
		if errors.Is(err, pendingdomain.ErrNothingToCredit) {
			return domain.OrderCreditResult{Outcome: domain.CreditNoop}, nil
		}
		if err != nil {
			return domain.OrderCreditResult{}, err
		}
		return domain.OrderCreditResult{Outcome: domain.CreditDeferred, Points: points}, nil
	}

	outcome, err := s.credits.Apply(ctx, pendingdomain.Credit{
		OrderID: orderID,
		UserID:  event.UserID,
		Points:  points,
	})
	if err != nil {
		return domain.OrderCreditResult{}, err
	}

	result := domain.OrderCreditResult{Points: points}
	switch outcome {
	case pendingdomain.OutcomeApplied:
		result.Outcome = domain.CreditApplied
		s.mirror(ctx, event.UserID)
	case pendingdomain.OutcomeSkipped:
		result.Outcome = domain.CreditSkipped
		log.Info("order already credited")
	default:
		result.Outcome = domain.CreditNoop
	}
	return result, nil
}

// earnedPoints resolves explicit points or derives them from the order
// total with earning.points_per_unit per 100 minor units, rounded down.
func (s *Service) earnedPoints(event domain.OrderCompleted) (int64, error) {
	if event.Points != nil {
		if *event.Points < 0 {
			return 0, ledgerdomain.ErrInvalidPoints
		}
		return *event.Points, nil
	}
	if event.OrderTotal == nil {
		return 0, domain.ErrMissingPoints
	}
	if *event.OrderTotal < 0 {
		return 0, domain.ErrInvalidOrderTotal
	}
	rate := s.config.Get().Earning.PointsPerUnit
	return int64(math.Floor(float64(*event.OrderTotal) * rate / 100)), nil
}

// OnUserAuthenticated hands guest credits over to the user and applies
// everything pending for them.
func (s *Service) OnUserAuthenticated(ctx context.Context, userID string, guestRefs ...string) (domain.AuthenticatedResult, error) {
	userID, err := ledgerdomain.NormalizeUserID(userID)
	if err != nil {
		return domain.AuthenticatedResult{}, err
	}

	bound, err := s.credits.BindGuest(ctx, userID, guestRefs)
	if err != nil {
		return domain.AuthenticatedResult{}, err
	}
	drained, err := s.credits.Drain(ctx, userID)
	if err != nil {
		return domain.AuthenticatedResult{}, err
	}

	balance, err := s.GetBalance(ctx, userID)
	if err != nil {
		return domain.AuthenticatedResult{}, err
	}
	if drained.Applied > 0 {
		s.mirrorPoints(ctx, userID, balance)
	}
	return domain.AuthenticatedResult{
		Bound:   bound,
		Applied: drained.Applied,
		Skipped: drained.Skipped,
		Balance: balance,
	}, nil
}

// GetBalance returns the cached balance, rebuilding it from the ledger when
// the user has no cached row yet.
func (s *Service) GetBalance(ctx context.Context, userID string) (int64, error) {
	item, err := s.balance.Get(ctx, nil, userID)
	if err != nil {
		return 0, err
	}
	if item != nil {
		return item.Points, nil
	}

	result, err := s.balance.Reconcile(ctx, userID)
	if err != nil {
		return 0, err
	}
	if result.Repaired {
		s.obsMetrics.RecordBalanceRepair(ctx, "lazy")
	}
	return result.Balance.Points, nil
}

func (s *Service) GetHistory(ctx context.Context, userID string, limit int) ([]ledgerdomain.LedgerEntry, error) {
	resp, err := s.ledger.ListByUser(ctx, nil, ledgerdomain.ListRequest{UserID: userID, Limit: limit})
	if err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

func (s *Service) ListHistory(ctx context.Context, req ledgerdomain.ListRequest) (ledgerdomain.ListResponse, error) {
	return s.ledger.ListByUser(ctx, nil, req)
}

func (s *Service) GetDailyClaimStatus(ctx context.Context, userID string) (claimdomain.DailyStatus, error) {
	return s.claims.DailyStatus(ctx, userID)
}

func (s *Service) ListAvailableRewards(ctx context.Context, userID string) ([]rewarddomain.Reward, error) {
	return s.rewards.ListAvailable(ctx, userID)
}

func (s *Service) ClaimReward(ctx context.Context, userID string, rewardID snowflake.ID) (claimdomain.ClaimResult, error) {
	result, err := s.claims.Claim(ctx, claimdomain.ClaimRequest{UserID: userID, RewardID: rewardID})
	if err != nil {
		return claimdomain.ClaimResult{}, err
	}
	if result.PointsSpent > 0 {
		s.mirrorPoints(ctx, userID, result.Balance)
	}
	return result, nil
}

func (s *Service) ListClaims(ctx context.Context, userID string, limit int) ([]claimdomain.ClaimedReward, error) {
	return s.claims.ListByUser(ctx, userID, limit)
}

// Adjust applies an admin correction. The balance may not go below zero.
func (s *Service) Adjust(ctx context.Context, adj domain.Adjustment) (domain.AdjustmentResult, error) {
	userID, err := ledgerdomain.NormalizeUserID(adj.UserID)
	if err != nil {
		return domain.AdjustmentResult{}, err
	}
	if err := ledgerdomain.ValidateDelta(ledgerdomain.KindAdjustment, adj.Points); err != nil {
		return domain.AdjustmentResult{}, err
	}
	reason := strings.TrimSpace(adj.Reason)
	if reason == "" {
		return domain.AdjustmentResult{}, domain.ErrInvalidReason
	}
	var dedupeKey string
	if key := strings.TrimSpace(adj.IdempotencyKey); key != "" {
		if len(key) > ledgerdomain.MaxIdentifierLength {
			return domain.AdjustmentResult{}, domain.ErrInvalidIdempotency
		}
		dedupeKey = ledgerdomain.AdjustmentDedupeKey(key)
	}

	var result domain.AdjustmentResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.balance.EnsureRecord(ctx, tx, userID); err != nil {
			return err
		}
		current, err := s.balance.Lock(ctx, tx, userID)
		if err != nil {
			return err
		}
		result.Balance = current.Points

		if dedupeKey != "" {
			existing, err := s.ledger.FindByDedupeKey(ctx, tx, dedupeKey)
			if err != nil {
				return err
			}
			if existing != nil {
				result.Entry = existing
				result.Duplicate = true
				return nil
			}
		}

		if current.Points+adj.Points < 0 {
			return balancedomain.ErrInsufficientPoints
		}
		entry, err := s.ledger.Append(ctx, tx, ledgerdomain.AppendRequest{
			UserID:      userID,
			PointsDelta: adj.Points,
			Kind:        ledgerdomain.KindAdjustment,
			Description: reason,
			DedupeKey:   dedupeKey,
		})
		if err != nil {
			return err
		}
		result.Entry = &entry

		balance, err := s.balance.ApplyDelta(ctx, tx, userID, adj.Points)
		if err != nil {
			return err
		}
		result.Balance = balance
		return nil
	})
	if err != nil {
		return domain.AdjustmentResult{}, txErr("loyalty.adjust", err)
	}

	if !result.Duplicate {
		s.log.Info("points adjusted",
			zap.Int64("points", adj.Points),
			zap.String("reason", reason),
		)
		s.obsMetrics.RecordLedgerEntry(ctx, string(ledgerdomain.KindAdjustment), adj.Points)
		s.mirrorPoints(ctx, userID, result.Balance)
	}
	return result, nil
}

func (s *Service) Reconcile(ctx context.Context, userID string) (balancedomain.ReconcileResult, error) {
	result, err := s.balance.Reconcile(ctx, userID)
	if err != nil {
		return balancedomain.ReconcileResult{}, err
	}
	if result.Repaired {
		s.obsMetrics.RecordBalanceRepair(ctx, "admin")
	}
	s.mirrorPoints(ctx, userID, result.Balance.Points)
	return result, nil
}

func (s *Service) VerifyBalance(ctx context.Context, userID string) (balancedomain.Verification, error) {
	return s.balance.Verify(ctx, userID)
}

// mirror copies the cached balance to the profile. Failures are logged only.
func (s *Service) mirror(ctx context.Context, userID string) {
	if s.profiles == nil {
		return
	}
	item, err := s.balance.Get(ctx, nil, userID)
	if err != nil || item == nil {
		s.log.Warn("profile mirror skipped, balance unavailable", zap.Error(err))
		return
	}
	s.mirrorPoints(ctx, userID, item.Points)
}

func (s *Service) mirrorPoints(ctx context.Context, userID string, points int64) {
	if s.profiles == nil {
		return
	}
	if err := s.profiles.Mirror(ctx, userID, points); err != nil {
		s.log.Warn("profile mirror failed", zap.Error(err))
	}
}

func txErr(op string, err error) error {
	switch {
	case errors.Is(err, balancedomain.ErrInsufficientPoints),
		errors.Is(err, balancedomain.ErrNotFound),
		errors.Is(err, ledgerdomain.ErrInvalidUserID),
		errors.Is(err, ledgerdomain.ErrInvalidPoints),
		errors.Is(err, ledgerdomain.ErrDuplicateEntry):
		return err
	}
	return db.Classify(op, err)
}
