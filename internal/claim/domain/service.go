package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	balancedomain "github.com/smallbiznis/loyalty/internal/balance/domain"
	rewarddomain "github.com/smallbiznis/loyalty/internal/reward/domain"
	"github.com/smallbiznis/loyalty/pkg/db"
	"gorm.io/gorm"
)

type ClaimRequest struct {
	UserID   string
	RewardID snowflake.ID
}

type Service interface {
	Claim(ctx context.Context, req ClaimRequest) (ClaimResult, error)
	DailyStatus(ctx context.Context, userID string) (DailyStatus, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]ClaimedReward, error)
	GetByCode(ctx context.Context, code string) (ClaimedReward, error)
	MarkUsed(ctx context.Context, code string) (ClaimedReward, error)
}

// Limiter counts claims inside the current business day.
type Limiter interface {
	ClaimsToday(ctx context.Context, tx *gorm.DB, userID string) (int, error)
	Status(ctx context.Context, tx *gorm.DB, userID string) (DailyStatus, error)
}

const MaxCodeAttempts = 5

var (
	ErrInvalidCode         = errors.New("invalid_redemption_code")
	ErrNotFound            = errors.New("claim_not_found")
	ErrAlreadyUsed         = errors.New("claim_already_used")
	ErrDailyLimitExceeded  = errors.New("daily_limit_exceeded")
	ErrCodeSpaceExhausted  = errors.New("redemption_code_exhausted")
	ErrInsufficientPoints  = balancedomain.ErrInsufficientPoints
	ErrConcurrencyConflict = db.ErrConcurrencyConflict
	ErrRewardNotFound      = rewarddomain.ErrNotFound
	ErrRewardExpired       = rewarddomain.ErrExpired
)
