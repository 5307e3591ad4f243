package service

import (
	"context"
	"time"

	"github.com/smallbiznis/loyalty/internal/claim/domain"
	"github.com/smallbiznis/loyalty/internal/clock"
	"github.com/smallbiznis/loyalty/internal/config"
	ledgerdomain "github.com/smallbiznis/loyalty/internal/ledger/domain"
	"github.com/smallbiznis/loyalty/pkg/db"
	"gorm.io/gorm"
)

// DailyLimiter derives the daily claim count from claimed_rewards. It keeps
// no counter of its own.
type DailyLimiter struct {
	db     *gorm.DB
	repo   domain.Repository
	clock  clock.Clock
	config *config.LoyaltyConfigHolder
}

func NewDailyLimiter(conn *gorm.DB, repo domain.Repository, clk clock.Clock, cfg *config.LoyaltyConfigHolder) domain.Limiter {
	return &DailyLimiter{db: conn, repo: repo, clock: clk, config: cfg}
}

// DayWindow returns [local midnight, next local midnight) for now in loc,
// expressed in UTC.
func DayWindow(now time.Time, loc *time.Location) (time.Time, time.Time) {
	local := now.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	end := start.AddDate(0, 0, 1)
	return start.UTC(), end.UTC()
}

func (l *DailyLimiter) ClaimsToday(ctx context.Context, tx *gorm.DB, userID string) (int, error) {
	userID, err := ledgerdomain.NormalizeUserID(userID)
	if err != nil {
		return 0, err
	}
	conn := l.db
	if tx != nil {
		conn = tx
	}

	from, to := DayWindow(l.clock.Now(), l.config.Get().Location())
	count, err := l.repo.CountByUserBetween(ctx, conn, userID, from, to)
	if err != nil {
		return 0, db.Classify("claim.count_today", err)
	}
	return int(count), nil
}

func (l *DailyLimiter) Status(ctx context.Context, tx *gorm.DB, userID string) (domain.DailyStatus, error) {
	used, err := l.ClaimsToday(ctx, tx, userID)
	if err != nil {
		return domain.DailyStatus{}, err
	}
	limit := l.config.Get().Claims.DailyLimit
	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}
	return domain.DailyStatus{Used: used, Remaining: remaining, Limit: limit}, nil
}
