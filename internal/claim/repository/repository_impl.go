package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/loyalty/internal/claim/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, claim *domain.ClaimedReward) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO claimed_rewards (id, user_id, reward_id, claimed_at, redemption_code, is_used, used_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		claim.ID,
		claim.UserID,
		claim.RewardID,
		claim.ClaimedAt,
		claim.RedemptionCode,
		claim.IsUsed,
		claim.UsedAt,
	).Error
}

// CountByUserBetween counts claims with claimed_at in [from, to).
func (r *repo) CountByUserBetween(ctx context.Context, db *gorm.DB, userID string, from, to time.Time) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM claimed_rewards
		 WHERE user_id = ? AND claimed_at >= ? AND claimed_at < ?`,
		userID,
		from,
		to,
	).Scan(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *repo) CodeExists(ctx context.Context, db *gorm.DB, code string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM claimed_rewards WHERE redemption_code = ?`,
		code,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) FindByCode(ctx context.Context, db *gorm.DB, code string) (*domain.ClaimedReward, error) {
	var claim domain.ClaimedReward
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, reward_id, claimed_at, redemption_code, is_used, used_at
		 FROM claimed_rewards WHERE redemption_code = ?`,
		code,
	).Scan(&claim).Error
	if err != nil {
		return nil, err
	}
	if claim.ID == 0 {
		return nil, nil
	}
	return &claim, nil
}

func (r *repo) ListByUser(ctx context.Context, db *gorm.DB, userID string, limit int) ([]*domain.ClaimedReward, error) {
	var claims []*domain.ClaimedReward
	stmt := db.WithContext(ctx).
		Model(&domain.ClaimedReward{}).
		Where("user_id = ?", userID)
	if limit > 0 {
		stmt = stmt.Limit(limit)
	}
	err := stmt.
		Order("claimed_at desc, id desc").
		Find(&claims).Error
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// MarkUsed flips is_used once; a second call affects no rows.
func (r *repo) MarkUsed(ctx context.Context, db *gorm.DB, code string, usedAt time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE claimed_rewards SET is_used = ?, used_at = ?
		 WHERE redemption_code = ? AND is_used = ?`,
		true,
		usedAt,
		code,
		false,
	)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
