package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, claim *ClaimedReward) error
	CountByUserBetween(ctx context.Context, db *gorm.DB, userID string, from, to time.Time) (int64, error)
	CodeExists(ctx context.Context, db *gorm.DB, code string) (bool, error)
	FindByCode(ctx context.Context, db *gorm.DB, code string) (*ClaimedReward, error)
	ListByUser(ctx context.Context, db *gorm.DB, userID string, limit int) ([]*ClaimedReward, error)
	MarkUsed(ctx context.Context, db *gorm.DB, code string, usedAt time.Time) (int64, error)
}
