package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	EnsureRecord(ctx context.Context, db *gorm.DB, userID string, points int64, now time.Time) error
	FindByUserID(ctx context.Context, db *gorm.DB, userID string) (*Balance, error)
	LockByUserID(ctx context.Context, db *gorm.DB, userID string) (*Balance, error)
	CompareAndSwap(ctx context.Context, db *gorm.DB, userID string, version, delta int64, now time.Time) (int64, error)
	Overwrite(ctx context.Context, db *gorm.DB, userID string, points int64, now time.Time) error
	ListDrifted(ctx context.Context, db *gorm.DB, limit int) ([]string, error)
	ListMissing(ctx context.Context, db *gorm.DB, limit int) ([]string, error)
}
