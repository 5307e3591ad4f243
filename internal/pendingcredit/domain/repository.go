package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	Upsert(ctx context.Context, db *gorm.DB, credit *PendingCredit) error
	FindByOrderID(ctx context.Context, db *gorm.DB, orderID string) (*PendingCredit, error)
	ListByUser(ctx context.Context, db *gorm.DB, userID string, limit int) ([]*PendingCredit, error)
	BindGuest(ctx context.Context, db *gorm.DB, userID string, guestRefs []string, now time.Time) (int64, error)
	Delete(ctx context.Context, db *gorm.DB, orderID string) error
}
