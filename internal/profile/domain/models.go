package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// UserProfile carries a denormalized copy of the balance for storefront
// display. It is never read for eligibility.
type UserProfile struct {
	UserID        string    `gorm:"primaryKey;type:varchar(128)" json:"user_id"`
	LoyaltyPoints int64     `gorm:"not null;default:0" json:"loyalty_points"`
	UpdatedAt     time.Time `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (UserProfile) TableName() string { return "user_profiles" }

type Repository interface {
	Upsert(ctx context.Context, db *gorm.DB, profile *UserProfile) error
	FindByUserID(ctx context.Context, db *gorm.DB, userID string) (*UserProfile, error)
}

type Service interface {
	Mirror(ctx context.Context, userID string, points int64) error
	Get(ctx context.Context, userID string) (*UserProfile, error)
}
