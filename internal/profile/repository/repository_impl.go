package repository

import (
	"context"

	"github.com/smallbiznis/loyalty/internal/profile/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, profile *domain.UserProfile) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"loyalty_points", "updated_at"}),
		}).
		Create(profile).Error
}

func (r *repo) FindByUserID(ctx context.Context, db *gorm.DB, userID string) (*domain.UserProfile, error) {
	var profile domain.UserProfile
	err := db.WithContext(ctx).Raw(
		`SELECT user_id, loyalty_points, updated_at FROM user_profiles WHERE user_id = ?`,
		userID,
	).Scan(&profile).Error
	if err != nil {
		return nil, err
	}
	if profile.UserID == "" {
		return nil, nil
	}
	return &profile, nil
}
