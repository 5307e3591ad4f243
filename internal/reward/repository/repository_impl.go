package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/loyalty/internal/reward/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const rewardColumns = `id, slug, name, description, type, points_required, valid_until, metadata, created_at, updated_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, reward *domain.Reward) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO rewards (`+rewardColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		reward.ID,
		reward.Slug,
		reward.Name,
		reward.Description,
		string(reward.Type),
		reward.PointsRequired,
		reward.ValidUntil,
		reward.Metadata,
		reward.CreatedAt,
		reward.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Reward, error) {
	return r.scanOne(ctx, db, `SELECT `+rewardColumns+` FROM rewards WHERE id = ?`, id)
}

func (r *repo) FindBySlug(ctx context.Context, db *gorm.DB, slug string) (*domain.Reward, error) {
	return r.scanOne(ctx, db, `SELECT `+rewardColumns+` FROM rewards WHERE slug = ?`, slug)
}

func (r *repo) scanOne(ctx context.Context, db *gorm.DB, query string, args ...any) (*domain.Reward, error) {
	var reward domain.Reward
	err := db.WithContext(ctx).Raw(query, args...).Scan(&reward).Error
	if err != nil {
		return nil, err
	}
	if reward.ID == 0 {
		return nil, nil
	}
	return &reward, nil
}

func (r *repo) ListAvailable(ctx context.Context, db *gorm.DB, now time.Time) ([]*domain.Reward, error) {
	var rewards []*domain.Reward
	err := db.WithContext(ctx).
		Model(&domain.Reward{}).
		Where("valid_until IS NULL OR valid_until > ?", now).
		Order("points_required asc, id asc").
		Find(&rewards).Error
	if err != nil {
		return nil, err
	}
	return rewards, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB) ([]*domain.Reward, error) {
	var rewards []*domain.Reward
	err := db.WithContext(ctx).
		Model(&domain.Reward{}).
		Order("points_required asc, id asc").
		Find(&rewards).Error
	if err != nil {
		return nil, err
	}
	return rewards, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, id snowflake.ID, fields map[string]any) error {
	return db.WithContext(ctx).
		Model(&domain.Reward{}).
		Where("id = ?", id).
		Updates(fields).Error
}
