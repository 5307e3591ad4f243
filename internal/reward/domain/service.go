package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type CreateRewardRequest struct {
	Name           string         `json:"name"`
	Slug           string         `json:"slug"`
	Description    string         `json:"description"`
	Type           RewardType     `json:"type"`
	PointsRequired int64          `json:"points_required"`
	ValidUntil     *time.Time     `json:"valid_until"`
	Metadata       map[string]any `json:"metadata"`
}

// UpdateRewardRequest is a partial update; nil fields are left unchanged.
type UpdateRewardRequest struct {
	Name           *string        `json:"name"`
	Description    *string        `json:"description"`
	Type           *RewardType    `json:"type"`
	PointsRequired *int64         `json:"points_required"`
	ValidUntil     *time.Time     `json:"valid_until"`
	ClearValidity  bool           `json:"clear_valid_until"`
	Metadata       map[string]any `json:"metadata"`
}

type Service interface {
	Get(ctx context.Context, tx *gorm.DB, id snowflake.ID) (Reward, error)
	ListAvailable(ctx context.Context, userID string) ([]Reward, error)
	List(ctx context.Context) ([]Reward, error)
	Create(ctx context.Context, req CreateRewardRequest) (Reward, error)
	Update(ctx context.Context, id snowflake.ID, req UpdateRewardRequest) (Reward, error)
	Expire(ctx context.Context, id snowflake.ID) (Reward, error)
	UpsertBySlug(ctx context.Context, req CreateRewardRequest) (Reward, bool, error)
}

var (
	ErrInvalidID     = errors.New("invalid_reward_id")
	ErrInvalidName   = errors.New("invalid_reward_name")
	ErrInvalidType   = errors.New("invalid_reward_type")
	ErrInvalidPoints = errors.New("invalid_points_required")
	ErrDuplicateSlug = errors.New("reward_slug_taken")
	ErrNotFound      = errors.New("reward_not_found")
	ErrExpired       = errors.New("reward_expired")
)
