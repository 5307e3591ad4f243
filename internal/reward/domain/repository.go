package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, reward *Reward) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Reward, error)
	FindBySlug(ctx context.Context, db *gorm.DB, slug string) (*Reward, error)
	ListAvailable(ctx context.Context, db *gorm.DB, now time.Time) ([]*Reward, error)
	List(ctx context.Context, db *gorm.DB) ([]*Reward, error)
	Update(ctx context.Context, db *gorm.DB, id snowflake.ID, fields map[string]any) error
}
