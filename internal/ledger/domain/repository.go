package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// ListFilter selects a page of a user's history, most recent first.
type ListFilter struct {
	Limit           int
	BeforeCreatedAt *time.Time
	BeforeID        snowflake.ID
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *LedgerEntry) error
	FindByDedupeKey(ctx context.Context, db *gorm.DB, key string) (*LedgerEntry, error)
	ListByUser(ctx context.Context, db *gorm.DB, userID string, filter ListFilter) ([]*LedgerEntry, error)
	SumByUser(ctx context.Context, db *gorm.DB, userID string) (int64, error)
}
