package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/loyalty/pkg/db"
	"gorm.io/gorm"
)

// Service maintains the per-user cached balance. Methods taking a tx run
// inside the caller's transaction; a nil tx uses the service's connection.
type Service interface {
	EnsureRecord(ctx context.Context, tx *gorm.DB, userID string) error
	Lock(ctx context.Context, tx *gorm.DB, userID string) (Balance, error)
	Get(ctx context.Context, tx *gorm.DB, userID string) (*Balance, error)
	ApplyDelta(ctx context.Context, tx *gorm.DB, userID string, delta int64) (int64, error)
	Reconcile(ctx context.Context, userID string) (ReconcileResult, error)
	Verify(ctx context.Context, userID string) (Verification, error)
	FindDrifted(ctx context.Context, limit int) ([]string, error)
}

// MaxApplyAttempts bounds compare-and-swap retries of ApplyDelta.
const MaxApplyAttempts = 3

var (
	ErrInsufficientPoints  = errors.New("insufficient_points")
	ErrNotFound            = errors.New("balance_not_found")
	ErrConcurrencyConflict = db.ErrConcurrencyConflict
)
