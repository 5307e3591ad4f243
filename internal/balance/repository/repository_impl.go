package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/loyalty/internal/balance/domain"
	"github.com/smallbiznis/loyalty/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// EnsureRecord inserts the row with the given starting points unless one
// already exists.
func (r *repo) EnsureRecord(ctx context.Context, conn *gorm.DB, userID string, points int64, now time.Time) error {
	return conn.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(&domain.Balance{UserID: userID, Points: points, Version: 0, UpdatedAt: now}).Error
}

func (r *repo) FindByUserID(ctx context.Context, conn *gorm.DB, userID string) (*domain.Balance, error) {
	return r.scanOne(ctx, conn,
		`SELECT user_id, points, version, updated_at FROM loyalty_balances WHERE user_id = ?`,
		userID,
	)
}

func (r *repo) LockByUserID(ctx context.Context, conn *gorm.DB, userID string) (*domain.Balance, error) {
	return r.scanOne(ctx, conn,
		db.ForUpdate(conn, `SELECT user_id, points, version, updated_at FROM loyalty_balances WHERE user_id = ?`),
		userID,
	)
}

func (r *repo) scanOne(ctx context.Context, conn *gorm.DB, query string, args ...any) (*domain.Balance, error) {
	var balance domain.Balance
	err := conn.WithContext(ctx).Raw(query, args...).Scan(&balance).Error
	if err != nil {
		return nil, err
	}
	if balance.UserID == "" {
		return nil, nil
	}
	return &balance, nil
}

// CompareAndSwap applies delta when the row still has the expected version
// and the result stays non-negative. It returns the affected row count.
func (r *repo) CompareAndSwap(ctx context.Context, conn *gorm.DB, userID string, version, delta int64, now time.Time) (int64, error) {
	result := conn.WithContext(ctx).Exec(
		`UPDATE loyalty_balances
		 SET points = points + ?, version = version + 1, updated_at = ?
		 WHERE user_id = ? AND version = ? AND points + ? >= 0`,
		delta,
		now,
		userID,
		version,
		delta,
	)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *repo) Overwrite(ctx context.Context, conn *gorm.DB, userID string, points int64, now time.Time) error {
	return conn.WithContext(ctx).Exec(
		`UPDATE loyalty_balances
		 SET points = ?, version = version + 1, updated_at = ?
		 WHERE user_id = ?`,
		points,
		now,
		userID,
	).Error
}

func (r *repo) ListDrifted(ctx context.Context, conn *gorm.DB, limit int) ([]string, error) {
	var ids []string
	err := conn.WithContext(ctx).Raw(
		`SELECT b.user_id
		 FROM loyalty_balances b
		 LEFT JOIN (
			SELECT user_id, SUM(points_delta) AS total
			FROM loyalty_ledger_entries
			GROUP BY user_id
		 ) l ON l.user_id = b.user_id
		 WHERE b.points <> COALESCE(l.total, 0)
		 ORDER BY b.user_id
		 LIMIT ?`,
		limit,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// ListMissing returns users that have ledger entries but no cached row.
func (r *repo) ListMissing(ctx context.Context, conn *gorm.DB, limit int) ([]string, error) {
	var ids []string
	err := conn.WithContext(ctx).Raw(
		`SELECT DISTINCT e.user_id
		 FROM loyalty_ledger_entries e
		 LEFT JOIN loyalty_balances b ON b.user_id = e.user_id
		 WHERE b.user_id IS NULL
		 ORDER BY e.user_id
		 LIMIT ?`,
		limit,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
