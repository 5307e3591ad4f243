package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/loyalty/internal/pendingcredit/domain"
	"github.com/smallbiznis/loyalty/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// Upsert stores the credit keyed by order id. The last write wins.
func (r *repo) Upsert(ctx context.Context, conn *gorm.DB, credit *domain.PendingCredit) error {
	return conn.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "order_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"user_id", "guest_ref", "points", "updated_at"}),
		}).
		Create(credit).Error
}

func (r *repo) FindByOrderID(ctx context.Context, conn *gorm.DB, orderID string) (*domain.PendingCredit, error) {
	var credit domain.PendingCredit
	err := conn.WithContext(ctx).Raw(
		db.ForUpdate(conn, `SELECT order_id, user_id, guest_ref, points, created_at, updated_at
		 FROM pending_credits WHERE order_id = ?`),
		orderID,
	).Scan(&credit).Error
	if err != nil {
		return nil, err
	}
	if credit.OrderID == "" {
		return nil, nil
	}
	return &credit, nil
}

func (r *repo) ListByUser(ctx context.Context, conn *gorm.DB, userID string, limit int) ([]*domain.PendingCredit, error) {
	var credits []*domain.PendingCredit
	stmt := conn.WithContext(ctx).
		Model(&domain.PendingCredit{}).
		Where("user_id = ?", userID)
	if limit > 0 {
		stmt = stmt.Limit(limit)
	}
	err := stmt.
		Order("created_at asc, order_id asc").
		Find(&credits).Error
	if err != nil {
		return nil, err
	}
	return credits, nil
}

func (r *repo) BindGuest(ctx context.Context, conn *gorm.DB, userID string, guestRefs []string, now time.Time) (int64, error) {
	result := conn.WithContext(ctx).Exec(
		`UPDATE pending_credits SET user_id = ?, updated_at = ?
		 WHERE user_id IS NULL AND guest_ref IN ?`,
		userID,
		now,
		guestRefs,
	)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *repo) Delete(ctx context.Context, conn *gorm.DB, orderID string) error {
	return conn.WithContext(ctx).Exec(
		`DELETE FROM pending_credits WHERE order_id = ?`,
		orderID,
	).Error
}
