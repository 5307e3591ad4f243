package repository

import (
	"context"

	"github.com/smallbiznis/loyalty/internal/ledger/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, entry *domain.LedgerEntry) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO loyalty_ledger_entries (
			id, user_id, points_delta, kind, description, order_id, reward_id, dedupe_key, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.UserID,
		entry.PointsDelta,
		string(entry.Kind),
		entry.Description,
		entry.OrderID,
		entry.RewardID,
		entry.DedupeKey,
		entry.CreatedAt,
	).Error
}

func (r *repo) FindByDedupeKey(ctx context.Context, db *gorm.DB, key string) (*domain.LedgerEntry, error) {
	var entry domain.LedgerEntry
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, points_delta, kind, description, order_id, reward_id, dedupe_key, created_at
		 FROM loyalty_ledger_entries WHERE dedupe_key = ?`,
		key,
	).Scan(&entry).Error
	if err != nil {
		return nil, err
	}
	if entry.ID == 0 {
		return nil, nil
	}
	return &entry, nil
}

func (r *repo) ListByUser(ctx context.Context, db *gorm.DB, userID string, filter domain.ListFilter) ([]*domain.LedgerEntry, error) {
	var entries []*domain.LedgerEntry
	stmt := db.WithContext(ctx).
		Model(&domain.LedgerEntry{}).
		Where("user_id = ?", userID)
	if filter.BeforeCreatedAt != nil {
		stmt = stmt.Where("(created_at < ? OR (created_at = ? AND id < ?))",
			*filter.BeforeCreatedAt, *filter.BeforeCreatedAt, filter.BeforeID)
	}
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit)
	}
	err := stmt.
		Order("created_at desc, id desc").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repo) SumByUser(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(points_delta), 0) FROM loyalty_ledger_entries WHERE user_id = ?`,
		userID,
	).Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}
