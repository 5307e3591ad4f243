package domain

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/loyalty/pkg/db/pagination"
	"gorm.io/gorm"
)

type AppendRequest struct {
	UserID      string
	PointsDelta int64
	Kind        EntryKind
	Description string
	OrderID     string
	RewardID    snowflake.ID
	DedupeKey   string
}

type ListRequest struct {
	UserID    string
	Limit     int
	PageToken string
}

type ListResponse struct {
	pagination.PageInfo
	Entries []LedgerEntry `json:"entries"`
}

// Service is the append-only points log. Every method takes an optional
// transaction; a nil tx runs against the service's own connection.
type Service interface {
	Append(ctx context.Context, tx *gorm.DB, req AppendRequest) (LedgerEntry, error)
	ListByUser(ctx context.Context, tx *gorm.DB, req ListRequest) (ListResponse, error)
	SumByUser(ctx context.Context, tx *gorm.DB, userID string) (int64, error)
	FindByDedupeKey(ctx context.Context, tx *gorm.DB, key string) (*LedgerEntry, error)
}

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

var (
	ErrInvalidUserID    = errors.New("invalid_user_id")
	ErrInvalidOrderID   = errors.New("invalid_order_id")
	ErrInvalidKind      = errors.New("invalid_entry_kind")
	ErrInvalidPoints    = errors.New("invalid_points")
	ErrInvalidDedupeKey = errors.New("invalid_dedupe_key")
	ErrDuplicateEntry   = errors.New("duplicate_ledger_entry")
)

// NormalizeUserID trims and validates an opaque user identifier.
func NormalizeUserID(userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" || len(userID) > MaxIdentifierLength {
		return "", ErrInvalidUserID
	}
	return userID, nil
}

// NormalizeOrderID trims and validates an opaque order identifier.
func NormalizeOrderID(orderID string) (string, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" || len(orderID) > MaxIdentifierLength {
		return "", ErrInvalidOrderID
	}
	return orderID, nil
}

// ValidateDelta enforces the sign rule for each entry kind.
func ValidateDelta(kind EntryKind, delta int64) error {
	switch kind {
	case KindEarn:
		if delta <= 0 {
			return ErrInvalidPoints
		}
	case KindRedeem:
		if delta > 0 {
			return ErrInvalidPoints
		}
	case KindAdjustment:
		if delta == 0 {
			return ErrInvalidPoints
		}
	default:
		return ErrInvalidKind
	}
	return nil
}
