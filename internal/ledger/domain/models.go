package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// EntryKind classifies a points movement.
type EntryKind string

const (
	KindEarn       EntryKind = "earn"
	KindRedeem     EntryKind = "redeem"
	KindAdjustment EntryKind = "adjustment"
)

const MaxIdentifierLength = 128

// LedgerEntry is an immutable points movement. The sum of a user's entries
// is their balance.
type LedgerEntry struct {
	ID          snowflake.ID  `gorm:"primaryKey" json:"id"`
	UserID      string        `gorm:"type:varchar(128);not null;index:idx_loyalty_ledger_user_created,priority:1" json:"user_id"`
	PointsDelta int64         `gorm:"not null" json:"points_delta"`
	Kind        EntryKind     `gorm:"type:varchar(20);not null" json:"kind"`
	Description string        `gorm:"type:text;not null;default:''" json:"description"`
	OrderID     *string       `gorm:"type:varchar(128);index" json:"order_id,omitempty"`
	RewardID    *snowflake.ID `gorm:"index" json:"reward_id,omitempty"`
	DedupeKey   *string       `gorm:"type:varchar(200);uniqueIndex:ux_loyalty_ledger_dedupe_key" json:"-"`
	CreatedAt   time.Time     `gorm:"not null;index:idx_loyalty_ledger_user_created,priority:2" json:"created_at"`
}

// TableName sets the database table name.
func (LedgerEntry) TableName() string { return "loyalty_ledger_entries" }

// OrderDedupeKey is the idempotency key of the earn entry for an order.
func OrderDedupeKey(orderID string) string {
	return "order:" + orderID
}

// AdjustmentDedupeKey is the idempotency key of an admin adjustment.
func AdjustmentDedupeKey(key string) string {
	return "adjustment:" + key
}
