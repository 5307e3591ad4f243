package domain

import "time"

// Balance is the cached spendable total of a user. It is derived from the
// ledger and must always equal the sum of the user's entries.
type Balance struct {
	UserID    string    `gorm:"primaryKey;type:varchar(128)" json:"user_id"`
	Points    int64     `gorm:"not null;default:0" json:"points"`
	Version   int64     `gorm:"not null;default:0" json:"version"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Balance) TableName() string { return "loyalty_balances" }

// Verification compares the cached value with the ledger sum.
type Verification struct {
	UserID    string `json:"user_id"`
	Cached    int64  `json:"cached"`
	Ledger    int64  `json:"ledger"`
	Drift     int64  `json:"drift"`
	HasRecord bool   `json:"has_record"`
}

func (v Verification) Consistent() bool {
	return v.HasRecord && v.Drift == 0
}

type ReconcileResult struct {
	Balance  Balance `json:"balance"`
	Previous int64   `json:"previous"`
	Repaired bool    `json:"repaired"`
}
