package domain

import "time"

// PendingCredit holds points for a completed order whose owner is not known
// yet. At least one of UserID and GuestRef is set.
type PendingCredit struct {
	OrderID   string    `gorm:"primaryKey;type:varchar(128)" json:"order_id"`
	UserID    *string   `gorm:"type:varchar(128);index" json:"user_id,omitempty"`
	GuestRef  *string   `gorm:"type:varchar(255);index" json:"guest_ref,omitempty"`
	Points    int64     `gorm:"not null" json:"points"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (PendingCredit) TableName() string { return "pending_credits" }

// Credit is an earn event for a known user.
type Credit struct {
	OrderID     string
	UserID      string
	Points      int64
	Description string
}

type ApplyOutcome string

const (
	OutcomeApplied ApplyOutcome = "applied"
	OutcomeSkipped ApplyOutcome = "skipped"
	OutcomeNoop    ApplyOutcome = "noop"
)

type DrainResult struct {
	Applied int `json:"applied"`
	Skipped int `json:"skipped"`
}
