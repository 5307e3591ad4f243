package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// ClaimedReward is an issued redemption. The same reward may be claimed by
// the same user many times, each with its own code.
type ClaimedReward struct {
	ID             snowflake.ID `gorm:"primaryKey" json:"id"`
	UserID         string       `gorm:"type:varchar(128);not null;index:idx_claimed_rewards_user_claimed,priority:1" json:"user_id"`
	RewardID       snowflake.ID `gorm:"not null;index" json:"reward_id"`
	ClaimedAt      time.Time    `gorm:"not null;index:idx_claimed_rewards_user_claimed,priority:2" json:"claimed_at"`
	RedemptionCode string       `gorm:"type:varchar(40);not null;uniqueIndex:ux_claimed_rewards_code" json:"redemption_code"`
	IsUsed         bool         `gorm:"not null;default:false" json:"is_used"`
	UsedAt         *time.Time   `json:"used_at,omitempty"`
}

// TableName sets the database table name.
func (ClaimedReward) TableName() string { return "claimed_rewards" }

// ClaimResult is returned to the storefront after a successful claim.
type ClaimResult struct {
	Success        bool         `json:"success"`
	RedemptionCode string       `json:"redemptionCode"`
	ClaimID        snowflake.ID `json:"claimId"`
	PointsSpent    int64        `json:"pointsSpent"`
	Balance        int64        `json:"balance"`
}

// DailyStatus reports the claim quota of the current business day.
type DailyStatus struct {
	Used      int `json:"used"`
	Remaining int `json:"remaining"`
	Limit     int `json:"limit"`
}

// ClaimState names the steps of a claim attempt.
type ClaimState string

const (
	StateRequested ClaimState = "requested"
	StateValidated ClaimState = "validated"
	StateDebited   ClaimState = "debited"
	StateIssued    ClaimState = "issued"
	StateRejected  ClaimState = "rejected"
)
