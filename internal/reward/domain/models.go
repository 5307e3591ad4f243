package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type RewardType string

const (
	TypeDiscount RewardType = "discount"
	TypeFreeItem RewardType = "free_item"
	TypeBirthday RewardType = "birthday"
	TypeSpecial  RewardType = "special"
)

func (t RewardType) Valid() bool {
	switch t {
	case TypeDiscount, TypeFreeItem, TypeBirthday, TypeSpecial:
		return true
	}
	return false
}

// Reward is a claimable catalog item.
type Reward struct {
	ID             snowflake.ID      `gorm:"primaryKey" json:"id"`
	Slug           string            `gorm:"type:varchar(160);not null;uniqueIndex:ux_rewards_slug" json:"slug"`
	Name           string            `gorm:"type:text;not null" json:"name"`
	Description    string            `gorm:"type:text;not null;default:''" json:"description"`
	Type           RewardType        `gorm:"type:varchar(20);not null" json:"type"`
	PointsRequired int64             `gorm:"not null;default:0" json:"points_required"`
	ValidUntil     *time.Time        `gorm:"index" json:"valid_until,omitempty"`
	Metadata       datatypes.JSONMap `gorm:"type:json" json:"metadata,omitempty"`
	CreatedAt      time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time         `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Reward) TableName() string { return "rewards" }

// IsFree reports whether claiming costs no points.
func (r Reward) IsFree() bool {
	return r.PointsRequired == 0
}

// ExpiredAt reports whether the reward can no longer be claimed at now.
func (r Reward) ExpiredAt(now time.Time) bool {
	return r.ValidUntil != nil && !r.ValidUntil.After(now)
}
