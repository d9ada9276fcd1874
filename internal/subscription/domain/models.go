package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Tier string

const (
	TierFree       Tier = "free"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
)

// NormalizeTier lowercases and trims a stored tier value. Anything outside
// the known set falls back to free so a corrupted row never widens access.
func NormalizeTier(value string) Tier {
	switch Tier(strings.ToLower(strings.TrimSpace(value))) {
	case TierPro:
		return TierPro
	case TierEnterprise:
		return TierEnterprise
	default:
		return TierFree
	}
}

type SubscriptionStatus string

const (
	SubscriptionStatusActive   SubscriptionStatus = "ACTIVE"
	SubscriptionStatusCanceled SubscriptionStatus = "CANCELED"
	SubscriptionStatusExpired  SubscriptionStatus = "EXPIRED"
)

type Subscription struct {
	ID     snowflake.ID `gorm:"primaryKey"`
	UserID string       `gorm:"column:user_id;type:text;not null;index:ix_subscriptions_user"`

	Tier   Tier               `gorm:"type:text;not null"`
	Status SubscriptionStatus `gorm:"type:text;not null;default:'ACTIVE'"`

	StartAt  time.Time         `gorm:"not null"`
	EndAt    *time.Time        `gorm:"column:end_at"`
	Metadata datatypes.JSONMap `gorm:"type:jsonb"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Subscription) TableName() string { return "subscriptions" }

// ActiveAt reports whether the subscription grants its tier at the given
// instant: status ACTIVE and the period covering the instant.
func (s Subscription) ActiveAt(at time.Time) bool {
	if s.Status != SubscriptionStatusActive {
		return false
	}
	if s.StartAt.After(at) {
		return false
	}
	if s.EndAt != nil && !s.EndAt.After(at) {
		return false
	}
	return true
}
