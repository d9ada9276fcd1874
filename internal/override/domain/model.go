package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	featuredomain "github.com/smallbiznis/gatekeeper/internal/feature/domain"
	"gorm.io/datatypes"
)

// Override is a per-user exception layered over the tier gate catalog.
// One row per (user, feature); a re-grant replaces the previous grant.
type Override struct {
	ID          snowflake.ID       `gorm:"primaryKey"`
	UserID      string             `gorm:"column:user_id;type:text;not null;uniqueIndex:ux_feature_overrides_user_feature,priority:1"`
	FeatureCode featuredomain.Code `gorm:"column:feature_code;type:text;not null;uniqueIndex:ux_feature_overrides_user_feature,priority:2"`

	Enabled     bool       `gorm:"not null"`
	CustomLimit *int64     `gorm:"column:custom_limit"`
	ExpiresAt   *time.Time `gorm:"column:expires_at"`

	CreatedBy string            `gorm:"column:created_by;type:text"`
	Metadata  datatypes.JSONMap `gorm:"type:jsonb"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Override) TableName() string { return "feature_overrides" }

// ActiveAt reports whether the override still applies at the given instant.
// A nil expiry never lapses.
func (o Override) ActiveAt(at time.Time) bool {
	return o.ExpiresAt == nil || o.ExpiresAt.After(at)
}
