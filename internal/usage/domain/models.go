// Package domain contains the append-only usage ledger model.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	featuredomain "github.com/smallbiznis/gatekeeper/internal/feature/domain"
	"gorm.io/datatypes"
)

// UsageEvent stores one granted use of a feature. Rows are never updated
// or deleted; monthly counts are derived by windowed counting.
type UsageEvent struct {
	ID          snowflake.ID       `gorm:"primaryKey"`
	UserID      string             `gorm:"column:user_id;type:text;not null;index:ix_usage_events_user_feature_recorded,priority:1"`
	FeatureCode featuredomain.Code `gorm:"column:feature_code;type:text;not null;index:ix_usage_events_user_feature_recorded,priority:2"`

	// SessionID is an opaque reference to the session the use occurred
	// in, when the caller has one. The session store is external.
	SessionID string `gorm:"column:session_id;type:text"`

	RecordedAt time.Time         `gorm:"not null;index:ix_usage_events_user_feature_recorded,priority:3"`
	Metadata   datatypes.JSONMap `gorm:"type:jsonb"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (UsageEvent) TableName() string { return "usage_events" }
