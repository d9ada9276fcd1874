package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	subscriptiondomain "github.com/smallbiznis/gatekeeper/internal/subscription/domain"
	"gorm.io/datatypes"
)

// Code identifies a gateable capability. The set is closed; access checks
// for anything outside it fail validation before touching storage.
type Code string

const (
	CodeSMSInbound         Code = "sms_inbound"
	CodeSMSOutbound        Code = "sms_outbound"
	CodeAgentRouting       Code = "agent_routing"
	CodeMCPProtocol        Code = "mcp_protocol"
	CodeAPIAccess          Code = "api_access"
	CodeWebhookCustom      Code = "webhook_custom"
	CodeHealthMonitoring   Code = "health_monitoring"
	CodePriorityRouting    Code = "priority_routing"
	CodeAnalyticsDashboard Code = "analytics_dashboard"
	CodeCustomAgents       Code = "custom_agents"
	CodeMultiPhone         Code = "multi_phone"
	CodeTeamCollaboration  Code = "team_collaboration"
	CodeAdvancedSecurity   Code = "advanced_security"
	CodeDedicatedSupport   Code = "dedicated_support"
)

var allCodes = []Code{
	CodeSMSInbound,
	CodeSMSOutbound,
	CodeAgentRouting,
	CodeMCPProtocol,
	CodeAPIAccess,
	CodeWebhookCustom,
	CodeHealthMonitoring,
	CodePriorityRouting,
	CodeAnalyticsDashboard,
	CodeCustomAgents,
	CodeMultiPhone,
	CodeTeamCollaboration,
	CodeAdvancedSecurity,
	CodeDedicatedSupport,
}

// AllCodes returns the closed feature set in display order.
func AllCodes() []Code {
	out := make([]Code, len(allCodes))
	copy(out, allCodes)
	return out
}

// ParseCode validates a raw string against the closed feature set.
func ParseCode(value string) (Code, error) {
	code := Code(strings.ToLower(strings.TrimSpace(value)))
	for _, known := range allCodes {
		if code == known {
			return code, nil
		}
	}
	return "", ErrUnknownFeature
}

// TierGrant is one tier's column pair on a gate row: whether the tier may
// use the feature at all, and the monthly cap when it may. A nil limit
// means unmetered.
type TierGrant struct {
	Available bool   `json:"available"`
	Limit     *int64 `json:"limit,omitempty"`
}

type FeatureGate struct {
	ID   snowflake.ID `gorm:"primaryKey"`
	Code Code         `gorm:"type:text;not null;uniqueIndex:ux_feature_gates_code"`

	Name        string  `gorm:"type:text;not null"`
	Description *string `gorm:"type:text"`
	Enabled     bool    `gorm:"not null;default:true"`

	FreeAvailable       bool   `gorm:"not null;default:false"`
	FreeLimit           *int64 `gorm:"column:free_limit"`
	ProAvailable        bool   `gorm:"not null;default:false"`
	ProLimit            *int64 `gorm:"column:pro_limit"`
	EnterpriseAvailable bool   `gorm:"not null;default:false"`
	EnterpriseLimit     *int64 `gorm:"column:enterprise_limit"`

	Metadata datatypes.JSONMap `gorm:"type:jsonb"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (FeatureGate) TableName() string { return "feature_gates" }

// ForTier returns the grant for one tier. Unknown tiers get no access.
func (g FeatureGate) ForTier(tier subscriptiondomain.Tier) TierGrant {
	switch tier {
	case subscriptiondomain.TierFree:
		return TierGrant{Available: g.FreeAvailable, Limit: g.FreeLimit}
	case subscriptiondomain.TierPro:
		return TierGrant{Available: g.ProAvailable, Limit: g.ProLimit}
	case subscriptiondomain.TierEnterprise:
		return TierGrant{Available: g.EnterpriseAvailable, Limit: g.EnterpriseLimit}
	default:
		return TierGrant{}
	}
}
