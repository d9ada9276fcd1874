package domain

import (
	"context"
	"errors"
	"time"

	featuredomain "github.com/smallbiznis/gatekeeper/internal/feature/domain"
	subscriptiondomain "github.com/smallbiznis/gatekeeper/internal/subscription/domain"
)

type Service interface {
	// Check computes the access decision without mutating anything.
	Check(ctx context.Context, req CheckRequest) (*AccessDecision, error)

	// Record appends one usage event when, and only when, the same
	// decision a Check would make grants access. A denial returns
	// *AccessDeniedError and leaves the ledger untouched.
	Record(ctx context.Context, req RecordRequest) (*RecordResponse, error)

	// ListUserFeatures evaluates every feature in the catalog for one
	// user, for dashboard-style display.
	ListUserFeatures(ctx context.Context, userID string) (*UserFeaturesResponse, error)
}

type CheckRequest struct {
	UserID      string `json:"user_id"`
	FeatureCode string `json:"feature_code"`
}

type RecordRequest struct {
	UserID      string         `json:"user_id"`
	FeatureCode string         `json:"feature_code"`
	SessionID   string         `json:"session_id,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

type RecordResponse struct {
	Decision   AccessDecision `json:"decision"`
	EventID    string         `json:"event_id"`
	RecordedAt time.Time      `json:"recorded_at"`
}

type FeatureSummary struct {
	FeatureCode     featuredomain.Code `json:"feature_code"`
	Name            string             `json:"name,omitempty"`
	Allowed         bool               `json:"allowed"`
	Unlimited       bool               `json:"unlimited"`
	Limit           *int64             `json:"limit,omitempty"`
	CurrentUsage    int64              `json:"current_usage"`
	Remaining       int64              `json:"remaining"`
	Reason          string             `json:"reason,omitempty"`
	OverrideApplied bool               `json:"override_applied"`
}

type UserFeaturesResponse struct {
	UserID   string                  `json:"user_id"`
	Tier     subscriptiondomain.Tier `json:"tier"`
	Features []FeatureSummary        `json:"features"`
}

var (
	ErrInvalidUser = errors.New("invalid_user")
)
