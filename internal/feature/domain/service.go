package domain

import (
	"context"
	"errors"
	"time"
)

type Service interface {
	// Gate returns the catalog row for a feature, or nil when the
	// feature has never been configured.
	Gate(ctx context.Context, code Code) (*FeatureGate, error)

	// Gates returns catalog rows matching the filter, for internal
	// callers that evaluate the catalog directly.
	Gates(ctx context.Context, req ListRequest) ([]FeatureGate, error)

	Upsert(ctx context.Context, req UpsertRequest) (*Response, error)
	Get(ctx context.Context, code string) (*Response, error)
	List(ctx context.Context, req ListRequest) ([]Response, error)
	Disable(ctx context.Context, code string) (*Response, error)
}

type ListRequest struct {
	Enabled *bool  `form:"enabled"`
	SortBy  string `form:"sort_by"`
	OrderBy string `form:"order_by"`
}

type UpsertRequest struct {
	Code        string         `json:"code"`
	Name        string         `json:"name"`
	Description *string        `json:"description,omitempty"`
	Enabled     *bool          `json:"enabled,omitempty"`
	Free        TierGrant      `json:"free"`
	Pro         TierGrant      `json:"pro"`
	Enterprise  TierGrant      `json:"enterprise"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

type Response struct {
	ID          string         `json:"id"`
	Code        Code           `json:"code"`
	Name        string         `json:"name"`
	Description *string        `json:"description,omitempty"`
	Enabled     bool           `json:"enabled"`
	Free        TierGrant      `json:"free"`
	Pro         TierGrant      `json:"pro"`
	Enterprise  TierGrant      `json:"enterprise"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

var (
	ErrUnknownFeature = errors.New("unknown_feature")
	ErrInvalidName    = errors.New("invalid_name")
	ErrInvalidLimit   = errors.New("invalid_limit")
	ErrNotFound       = errors.New("not_found")
)
