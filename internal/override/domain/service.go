package domain

import (
	"context"
	"errors"
	"time"

	featuredomain "github.com/smallbiznis/gatekeeper/internal/feature/domain"
)

type Service interface {
	// Resolve returns the override in force for (user, feature), or nil
	// when none exists or the existing one has expired.
	Resolve(ctx context.Context, userID string, code featuredomain.Code) (*Override, error)

	Grant(ctx context.Context, req GrantRequest) (*Response, error)
	Revoke(ctx context.Context, userID, code string) error
	ListByUser(ctx context.Context, userID string) ([]Response, error)
}

type GrantRequest struct {
	UserID      string         `json:"user_id"`
	FeatureCode string         `json:"feature_code"`
	Enabled     bool           `json:"enabled"`
	CustomLimit *int64         `json:"custom_limit,omitempty"`
	ExpiresAt   *time.Time     `json:"expires_at,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

type Response struct {
	ID          string             `json:"id"`
	UserID      string             `json:"user_id"`
	FeatureCode featuredomain.Code `json:"feature_code"`
	Enabled     bool               `json:"enabled"`
	CustomLimit *int64             `json:"custom_limit,omitempty"`
	ExpiresAt   *time.Time         `json:"expires_at,omitempty"`
	CreatedBy   string             `json:"created_by,omitempty"`
	Metadata    map[string]any     `json:"metadata,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

var (
	ErrInvalidUser        = errors.New("invalid_user")
	ErrInvalidCustomLimit = errors.New("invalid_custom_limit")
	ErrNotFound           = errors.New("not_found")
)
