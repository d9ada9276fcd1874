package domain

import (
	"context"
	"errors"
	"time"
)

type Service interface {
	// ResolveTier returns the tier granted to the user right now. Users
	// without an active subscription resolve to the free tier.
	ResolveTier(ctx context.Context, userID string) (Tier, error)

	// Current returns the subscription backing the resolved tier, or nil
	// when the user is on the free default.
	Current(ctx context.Context, userID string) (*Response, error)
}

type Response struct {
	ID       string         `json:"id"`
	UserID   string         `json:"user_id"`
	Tier     Tier           `json:"tier"`
	Status   string         `json:"status"`
	StartAt  time.Time      `json:"start_at"`
	EndAt    *time.Time     `json:"end_at,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

var (
	ErrInvalidUser = errors.New("invalid_user")
)
