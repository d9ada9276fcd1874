package domain

import (
	"context"
	"errors"
	"time"

	featuredomain "github.com/smallbiznis/gatekeeper/internal/feature/domain"
	"github.com/smallbiznis/gatekeeper/pkg/db/pagination"
)

type Service interface {
	// List returns ledger rows for display reads, newest first, cursor
	// paginated.
	List(ctx context.Context, req ListRequest) (*ListResponse, error)
}

type ListRequest struct {
	UserID      string `form:"user_id"`
	FeatureCode string `form:"feature_code"`
	pagination.Pagination
}

type Response struct {
	ID          string             `json:"id"`
	UserID      string             `json:"user_id"`
	FeatureCode featuredomain.Code `json:"feature_code"`
	SessionID   string             `json:"session_id,omitempty"`
	RecordedAt  time.Time          `json:"recorded_at"`
	Metadata    map[string]any     `json:"metadata,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
}

type ListResponse struct {
	Events   []Response           `json:"events"`
	PageInfo *pagination.PageInfo `json:"page_info"`
}

var (
	ErrInvalidUser = errors.New("invalid_user")
)
