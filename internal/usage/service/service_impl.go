package service

import (
	"context"
	"strings"

	featuredomain "github.com/smallbiznis/gatekeeper/internal/feature/domain"
	"github.com/smallbiznis/gatekeeper/internal/usage/domain"
	"github.com/smallbiznis/gatekeeper/pkg/db/option"
	"github.com/smallbiznis/gatekeeper/pkg/db/pagination"
	"github.com/smallbiznis/gatekeeper/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Store repository.Repository[domain.UsageEvent]
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	store repository.Repository[domain.UsageEvent]
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("usage.service"),
		store: p.Store,
	}
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) (*domain.ListResponse, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return nil, domain.ErrInvalidUser
	}

	filter := &domain.UsageEvent{UserID: userID}
	if code := strings.TrimSpace(req.FeatureCode); code != "" {
		parsed, err := featuredomain.ParseCode(code)
		if err != nil {
			return nil, err
		}
		filter.FeatureCode = parsed
	}

	size := req.PageSize
	if size <= 0 {
		size = 10
	}

	items, err := s.store.Find(ctx, filter,
		option.WithSortBy(option.WithQuerySortBy("created_at", "desc", map[string]bool{"created_at": true})),
		option.ApplyPagination(req.Pagination),
	)
	if err != nil {
		return nil, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, int32(size), func(event *domain.UsageEvent) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        event.ID.String(),
			CreatedAt: event.CreatedAt.UTC().Format("2006-01-02 15:04:05.999999999-07:00"),
		})
		if err != nil {
			return ""
		}
		return token
	})

	if len(items) > size {
		items = items[:size]
	}

	events := make([]domain.Response, 0, len(items))
	for _, item := range items {
		events = append(events, toResponse(item))
	}

	return &domain.ListResponse{
		Events:   events,
		PageInfo: pageInfo,
	}, nil
}

func toResponse(e *domain.UsageEvent) domain.Response {
	resp := domain.Response{
		ID:          e.ID.String(),
		UserID:      e.UserID,
		FeatureCode: e.FeatureCode,
		SessionID:   e.SessionID,
		RecordedAt:  e.RecordedAt,
		CreatedAt:   e.CreatedAt,
	}
	if len(e.Metadata) > 0 {
		resp.Metadata = map[string]any(e.Metadata)
	}
	return resp
}
