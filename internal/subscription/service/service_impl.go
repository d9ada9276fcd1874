package service

import (
	"context"
	"strings"

	"github.com/smallbiznis/gatekeeper/internal/clock"
	"github.com/smallbiznis/gatekeeper/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("subscription.service"),
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) ResolveTier(ctx context.Context, userID string) (domain.Tier, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", domain.ErrInvalidUser
	}

	sub, err := s.repo.FindActiveByUser(ctx, s.db, userID, s.clock.Now())
	if err != nil {
		return "", err
	}
	if sub == nil {
		return domain.TierFree, nil
	}
	return domain.NormalizeTier(string(sub.Tier)), nil
}

func (s *Service) Current(ctx context.Context, userID string) (*domain.Response, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, domain.ErrInvalidUser
	}

	sub, err := s.repo.FindActiveByUser(ctx, s.db, userID, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, nil
	}

	resp := domain.Response{
		ID:      sub.ID.String(),
		UserID:  sub.UserID,
		Tier:    domain.NormalizeTier(string(sub.Tier)),
		Status:  string(sub.Status),
		StartAt: sub.StartAt,
		EndAt:   sub.EndAt,
	}
	if len(sub.Metadata) > 0 {
		resp.Metadata = map[string]any(sub.Metadata)
	}
	return &resp, nil
}
