package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/gatekeeper/internal/actorcontext"
	"github.com/smallbiznis/gatekeeper/internal/clock"
	featuredomain "github.com/smallbiznis/gatekeeper/internal/feature/domain"
	"github.com/smallbiznis/gatekeeper/internal/override/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("override.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Resolve(ctx context.Context, userID string, code featuredomain.Code) (*domain.Override, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, domain.ErrInvalidUser
	}

	override, err := s.repo.FindByUserFeature(ctx, s.db, userID, code)
	if err != nil {
		return nil, err
	}
	if override == nil || !override.ActiveAt(s.clock.Now()) {
		return nil, nil
	}
	return override, nil
}

func (s *Service) Grant(ctx context.Context, req domain.GrantRequest) (*domain.Response, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return nil, domain.ErrInvalidUser
	}

	code, err := featuredomain.ParseCode(req.FeatureCode)
	if err != nil {
		return nil, err
	}

	if req.CustomLimit != nil && *req.CustomLimit < 0 {
		return nil, domain.ErrInvalidCustomLimit
	}

	createdBy, _ := actorcontext.ActorFromContext(ctx)

	now := s.clock.Now()
	record := &domain.Override{
		ID:          s.genID.Generate(),
		UserID:      userID,
		FeatureCode: code,
		Enabled:     req.Enabled,
		CustomLimit: req.CustomLimit,
		ExpiresAt:   req.ExpiresAt,
		CreatedBy:   createdBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if req.Metadata != nil {
		record.Metadata = datatypes.JSONMap(req.Metadata)
	}

	if err := s.repo.Upsert(ctx, s.db, record); err != nil {
		return nil, err
	}

	// Read back through the unique key: on conflict the insert id loses
	// to the surviving row's id.
	stored, err := s.repo.FindByUserFeature(ctx, s.db, userID, code)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		stored = record
	}

	s.log.Info("override granted",
		zap.String("user_id", userID),
		zap.String("feature_code", string(code)),
		zap.Bool("enabled", req.Enabled),
	)

	resp := s.toResponse(stored)
	return &resp, nil
}

func (s *Service) Revoke(ctx context.Context, userID, code string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.ErrInvalidUser
	}

	parsed, err := featuredomain.ParseCode(code)
	if err != nil {
		return err
	}

	affected, err := s.repo.Delete(ctx, s.db, userID, parsed)
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrNotFound
	}

	s.log.Info("override revoked",
		zap.String("user_id", userID),
		zap.String("feature_code", string(parsed)),
	)
	return nil
}

func (s *Service) ListByUser(ctx context.Context, userID string) ([]domain.Response, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, domain.ErrInvalidUser
	}

	items, err := s.repo.ListByUser(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}

	resp := make([]domain.Response, 0, len(items))
	for _, item := range items {
		resp = append(resp, s.toResponse(&item))
	}
	return resp, nil
}

func (s *Service) toResponse(o *domain.Override) domain.Response {
	resp := domain.Response{
		ID:          o.ID.String(),
		UserID:      o.UserID,
		FeatureCode: o.FeatureCode,
		Enabled:     o.Enabled,
		CustomLimit: o.CustomLimit,
		ExpiresAt:   o.ExpiresAt,
		CreatedBy:   o.CreatedBy,
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
	}
	if len(o.Metadata) > 0 {
		resp.Metadata = map[string]any(o.Metadata)
	}
	return resp
}
