package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/gatekeeper/internal/clock"
	"github.com/smallbiznis/gatekeeper/internal/feature/domain"
	"github.com/smallbiznis/gatekeeper/pkg/db"
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
		log:   p.Log.Named("feature.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Gate(ctx context.Context, code domain.Code) (*domain.FeatureGate, error) {
	return s.repo.FindByCode(ctx, s.db, code)
}

func (s *Service) Gates(ctx context.Context, req domain.ListRequest) ([]domain.FeatureGate, error) {
	return s.repo.List(ctx, s.db, domain.ListRequest{
		Enabled: req.Enabled,
		SortBy:  strings.TrimSpace(req.SortBy),
		OrderBy: strings.TrimSpace(req.OrderBy),
	})
}

func (s *Service) Upsert(ctx context.Context, req domain.UpsertRequest) (*domain.Response, error) {
	code, err := domain.ParseCode(req.Code)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Name)

	if err := validateGrant(req.Free); err != nil {
		return nil, err
	}
	if err := validateGrant(req.Pro); err != nil {
		return nil, err
	}
	if err := validateGrant(req.Enterprise); err != nil {
		return nil, err
	}

	description := strings.TrimSpace(ptrToString(req.Description))
	var descriptionPtr *string
	if description != "" {
		descriptionPtr = &description
	}

	now := s.clock.Now()

	existing, err := s.repo.FindByCode(ctx, s.db, code)
	if err != nil {
		return nil, err
	}

	if existing == nil {
		if name == "" {
			return nil, domain.ErrInvalidName
		}
		record := &domain.FeatureGate{
			ID:                  s.genID.Generate(),
			Code:                code,
			Name:                name,
			Description:         descriptionPtr,
			Enabled:             true,
			FreeAvailable:       req.Free.Available,
			FreeLimit:           req.Free.Limit,
			ProAvailable:        req.Pro.Available,
			ProLimit:            req.Pro.Limit,
			EnterpriseAvailable: req.Enterprise.Available,
			EnterpriseLimit:     req.Enterprise.Limit,
			CreatedAt:           now,
			UpdatedAt:           now,
		}
		if req.Enabled != nil {
			record.Enabled = *req.Enabled
		}
		if req.Metadata != nil {
			record.Metadata = datatypes.JSONMap(req.Metadata)
		}
		createErr := s.repo.Create(ctx, s.db, record)
		if createErr == nil {
			resp := s.toResponse(record)
			return &resp, nil
		}
		if !db.IsDuplicateKeyErr(createErr) {
			return nil, createErr
		}
		// Lost a create race; apply the request to the surviving row.
		existing, err = s.repo.FindByCode(ctx, s.db, code)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, createErr
		}
	}

	if name != "" {
		existing.Name = name
	}
	if req.Description != nil {
		existing.Description = descriptionPtr
	}
	if req.Enabled != nil {
		existing.Enabled = *req.Enabled
	}
	existing.FreeAvailable = req.Free.Available
	existing.FreeLimit = req.Free.Limit
	existing.ProAvailable = req.Pro.Available
	existing.ProLimit = req.Pro.Limit
	existing.EnterpriseAvailable = req.Enterprise.Available
	existing.EnterpriseLimit = req.Enterprise.Limit
	if req.Metadata != nil {
		existing.Metadata = datatypes.JSONMap(req.Metadata)
	}
	existing.UpdatedAt = now

	if err := s.repo.Update(ctx, s.db, existing); err != nil {
		return nil, err
	}
	resp := s.toResponse(existing)
	return &resp, nil
}

func (s *Service) Get(ctx context.Context, code string) (*domain.Response, error) {
	parsed, err := domain.ParseCode(code)
	if err != nil {
		return nil, err
	}
	gate, err := s.repo.FindByCode(ctx, s.db, parsed)
	if err != nil {
		return nil, err
	}
	if gate == nil {
		return nil, domain.ErrNotFound
	}
	resp := s.toResponse(gate)
	return &resp, nil
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) ([]domain.Response, error) {
	filter := domain.ListRequest{
		Enabled: req.Enabled,
		SortBy:  strings.TrimSpace(req.SortBy),
		OrderBy: strings.TrimSpace(req.OrderBy),
	}

	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return nil, err
	}

	resp := make([]domain.Response, 0, len(items))
	for _, item := range items {
		resp = append(resp, s.toResponse(&item))
	}
	return resp, nil
}

func (s *Service) Disable(ctx context.Context, code string) (*domain.Response, error) {
	parsed, err := domain.ParseCode(code)
	if err != nil {
		return nil, err
	}

	gate, err := s.repo.FindByCode(ctx, s.db, parsed)
	if err != nil {
		return nil, err
	}
	if gate == nil {
		return nil, domain.ErrNotFound
	}

	gate.Enabled = false
	gate.UpdatedAt = s.clock.Now()
	if err := s.repo.Update(ctx, s.db, gate); err != nil {
		return nil, err
	}

	resp := s.toResponse(gate)
	return &resp, nil
}

func (s *Service) toResponse(g *domain.FeatureGate) domain.Response {
	resp := domain.Response{
		ID:          g.ID.String(),
		Code:        g.Code,
		Name:        g.Name,
		Description: g.Description,
		Enabled:     g.Enabled,
		Free:        domain.TierGrant{Available: g.FreeAvailable, Limit: g.FreeLimit},
		Pro:         domain.TierGrant{Available: g.ProAvailable, Limit: g.ProLimit},
		Enterprise:  domain.TierGrant{Available: g.EnterpriseAvailable, Limit: g.EnterpriseLimit},
		CreatedAt:   g.CreatedAt,
		UpdatedAt:   g.UpdatedAt,
	}
	if len(g.Metadata) > 0 {
		resp.Metadata = map[string]any(g.Metadata)
	}
	return resp
}

func validateGrant(grant domain.TierGrant) error {
	if grant.Limit != nil && *grant.Limit < 0 {
		return domain.ErrInvalidLimit
	}
	return nil
}

func ptrToString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
