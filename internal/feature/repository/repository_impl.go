package repository

import (
	"context"

	"github.com/smallbiznis/gatekeeper/internal/feature/domain"
	"github.com/smallbiznis/gatekeeper/pkg/db/option"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Create(ctx context.Context, db *gorm.DB, gate *domain.FeatureGate) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO feature_gates (
			id, code, name, description, enabled,
			free_available, free_limit, pro_available, pro_limit,
			enterprise_available, enterprise_limit,
			metadata, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		gate.ID,
		gate.Code,
		gate.Name,
		gate.Description,
		gate.Enabled,
		gate.FreeAvailable,
		gate.FreeLimit,
		gate.ProAvailable,
		gate.ProLimit,
		gate.EnterpriseAvailable,
		gate.EnterpriseLimit,
		gate.Metadata,
		gate.CreatedAt,
		gate.UpdatedAt,
	).Error
}

func (r *repo) FindByCode(ctx context.Context, db *gorm.DB, code domain.Code) (*domain.FeatureGate, error) {
	var gate domain.FeatureGate
	err := db.WithContext(ctx).Raw(
		`SELECT id, code, name, description, enabled,
			free_available, free_limit, pro_available, pro_limit,
			enterprise_available, enterprise_limit,
			metadata, created_at, updated_at
		 FROM feature_gates WHERE code = ?`,
		code,
	).Scan(&gate).Error
	if err != nil {
		return nil, err
	}
	if gate.ID == 0 {
		return nil, nil
	}
	return &gate, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListRequest) ([]domain.FeatureGate, error) {
	var items []domain.FeatureGate
	stmt := db.WithContext(ctx).Model(&domain.FeatureGate{})

	if filter.Enabled != nil {
		stmt = stmt.Where("enabled = ?", *filter.Enabled)
	}

	stmt = option.WithSortBy(option.WithQuerySortBy(filter.SortBy, filter.OrderBy, map[string]bool{
		"created_at": true,
		"updated_at": true,
		"code":       true,
	})).Apply(stmt)

	if err := stmt.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, gate *domain.FeatureGate) error {
	if gate == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).Exec(
		`UPDATE feature_gates
		 SET name = ?, description = ?, enabled = ?,
			free_available = ?, free_limit = ?, pro_available = ?, pro_limit = ?,
			enterprise_available = ?, enterprise_limit = ?,
			metadata = ?, updated_at = ?
		 WHERE code = ?`,
		gate.Name,
		gate.Description,
		gate.Enabled,
		gate.FreeAvailable,
		gate.FreeLimit,
		gate.ProAvailable,
		gate.ProLimit,
		gate.EnterpriseAvailable,
		gate.EnterpriseLimit,
		gate.Metadata,
		gate.UpdatedAt,
		gate.Code,
	).Error
}
