package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	Create(ctx context.Context, db *gorm.DB, gate *FeatureGate) error
	FindByCode(ctx context.Context, db *gorm.DB, code Code) (*FeatureGate, error)
	List(ctx context.Context, db *gorm.DB, filter ListRequest) ([]FeatureGate, error)
	Update(ctx context.Context, db *gorm.DB, gate *FeatureGate) error
}
