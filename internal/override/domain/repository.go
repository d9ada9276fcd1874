package domain

import (
	"context"

	featuredomain "github.com/smallbiznis/gatekeeper/internal/feature/domain"
	"gorm.io/gorm"
)

type Repository interface {
	Upsert(ctx context.Context, db *gorm.DB, override *Override) error
	FindByUserFeature(ctx context.Context, db *gorm.DB, userID string, code featuredomain.Code) (*Override, error)
	ListByUser(ctx context.Context, db *gorm.DB, userID string) ([]Override, error)
	Delete(ctx context.Context, db *gorm.DB, userID string, code featuredomain.Code) (int64, error)
}
