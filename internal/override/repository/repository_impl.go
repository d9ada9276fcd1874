package repository

import (
	"context"

	featuredomain "github.com/smallbiznis/gatekeeper/internal/feature/domain"
	"github.com/smallbiznis/gatekeeper/internal/override/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// Upsert inserts the override or replaces the existing (user, feature)
// row. The replacement refreshes created_at so a re-grant reads as a
// fresh grant.
func (r *repo) Upsert(ctx context.Context, db *gorm.DB, override *domain.Override) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "feature_code"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"enabled",
			"custom_limit",
			"expires_at",
			"created_by",
			"metadata",
			"created_at",
			"updated_at",
		}),
	}).Create(override).Error
}

func (r *repo) FindByUserFeature(ctx context.Context, db *gorm.DB, userID string, code featuredomain.Code) (*domain.Override, error) {
	var override domain.Override
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, feature_code, enabled, custom_limit, expires_at,
			created_by, metadata, created_at, updated_at
		 FROM feature_overrides WHERE user_id = ? AND feature_code = ?`,
		userID,
		code,
	).Scan(&override).Error
	if err != nil {
		return nil, err
	}
	if override.ID == 0 {
		return nil, nil
	}
	return &override, nil
}

func (r *repo) ListByUser(ctx context.Context, db *gorm.DB, userID string) ([]domain.Override, error) {
	var items []domain.Override
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, feature_code, enabled, custom_limit, expires_at,
			created_by, metadata, created_at, updated_at
		 FROM feature_overrides WHERE user_id = ? ORDER BY feature_code ASC`,
		userID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, userID string, code featuredomain.Code) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`DELETE FROM feature_overrides WHERE user_id = ? AND feature_code = ?`,
		userID,
		code,
	)
	return result.RowsAffected, result.Error
}
