package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/gatekeeper/internal/subscription/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Create(ctx context.Context, db *gorm.DB, sub *domain.Subscription) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO subscriptions (
			id, user_id, tier, status, start_at, end_at, metadata, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID,
		sub.UserID,
		sub.Tier,
		sub.Status,
		sub.StartAt,
		sub.EndAt,
		sub.Metadata,
		sub.CreatedAt,
		sub.UpdatedAt,
	).Error
}

// FindActiveByUser returns the subscription in force at the given instant.
// When more than one row qualifies the most recently created wins, with the
// id as a deterministic tiebreak.
func (r *repo) FindActiveByUser(ctx context.Context, db *gorm.DB, userID string, at time.Time) (*domain.Subscription, error) {
	var sub domain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, tier, status, start_at, end_at, metadata, created_at, updated_at
		 FROM subscriptions
		 WHERE user_id = ?
		   AND status = ?
		   AND start_at <= ?
		   AND (end_at IS NULL OR end_at > ?)
		 ORDER BY created_at DESC, id DESC
		 LIMIT 1`,
		userID,
		domain.SubscriptionStatusActive,
		at,
		at,
	).Scan(&sub).Error
	if err != nil {
		return nil, err
	}
	if sub.ID == 0 {
		return nil, nil
	}
	return &sub, nil
}

func (r *repo) ListByUser(ctx context.Context, db *gorm.DB, userID string) ([]domain.Subscription, error) {
	var items []domain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, tier, status, start_at, end_at, metadata, created_at, updated_at
		 FROM subscriptions WHERE user_id = ? ORDER BY created_at DESC, id DESC`,
		userID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
