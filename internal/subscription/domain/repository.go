package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	Create(ctx context.Context, db *gorm.DB, sub *Subscription) error
	FindActiveByUser(ctx context.Context, db *gorm.DB, userID string, at time.Time) (*Subscription, error)
	ListByUser(ctx context.Context, db *gorm.DB, userID string) ([]Subscription, error)
}
