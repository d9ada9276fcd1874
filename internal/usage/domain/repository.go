package domain

import (
	"context"
	"time"

	featuredomain "github.com/smallbiznis/gatekeeper/internal/feature/domain"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, event *UsageEvent) error

	// CountInWindow counts events for (user, feature) with recorded_at in
	// [from, to].
	CountInWindow(ctx context.Context, db *gorm.DB, userID string, code featuredomain.Code, from, to time.Time) (int64, error)

	// AcquireRecordLock takes a transaction-scoped exclusive lock on the
	// (user, feature) pair. A no-op on dialects without advisory locks,
	// where the in-process mutex is the only guard.
	AcquireRecordLock(ctx context.Context, db *gorm.DB, userID string, code featuredomain.Code) error
}
