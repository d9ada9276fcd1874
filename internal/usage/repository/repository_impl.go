package repository

import (
	"context"
	"hash/fnv"
	"strings"
	"time"

	featuredomain "github.com/smallbiznis/gatekeeper/internal/feature/domain"
	"github.com/smallbiznis/gatekeeper/internal/usage/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, event *domain.UsageEvent) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO usage_events (
			id, user_id, feature_code, session_id, recorded_at, metadata, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		event.ID,
		event.UserID,
		event.FeatureCode,
		event.SessionID,
		event.RecordedAt,
		event.Metadata,
		event.CreatedAt,
	).Error
}

func (r *repo) CountInWindow(ctx context.Context, db *gorm.DB, userID string, code featuredomain.Code, from, to time.Time) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM usage_events
		 WHERE user_id = ? AND feature_code = ? AND recorded_at >= ? AND recorded_at <= ?`,
		userID,
		code,
		from,
		to,
	).Scan(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// AcquireRecordLock serializes concurrent recorders for one (user, feature)
// across replicas. Postgres gets a transaction-scoped advisory lock released
// automatically at commit or rollback; other dialects rely on the caller's
// in-process mutex.
func (r *repo) AcquireRecordLock(ctx context.Context, db *gorm.DB, userID string, code featuredomain.Code) error {
	if db == nil || !strings.EqualFold(db.Dialector.Name(), "postgres") {
		return nil
	}
	return db.WithContext(ctx).Exec(
		`SELECT pg_advisory_xact_lock(?)`,
		recordLockKey(userID, code),
	).Error
}

func recordLockKey(userID string, code featuredomain.Code) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(userID))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(code))
	return int64(h.Sum64())
}
