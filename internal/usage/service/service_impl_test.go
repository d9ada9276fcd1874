package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	featuredomain "github.com/smallbiznis/gatekeeper/internal/feature/domain"
	"github.com/smallbiznis/gatekeeper/internal/usage/domain"
	"github.com/smallbiznis/gatekeeper/pkg/db/pagination"
	"github.com/smallbiznis/gatekeeper/pkg/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (domain.Service, *gorm.DB, *snowflake.Node) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.UsageEvent{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		Store: repository.ProvideStore[domain.UsageEvent](db),
	})
	return svc, db, node
}

func seedEvents(t *testing.T, db *gorm.DB, node *snowflake.Node, userID string, code featuredomain.Code, n int, base time.Time) {
	t.Helper()
	for i := 0; i < n; i++ {
		event := domain.UsageEvent{
			ID:          node.Generate(),
			UserID:      userID,
			FeatureCode: code,
			RecordedAt:  base.Add(time.Duration(i) * time.Minute),
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, db.Create(&event).Error)
	}
}

func TestListRequiresUser(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.List(context.Background(), domain.ListRequest{})
	assert.ErrorIs(t, err, domain.ErrInvalidUser)
}

func TestListFiltersByUserAndFeature(t *testing.T) {
	svc, db, node := newTestService(t)
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	seedEvents(t, db, node, "user-1", featuredomain.CodeSMSInbound, 3, base)
	seedEvents(t, db, node, "user-1", featuredomain.CodeAPIAccess, 2, base)
	seedEvents(t, db, node, "user-2", featuredomain.CodeSMSInbound, 4, base)

	resp, err := svc.List(context.Background(), domain.ListRequest{
		UserID:      "user-1",
		FeatureCode: "sms_inbound",
		Pagination:  pagination.Pagination{PageSize: 10},
	})
	require.NoError(t, err)
	assert.Len(t, resp.Events, 3)
	for _, event := range resp.Events {
		assert.Equal(t, "user-1", event.UserID)
		assert.Equal(t, featuredomain.CodeSMSInbound, event.FeatureCode)
	}
	assert.False(t, resp.PageInfo.HasMore)
}

func TestListRejectsUnknownFeatureFilter(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.List(context.Background(), domain.ListRequest{
		UserID:      "user-1",
		FeatureCode: "warp_drive",
	})
	assert.ErrorIs(t, err, featuredomain.ErrUnknownFeature)
}

func TestListPaginates(t *testing.T) {
	svc, db, node := newTestService(t)
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	seedEvents(t, db, node, "user-1", featuredomain.CodeAPIAccess, 5, base)

	resp, err := svc.List(context.Background(), domain.ListRequest{
		UserID:     "user-1",
		Pagination: pagination.Pagination{PageSize: 2},
	})
	require.NoError(t, err)
	assert.Len(t, resp.Events, 2)
	assert.True(t, resp.PageInfo.HasMore)
	assert.NotEmpty(t, resp.PageInfo.NextPageToken)

	// Newest first.
	assert.True(t, resp.Events[0].CreatedAt.After(resp.Events[1].CreatedAt))
}
