package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/gatekeeper/internal/actorcontext"
	"github.com/smallbiznis/gatekeeper/internal/clock"
	featuredomain "github.com/smallbiznis/gatekeeper/internal/feature/domain"
	"github.com/smallbiznis/gatekeeper/internal/override/domain"
	"github.com/smallbiznis/gatekeeper/internal/override/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T, fake *clock.FakeClock) (domain.Service, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Override{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fake,
		Repo:  repository.Provide(),
	})
	return svc, db
}

func TestGrantAndResolve(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	svc, _ := newTestService(t, fake)
	ctx := actorcontext.WithActor(context.Background(), "admin@example.com")

	limit := int64(25)
	resp, err := svc.Grant(ctx, domain.GrantRequest{
		UserID:      "user-1",
		FeatureCode: "mcp_protocol",
		Enabled:     true,
		CustomLimit: &limit,
	})
	require.NoError(t, err)
	assert.Equal(t, featuredomain.CodeMCPProtocol, resp.FeatureCode)
	assert.Equal(t, "admin@example.com", resp.CreatedBy)

	override, err := svc.Resolve(ctx, "user-1", featuredomain.CodeMCPProtocol)
	require.NoError(t, err)
	require.NotNil(t, override)
	assert.True(t, override.Enabled)
	assert.Equal(t, int64(25), *override.CustomLimit)
}

func TestGrantIsIdempotentUpsert(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	svc, db := newTestService(t, fake)
	ctx := context.Background()

	first, err := svc.Grant(ctx, domain.GrantRequest{
		UserID:      "user-1",
		FeatureCode: "api_access",
		Enabled:     false,
	})
	require.NoError(t, err)

	fake.Advance(time.Hour)
	limit := int64(500)
	resp, err := svc.Grant(ctx, domain.GrantRequest{
		UserID:      "user-1",
		FeatureCode: "api_access",
		Enabled:     true,
		CustomLimit: &limit,
	})
	require.NoError(t, err)
	assert.True(t, resp.Enabled)
	assert.Equal(t, int64(500), *resp.CustomLimit)
	// The re-grant replaces the row wholesale, created_at included.
	assert.True(t, resp.CreatedAt.After(first.CreatedAt))

	var count int64
	require.NoError(t, db.Model(&domain.Override{}).Where("user_id = ?", "user-1").Count(&count).Error)
	assert.Equal(t, int64(1), count)

	override, err := svc.Resolve(ctx, "user-1", featuredomain.CodeAPIAccess)
	require.NoError(t, err)
	require.NotNil(t, override)
	assert.True(t, override.Enabled)
}

func TestResolveSkipsExpired(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	svc, _ := newTestService(t, fake)
	ctx := context.Background()

	expiresAt := fake.Now().Add(24 * time.Hour)
	_, err := svc.Grant(ctx, domain.GrantRequest{
		UserID:      "user-1",
		FeatureCode: "custom_agents",
		Enabled:     true,
		ExpiresAt:   &expiresAt,
	})
	require.NoError(t, err)

	override, err := svc.Resolve(ctx, "user-1", featuredomain.CodeCustomAgents)
	require.NoError(t, err)
	assert.NotNil(t, override)

	fake.Advance(25 * time.Hour)
	override, err = svc.Resolve(ctx, "user-1", featuredomain.CodeCustomAgents)
	require.NoError(t, err)
	assert.Nil(t, override)
}

func TestGrantRejectsNegativeCustomLimit(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	svc, _ := newTestService(t, fake)

	bad := int64(-5)
	_, err := svc.Grant(context.Background(), domain.GrantRequest{
		UserID:      "user-1",
		FeatureCode: "api_access",
		Enabled:     true,
		CustomLimit: &bad,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidCustomLimit)
}

func TestGrantRejectsUnknownFeature(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	svc, _ := newTestService(t, fake)

	_, err := svc.Grant(context.Background(), domain.GrantRequest{
		UserID:      "user-1",
		FeatureCode: "quantum_link",
		Enabled:     true,
	})
	assert.ErrorIs(t, err, featuredomain.ErrUnknownFeature)
}

func TestRevoke(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	svc, _ := newTestService(t, fake)
	ctx := context.Background()

	_, err := svc.Grant(ctx, domain.GrantRequest{
		UserID:      "user-1",
		FeatureCode: "multi_phone",
		Enabled:     true,
	})
	require.NoError(t, err)

	require.NoError(t, svc.Revoke(ctx, "user-1", "multi_phone"))

	override, err := svc.Resolve(ctx, "user-1", featuredomain.CodeMultiPhone)
	require.NoError(t, err)
	assert.Nil(t, override)

	err = svc.Revoke(ctx, "user-1", "multi_phone")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListByUser(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	svc, _ := newTestService(t, fake)
	ctx := context.Background()

	for _, code := range []string{"sms_inbound", "api_access"} {
		_, err := svc.Grant(ctx, domain.GrantRequest{
			UserID:      "user-1",
			FeatureCode: code,
			Enabled:     true,
		})
		require.NoError(t, err)
	}

	items, err := svc.ListByUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, items, 2)
}
