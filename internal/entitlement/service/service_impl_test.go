package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/gatekeeper/internal/clock"
	"github.com/smallbiznis/gatekeeper/internal/config"
	"github.com/smallbiznis/gatekeeper/internal/entitlement/domain"
	featuredomain "github.com/smallbiznis/gatekeeper/internal/feature/domain"
	featurerepository "github.com/smallbiznis/gatekeeper/internal/feature/repository"
	featureservice "github.com/smallbiznis/gatekeeper/internal/feature/service"
	overridedomain "github.com/smallbiznis/gatekeeper/internal/override/domain"
	overriderepository "github.com/smallbiznis/gatekeeper/internal/override/repository"
	overrideservice "github.com/smallbiznis/gatekeeper/internal/override/service"
	subscriptiondomain "github.com/smallbiznis/gatekeeper/internal/subscription/domain"
	subscriptionrepository "github.com/smallbiznis/gatekeeper/internal/subscription/repository"
	subscriptionservice "github.com/smallbiznis/gatekeeper/internal/subscription/service"
	usagedomain "github.com/smallbiznis/gatekeeper/internal/usage/domain"
	usagerepository "github.com/smallbiznis/gatekeeper/internal/usage/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type harness struct {
	svc       domain.Service
	overrides overridedomain.Service
	db        *gorm.DB
	node      *snowflake.Node
	fake      *clock.FakeClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&subscriptiondomain.Subscription{},
		&featuredomain.FeatureGate{},
		&overridedomain.Override{},
		&usagedomain.UsageEvent{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	fake := clock.NewFakeClock(time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC))
	log := zap.NewNop()

	subs := subscriptionservice.New(subscriptionservice.Params{
		DB:    db,
		Log:   log,
		Clock: fake,
		Repo:  subscriptionrepository.Provide(),
	})
	features := featureservice.New(featureservice.Params{
		DB:    db,
		Log:   log,
		GenID: node,
		Clock: fake,
		Repo:  featurerepository.Provide(),
	})
	overrides := overrideservice.New(overrideservice.Params{
		DB:    db,
		Log:   log,
		GenID: node,
		Clock: fake,
		Repo:  overriderepository.Provide(),
	})

	svc := New(Params{
		DB:            db,
		Log:           log,
		GenID:         node,
		Clock:         fake,
		Cfg:           config.Config{UsageTimezone: "UTC"},
		Subscriptions: subs,
		Features:      features,
		Overrides:     overrides,
		UsageRepo:     usagerepository.Provide(),
	})

	return &harness{
		svc:       svc,
		overrides: overrides,
		db:        db,
		node:      node,
		fake:      fake,
	}
}

func (h *harness) seedSubscription(t *testing.T, userID string, tier subscriptiondomain.Tier) {
	t.Helper()
	sub := subscriptiondomain.Subscription{
		ID:        h.node.Generate(),
		UserID:    userID,
		Tier:      tier,
		Status:    subscriptiondomain.SubscriptionStatusActive,
		StartAt:   h.fake.Now().AddDate(0, -6, 0),
		CreatedAt: h.fake.Now().AddDate(0, -6, 0),
	}
	require.NoError(t, h.db.Create(&sub).Error)
}

func (h *harness) seedGate(t *testing.T, gate featuredomain.FeatureGate) {
	t.Helper()
	gate.ID = h.node.Generate()
	if gate.Name == "" {
		gate.Name = string(gate.Code)
	}
	gate.CreatedAt = h.fake.Now()
	gate.UpdatedAt = h.fake.Now()
	require.NoError(t, h.db.Create(&gate).Error)
}

func (h *harness) seedUsage(t *testing.T, userID string, code featuredomain.Code, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		event := usagedomain.UsageEvent{
			ID:          h.node.Generate(),
			UserID:      userID,
			FeatureCode: code,
			RecordedAt:  h.fake.Now(),
			CreatedAt:   h.fake.Now(),
		}
		require.NoError(t, h.db.Create(&event).Error)
	}
}

func (h *harness) countEvents(t *testing.T, userID string, code featuredomain.Code) int64 {
	t.Helper()
	var count int64
	require.NoError(t, h.db.Model(&usagedomain.UsageEvent{}).
		Where("user_id = ? AND feature_code = ?", userID, code).
		Count(&count).Error)
	return count
}

func limitPtr(v int64) *int64 { return &v }

func TestCheck_FeatureNotConfigured(t *testing.T) {
	h := newHarness(t)

	decision, err := h.svc.Check(context.Background(), domain.CheckRequest{
		UserID:      "user-1",
		FeatureCode: "api_access",
	})
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, "feature not configured", decision.Reason)
	assert.Equal(t, int64(0), decision.CurrentUsage)
	assert.Equal(t, int64(0), decision.Remaining)
}

func TestCheck_DisabledGateReadsAsNotConfigured(t *testing.T) {
	h := newHarness(t)
	h.seedGate(t, featuredomain.FeatureGate{
		Code:          featuredomain.CodeAPIAccess,
		Enabled:       false,
		FreeAvailable: true,
	})

	decision, err := h.svc.Check(context.Background(), domain.CheckRequest{
		UserID:      "user-1",
		FeatureCode: "api_access",
	})
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, "feature not configured", decision.Reason)
}

func TestCheck_UnknownFeatureRejected(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.Check(context.Background(), domain.CheckRequest{
		UserID:      "user-1",
		FeatureCode: "hoverboard",
	})
	assert.ErrorIs(t, err, featuredomain.ErrUnknownFeature)
}

func TestCheck_TierUnavailable(t *testing.T) {
	h := newHarness(t)
	h.seedGate(t, featuredomain.FeatureGate{
		Code:                featuredomain.CodePriorityRouting,
		Enabled:             true,
		ProAvailable:        false,
		EnterpriseAvailable: true,
	})

	decision, err := h.svc.Check(context.Background(), domain.CheckRequest{
		UserID:      "user-1",
		FeatureCode: "priority_routing",
	})
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, "feature not available on free tier", decision.Reason)
	assert.Equal(t, int64(0), decision.CurrentUsage)
}

func TestCheck_DisabledOverrideWinsOverEverything(t *testing.T) {
	h := newHarness(t)
	h.seedSubscription(t, "user-1", subscriptiondomain.TierEnterprise)
	h.seedGate(t, featuredomain.FeatureGate{
		Code:                featuredomain.CodeAgentRouting,
		Enabled:             true,
		EnterpriseAvailable: true,
	})
	_, err := h.overrides.Grant(context.Background(), overridedomain.GrantRequest{
		UserID:      "user-1",
		FeatureCode: "agent_routing",
		Enabled:     false,
		CustomLimit: limitPtr(7),
	})
	require.NoError(t, err)

	decision, err := h.svc.Check(context.Background(), domain.CheckRequest{
		UserID:      "user-1",
		FeatureCode: "agent_routing",
	})
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, "explicitly disabled for user", decision.Reason)
	assert.Equal(t, int64(0), decision.CurrentUsage)
	// The disabling override's custom limit is still surfaced for display.
	require.NotNil(t, decision.Limit)
	assert.Equal(t, int64(7), *decision.Limit)
}

func TestCheck_AllowedUnlimited(t *testing.T) {
	h := newHarness(t)
	h.seedSubscription(t, "user-1", subscriptiondomain.TierEnterprise)
	h.seedGate(t, featuredomain.FeatureGate{
		Code:                featuredomain.CodeHealthMonitoring,
		Enabled:             true,
		EnterpriseAvailable: true,
	})

	decision, err := h.svc.Check(context.Background(), domain.CheckRequest{
		UserID:      "user-1",
		FeatureCode: "health_monitoring",
	})
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.True(t, decision.Unlimited)
	assert.Nil(t, decision.Limit)
	assert.Equal(t, domain.UnlimitedRemaining, decision.Remaining)
	assert.Equal(t, int64(0), decision.CurrentUsage)
}

func TestCheck_LimitBoundary(t *testing.T) {
	h := newHarness(t)
	h.seedGate(t, featuredomain.FeatureGate{
		Code:          featuredomain.CodeSMSOutbound,
		Enabled:       true,
		FreeAvailable: true,
		FreeLimit:     limitPtr(3),
	})

	h.seedUsage(t, "user-1", featuredomain.CodeSMSOutbound, 2)
	decision, err := h.svc.Check(context.Background(), domain.CheckRequest{
		UserID:      "user-1",
		FeatureCode: "sms_outbound",
	})
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, int64(2), decision.CurrentUsage)
	assert.Equal(t, int64(1), decision.Remaining)

	h.seedUsage(t, "user-1", featuredomain.CodeSMSOutbound, 1)
	decision, err = h.svc.Check(context.Background(), domain.CheckRequest{
		UserID:      "user-1",
		FeatureCode: "sms_outbound",
	})
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, "Monthly limit exceeded (3/3)", decision.Reason)
	assert.Equal(t, int64(3), decision.CurrentUsage)
	assert.Equal(t, int64(0), decision.Remaining)
}

func TestCheck_ExactLimitReasonString(t *testing.T) {
	h := newHarness(t)
	h.seedGate(t, featuredomain.FeatureGate{
		Code:          featuredomain.CodeSMSInbound,
		Enabled:       true,
		FreeAvailable: true,
		FreeLimit:     limitPtr(50),
	})
	h.seedUsage(t, "user-1", featuredomain.CodeSMSInbound, 50)

	decision, err := h.svc.Check(context.Background(), domain.CheckRequest{
		UserID:      "user-1",
		FeatureCode: "sms_inbound",
	})
	require.NoError(t, err)
	assert.Equal(t, "Monthly limit exceeded (50/50)", decision.Reason)
}

func TestCheck_FreeTierOverrideGrantsAccess(t *testing.T) {
	h := newHarness(t)
	h.seedGate(t, featuredomain.FeatureGate{
		Code:                featuredomain.CodeMCPProtocol,
		Enabled:             true,
		ProAvailable:        true,
		EnterpriseAvailable: true,
	})
	_, err := h.overrides.Grant(context.Background(), overridedomain.GrantRequest{
		UserID:      "user-1",
		FeatureCode: "mcp_protocol",
		Enabled:     true,
		CustomLimit: limitPtr(25),
	})
	require.NoError(t, err)

	decision, err := h.svc.Check(context.Background(), domain.CheckRequest{
		UserID:      "user-1",
		FeatureCode: "mcp_protocol",
	})
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.True(t, decision.OverrideApplied)
	assert.Equal(t, subscriptiondomain.TierFree, decision.Tier)
	assert.Equal(t, int64(25), *decision.Limit)
	assert.Equal(t, int64(25), decision.Remaining)
}

func TestCheck_EnabledOverrideWithoutCustomLimitKeepsTierLimit(t *testing.T) {
	h := newHarness(t)
	h.seedSubscription(t, "user-1", subscriptiondomain.TierPro)
	h.seedGate(t, featuredomain.FeatureGate{
		Code:         featuredomain.CodeCustomAgents,
		Enabled:      true,
		ProAvailable: true,
		ProLimit:     limitPtr(10),
	})
	_, err := h.overrides.Grant(context.Background(), overridedomain.GrantRequest{
		UserID:      "user-1",
		FeatureCode: "custom_agents",
		Enabled:     true,
	})
	require.NoError(t, err)

	decision, err := h.svc.Check(context.Background(), domain.CheckRequest{
		UserID:      "user-1",
		FeatureCode: "custom_agents",
	})
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.True(t, decision.OverrideApplied)
	assert.Equal(t, int64(10), *decision.Limit)
}

func TestCheck_EnabledOverrideOnUnavailableTierIsUnmetered(t *testing.T) {
	h := newHarness(t)
	h.seedGate(t, featuredomain.FeatureGate{
		Code:                featuredomain.CodeAdvancedSecurity,
		Enabled:             true,
		EnterpriseAvailable: true,
	})
	_, err := h.overrides.Grant(context.Background(), overridedomain.GrantRequest{
		UserID:      "user-1",
		FeatureCode: "advanced_security",
		Enabled:     true,
	})
	require.NoError(t, err)

	decision, err := h.svc.Check(context.Background(), domain.CheckRequest{
		UserID:      "user-1",
		FeatureCode: "advanced_security",
	})
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.True(t, decision.Unlimited)
	assert.Equal(t, domain.UnlimitedRemaining, decision.Remaining)
}

func TestCheck_ExpiredOverrideFallsBackToTier(t *testing.T) {
	h := newHarness(t)
	h.seedGate(t, featuredomain.FeatureGate{
		Code:         featuredomain.CodeWebhookCustom,
		Enabled:      true,
		ProAvailable: true,
	})
	expiresAt := h.fake.Now().Add(time.Hour)
	_, err := h.overrides.Grant(context.Background(), overridedomain.GrantRequest{
		UserID:      "user-1",
		FeatureCode: "webhook_custom",
		Enabled:     true,
		ExpiresAt:   &expiresAt,
	})
	require.NoError(t, err)

	decision, err := h.svc.Check(context.Background(), domain.CheckRequest{
		UserID:      "user-1",
		FeatureCode: "webhook_custom",
	})
	require.NoError(t, err)
	assert.True(t, decision.Allowed)

	h.fake.Advance(2 * time.Hour)
	decision, err = h.svc.Check(context.Background(), domain.CheckRequest{
		UserID:      "user-1",
		FeatureCode: "webhook_custom",
	})
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, "feature not available on free tier", decision.Reason)
}

func TestCheck_MonthRolloverResetsUsage(t *testing.T) {
	h := newHarness(t)
	h.seedGate(t, featuredomain.FeatureGate{
		Code:          featuredomain.CodeAPIAccess,
		Enabled:       true,
		FreeAvailable: true,
		FreeLimit:     limitPtr(2),
	})
	h.seedUsage(t, "user-1", featuredomain.CodeAPIAccess, 2)

	decision, err := h.svc.Check(context.Background(), domain.CheckRequest{
		UserID:      "user-1",
		FeatureCode: "api_access",
	})
	require.NoError(t, err)
	assert.False(t, decision.Allowed)

	// Cross into July: the June events fall outside the new window.
	h.fake.Advance(20 * 24 * time.Hour)
	decision, err = h.svc.Check(context.Background(), domain.CheckRequest{
		UserID:      "user-1",
		FeatureCode: "api_access",
	})
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, int64(0), decision.CurrentUsage)
	assert.Equal(t, int64(2), decision.Remaining)
}

func TestRecord_AppendsExactlyOneRow(t *testing.T) {
	h := newHarness(t)
	h.seedGate(t, featuredomain.FeatureGate{
		Code:          featuredomain.CodeSMSOutbound,
		Enabled:       true,
		FreeAvailable: true,
		FreeLimit:     limitPtr(5),
	})

	resp, err := h.svc.Record(context.Background(), domain.RecordRequest{
		UserID:      "user-1",
		FeatureCode: "sms_outbound",
		SessionID:   "sess-42",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.EventID)
	assert.True(t, resp.Decision.Allowed)
	// The decision is the one that authorized the append: usage as seen
	// before the new row.
	assert.Equal(t, int64(0), resp.Decision.CurrentUsage)
	assert.Equal(t, int64(5), resp.Decision.Remaining)

	assert.Equal(t, int64(1), h.countEvents(t, "user-1", featuredomain.CodeSMSOutbound))

	var stored usagedomain.UsageEvent
	require.NoError(t, h.db.Where("user_id = ?", "user-1").First(&stored).Error)
	assert.Equal(t, "sess-42", stored.SessionID)
}

func TestRecord_DeniedAppendsNothing(t *testing.T) {
	h := newHarness(t)
	h.seedGate(t, featuredomain.FeatureGate{
		Code:          featuredomain.CodeSMSOutbound,
		Enabled:       true,
		FreeAvailable: true,
		FreeLimit:     limitPtr(1),
	})
	h.seedUsage(t, "user-1", featuredomain.CodeSMSOutbound, 1)

	_, err := h.svc.Record(context.Background(), domain.RecordRequest{
		UserID:      "user-1",
		FeatureCode: "sms_outbound",
	})
	var denied *domain.AccessDeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, "Monthly limit exceeded (1/1)", denied.Decision.Reason)

	assert.Equal(t, int64(1), h.countEvents(t, "user-1", featuredomain.CodeSMSOutbound))
}

func TestRecord_BaselineDenyShortCircuits(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.Record(context.Background(), domain.RecordRequest{
		UserID:      "user-1",
		FeatureCode: "team_collaboration",
	})
	var denied *domain.AccessDeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, "feature not configured", denied.Decision.Reason)
	assert.Equal(t, int64(0), h.countEvents(t, "user-1", featuredomain.CodeTeamCollaboration))
}

func TestRecord_UnlimitedAlwaysAppends(t *testing.T) {
	h := newHarness(t)
	h.seedSubscription(t, "user-1", subscriptiondomain.TierPro)
	h.seedGate(t, featuredomain.FeatureGate{
		Code:         featuredomain.CodeAgentRouting,
		Enabled:      true,
		ProAvailable: true,
	})

	for i := 0; i < 4; i++ {
		resp, err := h.svc.Record(context.Background(), domain.RecordRequest{
			UserID:      "user-1",
			FeatureCode: "agent_routing",
		})
		require.NoError(t, err)
		assert.Equal(t, domain.UnlimitedRemaining, resp.Decision.Remaining)
	}
	assert.Equal(t, int64(4), h.countEvents(t, "user-1", featuredomain.CodeAgentRouting))
}

func TestRecord_ConcurrentNeverExceedsLimit(t *testing.T) {
	h := newHarness(t)
	h.seedGate(t, featuredomain.FeatureGate{
		Code:          featuredomain.CodeAPIAccess,
		Enabled:       true,
		FreeAvailable: true,
		FreeLimit:     limitPtr(5),
	})

	const attempts = 12
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.svc.Record(context.Background(), domain.RecordRequest{
				UserID:      "user-1",
				FeatureCode: "api_access",
			})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var granted, refused int
	for err := range results {
		if err == nil {
			granted++
			continue
		}
		var denied *domain.AccessDeniedError
		require.ErrorAs(t, err, &denied)
		refused++
	}

	assert.Equal(t, 5, granted)
	assert.Equal(t, attempts-5, refused)
	assert.Equal(t, int64(5), h.countEvents(t, "user-1", featuredomain.CodeAPIAccess))
}

func TestListUserFeatures(t *testing.T) {
	h := newHarness(t)
	h.seedSubscription(t, "user-1", subscriptiondomain.TierPro)
	h.seedGate(t, featuredomain.FeatureGate{
		Code:         featuredomain.CodeSMSInbound,
		Name:         "Inbound SMS",
		Enabled:      true,
		ProAvailable: true,
		ProLimit:     limitPtr(5000),
	})
	h.seedGate(t, featuredomain.FeatureGate{
		Code:                featuredomain.CodeAdvancedSecurity,
		Name:                "Advanced Security",
		Enabled:             true,
		EnterpriseAvailable: true,
	})
	// Kill-switched gates and features never configured stay out of the
	// summary entirely.
	h.seedGate(t, featuredomain.FeatureGate{
		Code:         featuredomain.CodeWebhookCustom,
		Enabled:      false,
		ProAvailable: true,
	})
	h.seedUsage(t, "user-1", featuredomain.CodeSMSInbound, 3)

	resp, err := h.svc.ListUserFeatures(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.TierPro, resp.Tier)
	require.Len(t, resp.Features, 2)

	// Ordered by feature code.
	security := resp.Features[0]
	assert.Equal(t, featuredomain.CodeAdvancedSecurity, security.FeatureCode)
	assert.Equal(t, "Advanced Security", security.Name)
	assert.False(t, security.Allowed)
	assert.Equal(t, "feature not available on pro tier", security.Reason)

	inbound := resp.Features[1]
	assert.Equal(t, featuredomain.CodeSMSInbound, inbound.FeatureCode)
	assert.True(t, inbound.Allowed)
	assert.Equal(t, "Inbound SMS", inbound.Name)
	assert.Equal(t, int64(3), inbound.CurrentUsage)
	assert.Equal(t, int64(4997), inbound.Remaining)
}
