package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	featuredomain "github.com/smallbiznis/gatekeeper/internal/feature/domain"
	"github.com/smallbiznis/gatekeeper/pkg/db"
	"gorm.io/gorm"
)

type defaultGate struct {
	code       featuredomain.Code
	name       string
	free       featuredomain.TierGrant
	pro        featuredomain.TierGrant
	enterprise featuredomain.TierGrant
}

func limit(v int64) *int64 { return &v }

func metered(v int64) featuredomain.TierGrant {
	return featuredomain.TierGrant{Available: true, Limit: limit(v)}
}

func unmetered() featuredomain.TierGrant {
	return featuredomain.TierGrant{Available: true}
}

// defaultCatalog is the out-of-the-box gate configuration. Seeding never
// touches a gate an operator already configured.
var defaultCatalog = []defaultGate{
	{featuredomain.CodeSMSInbound, "Inbound SMS", metered(100), metered(5000), unmetered()},
	{featuredomain.CodeSMSOutbound, "Outbound SMS", metered(50), metered(5000), unmetered()},
	{featuredomain.CodeAgentRouting, "Agent Routing", featuredomain.TierGrant{}, unmetered(), unmetered()},
	{featuredomain.CodeMCPProtocol, "MCP Protocol", featuredomain.TierGrant{}, unmetered(), unmetered()},
	{featuredomain.CodeAPIAccess, "API Access", metered(1000), metered(50000), unmetered()},
	{featuredomain.CodeWebhookCustom, "Custom Webhooks", featuredomain.TierGrant{}, metered(20), unmetered()},
	{featuredomain.CodeHealthMonitoring, "Health Monitoring", unmetered(), unmetered(), unmetered()},
	{featuredomain.CodePriorityRouting, "Priority Routing", featuredomain.TierGrant{}, featuredomain.TierGrant{}, unmetered()},
	{featuredomain.CodeAnalyticsDashboard, "Analytics Dashboard", featuredomain.TierGrant{}, unmetered(), unmetered()},
	{featuredomain.CodeCustomAgents, "Custom Agents", featuredomain.TierGrant{}, metered(10), unmetered()},
	{featuredomain.CodeMultiPhone, "Multiple Phone Numbers", featuredomain.TierGrant{}, metered(5), unmetered()},
	{featuredomain.CodeTeamCollaboration, "Team Collaboration", featuredomain.TierGrant{}, unmetered(), unmetered()},
	{featuredomain.CodeAdvancedSecurity, "Advanced Security", featuredomain.TierGrant{}, featuredomain.TierGrant{}, unmetered()},
	{featuredomain.CodeDedicatedSupport, "Dedicated Support", featuredomain.TierGrant{}, featuredomain.TierGrant{}, unmetered()},
}

// EnsureDefaultGates seeds the default feature catalog for startup
// bootstrap. Only missing rows are inserted.
func EnsureDefaultGates(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, entry := range defaultCatalog {
			if err := ensureGateTx(ctx, tx, node, entry); err != nil {
				return err
			}
		}
		return nil
	})
}

func ensureGateTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, entry defaultGate) error {
	var existing featuredomain.FeatureGate
	err := tx.WithContext(ctx).Where("code = ?", entry.code).First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	now := time.Now().UTC()
	gate := featuredomain.FeatureGate{
		ID:                  node.Generate(),
		Code:                entry.code,
		Name:                entry.name,
		Enabled:             true,
		FreeAvailable:       entry.free.Available,
		FreeLimit:           entry.free.Limit,
		ProAvailable:        entry.pro.Available,
		ProLimit:            entry.pro.Limit,
		EnterpriseAvailable: entry.enterprise.Available,
		EnterpriseLimit:     entry.enterprise.Limit,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := tx.WithContext(ctx).Create(&gate).Error; err != nil {
		// Another replica seeded the same gate first.
		if db.IsDuplicateKeyErr(err) {
			return nil
		}
		return err
	}
	return nil
}
