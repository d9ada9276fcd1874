package migration

import (
	"strings"

	"github.com/smallbiznis/gatekeeper/internal/config"
	featuredomain "github.com/smallbiznis/gatekeeper/internal/feature/domain"
	overridedomain "github.com/smallbiznis/gatekeeper/internal/override/domain"
	"github.com/smallbiznis/gatekeeper/internal/seed"
	subscriptiondomain "github.com/smallbiznis/gatekeeper/internal/subscription/domain"
	usagedomain "github.com/smallbiznis/gatekeeper/internal/usage/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if strings.EqualFold(conn.Dialector.Name(), "postgres") {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else {
			// The versioned migrations target postgres. Other dialects
			// (sqlite for local runs) get the schema from the models.
			if err := conn.AutoMigrate(
				&subscriptiondomain.Subscription{},
				&featuredomain.FeatureGate{},
				&overridedomain.Override{},
				&usagedomain.UsageEvent{},
			); err != nil {
				return err
			}
		}

		if cfg.SeedDefaultGates {
			return seed.EnsureDefaultGates(conn)
		}
		return nil
	}),
)
