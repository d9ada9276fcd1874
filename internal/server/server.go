package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/gatekeeper/internal/config"
	"github.com/smallbiznis/gatekeeper/internal/entitlement"
	entitlementdomain "github.com/smallbiznis/gatekeeper/internal/entitlement/domain"
	"github.com/smallbiznis/gatekeeper/internal/feature"
	featuredomain "github.com/smallbiznis/gatekeeper/internal/feature/domain"
	"github.com/smallbiznis/gatekeeper/internal/observability"
	obsmiddleware "github.com/smallbiznis/gatekeeper/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/gatekeeper/internal/observability/metrics"
	obstracing "github.com/smallbiznis/gatekeeper/internal/observability/tracing"
	"github.com/smallbiznis/gatekeeper/internal/override"
	overridedomain "github.com/smallbiznis/gatekeeper/internal/override/domain"
	"github.com/smallbiznis/gatekeeper/internal/ratelimit"
	"github.com/smallbiznis/gatekeeper/internal/subscription"
	subscriptiondomain "github.com/smallbiznis/gatekeeper/internal/subscription/domain"
	"github.com/smallbiznis/gatekeeper/internal/usage"
	usagedomain "github.com/smallbiznis/gatekeeper/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	config.Module,
	fx.Provide(registerGin),
	subscription.Module,
	feature.Module,
	override.Module,
	usage.Module,
	entitlement.Module,
	ratelimit.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server starting", zap.String("addr", cfg.HTTPAddr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	db              *gorm.DB
	subscriptionSvc subscriptiondomain.Service
	featureSvc      featuredomain.Service
	overrideSvc     overridedomain.Service
	usageSvc        usagedomain.Service
	entitlementSvc  entitlementdomain.Service
	obsMetrics      *obsmetrics.Metrics
	recordLimiter   *ratelimit.RecordRateLimiter
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	DB              *gorm.DB
	SubscriptionSvc subscriptiondomain.Service
	FeatureSvc      featuredomain.Service
	OverrideSvc     overridedomain.Service
	UsageSvc        usagedomain.Service
	EntitlementSvc  entitlementdomain.Service
	ObsMetrics      *obsmetrics.Metrics            `optional:"true"`
	RecordLimiter   *ratelimit.RecordRateLimiter   `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		db:              p.DB,
		subscriptionSvc: p.SubscriptionSvc,
		featureSvc:      p.FeatureSvc,
		overrideSvc:     p.OverrideSvc,
		usageSvc:        p.UsageSvc,
		entitlementSvc:  p.EntitlementSvc,
		obsMetrics:      p.ObsMetrics,
		recordLimiter:   p.RecordLimiter,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	api := s.engine.Group("/api")
	{
		api.POST("/access/check", s.CheckAccess)
		api.POST("/usage", s.RecordRateLimit(), s.RecordUsage)
		api.GET("/usage", s.ListUsage)
		api.GET("/users/:user_id/features", s.UserFeatures)
	}

	admin := s.engine.Group("/admin", s.ActorContext())
	{
		admin.GET("/gates", s.ListGates)
		admin.POST("/gates", s.UpsertGate)
		admin.GET("/gates/:code", s.GetGate)
		admin.POST("/gates/:code/disable", s.DisableGate)

		admin.GET("/overrides", s.ListOverrides)
		admin.PUT("/overrides", s.GrantOverride)
		admin.DELETE("/overrides", s.RevokeOverride)
	}
}
