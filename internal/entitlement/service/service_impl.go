package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/gatekeeper/internal/clock"
	"github.com/smallbiznis/gatekeeper/internal/config"
	"github.com/smallbiznis/gatekeeper/internal/entitlement/domain"
	featuredomain "github.com/smallbiznis/gatekeeper/internal/feature/domain"
	"github.com/smallbiznis/gatekeeper/internal/observability/metrics"
	overridedomain "github.com/smallbiznis/gatekeeper/internal/override/domain"
	subscriptiondomain "github.com/smallbiznis/gatekeeper/internal/subscription/domain"
	usagedomain "github.com/smallbiznis/gatekeeper/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	Cfg           config.Config
	Subscriptions subscriptiondomain.Service
	Features      featuredomain.Service
	Overrides     overridedomain.Service
	UsageRepo     usagedomain.Repository
	Metrics       *metrics.Metrics `optional:"true"`
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	clock         clock.Clock
	loc           *time.Location
	subscriptions subscriptiondomain.Service
	features      featuredomain.Service
	overrides     overridedomain.Service
	usageRepo     usagedomain.Repository
	metrics       *metrics.Metrics
	recordMu      *keyedMutex
}

func New(p Params) domain.Service {
	loc, err := time.LoadLocation(strings.TrimSpace(p.Cfg.UsageTimezone))
	if err != nil || loc == nil {
		p.Log.Warn("invalid usage timezone, falling back to UTC",
			zap.String("usage_timezone", p.Cfg.UsageTimezone),
		)
		loc = time.UTC
	}
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("entitlement.service"),
		genID:         p.GenID,
		clock:         p.Clock,
		loc:           loc,
		subscriptions: p.Subscriptions,
		features:      p.Features,
		overrides:     p.Overrides,
		usageRepo:     p.UsageRepo,
		metrics:       p.Metrics,
		recordMu:      newKeyedMutex(),
	}
}

func (s *Service) Check(ctx context.Context, req domain.CheckRequest) (*domain.AccessDecision, error) {
	userID, code, err := s.validate(req.UserID, req.FeatureCode)
	if err != nil {
		return nil, err
	}

	tier, err := s.subscriptions.ResolveTier(ctx, userID)
	if err != nil {
		return nil, err
	}

	decision, err := s.evaluate(ctx, s.db, userID, code, tier)
	if err != nil {
		return nil, err
	}

	s.observeDecision(ctx, decision)
	return decision, nil
}

func (s *Service) Record(ctx context.Context, req domain.RecordRequest) (*domain.RecordResponse, error) {
	userID, code, err := s.validate(req.UserID, req.FeatureCode)
	if err != nil {
		return nil, err
	}

	tier, err := s.subscriptions.ResolveTier(ctx, userID)
	if err != nil {
		return nil, err
	}

	baseline, limit, err := s.evaluateBaseline(ctx, userID, code, tier)
	if err != nil {
		return nil, err
	}
	if !baseline.Allowed {
		s.observeDecision(ctx, baseline)
		return nil, &domain.AccessDeniedError{Decision: *baseline}
	}

	lockStart := time.Now()
	unlock := s.recordMu.Lock(userID + "|" + string(code))
	defer unlock()
	if s.metrics != nil {
		s.metrics.RecordLockWait(ctx, string(code), time.Since(lockStart))
	}

	now := s.clock.Now()
	event := &usagedomain.UsageEvent{
		ID:          s.genID.Generate(),
		UserID:      userID,
		FeatureCode: code,
		SessionID:   strings.TrimSpace(req.SessionID),
		RecordedAt:  now,
		CreatedAt:   now,
	}
	if req.Metadata != nil {
		event.Metadata = datatypes.JSONMap(req.Metadata)
	}

	decision := *baseline
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if limit != nil {
			if err := s.usageRepo.AcquireRecordLock(ctx, tx, userID, code); err != nil {
				return err
			}
			from, to := domain.MonthWindow(now, s.loc)
			count, err := s.usageRepo.CountInWindow(ctx, tx, userID, code, from, to)
			if err != nil {
				return err
			}
			applyUsage(&decision, count)
			if !decision.Allowed {
				return &domain.AccessDeniedError{Decision: decision}
			}
		}
		return s.usageRepo.Insert(ctx, tx, event)
	})
	if err != nil {
		var denied *domain.AccessDeniedError
		if errors.As(err, &denied) {
			s.observeDecision(ctx, &denied.Decision)
			return nil, denied
		}
		return nil, err
	}

	s.observeDecision(ctx, &decision)
	if s.metrics != nil {
		s.metrics.RecordUsageRecorded(ctx, string(code))
	}
	s.log.Info("usage recorded",
		zap.String("user_id", userID),
		zap.String("feature_code", string(code)),
		zap.String("tier", string(decision.Tier)),
		zap.Int64("remaining", decision.Remaining),
	)

	return &domain.RecordResponse{
		Decision:   decision,
		EventID:    event.ID.String(),
		RecordedAt: event.RecordedAt,
	}, nil
}

func (s *Service) ListUserFeatures(ctx context.Context, userID string) (*domain.UserFeaturesResponse, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, domain.ErrInvalidUser
	}

	tier, err := s.subscriptions.ResolveTier(ctx, userID)
	if err != nil {
		return nil, err
	}

	// Only gates present and enabled in the catalog are summarized,
	// ordered by feature code for a stable response.
	enabled := true
	gates, err := s.features.Gates(ctx, featuredomain.ListRequest{
		Enabled: &enabled,
		SortBy:  "code",
		OrderBy: "asc",
	})
	if err != nil {
		return nil, err
	}

	features := make([]domain.FeatureSummary, 0, len(gates))
	for i := range gates {
		gate := &gates[i]
		decision, limit, err := s.evaluateGate(ctx, userID, gate.Code, tier, gate)
		if err != nil {
			return nil, err
		}
		if err := s.applyWindowedUsage(ctx, s.db, decision, limit, userID, gate.Code); err != nil {
			return nil, err
		}

		features = append(features, domain.FeatureSummary{
			FeatureCode:     gate.Code,
			Name:            gate.Name,
			Allowed:         decision.Allowed,
			Unlimited:       decision.Unlimited,
			Limit:           decision.Limit,
			CurrentUsage:    decision.CurrentUsage,
			Remaining:       decision.Remaining,
			Reason:          decision.Reason,
			OverrideApplied: decision.OverrideApplied,
		})
	}

	return &domain.UserFeaturesResponse{
		UserID:   userID,
		Tier:     tier,
		Features: features,
	}, nil
}

// evaluate computes the full decision, including the windowed count when
// the baseline grants finite access.
func (s *Service) evaluate(ctx context.Context, db *gorm.DB, userID string, code featuredomain.Code, tier subscriptiondomain.Tier) (*domain.AccessDecision, error) {
	decision, limit, err := s.evaluateBaseline(ctx, userID, code, tier)
	if err != nil {
		return nil, err
	}
	if err := s.applyWindowedUsage(ctx, db, decision, limit, userID, code); err != nil {
		return nil, err
	}
	return decision, nil
}

// applyWindowedUsage folds the month-window count into a baseline decision
// that grants finite access. Unmetered and denied decisions are untouched.
func (s *Service) applyWindowedUsage(ctx context.Context, db *gorm.DB, decision *domain.AccessDecision, limit *int64, userID string, code featuredomain.Code) error {
	if !decision.Allowed || limit == nil {
		return nil
	}
	from, to := domain.MonthWindow(s.clock.Now(), s.loc)
	count, err := s.usageRepo.CountInWindow(ctx, db, userID, code, from, to)
	if err != nil {
		return err
	}
	applyUsage(decision, count)
	return nil
}

func (s *Service) evaluateBaseline(ctx context.Context, userID string, code featuredomain.Code, tier subscriptiondomain.Tier) (*domain.AccessDecision, *int64, error) {
	gate, err := s.features.Gate(ctx, code)
	if err != nil {
		return nil, nil, err
	}
	return s.evaluateGate(ctx, userID, code, tier, gate)
}

// evaluateGate walks the deny checks in order: explicit user disable,
// catalog presence, tier availability. The returned limit is the effective
// monthly cap; nil means unmetered. Usage is not consulted here.
func (s *Service) evaluateGate(ctx context.Context, userID string, code featuredomain.Code, tier subscriptiondomain.Tier, gate *featuredomain.FeatureGate) (*domain.AccessDecision, *int64, error) {
	decision := &domain.AccessDecision{
		FeatureCode: code,
		UserID:      userID,
		Tier:        tier,
	}

	override, err := s.overrides.Resolve(ctx, userID, code)
	if err != nil {
		return nil, nil, err
	}

	if override != nil && !override.Enabled {
		decision.Reason = domain.ReasonDisabledForUser
		// The custom limit rides along for display even though the
		// denial makes it inert.
		decision.Limit = override.CustomLimit
		return decision, nil, nil
	}

	if gate == nil || !gate.Enabled {
		decision.Reason = domain.ReasonNotConfigured
		return decision, nil, nil
	}

	grant := gate.ForTier(tier)

	var limit *int64
	switch {
	case override != nil && override.Enabled:
		// An enabled override grants availability regardless of tier.
		// Its custom limit wins; otherwise the tier limit applies when
		// the tier has the feature, else access is unmetered.
		decision.OverrideApplied = true
		switch {
		case override.CustomLimit != nil:
			limit = override.CustomLimit
		case grant.Available:
			limit = grant.Limit
		}
	case !grant.Available:
		decision.Reason = domain.ReasonNotAvailableOnTier(tier)
		return decision, nil, nil
	default:
		limit = grant.Limit
	}

	decision.Allowed = true
	if limit == nil {
		decision.Unlimited = true
		decision.Remaining = domain.UnlimitedRemaining
	} else {
		decision.Limit = limit
		decision.Remaining = *limit
	}
	return decision, limit, nil
}

// applyUsage folds the windowed count into a baseline decision with a
// finite limit.
func applyUsage(decision *domain.AccessDecision, count int64) {
	if decision.Limit == nil {
		return
	}
	limit := *decision.Limit
	decision.CurrentUsage = count
	if count >= limit {
		decision.Allowed = false
		decision.Remaining = 0
		decision.Reason = domain.ReasonLimitExceeded(count, limit)
		return
	}
	decision.Remaining = limit - count
}

func (s *Service) validate(userID, featureCode string) (string, featuredomain.Code, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", "", domain.ErrInvalidUser
	}
	code, err := featuredomain.ParseCode(featureCode)
	if err != nil {
		return "", "", err
	}
	return userID, code, nil
}

func (s *Service) observeDecision(ctx context.Context, decision *domain.AccessDecision) {
	if s.metrics == nil || decision == nil {
		return
	}
	s.metrics.RecordAccessCheck(ctx, string(decision.FeatureCode), string(decision.Tier), decision.Allowed)
	if !decision.Allowed {
		s.metrics.RecordAccessDenied(ctx, string(decision.FeatureCode), string(decision.Tier), denialKind(decision.Reason))
	}
}

// denialKind collapses formatted reasons to a low-cardinality metric label.
func denialKind(reason string) string {
	switch {
	case reason == domain.ReasonDisabledForUser:
		return "disabled_for_user"
	case reason == domain.ReasonNotConfigured:
		return "not_configured"
	case strings.HasPrefix(reason, "feature not available"):
		return "tier_unavailable"
	case strings.HasPrefix(reason, "Monthly limit exceeded"):
		return "limit_exceeded"
	default:
		return "other"
	}
}
