package domain

import (
	"fmt"
	"math"
	"time"

	featuredomain "github.com/smallbiznis/gatekeeper/internal/feature/domain"
	subscriptiondomain "github.com/smallbiznis/gatekeeper/internal/subscription/domain"
)

// UnlimitedRemaining is the remaining value reported for unmetered access.
const UnlimitedRemaining = int64(math.MaxInt64)

// Deny reasons. Exactly one reason is attached to a denied decision, the
// first failing check in evaluation order.
const (
	ReasonDisabledForUser = "explicitly disabled for user"
	ReasonNotConfigured   = "feature not configured"
)

// ReasonNotAvailableOnTier formats the tier-availability denial.
func ReasonNotAvailableOnTier(tier subscriptiondomain.Tier) string {
	return fmt.Sprintf("feature not available on %s tier", tier)
}

// ReasonLimitExceeded formats the monthly-cap denial.
func ReasonLimitExceeded(count, limit int64) string {
	return fmt.Sprintf("Monthly limit exceeded (%d/%d)", count, limit)
}

// AccessDecision is the full answer to "may this user use this feature
// right now". CurrentUsage is only counted when baseline access is granted
// and the effective limit is finite; every other decision reports zero.
type AccessDecision struct {
	FeatureCode     featuredomain.Code      `json:"feature_code"`
	UserID          string                  `json:"user_id"`
	Tier            subscriptiondomain.Tier `json:"tier"`
	Allowed         bool                    `json:"allowed"`
	Unlimited       bool                    `json:"unlimited"`
	Limit           *int64                  `json:"limit,omitempty"`
	CurrentUsage    int64                   `json:"current_usage"`
	Remaining       int64                   `json:"remaining"`
	Reason          string                  `json:"reason,omitempty"`
	OverrideApplied bool                    `json:"override_applied"`
}

// AccessDeniedError wraps a denied decision so the recorder can refuse with
// the same payload a check would have produced. A denial is an expected
// outcome, not a fault.
type AccessDeniedError struct {
	Decision AccessDecision
}

func (e *AccessDeniedError) Error() string {
	if e.Decision.Reason != "" {
		return e.Decision.Reason
	}
	return "access denied"
}

// MonthWindow returns the calendar-month window [start of month, now] in
// the given reference location. Both bounds are returned in UTC.
func MonthWindow(now time.Time, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	start := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
	return start.UTC(), now.UTC()
}
