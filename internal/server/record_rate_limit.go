package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const recordEndpointLabel = "/api/usage"

type recordRateLimitProbe struct {
	UserID      string `json:"user_id"`
	FeatureCode string `json:"feature_code"`
}

// RecordRateLimit throttles usage recording before the handler runs. The
// endpoint bucket guards the database, the per-user bucket stops one caller
// from starving the rest, and the redis lease keeps concurrent replicas from
// hammering the same (user, feature) row.
func (s *Server) RecordRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.recordLimiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()

		endpointRes, err := s.recordLimiter.AllowEndpoint(ctx)
		if err != nil {
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if !endpointRes.Allowed {
			s.obsMetrics.RecordRateLimitDenied(ctx, recordEndpointLabel, "endpoint")
			s.denyRateLimited(c, "endpoint", endpointRes.RetryAfter)
			return
		}

		probe, ok := s.peekRecordBody(c)
		if !ok {
			AbortWithError(c, invalidRequestError())
			return
		}

		userRes, err := s.recordLimiter.AllowUser(ctx, probe.UserID)
		if err != nil {
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if !userRes.Allowed {
			s.obsMetrics.RecordRateLimitDenied(ctx, recordEndpointLabel, "user")
			s.denyRateLimited(c, "user", userRes.RetryAfter)
			return
		}

		token, acquired, err := s.recordLimiter.TryLockUserFeature(ctx, probe.UserID, probe.FeatureCode)
		if err != nil {
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if !acquired {
			s.obsMetrics.RecordRateLimitDenied(ctx, recordEndpointLabel, "lease")
			s.denyRateLimited(c, "lease", 0)
			return
		}
		if token != "" {
			defer func() {
				_ = s.recordLimiter.ReleaseUserFeature(ctx, probe.UserID, probe.FeatureCode, token)
			}()
		}

		s.obsMetrics.RecordRateLimitAllowed(ctx, recordEndpointLabel)
		c.Next()
	}
}

// peekRecordBody reads the identifying fields without consuming the body the
// handler still has to bind.
func (s *Server) peekRecordBody(c *gin.Context) (recordRateLimitProbe, bool) {
	var probe recordRateLimitProbe

	if c.Request.Body == nil {
		return probe, false
	}
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return probe, false
	}
	c.Request.Body = io.NopCloser(bytes.NewBuffer(raw))

	if err := json.Unmarshal(raw, &probe); err != nil {
		return probe, false
	}
	probe.UserID = strings.TrimSpace(probe.UserID)
	probe.FeatureCode = strings.TrimSpace(probe.FeatureCode)
	if probe.UserID == "" {
		return probe, false
	}
	return probe, true
}

func (s *Server) denyRateLimited(c *gin.Context, reason string, retryAfter time.Duration) {
	if retryAfter > 0 {
		seconds := int64(math.Ceil(retryAfter.Seconds()))
		c.Header("Retry-After", fmt.Sprintf("%d", seconds))
	}
	c.Header("X-Rate-Limited-Reason", reason)
	c.AbortWithStatusJSON(http.StatusTooManyRequests, errorResponse{
		Error: errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		},
	})
}
