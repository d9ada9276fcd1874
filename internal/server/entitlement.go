package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	entitlementdomain "github.com/smallbiznis/gatekeeper/internal/entitlement/domain"
)

// CheckAccess answers whether the user may use the feature right now.
func (s *Server) CheckAccess(c *gin.Context) {
	var req entitlementdomain.CheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	c.Set("feature_code", strings.TrimSpace(req.FeatureCode))

	decision, err := s.entitlementSvc.Check(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, decision)
}

// RecordUsage appends one usage event when the access decision grants it.
// A denial answers 403 with the decision that refused the recording.
func (s *Server) RecordUsage(c *gin.Context) {
	var req entitlementdomain.RecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	c.Set("feature_code", strings.TrimSpace(req.FeatureCode))

	resp, err := s.entitlementSvc.Record(c.Request.Context(), req)
	if err != nil {
		var denied *entitlementdomain.AccessDeniedError
		if errors.As(err, &denied) {
			c.JSON(http.StatusForbidden, gin.H{
				"error": errorPayload{
					Type:    "access_denied",
					Message: denied.Decision.Reason,
				},
				"decision": denied.Decision,
			})
			return
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// UserFeatures summarizes every feature in the catalog for one user.
func (s *Server) UserFeatures(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("user_id"))

	resp, err := s.entitlementSvc.ListUserFeatures(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
