package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	overridedomain "github.com/smallbiznis/gatekeeper/internal/override/domain"
)

func (s *Server) ListOverrides(c *gin.Context) {
	userID := strings.TrimSpace(c.Query("user_id"))

	items, err := s.overrideSvc.ListByUser(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"overrides": items})
}

func (s *Server) GrantOverride(c *gin.Context) {
	var req overridedomain.GrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.overrideSvc.Grant(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) RevokeOverride(c *gin.Context) {
	userID := strings.TrimSpace(c.Query("user_id"))
	code := strings.TrimSpace(c.Query("feature_code"))

	if err := s.overrideSvc.Revoke(c.Request.Context(), userID, code); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
