package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	featuredomain "github.com/smallbiznis/gatekeeper/internal/feature/domain"
)

func (s *Server) ListGates(c *gin.Context) {
	var req featuredomain.ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	items, err := s.featureSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"gates": items})
}

func (s *Server) UpsertGate(c *gin.Context) {
	var req featuredomain.UpsertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.featureSvc.Upsert(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) GetGate(c *gin.Context) {
	resp, err := s.featureSvc.Get(c.Request.Context(), c.Param("code"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) DisableGate(c *gin.Context) {
	resp, err := s.featureSvc.Disable(c.Request.Context(), c.Param("code"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
