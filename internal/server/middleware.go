package server

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/gatekeeper/internal/actorcontext"
	entitlementdomain "github.com/smallbiznis/gatekeeper/internal/entitlement/domain"
)

// ActorContext stores the acting admin identity from the X-Admin-Actor
// header for created_by attribution on overrides.
func (s *Server) ActorContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := strings.TrimSpace(c.GetHeader("X-Admin-Actor"))
		if actor != "" {
			ctx := actorcontext.WithActor(c.Request.Context(), actor)
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}
}

// classifyErrorForLog maps an error to (type, code) for the request log.
func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}

	if vErr := asValidationErrors(err); vErr != nil {
		code := ""
		if len(vErr.Errors) > 0 {
			code = vErr.Errors[0].Code
		}
		return "validation_error", code
	}
	if isValidationError(err) {
		return "validation_error", validationErrorCode(err)
	}

	var denied *entitlementdomain.AccessDeniedError
	if errors.As(err, &denied) {
		return "access_denied", "access_denied"
	}

	switch {
	case isNotFoundError(err):
		return "not_found", "not_found"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited", "rate_limited"
	case errors.Is(err, ErrServiceUnavailable):
		return "service_unavailable", "service_unavailable"
	default:
		return "internal_error", "internal_error"
	}
}
