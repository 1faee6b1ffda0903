package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/fundeport/academy-api/internal/middleware"
	"github.com/fundeport/academy-api/internal/models"
)

// claimsFromContext returns the authenticated principal's token claims, or
// nil on unauthenticated routes.
func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, ok := c.Get(middleware.ContextUserKey)
	if !ok {
		return nil
	}
	claims, _ := value.(*models.JWTClaims)
	return claims
}
