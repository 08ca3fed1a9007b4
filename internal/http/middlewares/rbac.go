package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RequireRole gates the admin RPC surface (dlq replay, job reset,
// recover-in-flight): RequireAuth must run first to populate the role,
// so a missing role is a wiring bug rather than an unauthenticated call.
func (m *AuthMiddleware) RequireRole(required string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, ok := RoleFromContext(c)
		if !ok || role == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{"code": "unauthorized", "message": "Missing identity context"},
			})
			return
		}
		if role != required {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": gin.H{"code": "forbidden", "message": "Admin role required"},
			})
			return
		}
		c.Next()
	}
}
