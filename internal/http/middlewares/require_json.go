package middlewares

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

var bodyBearingMethods = map[string]bool{
	http.MethodPost:  true,
	http.MethodPut:   true,
	http.MethodPatch: true,
}

// RequireJSON rejects any body-bearing request whose Content-Type isn't
// application/json (charset suffixes like "; charset=utf-8" are fine).
// GET/DELETE/etc pass through untouched.
func RequireJSON() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !bodyBearingMethods[c.Request.Method] {
			c.Next()
			return
		}

		ct := strings.ToLower(c.GetHeader("Content-Type"))
		if !strings.HasPrefix(ct, "application/json") {
			c.AbortWithStatusJSON(http.StatusUnsupportedMediaType, gin.H{
				"error": gin.H{
					"code":    "unsupported_media_type",
					"message": "Content-Type must be application/json",
				},
			})
			return
		}
		c.Next()
	}
}
