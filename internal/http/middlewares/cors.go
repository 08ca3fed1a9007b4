package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	allowedMethods = "GET,POST,PUT,DELETE,OPTIONS"
	allowedHeaders = "Authorization,Content-Type"
)

// CORSMiddleware allows only an explicit origin allowlist (no wildcard —
// the API is cookie-authenticated, so Access-Control-Allow-Credentials
// and "*" can never be combined) and short-circuits preflight OPTIONS
// requests before they reach routing.
func CORSMiddleware(allowedOrigins []string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[origin] = struct{}{}
	}

	return func(ctx *gin.Context) {
		if origin := ctx.GetHeader("Origin"); origin != "" {
			if _, ok := allowed[origin]; ok {
				ctx.Header("Access-Control-Allow-Origin", origin)
				ctx.Header("Access-Control-Allow-Credentials", "true")
				ctx.Header("Access-Control-Allow-Methods", allowedMethods)
				ctx.Header("Access-Control-Allow-Headers", allowedHeaders)
			}
		}

		if ctx.Request.Method == http.MethodOptions {
			ctx.AbortWithStatus(http.StatusNoContent)
			return
		}
		ctx.Next()
	}
}
