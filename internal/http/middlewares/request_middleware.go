package middlewares

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-Id"

// RequestID reuses an inbound X-Request-Id (so a caller's trace carries
// through) or mints a fresh uuid, echoes it back on the response, and
// stashes it for RequestLogger and any handler that wants it.
func RequestID() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		id := ctx.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		ctx.Writer.Header().Set(requestIDHeader, id)
		ctx.Set("request_id", id)
		ctx.Next()
	}
}

// RequestLogger emits one structured log line per request after the
// handler chain completes, so it can report the final status and total
// latency rather than just the inbound request.
func RequestLogger() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		method := ctx.Request.Method
		route := ctx.FullPath()
		if route == "" {
			route = ctx.Request.URL.Path
		}

		ctx.Next()

		reqID, _ := ctx.Get("request_id")
		slog.Default().InfoContext(
			ctx.Request.Context(),
			"http_request",
			"method", method,
			"route", route,
			"status", ctx.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
			"request_id", reqID,
		)
	}
}
