package middlewares

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// clientBucket is a fixed-window counter: count resets to zero (and
// windowEnd slides forward) the first time a request lands after the
// window has elapsed.
type clientBucket struct {
	count     int
	windowEnd time.Time
}

// RateLimiter is a process-local, per-key fixed-window limiter — good
// enough for login/signup/refresh/submit throttling on a single runner;
// it does not coordinate across runners.
type RateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	clients map[string]*clientBucket
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:   limit,
		window:  window,
		clients: make(map[string]*clientBucket),
	}
}

// RateLimiterMiddleware enforces the limit for the key keyFn derives
// from the request, falling back to the client IP when keyFn returns "".
func (rl *RateLimiter) RateLimiterMiddleware(keyFn func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := keyFn(c)
		if key == "" {
			key = clientIP(c)
		}

		now := time.Now()
		rl.mu.Lock()

		b, ok := rl.clients[key]
		if !ok || now.After(b.windowEnd) {
			rl.clients[key] = &clientBucket{count: 1, windowEnd: now.Add(rl.window)}
			rl.mu.Unlock()
			c.Next()
			return
		}

		if b.count >= rl.limit {
			retryAfter := int(time.Until(b.windowEnd).Seconds())
			if retryAfter < 0 {
				retryAfter = 0
			}
			rl.mu.Unlock()

			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": gin.H{
					"code":    "rate_limited",
					"message": "Too many requests. Please try again shortly.",
				},
			})
			return
		}

		b.count++
		rl.mu.Unlock()
		c.Next()
	}
}

// KeyByIP rate-limits unauthenticated endpoints (signup, login, refresh)
// by client IP.
func KeyByIP(c *gin.Context) string {
	return clientIP(c)
}

// KeyByUserOrIP rate-limits authenticated endpoints by the caller's user
// id when RequireAuth has run, falling back to IP otherwise.
func KeyByUserOrIP(c *gin.Context) string {
	if id, ok := UserIDFromContext(c); ok && id != "" {
		return "user:" + id
	}
	return clientIP(c)
}

// clientIP strips any port/zone suffix gin's ClientIP (which already
// honors X-Forwarded-For/X-Real-IP when gin is configured to trust them)
// may have left attached.
func clientIP(c *gin.Context) string {
	ip := c.ClientIP()
	if host, _, err := net.SplitHostPort(ip); err == nil && host != "" {
		return host
	}
	return ip
}
