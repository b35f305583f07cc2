package middleware

import (
	"net/http"

	"golang.org/x/time/rate"

	"github.com/gin-gonic/gin"
)

// LimiterSource hands out the per-affiliate token bucket.
type LimiterSource interface {
	GetLimiter(affiliateID string) *rate.Limiter
}

// RateLimitMiddleware throttles by affiliate id, falling back to client IP
// for anonymous calls so one noisy widget cannot starve the rest.
func RateLimitMiddleware(src LimiterSource) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.Param("id")
		if key == "" {
			key = c.Query("affiliate_id")
		}
		if key == "" {
			key = c.ClientIP()
		}

		if !src.GetLimiter(key).Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"retry_after": "1s",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
