package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis_rate/v10"
	"go.uber.org/zap"

	"github.com/late24/playrank/internal/logger"
)

// RateLimit throttles requests per client IP using a distributed limiter, so
// the limit holds across instances. A nil limiter disables throttling.
func RateLimit(limiter *redis_rate.Limiter, perSecond int) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil || perSecond <= 0 {
			c.Next()
			return
		}

		key := "ratelimit:" + c.ClientIP()
		result, err := limiter.Allow(c.Request.Context(), key, redis_rate.PerSecond(perSecond))
		if err != nil {
			// limiter outage must not take the ingest path down
			logger.Warn("rate limiter unavailable", zap.Error(err))
			c.Next()
			return
		}

		if result.Allowed == 0 {
			c.Header("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())+1))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": gin.H{
					"code":    "rate_limited",
					"message": "Too many requests",
				},
			})
			return
		}

		c.Next()
	}
}
