package middleware

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"time"

	"todohive/internal/pkg/metrics"
	"todohive/internal/pkg/ratelimit"

	"github.com/gin-gonic/gin"
)

// RateLimit 按客户端 IP 限流。桶耗尽时返回 429 并带 retry_after 秒数。
//
// Redis 不可用时放行请求：限流是防滥用手段，不应成为单点。
func RateLimit(limiter *ratelimit.Limiter, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		allowed, wait, err := limiter.Allow(ctx, c.ClientIP())
		if err != nil {
			if logger != nil {
				logger.Warn("rate limit check failed", slog.String("error", err.Error()))
			}
			c.Next()
			return
		}
		if !allowed {
			if metrics.RateLimitRejectedTotal != nil {
				metrics.RateLimitRejectedTotal.Inc()
			}
			retryAfter := int(math.Ceil(wait.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "too many requests",
				"retry_after": retryAfter,
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
