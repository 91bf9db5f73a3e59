package middleware

import (
	"net/http"
	"strconv"

	"literary-archive/internal/redis"
	"literary-archive/internal/transport/httpdto"
	archive_errors "literary-archive/pkg/errors"
	"literary-archive/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// IssueRateLimitMiddleware limits upload-token requests per client IP.
// A nil limiter disables the check. Redis errors let the request through:
// CAPTCHA still guards the endpoint.
func IssueRateLimitMiddleware(limiter *redis.RateLimiter, l *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}

		result, err := limiter.AllowIssue(c.Request.Context(), c.ClientIP())
		if err != nil {
			if l != nil {
				l.Warn(c.Request.Context(), "rate limit check failed", zap.Error(err))
			}
			c.Next()
			return
		}

		setRateLimitHeaders(c, result)

		if !result.Allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests,
				httpdto.NewErrorResponse("too many upload token requests", archive_errors.CodeRateLimited))
			return
		}

		c.Next()
	}
}

// setRateLimitHeaders sets standard rate limit response headers
func setRateLimitHeaders(c *gin.Context, result *redis.RateLimitResult) {
	c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(int64(result.ResetIn.Seconds()), 10))
}
