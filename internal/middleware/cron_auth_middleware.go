package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"literary-archive/internal/transport/httpdto"
	archive_errors "literary-archive/pkg/errors"

	"github.com/gin-gonic/gin"
)

// CronAuthMiddleware guards operational endpoints with a static bearer
// secret. An empty secret rejects every request as misconfigured.
func CronAuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.AbortWithStatusJSON(http.StatusInternalServerError,
				httpdto.NewErrorResponse("cleanup secret is not configured", archive_errors.CodeMisconfiguration))
			return
		}

		token := extractBearer(c)
		if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				httpdto.NewErrorResponse("unauthorized", archive_errors.CodeUnauthorized))
			return
		}

		c.Next()
	}
}

func extractBearer(c *gin.Context) string {
	value := c.GetHeader("Authorization")
	parts := strings.SplitN(value, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
